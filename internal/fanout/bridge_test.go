package fanout

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/snippetquiz/services/core/config"
)

func newTestBridge(t *testing.T, idle time.Duration) *Bridge {
	t.Helper()
	bridge, err := NewBridge(config.RedisConfig{Enabled: false}, config.StreamConfig{
		IdleTimeout: idle,
		BufferSize:  2,
	})
	require.NoError(t, err)
	return bridge
}

func TestDeliverWithoutListenerDrops(t *testing.T) {
	bridge := newTestBridge(t, time.Minute)

	delivered := bridge.Deliver("user-1", StreamMessage{Kind: KindQuizGeneration, Payload: json.RawMessage(`{}`)})
	require.False(t, delivered)
}

func TestDeliverToRegisteredStream(t *testing.T) {
	bridge := newTestBridge(t, time.Minute)
	stream := bridge.Register("user-1")
	defer bridge.Unregister(stream)

	delivered := bridge.Deliver("user-1", StreamMessage{Kind: KindQuizGeneration, Payload: json.RawMessage(`{"progress":{}}`)})
	require.True(t, delivered)

	select {
	case msg := <-stream.Messages():
		require.Equal(t, KindQuizGeneration, msg.Kind)
		require.JSONEq(t, `{"progress":{}}`, string(msg.Payload))
	default:
		t.Fatal("expected buffered message")
	}
}

func TestRegisterReplacesExistingStream(t *testing.T) {
	bridge := newTestBridge(t, time.Minute)

	first := bridge.Register("user-1")
	second := bridge.Register("user-1")
	defer bridge.Unregister(second)

	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatal("expected first stream to be closed")
	}

	require.True(t, bridge.Deliver("user-1", StreamMessage{Kind: KindCharacterMessage, Payload: json.RawMessage(`{}`)}))
	select {
	case <-second.Messages():
	default:
		t.Fatal("expected message on replacement stream")
	}
}

func TestStreamIdleTimeout(t *testing.T) {
	bridge := newTestBridge(t, 20*time.Millisecond)
	stream := bridge.Register("user-1")

	select {
	case <-stream.Done():
	case <-time.After(time.Second):
		t.Fatal("expected stream to time out")
	}
	require.False(t, bridge.Deliver("user-1", StreamMessage{Kind: KindQuizGeneration, Payload: json.RawMessage(`{}`)}))
}

func TestDeliverFullBufferDrops(t *testing.T) {
	bridge := newTestBridge(t, time.Minute)
	stream := bridge.Register("user-1")
	defer bridge.Unregister(stream)

	msg := StreamMessage{Kind: KindQuizGeneration, Payload: json.RawMessage(`{}`)}
	require.True(t, bridge.Deliver("user-1", msg))
	require.True(t, bridge.Deliver("user-1", msg))
	require.False(t, bridge.Deliver("user-1", msg))
}

func TestUnregisterStaleStreamKeepsReplacement(t *testing.T) {
	bridge := newTestBridge(t, time.Minute)

	first := bridge.Register("user-1")
	second := bridge.Register("user-1")

	// Unregistering the replaced stream must not tear down the
	// currently active one.
	bridge.Unregister(first)
	require.True(t, bridge.Deliver("user-1", StreamMessage{Kind: KindQuizGeneration, Payload: json.RawMessage(`{}`)}))

	bridge.Unregister(second)
	require.False(t, bridge.Deliver("user-1", StreamMessage{Kind: KindQuizGeneration, Payload: json.RawMessage(`{}`)}))
}

func TestChannelNames(t *testing.T) {
	require.Equal(t, "quiz-generation:user-id:u1", QuizChannel("u1"))
	require.Equal(t, "character.message.ephemeral:user-id:u1", CharacterChannel("u1"))
}
