package tracing

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"example.com/snippetquiz/services/core/config"
)

func TestDisabledTracerIsSafe(t *testing.T) {
	tracer, err := NewTracer(config.TracingConfig{})
	require.NoError(t, err)

	txn := tracer.StartTransaction("noop")
	require.Nil(t, txn)

	seg := tracer.StartSpan("noop", txn)
	require.NotNil(t, seg)
	seg.End()

	tracer.RecordError(txn, errors.New("ignored"))
	tracer.AddAttribute(txn, "key", "value")
	tracer.EndTransaction(txn)
	tracer.Close()
}

func TestZeroValueTracerIsSafe(t *testing.T) {
	var tracer Tracer = &NewRelicTracer{}

	txn := tracer.StartTransaction("noop")
	require.Nil(t, txn)

	seg := tracer.StartSpan("noop", txn)
	require.NotNil(t, seg)
	seg.End()

	tracer.RecordError(txn, errors.New("ignored"))
	tracer.AddAttribute(txn, "key", "value")
	tracer.EndTransaction(txn)
	tracer.Close()
}
