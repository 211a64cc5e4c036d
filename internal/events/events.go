package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Event names double as service bus topic names. They are part of the
// wire contract with the capture extension and the web app, so they
// must never be renamed.
const (
	ContentEntryCreatedName = "content-entry.created"
	TopicsAddedName         = "ai.topics.added"
	QuizCreatedName         = "quiz.created"
	QuestionsGeneratedName  = "ai.questions.generated"
)

// Event is a domain event that can be published on the bus.
type Event interface {
	EventID() string
	EventName() string
	OccurredOn() time.Time
	// Subject returns the aggregate id and owning user id.
	Subject() (aggregateID, userID string)
}

// Envelope is the wire format shared by all pipeline events.
type Envelope struct {
	Data EnvelopeData    `json:"data"`
	Meta json.RawMessage `json:"meta"`
}

// EnvelopeData carries the event header and the type-specific attributes.
type EnvelopeData struct {
	EventID    string          `json:"event_id"`
	Type       string          `json:"type"`
	OccurredOn time.Time       `json:"occurred_on"`
	Attributes json.RawMessage `json:"attributes"`
}

// Header holds the identity fields shared by all events. Its fields are
// serialized in the envelope data block, not in the attributes.
type Header struct {
	ID       string    `json:"-"`
	Occurred time.Time `json:"-"`
}

// NewHeader mints a header with a fresh event id.
func NewHeader() Header {
	return Header{ID: uuid.NewString(), Occurred: time.Now().UTC()}
}

func (h Header) EventID() string       { return h.ID }
func (h Header) OccurredOn() time.Time { return h.Occurred }

// Marshal serializes an event into its envelope. The meta block is
// always an empty object; consumers never read it.
func Marshal(ev Event) ([]byte, error) {
	attrs, err := json.Marshal(ev)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling event attributes")
	}

	env := Envelope{
		Data: EnvelopeData{
			EventID:    ev.EventID(),
			Type:       ev.EventName(),
			OccurredOn: ev.OccurredOn(),
			Attributes: attrs,
		},
		Meta: json.RawMessage(`{}`),
	}
	return json.Marshal(env)
}

// Unmarshal decodes an envelope into its concrete event type.
func Unmarshal(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrap(err, "decoding event envelope")
	}
	if env.Data.EventID == "" {
		return nil, errors.New("event envelope missing event_id")
	}

	var ev Event
	switch env.Data.Type {
	case ContentEntryCreatedName:
		ev = &ContentEntryCreated{}
	case TopicsAddedName:
		ev = &TopicsAdded{}
	case QuizCreatedName:
		ev = &QuizCreated{}
	case QuestionsGeneratedName:
		ev = &QuestionsGenerated{}
	default:
		return nil, errors.Errorf("unknown event type %q", env.Data.Type)
	}

	if len(env.Data.Attributes) > 0 {
		if err := json.Unmarshal(env.Data.Attributes, ev); err != nil {
			return nil, errors.Wrapf(err, "decoding %s attributes", env.Data.Type)
		}
	}
	setHeader(ev, Header{ID: env.Data.EventID, Occurred: env.Data.OccurredOn})
	return ev, nil
}

func setHeader(ev Event, h Header) {
	switch e := ev.(type) {
	case *ContentEntryCreated:
		e.Header = h
	case *TopicsAdded:
		e.Header = h
	case *QuizCreated:
		e.Header = h
	case *QuestionsGenerated:
		e.Header = h
	}
}
