package events

// ContentEntryCreated announces a newly captured content snippet.
type ContentEntryCreated struct {
	Header
	EntryID        string   `json:"aggregate_id"`
	UserID         string   `json:"user_id"`
	Content        string   `json:"content"`
	ContentType    string   `json:"content_type"`
	SourceURL      string   `json:"source_url"`
	PageTitle      string   `json:"page_title"`
	WordCount      int      `json:"word_count"`
	VideoDuration  int      `json:"video_duration,omitempty"`
	YoutubeVideoID string   `json:"youtube_video_id,omitempty"`
	BankIDs        []string `json:"bank_ids"`
	Duplicated     bool     `json:"duplicated"`
}

func (e *ContentEntryCreated) EventName() string { return ContentEntryCreatedName }

func (e *ContentEntryCreated) Subject() (string, string) { return e.EntryID, e.UserID }

// TopicsAdded carries AI-suggested topics for a content entry.
type TopicsAdded struct {
	Header
	EntryID string   `json:"aggregate_id"`
	UserID  string   `json:"user_id"`
	Topics  []string `json:"topics"`
}

// NewTopicsAdded builds the event published after topic generation.
func NewTopicsAdded(entryID, userID string, topics []string) *TopicsAdded {
	return &TopicsAdded{
		Header:  NewHeader(),
		EntryID: entryID,
		UserID:  userID,
		Topics:  topics,
	}
}

func (e *TopicsAdded) EventName() string { return TopicsAddedName }

func (e *TopicsAdded) Subject() (string, string) { return e.EntryID, e.UserID }
