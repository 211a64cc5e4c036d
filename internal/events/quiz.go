package events

// QuizCreated asks the pipeline to generate questions for a quiz.
type QuizCreated struct {
	Header
	QuizID         string   `json:"aggregate_id"`
	UserID         string   `json:"user_id"`
	BankID         string   `json:"content_bank_id"`
	BankName       string   `json:"bank_name"`
	Status         string   `json:"status"`
	Instructions   string   `json:"instructions"`
	NewEntryIDs    []string `json:"new_content_entries"`
	EntriesSkipped int      `json:"entries_skipped"`
	CreatedAt      string   `json:"created_at"`
}

func (e *QuizCreated) EventName() string { return QuizCreatedName }

func (e *QuizCreated) Subject() (string, string) { return e.QuizID, e.UserID }

// GeneratedOption is one answer option inside a progress event.
type GeneratedOption struct {
	OptionText        string `json:"optionText"`
	OptionExplanation string `json:"optionExplanation"`
	IsCorrect         bool   `json:"isCorrect"`
}

// GeneratedQuestion is one question inside a progress event.
type GeneratedQuestion struct {
	Question string            `json:"question"`
	Type     string            `json:"type"`
	Options  []GeneratedOption `json:"options"`
}

// EntryResult is the per-chunk partial result for one content entry.
// ChunkIndex and TotalEntryChunks position the chunk within its own
// entry so consumers can tell when an entry is finished.
type EntryResult struct {
	ID                string              `json:"id"`
	PageTitle         string              `json:"pageTitle"`
	WordCountAnalyzed int                 `json:"wordCountAnalyzed"`
	ChunkIndex        int                 `json:"chunkIndex"`
	TotalEntryChunks  int                 `json:"totalChunksForEntry"`
	Questions         []GeneratedQuestion `json:"questions"`
}

// QuestionsGenerated reports progress after each analyzed chunk.
// ChunkIndex and TotalChunks are global across all entries of the
// quiz; Entry is nil when the quiz had no usable content.
type QuestionsGenerated struct {
	Header
	QuizID         string       `json:"aggregate_id"`
	UserID         string       `json:"user_id"`
	BankID         string       `json:"bank_id"`
	TotalEntries   int          `json:"total_content_entries"`
	TotalSkipped   int          `json:"total_content_entries_skipped"`
	EntryIndex     int          `json:"current_content_entry_index"`
	QuestionsSoFar int          `json:"questions_generated_so_far"`
	TotalChunks    int          `json:"total_chunks"`
	ChunkIndex     int          `json:"current_chunk_index"`
	Entry          *EntryResult `json:"content_entry"`
}

func (e *QuestionsGenerated) EventName() string { return QuestionsGeneratedName }

func (e *QuestionsGenerated) Subject() (string, string) { return e.QuizID, e.UserID }

// LastChunk reports whether this event closes the quiz: either the
// final global chunk or an empty quiz that produced no chunks at all.
func (e *QuestionsGenerated) LastChunk() bool {
	return e.TotalChunks == 0 || e.ChunkIndex+1 == e.TotalChunks
}

// LastEntryChunk reports whether this event closes its content entry.
func (e *QuestionsGenerated) LastEntryChunk() bool {
	return e.Entry != nil && e.Entry.ChunkIndex+1 == e.Entry.TotalEntryChunks
}
