// Package fanout pushes per-user progress payloads through Redis
// pub/sub and bridges them onto live SSE streams.
package fanout

import "fmt"

// Channel name prefixes. The user id is always the last colon-separated
// segment of the channel name.
const (
	QuizChannelPrefix      = "quiz-generation:user-id:"
	CharacterChannelPrefix = "character.message.ephemeral:user-id:"
)

// QuizChannel returns the quiz progress channel for a user.
func QuizChannel(userID string) string {
	return fmt.Sprintf("%s%s", QuizChannelPrefix, userID)
}

// CharacterChannel returns the ephemeral character message channel for
// a user.
func CharacterChannel(userID string) string {
	return fmt.Sprintf("%s%s", CharacterChannelPrefix, userID)
}

// ProgressEntry describes the content entry being analyzed.
type ProgressEntry struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	WordCountAnalyzed int    `json:"wordCountAnalyzed"`
}

// Progress is the per-chunk progress block of a quiz message.
type Progress struct {
	QuizID            string         `json:"quizId"`
	BankID            string         `json:"bankId"`
	TotalEntries      int            `json:"totalContentEntries"`
	TotalSkipped      int            `json:"totalContentEntriesSkipped,omitempty"`
	CurrentEntryIndex int            `json:"currentContentEntryIndex,omitempty"`
	QuestionsSoFar    int            `json:"questionsGeneratedSoFar,omitempty"`
	Entry             *ProgressEntry `json:"contentEntry,omitempty"`
	TotalChunks       int            `json:"totalChunks"`
	CurrentChunkIndex int            `json:"currentChunkIndex"`
}

// Completed marks the end of quiz generation.
type Completed struct {
	QuizID string `json:"quizId"`
}

// QuizMessage is the payload published on the quiz channel. Completed
// is only present on the final chunk.
type QuizMessage struct {
	Progress  *Progress  `json:"progress,omitempty"`
	Completed *Completed `json:"completed,omitempty"`
}

// CharacterMessage is the payload published on the character channel.
type CharacterMessage struct {
	CharacterMessage string `json:"characterMessage"`
	EmotionCode      string `json:"emotionCode,omitempty"`
}
