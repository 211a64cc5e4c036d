package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Quiz status lifecycle. Transitions are monotonic: a READY quiz
// never moves back to PREPARE or IN_PROGRESS.
const (
	QuizStatusPrepare    = "PREPARE"
	QuizStatusInProgress = "IN_PROGRESS"
	QuizStatusReady      = "READY"
)

// Question types
const (
	QuestionTypeMultipleChoice = "MULTIPLE_CHOICE"
)

// ContentBank groups content entries saved by a user
type ContentBank struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Name      string    `gorm:"size:255" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ContentEntry is the local projection of a captured content snippet
type ContentEntry struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID             uuid.UUID      `gorm:"type:uuid;index" json:"user_id"`
	ContentType        string         `gorm:"size:50" json:"content_type"`
	Content            string         `gorm:"type:text" json:"content"`
	SourceURL          string         `gorm:"size:2048" json:"source_url"`
	PageTitle          string         `gorm:"size:1024" json:"page_title"`
	WordCount          int            `json:"word_count"`
	VideoDuration      int            `json:"video_duration,omitempty"`
	YoutubeVideoID     string         `gorm:"size:32" json:"youtube_video_id,omitempty"`
	QuestionsGenerated bool           `gorm:"default:false" json:"questions_generated"`
	Banks              []ContentBank  `gorm:"many2many:content_entry_banks" json:"banks,omitempty"`
	Topics             []Topic        `gorm:"many2many:content_entry_topics" json:"topics,omitempty"`
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

// Topic is a user-scoped classification label
type Topic struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_user_topic" json:"user_id"`
	Name      string    `gorm:"size:255;uniqueIndex:idx_user_topic" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Character is an assistant persona used to flavor AI prompts
type Character struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Code          string    `gorm:"size:100;uniqueIndex" json:"code"`
	Name          string    `gorm:"size:255" json:"name"`
	Description   string    `gorm:"type:text" json:"description"`
	IntroPrompt   string    `gorm:"type:text" json:"intro_prompt"`
	EmotionPrompt string    `gorm:"type:text" json:"emotion_prompt"`
	Active        bool      `gorm:"default:true" json:"active"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Quiz is the aggregate receiving generated questions
type Quiz struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID              uuid.UUID      `gorm:"type:uuid;index" json:"user_id"`
	BankID              uuid.UUID      `gorm:"type:uuid;index" json:"bank_id"`
	BankName            string         `gorm:"size:255" json:"bank_name"`
	Status              string         `gorm:"size:20;index" json:"status"`
	Instructions        string         `gorm:"type:text" json:"instructions"`
	ContentEntriesCount int            `json:"content_entries_count"`
	QuestionsCount      int            `json:"questions_count"`
	QuestionsCompleted  int            `json:"questions_completed"`
	CreatedAt           time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
}

// QuizQuestion is a single generated question. The composite unique
// index makes chunk persistence idempotent under event redelivery.
type QuizQuestion struct {
	ID             uuid.UUID            `gorm:"type:uuid;primaryKey" json:"id"`
	QuizID         uuid.UUID            `gorm:"type:uuid;uniqueIndex:idx_quiz_chunk_question;index" json:"quiz_id"`
	ContentEntryID uuid.UUID            `gorm:"type:uuid;uniqueIndex:idx_quiz_chunk_question" json:"content_entry_id"`
	UserID         uuid.UUID            `gorm:"type:uuid;index" json:"user_id"`
	Question       string               `gorm:"type:text" json:"question"`
	Type           string               `gorm:"size:50" json:"type"`
	ChunkIndex     int                  `gorm:"uniqueIndex:idx_quiz_chunk_question" json:"chunk_index"`
	QuestionIndex  int                  `gorm:"uniqueIndex:idx_quiz_chunk_question" json:"question_index"`
	Options        []QuizQuestionOption `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE" json:"options,omitempty"`
	CreatedAt      time.Time            `gorm:"autoCreateTime" json:"created_at"`
}

// QuizQuestionOption is an answer option with its explanation
type QuizQuestionOption struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	QuestionID  uuid.UUID `gorm:"type:uuid;index" json:"question_id"`
	OptionText  string    `gorm:"type:text" json:"option_text"`
	Explanation string    `gorm:"type:text" json:"explanation"`
	IsCorrect   bool      `json:"is_correct"`
	Position    int       `json:"position"`
}

// ProcessedEvent records a consumed event id for idempotent handling
type ProcessedEvent struct {
	EventID     string    `gorm:"size:64;primaryKey" json:"event_id"`
	EventType   string    `gorm:"size:100;index" json:"event_type"`
	UserID      string    `gorm:"size:64" json:"user_id"`
	ProcessedAt time.Time `gorm:"autoCreateTime" json:"processed_at"`
}

// DomainEventRecord is the persisted audit copy of every published event
type DomainEventRecord struct {
	EventID     string    `gorm:"size:64;primaryKey" json:"event_id"`
	EventName   string    `gorm:"size:100;index" json:"event_name"`
	AggregateID string    `gorm:"size:64;index" json:"aggregate_id"`
	UserID      string    `gorm:"size:64;index" json:"user_id"`
	OccurredOn  time.Time `json:"occurred_on"`
	Payload     []byte    `gorm:"type:jsonb" json:"payload"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// SetupModels migrates the database schema
func SetupModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&ContentBank{},
		&ContentEntry{},
		&Topic{},
		&Character{},
		&Quiz{},
		&QuizQuestion{},
		&QuizQuestionOption{},
		&ProcessedEvent{},
		&DomainEventRecord{},
	)
}
