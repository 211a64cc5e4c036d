// Package repositories provides GORM-backed data access. Writes go to
// the primary database handle, reads to the read-only replica handle.
package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/snippetquiz/services/core/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ContentEntryRepository manages content entry projections
type ContentEntryRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewContentEntryRepository creates a new content entry repository
func NewContentEntryRepository(db, readOnlyDB *gorm.DB) *ContentEntryRepository {
	return &ContentEntryRepository{db: db, readOnlyDB: readOnlyDB}
}

// Upsert saves the local projection of a content entry. Replays update
// the mutable fields instead of failing on the primary key.
func (r *ContentEntryRepository) Upsert(ctx context.Context, entry *models.ContentEntry) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"content", "content_type", "source_url", "page_title", "word_count",
				"video_duration", "youtube_video_id", "updated_at",
			}),
		}).
		Omit("Banks", "Topics").
		Create(entry).Error
	return errors.Wrap(err, "upserting content entry")
}

// LinkBanks mirrors the entry's bank membership from the event into
// the join table. Banks the projection has not seen yet are created
// as stub rows so the association never trips a foreign key.
func (r *ContentEntryRepository) LinkBanks(ctx context.Context, entryID, userID uuid.UUID, bankIDs []uuid.UUID) error {
	if len(bankIDs) == 0 {
		return nil
	}

	banks := make([]models.ContentBank, 0, len(bankIDs))
	for _, id := range bankIDs {
		banks = append(banks, models.ContentBank{ID: id, UserID: userID})
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(&banks).Error
	if err != nil {
		return errors.Wrap(err, "upserting bank stubs")
	}

	entry := models.ContentEntry{ID: entryID}
	err = r.db.WithContext(ctx).
		Model(&entry).
		Omit("Banks.*").
		Association("Banks").
		Append(&banks)
	return errors.Wrap(err, "linking entry to banks")
}

// FindByIDs loads entries preserving the order of the given ids.
// Missing ids are silently skipped.
func (r *ContentEntryRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.ContentEntry, error) {
	var entries []models.ContentEntry
	err := r.readOnlyDB.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&entries).Error
	if err != nil {
		return nil, errors.Wrap(err, "finding content entries")
	}

	byID := make(map[uuid.UUID]models.ContentEntry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}
	ordered := make([]models.ContentEntry, 0, len(entries))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			ordered = append(ordered, e)
		}
	}
	return ordered, nil
}

// GetByIDAndUser loads an entry scoped to its owner.
func (r *ContentEntryRepository) GetByIDAndUser(ctx context.Context, id, userID uuid.UUID) (*models.ContentEntry, error) {
	var entry models.ContentEntry
	err := r.readOnlyDB.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "getting content entry")
	}
	return &entry, nil
}

// ListPendingByBank returns a bank's entries that still have no
// generated questions.
func (r *ContentEntryRepository) ListPendingByBank(ctx context.Context, bankID, userID uuid.UUID) ([]models.ContentEntry, error) {
	var entries []models.ContentEntry
	err := r.readOnlyDB.WithContext(ctx).
		Joins("JOIN content_entry_banks ceb ON ceb.content_entry_id = content_entries.id").
		Where("ceb.content_bank_id = ?", bankID).
		Where("content_entries.user_id = ?", userID).
		Where("content_entries.questions_generated = ?", false).
		Find(&entries).Error
	if err != nil {
		return nil, errors.Wrap(err, "listing pending bank entries")
	}
	return entries, nil
}

// MarkQuestionsGenerated flips the questionsGenerated flag.
func (r *ContentEntryRepository) MarkQuestionsGenerated(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Model(&models.ContentEntry{}).
		Where("id = ?", id).
		Update("questions_generated", true).Error
	return errors.Wrap(err, "marking questions generated")
}

// TopicRepository manages user topics and their entry links
type TopicRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewTopicRepository creates a new topic repository
func NewTopicRepository(db, readOnlyDB *gorm.DB) *TopicRepository {
	return &TopicRepository{db: db, readOnlyDB: readOnlyDB}
}

// ListNamesByUser returns all topic names of a user.
func (r *TopicRepository) ListNamesByUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	var names []string
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.Topic{}).
		Where("user_id = ?", userID).
		Order("name asc").
		Pluck("name", &names).Error
	if err != nil {
		return nil, errors.Wrap(err, "listing user topics")
	}
	return names, nil
}

// UpsertMany saves topics for a user, skipping names that already
// exist for that user.
func (r *TopicRepository) UpsertMany(ctx context.Context, userID uuid.UUID, names []string) error {
	if len(names) == 0 {
		return nil
	}

	topics := make([]models.Topic, 0, len(names))
	for _, name := range names {
		topics = append(topics, models.Topic{ID: uuid.New(), UserID: userID, Name: name})
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "name"}},
			DoNothing: true,
		}).
		Create(&topics).Error
	return errors.Wrap(err, "upserting topics")
}

// LinkEntry associates topics with a content entry by name.
func (r *TopicRepository) LinkEntry(ctx context.Context, entryID, userID uuid.UUID, names []string) error {
	if len(names) == 0 {
		return nil
	}

	var topics []models.Topic
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND name IN ?", userID, names).
		Find(&topics).Error
	if err != nil {
		return errors.Wrap(err, "loading topics to link")
	}

	entry := models.ContentEntry{ID: entryID}
	err = r.db.WithContext(ctx).
		Model(&entry).
		Omit("Topics.*").
		Association("Topics").
		Append(&topics)
	return errors.Wrap(err, "linking topics to entry")
}

// CharacterRepository manages assistant personas
type CharacterRepository struct {
	readOnlyDB *gorm.DB
}

// NewCharacterRepository creates a new character repository
func NewCharacterRepository(readOnlyDB *gorm.DB) *CharacterRepository {
	return &CharacterRepository{readOnlyDB: readOnlyDB}
}

// GetDefault returns the first active character, or ErrNotFound if
// none is configured.
func (r *CharacterRepository) GetDefault(ctx context.Context) (*models.Character, error) {
	var character models.Character
	err := r.readOnlyDB.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at asc").
		First(&character).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "getting default character")
	}
	return &character, nil
}

// QuizRepository manages quizzes
type QuizRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewQuizRepository creates a new quiz repository
func NewQuizRepository(db, readOnlyDB *gorm.DB) *QuizRepository {
	return &QuizRepository{db: db, readOnlyDB: readOnlyDB}
}

// GetByIDAndUser loads a quiz scoped to its owner.
func (r *QuizRepository) GetByIDAndUser(ctx context.Context, id, userID uuid.UUID) (*models.Quiz, error) {
	var quiz models.Quiz
	err := r.readOnlyDB.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&quiz).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "getting quiz")
	}
	return &quiz, nil
}

// Upsert saves the quiz projection created from a quiz.created event.
func (r *QuizRepository) Upsert(ctx context.Context, quiz *models.Quiz) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"bank_name", "instructions", "content_entries_count", "updated_at",
			}),
		}).
		Create(quiz).Error
	return errors.Wrap(err, "upserting quiz")
}

// UpdateProgress persists status and counters after a progress event.
func (r *QuizRepository) UpdateProgress(ctx context.Context, quiz *models.Quiz) error {
	err := r.db.WithContext(ctx).
		Model(&models.Quiz{}).
		Where("id = ?", quiz.ID).
		Updates(map[string]interface{}{
			"status":                quiz.Status,
			"content_entries_count": quiz.ContentEntriesCount,
			"questions_count":       quiz.QuestionsCount,
			"questions_completed":   quiz.QuestionsCompleted,
		}).Error
	return errors.Wrap(err, "updating quiz progress")
}

// FindStuck returns quizzes still pending after the given age.
func (r *QuizRepository) FindStuck(ctx context.Context, age time.Duration) ([]models.Quiz, error) {
	var quizzes []models.Quiz
	cutoff := time.Now().Add(-age)
	err := r.readOnlyDB.WithContext(ctx).
		Where("status IN ?", []string{models.QuizStatusPrepare, models.QuizStatusInProgress}).
		Where("updated_at < ?", cutoff).
		Find(&quizzes).Error
	if err != nil {
		return nil, errors.Wrap(err, "finding stuck quizzes")
	}
	return quizzes, nil
}

// QuestionRepository manages generated questions
type QuestionRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewQuestionRepository creates a new question repository
func NewQuestionRepository(db, readOnlyDB *gorm.DB) *QuestionRepository {
	return &QuestionRepository{db: db, readOnlyDB: readOnlyDB}
}

// UpsertChunk persists the questions of one chunk. The composite key
// (quiz, entry, chunk index, question index) makes redelivered events
// a no-op: options are only written when the question row is new.
func (r *QuestionRepository) UpsertChunk(ctx context.Context, questions []models.QuizQuestion) error {
	if len(questions) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range questions {
			// Insert a local row. The caller's slice stays intact,
			// the indexer reads it after this returns.
			question := questions[i]
			options := make([]models.QuizQuestionOption, len(question.Options))
			copy(options, question.Options)
			question.Options = nil

			result := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{
					{Name: "quiz_id"}, {Name: "content_entry_id"},
					{Name: "chunk_index"}, {Name: "question_index"},
				},
				DoNothing: true,
			}).Create(&question)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				continue
			}

			for j := range options {
				options[j].QuestionID = question.ID
			}
			if len(options) > 0 {
				if err := tx.Create(&options).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	return errors.Wrap(err, "upserting question chunk")
}

// CountByQuiz counts the persisted questions of a quiz.
func (r *QuestionRepository) CountByQuiz(ctx context.Context, quizID uuid.UUID) (int, error) {
	var count int64
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.QuizQuestion{}).
		Where("quiz_id = ?", quizID).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "counting quiz questions")
	}
	return int(count), nil
}

// ProcessedEventRepository tracks consumed event ids
type ProcessedEventRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewProcessedEventRepository creates a new processed event repository
func NewProcessedEventRepository(db, readOnlyDB *gorm.DB) *ProcessedEventRepository {
	return &ProcessedEventRepository{db: db, readOnlyDB: readOnlyDB}
}

// Exists reports whether an event id has been processed.
func (r *ProcessedEventRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.ProcessedEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "checking processed event")
	}
	return count > 0, nil
}

// Create records an event id as processed.
func (r *ProcessedEventRepository) Create(ctx context.Context, record *models.ProcessedEvent) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(record).Error
	return errors.Wrap(err, "recording processed event")
}
