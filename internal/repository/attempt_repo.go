package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lumen-edu/lumen-quiz-api/internal/models"
)

// ErrDuplicateInProgress indicates a concurrent start already created an
// in-progress attempt for the same user and quiz.
var ErrDuplicateInProgress = errors.New("an in-progress attempt already exists")

// AttemptFilter narrows attempt list queries.
type AttemptFilter struct {
	UserID   *uint
	CourseID *uint
	QuizPath *string
}

// FinalizeUpdate carries the terminal submit write. All fields land in one
// conditional UPDATE so no reader can observe a partially graded attempt.
type FinalizeUpdate struct {
	Answers         datatypes.JSON
	QuestionResults datatypes.JSON
	Score           *int
	MaxScore        int
	SubmittedAt     time.Time
}

// AttemptRepository defines persistence operations for quiz attempts.
//
// SaveAnswers and Finalize are conditional on the attempt not yet being
// submitted and report the number of rows they touched. Zero rows on an
// existing attempt means another writer already submitted it; the store's
// answer is authoritative over any application-level pre-check.
type AttemptRepository interface {
	GetByID(ctx context.Context, id uint) (models.QuizAttempt, error)
	FindInProgress(ctx context.Context, userID, courseID uint, quizPath string) (models.QuizAttempt, error)
	CountSubmitted(ctx context.Context, userID, courseID uint, quizPath string) (int64, error)
	Create(ctx context.Context, attempt *models.QuizAttempt) error
	SaveAnswers(ctx context.Context, id uint, answers datatypes.JSON) (int64, error)
	Finalize(ctx context.Context, id uint, update FinalizeUpdate) (int64, error)
	List(ctx context.Context, filter AttemptFilter) ([]models.QuizAttempt, error)
}

type attemptRepository struct {
	db *gorm.DB
}

// NewAttemptRepository instantiates a GORM-backed repository.
func NewAttemptRepository(db *gorm.DB) AttemptRepository {
	return &attemptRepository{db: db}
}

func (r *attemptRepository) GetByID(ctx context.Context, id uint) (models.QuizAttempt, error) {
	var attempt models.QuizAttempt
	if err := r.db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		return models.QuizAttempt{}, err
	}

	return attempt, nil
}

func (r *attemptRepository) FindInProgress(ctx context.Context, userID, courseID uint, quizPath string) (models.QuizAttempt, error) {
	var attempt models.QuizAttempt
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("course_id = ?", courseID).
		Where("quiz_path = ?", quizPath).
		Where("submitted_at IS NULL").
		First(&attempt).Error; err != nil {
		return models.QuizAttempt{}, err
	}

	return attempt, nil
}

func (r *attemptRepository) CountSubmitted(ctx context.Context, userID, courseID uint, quizPath string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.QuizAttempt{}).
		Where("user_id = ?", userID).
		Where("course_id = ?", courseID).
		Where("quiz_path = ?", quizPath).
		Where("submitted_at IS NOT NULL").
		Count(&count).Error; err != nil {
		return 0, err
	}

	return count, nil
}

// Create inserts a new in-progress attempt. The recheck runs inside the
// insert transaction so concurrent starts cannot both slip past the
// service-level lookup.
func (r *attemptRepository) Create(ctx context.Context, attempt *models.QuizAttempt) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.QuizAttempt{}).
			Where("user_id = ?", attempt.UserID).
			Where("course_id = ?", attempt.CourseID).
			Where("quiz_path = ?", attempt.QuizPath).
			Where("submitted_at IS NULL").
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateInProgress
		}

		return tx.Create(attempt).Error
	})
}

func (r *attemptRepository) SaveAnswers(ctx context.Context, id uint, answers datatypes.JSON) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.QuizAttempt{}).
		Where("id = ?", id).
		Where("submitted_at IS NULL").
		Update("answers", answers)
	if result.Error != nil {
		return 0, result.Error
	}

	return result.RowsAffected, nil
}

func (r *attemptRepository) Finalize(ctx context.Context, id uint, update FinalizeUpdate) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.QuizAttempt{}).
		Where("id = ?", id).
		Where("submitted_at IS NULL").
		Updates(map[string]interface{}{
			"answers":          update.Answers,
			"question_results": update.QuestionResults,
			"score":            update.Score,
			"max_score":        update.MaxScore,
			"submitted_at":     update.SubmittedAt,
		})
	if result.Error != nil {
		return 0, result.Error
	}

	return result.RowsAffected, nil
}

func (r *attemptRepository) List(ctx context.Context, filter AttemptFilter) ([]models.QuizAttempt, error) {
	query := r.db.WithContext(ctx).Model(&models.QuizAttempt{})

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}

	if filter.CourseID != nil {
		query = query.Where("course_id = ?", *filter.CourseID)
	}

	if filter.QuizPath != nil {
		query = query.Where("quiz_path = ?", *filter.QuizPath)
	}

	var attempts []models.QuizAttempt
	if err := query.Order("started_at DESC").Find(&attempts).Error; err != nil {
		return nil, err
	}

	return attempts, nil
}
