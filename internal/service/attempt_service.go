package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lumen-edu/lumen-quiz-api/internal/dto"
	"github.com/lumen-edu/lumen-quiz-api/internal/models"
	"github.com/lumen-edu/lumen-quiz-api/internal/observability"
	"github.com/lumen-edu/lumen-quiz-api/internal/repository"
)

var (
	// ErrAttemptNotFound indicates no attempt exists with the given id.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrAttemptForbidden indicates the caller does not own the attempt.
	ErrAttemptForbidden = errors.New("attempt belongs to another user")
	// ErrAttemptLimitReached indicates the user exhausted the allowed attempts.
	ErrAttemptLimitReached = errors.New("maximum attempts reached")
	// ErrAlreadySubmitted indicates a submit call on a submitted attempt.
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	// ErrAttemptImmutable indicates a mutation of a submitted attempt.
	ErrAttemptImmutable = errors.New("submitted attempts cannot be modified")
	// ErrTimeLimitExceeded indicates a submit past the enforced quiz deadline.
	ErrTimeLimitExceeded = errors.New("quiz time limit exceeded")
	// ErrAttemptViewForbidden indicates the caller may not view the attempt.
	ErrAttemptViewForbidden = errors.New("caller may not view this attempt")
)

// AttemptPolicy tunes server-side lifecycle enforcement.
type AttemptPolicy struct {
	// EnforceTimeLimit rejects submits past startedAt + timeLimit + SubmitGrace.
	// Off by default: the time limit is advisory unless operators opt in.
	EnforceTimeLimit bool
	SubmitGrace      time.Duration
}

// AttemptService drives the attempt lifecycle: start, autosave, submit, review.
type AttemptService interface {
	Start(ctx context.Context, userID uint, locator DefinitionLocator) (dto.AttemptResponse, error)
	Autosave(ctx context.Context, attemptID, callerUserID uint, answers models.AnswerSet) (dto.AttemptResponse, error)
	Submit(ctx context.Context, attemptID, callerUserID uint, answers models.AnswerSet) (dto.AttemptResponse, error)
	Get(ctx context.Context, attemptID, callerUserID uint, callerRole string) (dto.AttemptResponse, error)
	List(ctx context.Context, locator DefinitionLocator, callerUserID uint, callerRole string) ([]dto.AttemptResponse, error)
}

type attemptService struct {
	attempts    repository.AttemptRepository
	enrollments repository.EnrollmentRepository
	definitions DefinitionService
	activity    ActivityRecorder
	sanitizer   *bluemonday.Policy
	policy      AttemptPolicy
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewAttemptService constructs the lifecycle controller.
func NewAttemptService(attempts repository.AttemptRepository, enrollments repository.EnrollmentRepository, definitions DefinitionService, activity ActivityRecorder, policy AttemptPolicy, logger zerolog.Logger) AttemptService {
	return &attemptService{
		attempts:    attempts,
		enrollments: enrollments,
		definitions: definitions,
		activity:    activity,
		sanitizer:   bluemonday.StrictPolicy(),
		policy:      policy,
		logger:      logger.With().Str("component", "attempt_service").Logger(),
		tracer:      otel.Tracer("github.com/lumen-edu/lumen-quiz-api/internal/service/attempt"),
		now:         time.Now,
	}
}

func (s *attemptService) Start(ctx context.Context, userID uint, locator DefinitionLocator) (dto.AttemptResponse, error) {
	ctx, span := s.tracer.Start(ctx, "attempt.start", trace.WithAttributes(
		attribute.Int64("attempt.user_id", int64(userID)),
		attribute.Int64("quiz.course_id", int64(locator.CourseID)),
		attribute.String("quiz.path", locator.QuizPath),
	))
	defer span.End()

	existing, err := s.attempts.FindInProgress(ctx, userID, locator.CourseID, locator.QuizPath)
	if err == nil {
		// Idempotent re-entry: double clicks and page reloads land here.
		span.SetAttributes(attribute.Bool("attempt.resumed", true))
		return dto.NewAttemptResponse(existing)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "attempt_lookup_failed")
		return dto.AttemptResponse{}, err
	}

	def, err := s.definitions.Load(ctx, locator)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "definition_load_failed")
		return dto.AttemptResponse{}, err
	}

	submitted, err := s.attempts.CountSubmitted(ctx, userID, locator.CourseID, locator.QuizPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "attempt_count_failed")
		return dto.AttemptResponse{}, err
	}

	if submitted >= int64(def.MaxAttempts) {
		span.SetStatus(codes.Error, "attempt_limit_reached")
		return dto.AttemptResponse{}, ErrAttemptLimitReached
	}

	attempt := models.QuizAttempt{
		UserID:        userID,
		CourseID:      locator.CourseID,
		QuizPath:      locator.QuizPath,
		AttemptNumber: int(submitted) + 1,
		StartedAt:     s.now().UTC(),
	}
	if err := attempt.SetAnswerSet(models.AnswerSet{}); err != nil {
		return dto.AttemptResponse{}, err
	}

	if err := s.attempts.Create(ctx, &attempt); err != nil {
		if errors.Is(err, repository.ErrDuplicateInProgress) {
			// Lost a start race; hand back the attempt the winner created.
			winner, findErr := s.attempts.FindInProgress(ctx, userID, locator.CourseID, locator.QuizPath)
			if findErr != nil {
				return dto.AttemptResponse{}, findErr
			}
			span.SetAttributes(attribute.Bool("attempt.resumed", true))
			return dto.NewAttemptResponse(winner)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "attempt_create_failed")
		return dto.AttemptResponse{}, err
	}

	observability.AttemptsStarted().Inc()
	s.recordActivity(ctx, userID, "quiz.attempt_started", attempt, map[string]interface{}{
		"attempt_number": attempt.AttemptNumber,
	})

	s.logger.Info().Uint("attempt_id", attempt.ID).Uint("user_id", userID).Int("attempt_number", attempt.AttemptNumber).Msg("attempt started")

	return dto.NewAttemptResponse(attempt)
}

func (s *attemptService) Autosave(ctx context.Context, attemptID, callerUserID uint, answers models.AnswerSet) (dto.AttemptResponse, error) {
	ctx, span := s.tracer.Start(ctx, "attempt.autosave", trace.WithAttributes(
		attribute.Int64("attempt.id", int64(attemptID)),
	))
	defer span.End()

	attempt, err := s.getOwned(ctx, attemptID, callerUserID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "attempt_guard_failed")
		return dto.AttemptResponse{}, err
	}

	if attempt.IsSubmitted() {
		span.SetStatus(codes.Error, "attempt_immutable")
		return dto.AttemptResponse{}, ErrAttemptImmutable
	}

	payload, err := json.Marshal(s.sanitizeAnswers(answers))
	if err != nil {
		return dto.AttemptResponse{}, err
	}

	rows, err := s.attempts.SaveAnswers(ctx, attemptID, datatypes.JSON(payload))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "answers_save_failed")
		return dto.AttemptResponse{}, err
	}
	if rows == 0 {
		// The conditional write missed: a concurrent submit already froze the
		// record. The store's verdict wins over the pre-check above.
		span.SetStatus(codes.Error, "attempt_immutable")
		return dto.AttemptResponse{}, ErrAttemptImmutable
	}

	saved, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return dto.AttemptResponse{}, err
	}

	return dto.NewAttemptResponse(saved)
}

func (s *attemptService) Submit(ctx context.Context, attemptID, callerUserID uint, answers models.AnswerSet) (dto.AttemptResponse, error) {
	ctx, span := s.tracer.Start(ctx, "attempt.submit", trace.WithAttributes(
		attribute.Int64("attempt.id", int64(attemptID)),
	))
	defer span.End()

	attempt, err := s.getOwned(ctx, attemptID, callerUserID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "attempt_guard_failed")
		return dto.AttemptResponse{}, err
	}

	if attempt.IsSubmitted() {
		span.SetStatus(codes.Error, "already_submitted")
		return dto.AttemptResponse{}, ErrAlreadySubmitted
	}

	stored, err := attempt.AnswerSet()
	if err != nil {
		return dto.AttemptResponse{}, fmt.Errorf("failed to decode stored answers: %w", err)
	}

	// Submit carries the authoritative final set; it supersedes any autosave
	// that is still in flight, per index.
	final := stored.Merge(s.sanitizeAnswers(answers))

	def, err := s.definitions.Load(ctx, DefinitionLocator{CourseID: attempt.CourseID, QuizPath: attempt.QuizPath})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "definition_load_failed")
		return dto.AttemptResponse{}, err
	}

	if s.policy.EnforceTimeLimit && def.TimeLimit() > 0 {
		deadline := attempt.StartedAt.Add(def.TimeLimit() + s.policy.SubmitGrace)
		if s.now().After(deadline) {
			span.SetStatus(codes.Error, "time_limit_exceeded")
			return dto.AttemptResponse{}, ErrTimeLimitExceeded
		}
	}

	gradeStart := time.Now()
	result := Grade(def, final)
	observability.GradingLatency().Observe(time.Since(gradeStart).Seconds())

	answersJSON, err := json.Marshal(final)
	if err != nil {
		return dto.AttemptResponse{}, err
	}
	resultsJSON, err := json.Marshal(result.QuestionResults)
	if err != nil {
		return dto.AttemptResponse{}, err
	}

	update := repository.FinalizeUpdate{
		Answers:         datatypes.JSON(answersJSON),
		QuestionResults: datatypes.JSON(resultsJSON),
		Score:           result.Score,
		MaxScore:        result.MaxScore,
		SubmittedAt:     s.now().UTC(),
	}

	rows, err := s.attempts.Finalize(ctx, attemptID, update)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "finalize_failed")
		return dto.AttemptResponse{}, err
	}
	if rows == 0 {
		// Two submits raced past the pre-check; the store admitted only one.
		span.SetStatus(codes.Error, "already_submitted")
		return dto.AttemptResponse{}, ErrAlreadySubmitted
	}

	submitted, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return dto.AttemptResponse{}, err
	}

	grading := "final"
	if result.Score == nil {
		grading = "pending"
	}
	observability.AttemptsSubmitted().WithLabelValues(grading).Inc()
	span.SetAttributes(attribute.String("attempt.grading", grading))

	metadata := map[string]interface{}{
		"attempt_number": submitted.AttemptNumber,
		"max_score":      result.MaxScore,
		"pending":        result.Score == nil,
	}
	if result.Score != nil {
		metadata["score"] = *result.Score
	}
	s.recordActivity(ctx, callerUserID, "quiz.attempt_submitted", submitted, metadata)

	s.logger.Info().Uint("attempt_id", submitted.ID).Str("grading", grading).Msg("attempt submitted")

	return dto.NewAttemptResponse(submitted)
}

func (s *attemptService) Get(ctx context.Context, attemptID, callerUserID uint, callerRole string) (dto.AttemptResponse, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AttemptResponse{}, ErrAttemptNotFound
		}
		return dto.AttemptResponse{}, err
	}

	if attempt.UserID != callerUserID {
		allowed, err := s.isCourseStaff(ctx, callerUserID, callerRole, attempt.CourseID)
		if err != nil {
			return dto.AttemptResponse{}, err
		}
		if !allowed {
			return dto.AttemptResponse{}, ErrAttemptViewForbidden
		}
	}

	return dto.NewAttemptResponse(attempt)
}

func (s *attemptService) List(ctx context.Context, locator DefinitionLocator, callerUserID uint, callerRole string) ([]dto.AttemptResponse, error) {
	allowed, err := s.isCourseStaff(ctx, callerUserID, callerRole, locator.CourseID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrAttemptViewForbidden
	}

	filter := repository.AttemptFilter{CourseID: &locator.CourseID}
	if locator.QuizPath != "" {
		path := locator.QuizPath
		filter.QuizPath = &path
	}

	attempts, err := s.attempts.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	return dto.NewAttemptResponseSlice(attempts)
}

func (s *attemptService) getOwned(ctx context.Context, attemptID, callerUserID uint) (models.QuizAttempt, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.QuizAttempt{}, ErrAttemptNotFound
		}
		return models.QuizAttempt{}, err
	}

	if attempt.UserID != callerUserID {
		return models.QuizAttempt{}, ErrAttemptForbidden
	}

	return attempt, nil
}

func (s *attemptService) isCourseStaff(ctx context.Context, userID uint, tokenRole string, courseID uint) (bool, error) {
	if tokenRole == models.RoleAdmin {
		return true, nil
	}

	role, err := s.enrollments.GetRole(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	return models.IsStaffRole(role), nil
}

func (s *attemptService) sanitizeAnswers(answers models.AnswerSet) models.AnswerSet {
	clean := make(models.AnswerSet, len(answers))
	for idx, answer := range answers {
		if answer.Text != nil {
			text := strings.TrimSpace(s.sanitizer.Sanitize(*answer.Text))
			answer.Text = &text
		}
		clean[idx] = answer
	}
	return clean
}

func (s *attemptService) recordActivity(ctx context.Context, actorID uint, action string, attempt models.QuizAttempt, metadata map[string]interface{}) {
	if s.activity == nil {
		return
	}

	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadata["course_id"] = attempt.CourseID
	metadata["quiz_path"] = attempt.QuizPath

	entityID := attempt.ID
	s.activity.Record(ctx, ActivityEntry{
		Actor:      ActivityActor{ID: actorID, Role: models.RoleStudent},
		Action:     action,
		EntityType: "quiz_attempt",
		EntityID:   &entityID,
		Metadata:   metadata,
	})
}
