package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lumen-edu/lumen-quiz-api/internal/models"
	"github.com/lumen-edu/lumen-quiz-api/internal/repository"
)

type fakeAttemptRepo struct {
	mu       sync.Mutex
	nextID   uint
	attempts map[uint]models.QuizAttempt
}

func newFakeAttemptRepo() *fakeAttemptRepo {
	return &fakeAttemptRepo{attempts: map[uint]models.QuizAttempt{}}
}

func (r *fakeAttemptRepo) GetByID(_ context.Context, id uint) (models.QuizAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt, ok := r.attempts[id]
	if !ok {
		return models.QuizAttempt{}, gorm.ErrRecordNotFound
	}
	return attempt, nil
}

func (r *fakeAttemptRepo) FindInProgress(_ context.Context, userID, courseID uint, quizPath string) (models.QuizAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, attempt := range r.attempts {
		if attempt.UserID == userID && attempt.CourseID == courseID && attempt.QuizPath == quizPath && attempt.SubmittedAt == nil {
			return attempt, nil
		}
	}
	return models.QuizAttempt{}, gorm.ErrRecordNotFound
}

func (r *fakeAttemptRepo) CountSubmitted(_ context.Context, userID, courseID uint, quizPath string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, attempt := range r.attempts {
		if attempt.UserID == userID && attempt.CourseID == courseID && attempt.QuizPath == quizPath && attempt.SubmittedAt != nil {
			count++
		}
	}
	return count, nil
}

func (r *fakeAttemptRepo) Create(_ context.Context, attempt *models.QuizAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.attempts {
		if existing.UserID == attempt.UserID && existing.CourseID == attempt.CourseID && existing.QuizPath == attempt.QuizPath && existing.SubmittedAt == nil {
			return repository.ErrDuplicateInProgress
		}
	}
	r.nextID++
	attempt.ID = r.nextID
	r.attempts[attempt.ID] = *attempt
	return nil
}

func (r *fakeAttemptRepo) SaveAnswers(_ context.Context, id uint, answers datatypes.JSON) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt, ok := r.attempts[id]
	if !ok || attempt.SubmittedAt != nil {
		return 0, nil
	}
	attempt.Answers = answers
	r.attempts[id] = attempt
	return 1, nil
}

func (r *fakeAttemptRepo) Finalize(_ context.Context, id uint, update repository.FinalizeUpdate) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt, ok := r.attempts[id]
	if !ok || attempt.SubmittedAt != nil {
		return 0, nil
	}
	submittedAt := update.SubmittedAt
	attempt.Answers = update.Answers
	attempt.QuestionResults = update.QuestionResults
	attempt.Score = update.Score
	attempt.MaxScore = update.MaxScore
	attempt.SubmittedAt = &submittedAt
	r.attempts[id] = attempt
	return 1, nil
}

func (r *fakeAttemptRepo) List(_ context.Context, filter repository.AttemptFilter) ([]models.QuizAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var attempts []models.QuizAttempt
	for _, attempt := range r.attempts {
		if filter.UserID != nil && attempt.UserID != *filter.UserID {
			continue
		}
		if filter.CourseID != nil && attempt.CourseID != *filter.CourseID {
			continue
		}
		if filter.QuizPath != nil && attempt.QuizPath != *filter.QuizPath {
			continue
		}
		attempts = append(attempts, attempt)
	}
	return attempts, nil
}

type fakeEnrollmentRepo struct {
	roles map[[2]uint]string
}

func (r *fakeEnrollmentRepo) GetRole(_ context.Context, userID, courseID uint) (string, error) {
	if role, ok := r.roles[[2]uint{userID, courseID}]; ok {
		return role, nil
	}
	return "", gorm.ErrRecordNotFound
}

type fakeDefinitionService struct {
	def models.QuizDefinition
	err error
}

func (f *fakeDefinitionService) Load(context.Context, DefinitionLocator) (models.QuizDefinition, error) {
	if f.err != nil {
		return models.QuizDefinition{}, f.err
	}
	return f.def, nil
}

func (f *fakeDefinitionService) Publish(context.Context, DefinitionLocator, []byte) (string, error) {
	return "", nil
}

func singleChoiceQuiz(maxAttempts int) models.QuizDefinition {
	return models.QuizDefinition{
		Title:       "Pointers",
		MaxAttempts: maxAttempts,
		Questions: []models.Question{
			{Type: models.QuestionTypeMultipleChoice, Prompt: "Pick A", Options: []string{"A", "B"}, CorrectIndex: intPtr(0), Points: 5},
		},
	}
}

func newTestAttemptService(repo *fakeAttemptRepo, enrollments *fakeEnrollmentRepo, def models.QuizDefinition, policy AttemptPolicy) *attemptService {
	if enrollments == nil {
		enrollments = &fakeEnrollmentRepo{roles: map[[2]uint]string{}}
	}
	svc := NewAttemptService(repo, enrollments, &fakeDefinitionService{def: def}, nil, policy, testLogger())
	return svc.(*attemptService)
}

func TestAttemptServiceStartIsIdempotent(t *testing.T) {
	repo := newFakeAttemptRepo()
	svc := newTestAttemptService(repo, nil, singleChoiceQuiz(3), AttemptPolicy{})
	locator := DefinitionLocator{CourseID: 10, QuizPath: "week1/quiz.json"}

	first, err := svc.Start(context.Background(), 1, locator)
	require.NoError(t, err)
	require.Equal(t, 1, first.AttemptNumber)
	require.Nil(t, first.SubmittedAt)

	second, err := svc.Start(context.Background(), 1, locator)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID, "re-entry should return the open attempt")

	require.Len(t, repo.attempts, 1)
}

func TestAttemptServiceStartEnforcesAttemptLimit(t *testing.T) {
	repo := newFakeAttemptRepo()
	svc := newTestAttemptService(repo, nil, singleChoiceQuiz(2), AttemptPolicy{})
	locator := DefinitionLocator{CourseID: 10, QuizPath: "week1/quiz.json"}

	for i := 0; i < 2; i++ {
		attempt, err := svc.Start(context.Background(), 1, locator)
		require.NoError(t, err)
		require.Equal(t, i+1, attempt.AttemptNumber)

		_, err = svc.Submit(context.Background(), attempt.ID, 1, models.AnswerSet{})
		require.NoError(t, err)
	}

	_, err := svc.Start(context.Background(), 1, locator)
	require.ErrorIs(t, err, ErrAttemptLimitReached)
}

func TestAttemptServiceAutosaveKeepsAttemptOpen(t *testing.T) {
	repo := newFakeAttemptRepo()
	svc := newTestAttemptService(repo, nil, singleChoiceQuiz(1), AttemptPolicy{})
	locator := DefinitionLocator{CourseID: 10, QuizPath: "week1/quiz.json"}

	started, err := svc.Start(context.Background(), 1, locator)
	require.NoError(t, err)

	saved, err := svc.Autosave(context.Background(), started.ID, 1, models.AnswerSet{0: {SelectedIndex: intPtr(1)}})
	require.NoError(t, err)
	require.Nil(t, saved.SubmittedAt)
	require.Nil(t, saved.Score)
	require.Empty(t, saved.QuestionResults)
	require.Equal(t, 1, *saved.Answers[0].SelectedIndex)
}

func TestAttemptServiceAutosaveRejectsOtherUsers(t *testing.T) {
	repo := newFakeAttemptRepo()
	svc := newTestAttemptService(repo, nil, singleChoiceQuiz(1), AttemptPolicy{})

	started, err := svc.Start(context.Background(), 1, DefinitionLocator{CourseID: 10, QuizPath: "week1/quiz.json"})
	require.NoError(t, err)

	_, err = svc.Autosave(context.Background(), started.ID, 2, models.AnswerSet{})
	require.ErrorIs(t, err, ErrAttemptForbidden)

	_, err = svc.Submit(context.Background(), started.ID, 2, models.AnswerSet{})
	require.ErrorIs(t, err, ErrAttemptForbidden)
}

func TestAttemptServiceSubmitIsWriteOnce(t *testing.T) {
	repo := newFakeAttemptRepo()
	svc := newTestAttemptService(repo, nil, singleChoiceQuiz(1), AttemptPolicy{})

	started, err := svc.Start(context.Background(), 1, DefinitionLocator{CourseID: 10, QuizPath: "week1/quiz.json"})
	require.NoError(t, err)

	submitted, err := svc.Submit(context.Background(), started.ID, 1, models.AnswerSet{0: {SelectedIndex: intPtr(0)}})
	require.NoError(t, err)
	require.NotNil(t, submitted.SubmittedAt)
	require.NotNil(t, submitted.Score)
	require.Equal(t, 5, *submitted.Score)
	require.Equal(t, 5, submitted.MaxScore)

	_, err = svc.Submit(context.Background(), started.ID, 1, models.AnswerSet{})
	require.ErrorIs(t, err, ErrAlreadySubmitted)

	_, err = svc.Autosave(context.Background(), started.ID, 1, models.AnswerSet{})
	require.ErrorIs(t, err, ErrAttemptImmutable)
}

func TestAttemptServiceSubmitMergesAutosavedAnswers(t *testing.T) {
	repo := newFakeAttemptRepo()
	svc := newTestAttemptService(repo, nil, singleChoiceQuiz(1), AttemptPolicy{})

	started, err := svc.Start(context.Background(), 1, DefinitionLocator{CourseID: 10, QuizPath: "week1/quiz.json"})
	require.NoError(t, err)

	_, err = svc.Autosave(context.Background(), started.ID, 1, models.AnswerSet{0: {SelectedIndex: intPtr(0)}})
	require.NoError(t, err)

	// Submit with no answers should keep the autosaved ones.
	submitted, err := svc.Submit(context.Background(), started.ID, 1, models.AnswerSet{})
	require.NoError(t, err)
	require.NotNil(t, submitted.Score)
	require.Equal(t, 5, *submitted.Score)
}

func TestAttemptServiceSubmitFinalAnswersWin(t *testing.T) {
	repo := newFakeAttemptRepo()
	svc := newTestAttemptService(repo, nil, singleChoiceQuiz(1), AttemptPolicy{})

	started, err := svc.Start(context.Background(), 1, DefinitionLocator{CourseID: 10, QuizPath: "week1/quiz.json"})
	require.NoError(t, err)

	_, err = svc.Autosave(context.Background(), started.ID, 1, models.AnswerSet{0: {SelectedIndex: intPtr(1)}})
	require.NoError(t, err)

	submitted, err := svc.Submit(context.Background(), started.ID, 1, models.AnswerSet{0: {SelectedIndex: intPtr(0)}})
	require.NoError(t, err)
	require.NotNil(t, submitted.Score)
	require.Equal(t, 5, *submitted.Score, "the final answer set supersedes the autosave")
}

func TestAttemptServiceSubmitShortAnswerPending(t *testing.T) {
	def := models.QuizDefinition{
		Title:       "Essay",
		MaxAttempts: 1,
		Questions: []models.Question{
			{Type: models.QuestionTypeMultipleChoice, Prompt: "Pick", Options: []string{"a", "b"}, CorrectIndex: intPtr(1), Points: 10},
			{Type: models.QuestionTypeShortAnswer, Prompt: "Explain", Points: 20},
		},
	}
	repo := newFakeAttemptRepo()
	svc := newTestAttemptService(repo, nil, def, AttemptPolicy{})

	started, err := svc.Start(context.Background(), 1, DefinitionLocator{CourseID: 10, QuizPath: "week2/quiz.json"})
	require.NoError(t, err)

	submitted, err := svc.Submit(context.Background(), started.ID, 1, models.AnswerSet{
		0: {SelectedIndex: intPtr(1)},
		1: {Text: strPtr("a written explanation")},
	})
	require.NoError(t, err)
	require.NotNil(t, submitted.SubmittedAt)
	require.Nil(t, submitted.Score)
	require.Equal(t, 30, submitted.MaxScore)
	require.True(t, submitted.PendingGrading)
}

func TestAttemptServiceSubmitSanitizesShortAnswers(t *testing.T) {
	def := models.QuizDefinition{
		Title:       "Essay",
		MaxAttempts: 1,
		Questions: []models.Question{
			{Type: models.QuestionTypeShortAnswer, Prompt: "Explain", Points: 10},
		},
	}
	repo := newFakeAttemptRepo()
	svc := newTestAttemptService(repo, nil, def, AttemptPolicy{})

	started, err := svc.Start(context.Background(), 1, DefinitionLocator{CourseID: 10, QuizPath: "week2/quiz.json"})
	require.NoError(t, err)

	submitted, err := svc.Submit(context.Background(), started.ID, 1, models.AnswerSet{
		0: {Text: strPtr("<script>alert(1)</script>plain text")},
	})
	require.NoError(t, err)
	require.Equal(t, "plain text", *submitted.Answers[0].Text)
}

func TestAttemptServiceSubmitEnforcesTimeLimit(t *testing.T) {
	def := singleChoiceQuiz(1)
	def.TimeLimitMinutes = 30

	repo := newFakeAttemptRepo()
	svc := newTestAttemptService(repo, nil, def, AttemptPolicy{EnforceTimeLimit: true, SubmitGrace: 30 * time.Second})

	base := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	started, err := svc.Start(context.Background(), 1, DefinitionLocator{CourseID: 10, QuizPath: "week1/quiz.json"})
	require.NoError(t, err)

	// Within limit plus grace.
	svc.now = func() time.Time { return base.Add(30*time.Minute + 10*time.Second) }
	_, err = svc.Submit(context.Background(), started.ID, 1, models.AnswerSet{})
	require.NoError(t, err)

	// Past the deadline on a fresh attempt.
	again := newTestAttemptService(repo, nil, def, AttemptPolicy{EnforceTimeLimit: true, SubmitGrace: 30 * time.Second})
	again.now = func() time.Time { return base }
	late, err := again.Start(context.Background(), 2, DefinitionLocator{CourseID: 10, QuizPath: "week1/quiz.json"})
	require.NoError(t, err)

	again.now = func() time.Time { return base.Add(31 * time.Minute) }
	_, err = again.Submit(context.Background(), late.ID, 2, models.AnswerSet{})
	require.ErrorIs(t, err, ErrTimeLimitExceeded)
}

func TestAttemptServiceGetAllowsCourseStaff(t *testing.T) {
	repo := newFakeAttemptRepo()
	enrollments := &fakeEnrollmentRepo{roles: map[[2]uint]string{
		{2, 10}: models.RoleTeacher,
		{3, 10}: models.RoleStudent,
	}}
	svc := newTestAttemptService(repo, enrollments, singleChoiceQuiz(1), AttemptPolicy{})

	started, err := svc.Start(context.Background(), 1, DefinitionLocator{CourseID: 10, QuizPath: "week1/quiz.json"})
	require.NoError(t, err)

	// Owner always sees their attempt.
	_, err = svc.Get(context.Background(), started.ID, 1, "")
	require.NoError(t, err)

	// Course teacher may review.
	_, err = svc.Get(context.Background(), started.ID, 2, models.RoleStudent)
	require.NoError(t, err)

	// Fellow student may not.
	_, err = svc.Get(context.Background(), started.ID, 3, models.RoleStudent)
	require.ErrorIs(t, err, ErrAttemptViewForbidden)

	// Platform admins bypass enrollment.
	_, err = svc.Get(context.Background(), started.ID, 99, models.RoleAdmin)
	require.NoError(t, err)
}

func TestAttemptServiceListRequiresStaff(t *testing.T) {
	repo := newFakeAttemptRepo()
	enrollments := &fakeEnrollmentRepo{roles: map[[2]uint]string{
		{2, 10}: models.RoleTA,
	}}
	svc := newTestAttemptService(repo, enrollments, singleChoiceQuiz(3), AttemptPolicy{})
	locator := DefinitionLocator{CourseID: 10, QuizPath: "week1/quiz.json"}

	_, err := svc.Start(context.Background(), 1, locator)
	require.NoError(t, err)

	attempts, err := svc.List(context.Background(), locator, 2, models.RoleStudent)
	require.NoError(t, err)
	require.Len(t, attempts, 1)

	_, err = svc.List(context.Background(), locator, 1, models.RoleStudent)
	require.ErrorIs(t, err, ErrAttemptViewForbidden)
}
