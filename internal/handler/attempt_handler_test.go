package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lumen-edu/lumen-quiz-api/internal/config"
	"github.com/lumen-edu/lumen-quiz-api/internal/dto"
	"github.com/lumen-edu/lumen-quiz-api/internal/handler"
	"github.com/lumen-edu/lumen-quiz-api/internal/models"
	"github.com/lumen-edu/lumen-quiz-api/internal/repository"
	"github.com/lumen-edu/lumen-quiz-api/internal/router"
	"github.com/lumen-edu/lumen-quiz-api/internal/service"
	"github.com/lumen-edu/lumen-quiz-api/pkg/blobstore"
)

const testQuizDocument = `{
  "title": "Week 1 Quiz",
  "max_attempts": 1,
  "questions": [
    {"type": "multiple_choice", "prompt": "Pick A", "options": ["A", "B"], "correct_index": 0, "points": 5}
  ]
}`

type testBlobStore struct {
	blobs map[string][]byte
}

func (s *testBlobStore) Download(_ context.Context, path string) ([]byte, error) {
	data, ok := s.blobs[path]
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	return data, nil
}

func (s *testBlobStore) Upload(_ context.Context, path string, data []byte) (string, error) {
	s.blobs[path] = data
	return "https://cdn.example.com/" + path, nil
}

// testAuth fakes the JWT middleware: the test user and role come from headers.
func testAuth(c *fiber.Ctx) error {
	userID := uint(1)
	if raw := c.Get("X-Test-User"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fiber.ErrBadRequest
		}
		userID = uint(parsed)
	}
	c.Locals("user_id", userID)
	c.Locals("user_role", c.Get("X-Test-Role"))
	return c.Next()
}

func setupQuizApp(t *testing.T) *fiber.App {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.QuizAttempt{}, &models.Enrollment{}, &models.ActivityLog{}))
	require.NoError(t, db.Where("1 = 1").Delete(&models.QuizAttempt{}).Error)
	require.NoError(t, db.Where("1 = 1").Delete(&models.Enrollment{}).Error)

	require.NoError(t, db.Create(&models.Enrollment{UserID: 2, CourseID: 10, Role: models.RoleTeacher}).Error)

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)

	store := &testBlobStore{blobs: map[string][]byte{
		"courses/10/week1/quiz.json": []byte(testQuizDocument),
	}}

	attemptRepo := repository.NewAttemptRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)

	definitionService := service.NewDefinitionService(store, nil, time.Minute, logger)
	attemptService := service.NewAttemptService(attemptRepo, enrollmentRepo, definitionService, nil, service.AttemptPolicy{}, logger)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test", JWTSecret: "secret"}, router.Dependencies{
		AttemptHandler: handler.NewAttemptHandler(attemptService, validate, logger),
		QuizHandler:    handler.NewQuizHandler(definitionService, logger),
		JWTMiddleware:  testAuth,
	})

	return app
}

func decodeAttempt(t *testing.T, body io.Reader) dto.AttemptResponse {
	t.Helper()
	var resp struct {
		Success bool                `json:"success"`
		Data    dto.AttemptResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(body).Decode(&resp))
	require.True(t, resp.Success)
	return resp.Data
}

func doJSON(t *testing.T, app *fiber.App, method, target, body string, headers map[string]string) (int, io.Reader) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode, resp.Body
}

func TestAttemptLifecycleOverHTTP(t *testing.T) {
	app := setupQuizApp(t)
	startBody := `{"course_id": 10, "quiz_path": "week1/quiz.json"}`

	status, body := doJSON(t, app, "POST", "/api/v1/quiz/attempts/start", startBody, nil)
	require.Equal(t, fiber.StatusOK, status)
	started := decodeAttempt(t, body)
	require.Equal(t, 1, started.AttemptNumber)
	require.Nil(t, started.SubmittedAt)

	// Starting again resumes the same attempt.
	status, body = doJSON(t, app, "POST", "/api/v1/quiz/attempts/start", startBody, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, started.ID, decodeAttempt(t, body).ID)

	id := strconv.FormatUint(uint64(started.ID), 10)

	status, body = doJSON(t, app, "PATCH", "/api/v1/quiz/attempts/"+id+"/answers", `{"answers": {"0": {"selected_index": 1}}}`, nil)
	require.Equal(t, fiber.StatusOK, status)
	saved := decodeAttempt(t, body)
	require.Nil(t, saved.SubmittedAt)
	require.Nil(t, saved.Score)

	status, body = doJSON(t, app, "POST", "/api/v1/quiz/attempts/"+id+"/submit", `{"answers": {"0": {"selected_index": 0}}}`, nil)
	require.Equal(t, fiber.StatusOK, status)
	submitted := decodeAttempt(t, body)
	require.NotNil(t, submitted.SubmittedAt)
	require.NotNil(t, submitted.Score)
	require.Equal(t, 5, *submitted.Score)
	require.Equal(t, 5, submitted.MaxScore)
	require.False(t, submitted.PendingGrading)

	// The attempt is frozen now.
	status, _ = doJSON(t, app, "POST", "/api/v1/quiz/attempts/"+id+"/submit", `{"answers": {}}`, nil)
	require.Equal(t, fiber.StatusConflict, status)

	status, _ = doJSON(t, app, "PATCH", "/api/v1/quiz/attempts/"+id+"/answers", `{"answers": {}}`, nil)
	require.Equal(t, fiber.StatusConflict, status)

	// max_attempts is 1, so no further attempts are allowed.
	status, _ = doJSON(t, app, "POST", "/api/v1/quiz/attempts/start", startBody, nil)
	require.Equal(t, fiber.StatusConflict, status)
}

func TestAttemptStartUnknownQuiz(t *testing.T) {
	app := setupQuizApp(t)

	status, _ := doJSON(t, app, "POST", "/api/v1/quiz/attempts/start", `{"course_id": 10, "quiz_path": "nope.json"}`, nil)
	require.Equal(t, fiber.StatusNotFound, status)
}

func TestAttemptAccessControlOverHTTP(t *testing.T) {
	app := setupQuizApp(t)

	status, body := doJSON(t, app, "POST", "/api/v1/quiz/attempts/start", `{"course_id": 10, "quiz_path": "week1/quiz.json"}`, map[string]string{"X-Test-User": "5"})
	require.Equal(t, fiber.StatusOK, status)
	started := decodeAttempt(t, body)
	id := strconv.FormatUint(uint64(started.ID), 10)

	// Another student cannot view or modify the attempt.
	status, _ = doJSON(t, app, "GET", "/api/v1/quiz/attempts/"+id, "", map[string]string{"X-Test-User": "6"})
	require.Equal(t, fiber.StatusForbidden, status)

	status, _ = doJSON(t, app, "PATCH", "/api/v1/quiz/attempts/"+id+"/answers", `{"answers": {}}`, map[string]string{"X-Test-User": "6"})
	require.Equal(t, fiber.StatusForbidden, status)

	// The course teacher may review it.
	status, _ = doJSON(t, app, "GET", "/api/v1/quiz/attempts/"+id, "", map[string]string{"X-Test-User": "2"})
	require.Equal(t, fiber.StatusOK, status)

	// And may list attempts for the course.
	status, _ = doJSON(t, app, "GET", "/api/v1/quiz/attempts?course_id=10", "", map[string]string{"X-Test-User": "2"})
	require.Equal(t, fiber.StatusOK, status)

	status, _ = doJSON(t, app, "GET", "/api/v1/quiz/attempts?course_id=10", "", map[string]string{"X-Test-User": "6"})
	require.Equal(t, fiber.StatusForbidden, status)
}

func TestQuizDefinitionViewStripsAnswerKey(t *testing.T) {
	app := setupQuizApp(t)

	status, body := doJSON(t, app, "GET", "/api/v1/quiz/definition?course_id=10&path=week1/quiz.json", "", nil)
	require.Equal(t, fiber.StatusOK, status)

	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "correct_index")

	var resp struct {
		Data dto.QuizDefinitionView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &resp))
	require.Equal(t, "Week 1 Quiz", resp.Data.Title)
	require.Len(t, resp.Data.Questions, 1)
	require.Equal(t, []string{"A", "B"}, resp.Data.Questions[0].Options)
}

func TestQuizDefinitionPublishRequiresStaff(t *testing.T) {
	app := setupQuizApp(t)
	target := "/api/v1/quiz/definition?course_id=10&path=week2/quiz.json"
	doc := `{"title": "Week 2", "max_attempts": 1, "questions": [{"type": "short_answer", "prompt": "p", "points": 5}]}`

	status, _ := doJSON(t, app, "POST", target, doc, nil)
	require.Equal(t, fiber.StatusForbidden, status)

	status, _ = doJSON(t, app, "POST", target, doc, map[string]string{"X-Test-Role": "teacher"})
	require.Equal(t, fiber.StatusCreated, status)

	status, _ = doJSON(t, app, "GET", target, "", nil)
	require.Equal(t, fiber.StatusOK, status)
}
