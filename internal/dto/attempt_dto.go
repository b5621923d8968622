package dto

import (
	"time"

	"github.com/lumen-edu/lumen-quiz-api/internal/models"
)

// AnswerInput mirrors the tagged answer union on the wire. JSON object keys
// are strings, so the map key decodes from the stringified question index.
type AnswerInput struct {
	SelectedIndex *int    `json:"selected_index,omitempty"`
	Text          *string `json:"text,omitempty"`
}

// StartAttemptRequest asks for a new (or the existing in-progress) attempt.
type StartAttemptRequest struct {
	CourseID uint   `json:"course_id" validate:"required,gt=0"`
	QuizPath string `json:"quiz_path" validate:"required,min=1,max=512"`
}

// SaveAnswersRequest carries an autosave payload. The answer set replaces the
// stored one wholesale.
type SaveAnswersRequest struct {
	Answers map[int]AnswerInput `json:"answers" validate:"required"`
}

// SubmitAttemptRequest carries the authoritative final answer set.
type SubmitAttemptRequest struct {
	Answers map[int]AnswerInput `json:"answers" validate:"required"`
}

// AttemptResponse is returned to API clients for attempt views.
type AttemptResponse struct {
	ID              uint                    `json:"id"`
	UserID          uint                    `json:"user_id"`
	CourseID        uint                    `json:"course_id"`
	QuizPath        string                  `json:"quiz_path"`
	AttemptNumber   int                     `json:"attempt_number"`
	Answers         models.AnswerSet        `json:"answers"`
	StartedAt       time.Time               `json:"started_at"`
	SubmittedAt     *time.Time              `json:"submitted_at"`
	Score           *int                    `json:"score"`
	MaxScore        int                     `json:"max_score"`
	QuestionResults []models.QuestionResult `json:"question_results,omitempty"`
	PendingGrading  bool                    `json:"pending_grading"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

// ToAnswerSet converts a request answer map into the domain answer set.
func ToAnswerSet(input map[int]AnswerInput) models.AnswerSet {
	answers := make(models.AnswerSet, len(input))
	for idx, answer := range input {
		answers[idx] = models.Answer{
			SelectedIndex: answer.SelectedIndex,
			Text:          answer.Text,
		}
	}
	return answers
}

// NewAttemptResponse converts an attempt record into a DTO.
func NewAttemptResponse(model models.QuizAttempt) (AttemptResponse, error) {
	answers, err := model.AnswerSet()
	if err != nil {
		return AttemptResponse{}, err
	}

	results, err := model.Results()
	if err != nil {
		return AttemptResponse{}, err
	}

	pending := false
	for _, result := range results {
		if result.Pending() {
			pending = true
			break
		}
	}

	return AttemptResponse{
		ID:              model.ID,
		UserID:          model.UserID,
		CourseID:        model.CourseID,
		QuizPath:        model.QuizPath,
		AttemptNumber:   model.AttemptNumber,
		Answers:         answers,
		StartedAt:       model.StartedAt,
		SubmittedAt:     model.SubmittedAt,
		Score:           model.Score,
		MaxScore:        model.MaxScore,
		QuestionResults: results,
		PendingGrading:  pending,
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}, nil
}

// NewAttemptResponseSlice converts attempt records into DTOs.
func NewAttemptResponseSlice(attempts []models.QuizAttempt) ([]AttemptResponse, error) {
	responses := make([]AttemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		response, err := NewAttemptResponse(attempt)
		if err != nil {
			return nil, err
		}
		responses = append(responses, response)
	}
	return responses, nil
}
