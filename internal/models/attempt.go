package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// QuizAttempt tracks one student's pass over a quiz from start to submission.
// The record is mutable only while SubmittedAt is null; the submit write is
// the single terminal transition after which every field is frozen.
type QuizAttempt struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	UserID          uint           `gorm:"not null;index:idx_attempt_user_quiz" json:"user_id"`
	CourseID        uint           `gorm:"not null;index:idx_attempt_user_quiz" json:"course_id"`
	QuizPath        string         `gorm:"size:512;not null;index:idx_attempt_user_quiz" json:"quiz_path"`
	AttemptNumber   int            `gorm:"not null" json:"attempt_number"`
	Answers         datatypes.JSON `gorm:"type:json" json:"-"`
	QuestionResults datatypes.JSON `gorm:"type:json" json:"-"`
	StartedAt       time.Time      `gorm:"not null" json:"started_at"`
	SubmittedAt     *time.Time     `gorm:"index" json:"submitted_at"`
	Score           *int           `json:"score"`
	MaxScore        int            `json:"max_score"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// IsSubmitted reports whether the attempt reached its terminal state.
func (a QuizAttempt) IsSubmitted() bool {
	return a.SubmittedAt != nil
}

// AnswerSet decodes the stored answers column. An empty column yields an
// empty set.
func (a QuizAttempt) AnswerSet() (AnswerSet, error) {
	if len(a.Answers) == 0 {
		return AnswerSet{}, nil
	}
	var answers AnswerSet
	if err := json.Unmarshal(a.Answers, &answers); err != nil {
		return nil, err
	}
	if answers == nil {
		answers = AnswerSet{}
	}
	return answers, nil
}

// SetAnswerSet encodes the answers into the stored column.
func (a *QuizAttempt) SetAnswerSet(answers AnswerSet) error {
	if answers == nil {
		answers = AnswerSet{}
	}
	data, err := json.Marshal(answers)
	if err != nil {
		return err
	}
	a.Answers = datatypes.JSON(data)
	return nil
}

// Results decodes the stored question results; nil until submitted.
func (a QuizAttempt) Results() ([]QuestionResult, error) {
	if len(a.QuestionResults) == 0 {
		return nil, nil
	}
	var results []QuestionResult
	if err := json.Unmarshal(a.QuestionResults, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// SetResults encodes the graded question results into the stored column.
func (a *QuizAttempt) SetResults(results []QuestionResult) error {
	data, err := json.Marshal(results)
	if err != nil {
		return err
	}
	a.QuestionResults = datatypes.JSON(data)
	return nil
}
