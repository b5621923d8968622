package models

import "time"

// QuestionType discriminates the question variants of a quiz definition.
type QuestionType string

const (
	// QuestionTypeMultipleChoice is auto-graded by comparing the selected option index.
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	// QuestionTypeShortAnswer is recorded verbatim and always graded manually.
	QuestionTypeShortAnswer QuestionType = "short_answer"
)

// QuizDefinition is the immutable authored quiz document. It is published to
// the blob store by course staff and never mutated afterwards.
type QuizDefinition struct {
	Title            string     `json:"title"`
	TimeLimitMinutes int        `json:"time_limit_minutes"`
	MaxAttempts      int        `json:"max_attempts"`
	Questions        []Question `json:"questions"`
}

// Question is a single entry in a quiz definition. Options and CorrectIndex
// are only present for multiple choice questions.
type Question struct {
	Type         QuestionType `json:"type"`
	Prompt       string       `json:"prompt"`
	Options      []string     `json:"options,omitempty"`
	CorrectIndex *int         `json:"correct_index,omitempty"`
	Points       int          `json:"points"`
}

// MaxScore sums the point values of every question.
func (d QuizDefinition) MaxScore() int {
	total := 0
	for _, q := range d.Questions {
		total += q.Points
	}
	return total
}

// TimeLimit returns the advisory duration for the quiz; zero means unlimited.
func (d QuizDefinition) TimeLimit() time.Duration {
	if d.TimeLimitMinutes <= 0 {
		return 0
	}
	return time.Duration(d.TimeLimitMinutes) * time.Minute
}

// Answer is the tagged union of per-question answer shapes. Exactly one field
// is set: SelectedIndex for multiple choice, Text for short answers.
type Answer struct {
	SelectedIndex *int    `json:"selected_index,omitempty"`
	Text          *string `json:"text,omitempty"`
}

// AnswerSet maps a zero-based question index to the student's answer. Indexes
// without an entry count as unanswered.
type AnswerSet map[int]Answer

// Merge overlays the other set on top of the receiver and returns the result.
// Entries in other win per index; the receiver is not modified.
func (s AnswerSet) Merge(other AnswerSet) AnswerSet {
	merged := make(AnswerSet, len(s)+len(other))
	for idx, answer := range s {
		merged[idx] = answer
	}
	for idx, answer := range other {
		merged[idx] = answer
	}
	return merged
}

// QuestionResult captures the graded outcome for one question. Correct and
// PointsEarned are nil while the question awaits manual grading.
type QuestionResult struct {
	QuestionIndex  int     `json:"question_index"`
	Correct        *bool   `json:"correct"`
	PointsEarned   *int    `json:"points_earned"`
	PointsPossible int     `json:"points_possible"`
	StudentAnswer  *Answer `json:"student_answer"`
	CorrectAnswer  *int    `json:"correct_answer,omitempty"`
}

// Pending reports whether the result still awaits manual grading.
func (r QuestionResult) Pending() bool {
	return r.Correct == nil
}
