package dto

import "github.com/lumen-edu/lumen-quiz-api/internal/models"

// QuestionView is a question as shown to students, without the answer key.
type QuestionView struct {
	Type    models.QuestionType `json:"type"`
	Prompt  string              `json:"prompt"`
	Options []string            `json:"options,omitempty"`
	Points  int                 `json:"points"`
}

// QuizDefinitionView is the student-facing projection of a quiz definition.
type QuizDefinitionView struct {
	Title            string         `json:"title"`
	TimeLimitMinutes int            `json:"time_limit_minutes"`
	MaxAttempts      int            `json:"max_attempts"`
	MaxScore         int            `json:"max_score"`
	Questions        []QuestionView `json:"questions"`
}

// NewQuizDefinitionView strips correct answers from the definition before it
// leaves the server.
func NewQuizDefinitionView(def models.QuizDefinition) QuizDefinitionView {
	questions := make([]QuestionView, 0, len(def.Questions))
	for _, q := range def.Questions {
		questions = append(questions, QuestionView{
			Type:    q.Type,
			Prompt:  q.Prompt,
			Options: q.Options,
			Points:  q.Points,
		})
	}

	return QuizDefinitionView{
		Title:            def.Title,
		TimeLimitMinutes: def.TimeLimitMinutes,
		MaxAttempts:      def.MaxAttempts,
		MaxScore:         def.MaxScore(),
		Questions:        questions,
	}
}
