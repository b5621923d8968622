package service

import "github.com/lumen-edu/lumen-quiz-api/internal/models"

// GradeResult is the outcome of grading one answer set against a definition.
// Score is nil while any question awaits manual grading.
type GradeResult struct {
	QuestionResults []models.QuestionResult
	Score           *int
	MaxScore        int
}

// Grade evaluates the answers against the quiz definition. Pure and
// deterministic: multiple choice questions resolve by index equality, short
// answers are always left pending for manual grading, and a missing answer
// counts as incorrect with zero points.
func Grade(def models.QuizDefinition, answers models.AnswerSet) GradeResult {
	results := make([]models.QuestionResult, 0, len(def.Questions))
	total := 0
	resolved := true

	for i, question := range def.Questions {
		result := models.QuestionResult{
			QuestionIndex:  i,
			PointsPossible: question.Points,
		}

		if answer, ok := answers[i]; ok {
			studentAnswer := answer
			result.StudentAnswer = &studentAnswer
		}

		switch question.Type {
		case models.QuestionTypeMultipleChoice:
			correct := result.StudentAnswer != nil &&
				result.StudentAnswer.SelectedIndex != nil &&
				question.CorrectIndex != nil &&
				*result.StudentAnswer.SelectedIndex == *question.CorrectIndex
			earned := 0
			if correct {
				earned = question.Points
			}
			result.Correct = &correct
			result.PointsEarned = &earned
			result.CorrectAnswer = question.CorrectIndex
			total += earned
		case models.QuestionTypeShortAnswer:
			// Never auto-graded; recorded for later human grading.
			resolved = false
		}

		results = append(results, result)
	}

	grade := GradeResult{
		QuestionResults: results,
		MaxScore:        def.MaxScore(),
	}

	if resolved {
		score := total
		grade.Score = &score
	}

	return grade
}
