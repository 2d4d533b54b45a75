package app

import "quiz-attempt-service/internal/domain"

// Score grades answers against questions. Every question appears in the detail,
// unanswered ones with a nil SelectedOption, and counts as incorrect unless the
// selected option equals CorrectAnswer. Answers for indexes outside the quiz are ignored.
func Score(questions []domain.Question, answers domain.Answers) (int, []domain.AnswerDetail) {
	score := 0
	detail := make([]domain.AnswerDetail, len(questions))
	for i, question := range questions {
		entry := domain.AnswerDetail{
			QuestionText:  question.Text,
			CorrectAnswer: question.CorrectAnswer,
		}
		if selected, ok := answers[i]; ok {
			selected := selected
			entry.SelectedOption = &selected
			entry.Correct = selected == question.CorrectAnswer
		}
		if entry.Correct {
			score++
		}
		detail[i] = entry
	}
	return score, detail
}

// validateAnswers rejects payloads that reference unknown questions or options.
func validateAnswers(questions []domain.Question, answers domain.Answers) error {
	for index, selected := range answers {
		if index < 0 || index >= len(questions) {
			return domain.NewValidationError("answers", "answer for question outside the quiz")
		}
		if !questions[index].HasOption(selected) {
			return domain.NewValidationError("answers", "selected option is not offered by the question")
		}
	}
	return nil
}
