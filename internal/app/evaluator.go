package app

import "github.com/pslgod1/DigitalTest/internal/domain"

// IsCorrectAnswer reports whether the selected answer index matches the
// question's correct index. An absent selection is always incorrect.
func IsCorrectAnswer(question domain.Question, selected *int) bool {
	if selected == nil {
		return false
	}
	return *selected == question.CorrectAnswerIndex
}
