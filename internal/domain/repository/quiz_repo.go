package repository

import (
	"github.com/yourusername/attempt-api/internal/domain/entity"
)

// QuizMeta - метаданные викторины, необходимые для старта попытки
type QuizMeta struct {
	TotalQuestions int
	TimeLimitSec   int
}

// QuizBankRepository определяет read-only доступ к банку вопросов.
// Движок попыток никогда не изменяет викторины через этот интерфейс.
type QuizBankRepository interface {
	GetByID(id uint) (*entity.Quiz, error)
	// GetQuizMeta возвращает количество вопросов и лимит времени.
	// ErrNotFound для неизвестной викторины.
	GetQuizMeta(id uint) (*QuizMeta, error)
	// GetAnswerKey возвращает карту question_id -> правильный вариант
	GetAnswerKey(id uint) (map[uint]string, error)
}
