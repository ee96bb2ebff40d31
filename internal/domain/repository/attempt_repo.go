package repository

import (
	"time"

	"github.com/yourusername/attempt-api/internal/domain/entity"
)

// FinalizeFields содержит терминальные поля, которые хранилище записывает
// ровно один раз при финализации попытки.
type FinalizeFields struct {
	Status         string
	EndTime        time.Time
	TimeSpentSec   int
	CorrectAnswers int
	Score          int
	// AnswerCorrectness - правильность по каждому question_id,
	// рассчитанная движком подсчёта. Записывается вместе со статусом.
	AnswerCorrectness map[uint]bool
}

// FinalizeFunc вычисляет терминальные поля по состоянию попытки.
// Хранилище вызывает её с ответами, прочитанными под той же блокировкой,
// что и запись результата: ответ, успевший записаться до финализации,
// гарантированно попадает в подсчёт.
type FinalizeFunc func(attempt *entity.Attempt) (FinalizeFields, error)

// AttemptRepository определяет методы для работы с попытками.
// Мутирующие операции по одному attemptID сериализуются реализацией:
// контроллер жизненного цикла может считать их линейными.
type AttemptRepository interface {
	Create(attempt *entity.Attempt) error
	// GetByID возвращает попытку вместе с ответами в порядке отправки
	GetByID(id string) (*entity.Attempt, error)
	// UpsertAnswer вставляет ответ или перезаписывает selected_option
	// существующего (last write wins), сохраняя позицию вставки.
	// Статус попытки проверяется под блокировкой её строки: для
	// терминальной попытки возвращается ErrInvalidState, ответ
	// отбрасывается - после финализации ответы неизменяемы.
	UpsertAnswer(attemptID string, questionID uint, selectedOption string) error
	// Finalize атомарно переводит попытку в терминальный статус.
	// compute вызывается с актуальными ответами внутри той же транзакции.
	// Возвращает ErrInvalidState, если попытка уже терминальна.
	Finalize(attemptID string, compute FinalizeFunc) (*entity.Attempt, error)
	ListByUser(userID uint, limit, offset int) ([]entity.Attempt, int64, error)
	ListByQuiz(quizID uint, limit, offset int) ([]entity.Attempt, int64, error)
	// ListAllByQuiz возвращает все ФИНАЛИЗИРОВАННЫЕ попытки викторины
	// без пагинации. Используется для экспорта: незавершенные попытки
	// с нулевым счётом в выгрузку не попадают.
	ListAllByQuiz(quizID uint) ([]entity.Attempt, error)
	// FindExpired возвращает in_progress попытки с истёкшим дедлайном
	FindExpired(now time.Time, limit int) ([]entity.Attempt, error)
}
