// Package memory содержит in-memory реализацию хранилища попыток.
// Повторяет семантику Postgres-реализации: сериализация мутаций по
// attemptID, last write wins для ответов с сохранением позиции,
// write-once для терминальных полей. Используется в тестах контракта
// хранилища и пригодна для локального запуска без БД.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/yourusername/attempt-api/internal/domain/entity"
	"github.com/yourusername/attempt-api/internal/domain/repository"
	apperrors "github.com/yourusername/attempt-api/internal/pkg/errors"
	"github.com/yourusername/attempt-api/internal/pkg/keylock"
)

// AttemptRepo реализует repository.AttemptRepository в памяти
type AttemptRepo struct {
	mu       sync.RWMutex
	locks    *keylock.KeyedMutex
	attempts map[string]*entity.Attempt
	answers  map[string][]entity.AttemptAnswer
	nextID   uint
}

// NewAttemptRepo создает новое in-memory хранилище попыток
func NewAttemptRepo() *AttemptRepo {
	return &AttemptRepo{
		locks:    keylock.New(),
		attempts: make(map[string]*entity.Attempt),
		answers:  make(map[string][]entity.AttemptAnswer),
	}
}

func copyAttempt(a *entity.Attempt) *entity.Attempt {
	cp := *a
	if a.EndTime != nil {
		endTime := *a.EndTime
		cp.EndTime = &endTime
	}
	cp.Answers = nil
	return &cp
}

func copyAnswers(answers []entity.AttemptAnswer) []entity.AttemptAnswer {
	cp := make([]entity.AttemptAnswer, len(answers))
	copy(cp, answers)
	return cp
}

// Create сохраняет новую попытку
func (r *AttemptRepo) Create(attempt *entity.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.attempts[attempt.ID]; exists {
		return apperrors.ErrConflict
	}
	r.attempts[attempt.ID] = copyAttempt(attempt)
	return nil
}

// GetByID возвращает попытку вместе с ответами в порядке отправки
func (r *AttemptRepo) GetByID(id string) (*entity.Attempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.attempts[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	attempt := copyAttempt(stored)
	attempt.Answers = copyAnswers(r.answers[id])
	return attempt, nil
}

// UpsertAnswer вставляет ответ или перезаписывает selected_option
// существующего, сохраняя позицию вставки. Статус проверяется под
// той же блокировкой, что и запись: для терминальной попытки ответ
// отбрасывается с ErrInvalidState.
func (r *AttemptRepo) UpsertAnswer(attemptID string, questionID uint, selectedOption string) error {
	r.locks.Lock(attemptID)
	defer r.locks.Unlock(attemptID)

	r.mu.Lock()
	defer r.mu.Unlock()

	attempt, ok := r.attempts[attemptID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if attempt.Status != entity.AttemptStatusInProgress {
		return apperrors.ErrInvalidState
	}

	answers := r.answers[attemptID]
	for i := range answers {
		if answers[i].QuestionID == questionID {
			answers[i].SelectedOption = selectedOption
			answers[i].UpdatedAt = time.Now()
			return nil
		}
	}

	r.nextID++
	r.answers[attemptID] = append(answers, entity.AttemptAnswer{
		ID:             r.nextID,
		AttemptID:      attemptID,
		QuestionID:     questionID,
		SelectedOption: selectedOption,
		Position:       len(answers),
		CreatedAt:      time.Now(),
	})
	return nil
}

// Finalize атомарно переводит попытку в терминальный статус.
// compute получает попытку с актуальными ответами под той же
// блокировкой, что и запись терминальных полей.
func (r *AttemptRepo) Finalize(attemptID string, compute repository.FinalizeFunc) (*entity.Attempt, error) {
	r.locks.Lock(attemptID)
	defer r.locks.Unlock(attemptID)

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.attempts[attemptID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if stored.Status != entity.AttemptStatusInProgress {
		return nil, apperrors.ErrInvalidState
	}

	snapshot := copyAttempt(stored)
	snapshot.Answers = copyAnswers(r.answers[attemptID])

	fields, err := compute(snapshot)
	if err != nil {
		return nil, err
	}

	endTime := fields.EndTime
	stored.Status = fields.Status
	stored.EndTime = &endTime
	stored.TimeSpentSec = fields.TimeSpentSec
	stored.CorrectAnswers = fields.CorrectAnswers
	stored.Score = fields.Score
	stored.UpdatedAt = time.Now()

	answers := r.answers[attemptID]
	for i := range answers {
		answers[i].IsCorrect = fields.AnswerCorrectness[answers[i].QuestionID]
	}

	finalized := copyAttempt(stored)
	finalized.Answers = copyAnswers(answers)
	return finalized, nil
}

// ListByUser возвращает попытки пользователя с пагинацией, новые первыми
func (r *AttemptRepo) ListByUser(userID uint, limit, offset int) ([]entity.Attempt, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []entity.Attempt
	for _, a := range r.attempts {
		if a.UserID == userID {
			matched = append(matched, *copyAttempt(a))
		}
	}
	return paginate(matched, limit, offset)
}

// ListByQuiz возвращает попытки по викторине с пагинацией, новые первыми
func (r *AttemptRepo) ListByQuiz(quizID uint, limit, offset int) ([]entity.Attempt, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []entity.Attempt
	for _, a := range r.attempts {
		if a.QuizID == quizID {
			matched = append(matched, *copyAttempt(a))
		}
	}
	return paginate(matched, limit, offset)
}

// ListAllByQuiz возвращает все финализированные попытки викторины
func (r *AttemptRepo) ListAllByQuiz(quizID uint) ([]entity.Attempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []entity.Attempt
	for _, a := range r.attempts {
		if a.QuizID == quizID && a.Status != entity.AttemptStatusInProgress {
			matched = append(matched, *copyAttempt(a))
		}
	}
	sortNewestFirst(matched)
	return matched, nil
}

// FindExpired возвращает in_progress попытки с истёкшим дедлайном
func (r *AttemptRepo) FindExpired(now time.Time, limit int) ([]entity.Attempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []entity.Attempt
	for _, a := range r.attempts {
		if a.Status == entity.AttemptStatusInProgress && a.IsExpiredAt(now) {
			matched = append(matched, *copyAttempt(a))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartTime.Before(matched[j].StartTime)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func sortNewestFirst(attempts []entity.Attempt) {
	sort.Slice(attempts, func(i, j int) bool {
		return attempts[i].CreatedAt.After(attempts[j].CreatedAt)
	})
}

func paginate(attempts []entity.Attempt, limit, offset int) ([]entity.Attempt, int64, error) {
	sortNewestFirst(attempts)
	total := int64(len(attempts))
	if offset >= len(attempts) {
		return []entity.Attempt{}, total, nil
	}
	attempts = attempts[offset:]
	if limit > 0 && len(attempts) > limit {
		attempts = attempts[:limit]
	}
	return attempts, total, nil
}
