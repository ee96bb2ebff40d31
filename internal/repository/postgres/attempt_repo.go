package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yourusername/attempt-api/internal/domain/entity"
	"github.com/yourusername/attempt-api/internal/domain/repository"
	apperrors "github.com/yourusername/attempt-api/internal/pkg/errors"
	"github.com/yourusername/attempt-api/internal/pkg/keylock"
)

// defaultOpTimeout - неявный таймаут операций хранилища.
// По его истечении операция завершается ErrStorageUnavailable.
const defaultOpTimeout = 5 * time.Second

// AttemptRepo реализует repository.AttemptRepository поверх PostgreSQL.
// Мутации по одному attemptID сериализуются дважды: keyed-локом внутри
// процесса и SELECT ... FOR UPDATE на строке попытки в БД. Проверка
// статуса и запись происходят под одной блокировкой, поэтому финализация
// не может вклиниться между ними.
type AttemptRepo struct {
	db        *gorm.DB
	locks     *keylock.KeyedMutex
	opTimeout time.Duration
}

// NewAttemptRepo создает новый репозиторий попыток
func NewAttemptRepo(db *gorm.DB) *AttemptRepo {
	return &AttemptRepo{
		db:        db,
		locks:     keylock.New(),
		opTimeout: defaultOpTimeout,
	}
}

// withTimeout возвращает контекст с таймаутом операции хранилища
func (r *AttemptRepo) withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.opTimeout)
}

// mapStorageErr переводит истечение таймаута в ErrStorageUnavailable.
// Доменные ошибки (ErrNotFound, ErrInvalidState) проходят без изменений.
func mapStorageErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.ErrStorageUnavailable
	}
	return err
}

// lockAttemptRow блокирует строку попытки в рамках транзакции и
// возвращает её статус. ErrNotFound для неизвестной попытки.
func lockAttemptRow(tx *gorm.DB, attemptID string) (*entity.Attempt, error) {
	var attempt entity.Attempt
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&attempt, "id = ?", attemptID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &attempt, nil
}

// Create сохраняет новую попытку со статусом in_progress
func (r *AttemptRepo) Create(attempt *entity.Attempt) error {
	ctx, cancel := r.withTimeout()
	defer cancel()
	return mapStorageErr(r.db.WithContext(ctx).Create(attempt).Error)
}

// GetByID возвращает попытку вместе с ответами в порядке отправки
func (r *AttemptRepo) GetByID(id string) (*entity.Attempt, error) {
	ctx, cancel := r.withTimeout()
	defer cancel()

	var attempt entity.Attempt
	err := r.db.WithContext(ctx).
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&attempt, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, mapStorageErr(err)
	}
	return &attempt, nil
}

// UpsertAnswer вставляет ответ или перезаписывает selected_option
// существующего (last write wins). Позиция вставки при перезаписи
// не меняется, новые вопросы добавляются в конец.
// Строка попытки блокируется на время транзакции: если попытка уже
// терминальна, ответ отбрасывается с ErrInvalidState.
func (r *AttemptRepo) UpsertAnswer(attemptID string, questionID uint, selectedOption string) error {
	r.locks.Lock(attemptID)
	defer r.locks.Unlock(attemptID)

	ctx, cancel := r.withTimeout()
	defer cancel()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attempt, err := lockAttemptRow(tx, attemptID)
		if err != nil {
			return err
		}
		if attempt.Status != entity.AttemptStatusInProgress {
			// Финализация успела завершиться: ответы неизменяемы
			return apperrors.ErrInvalidState
		}

		var existing entity.AttemptAnswer
		err = tx.Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
			First(&existing).Error
		if err == nil {
			return tx.Model(&existing).Update("selected_option", selectedOption).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var position int64
		if err := tx.Model(&entity.AttemptAnswer{}).
			Where("attempt_id = ?", attemptID).
			Count(&position).Error; err != nil {
			return err
		}

		answer := entity.AttemptAnswer{
			AttemptID:      attemptID,
			QuestionID:     questionID,
			SelectedOption: selectedOption,
			Position:       int(position),
		}
		if err := tx.Create(&answer).Error; err != nil {
			// 23505 - unique_violation: проигранная гонка на вставке,
			// переходим к перезаписи варианта
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return tx.Model(&entity.AttemptAnswer{}).
					Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
					Update("selected_option", selectedOption).Error
			}
			return err
		}
		return nil
	})
	return mapStorageErr(err)
}

// Finalize атомарно переводит попытку в терминальный статус.
// Строка попытки блокируется FOR UPDATE, ответы читаются в той же
// транзакции и передаются compute: подсчёт не может пропустить ответ,
// записанный до начала финализации. Условный UPDATE по status =
// in_progress сохраняет write-once на уровне хранилища.
func (r *AttemptRepo) Finalize(attemptID string, compute repository.FinalizeFunc) (*entity.Attempt, error) {
	r.locks.Lock(attemptID)
	defer r.locks.Unlock(attemptID)

	ctx, cancel := r.withTimeout()
	defer cancel()

	var finalized *entity.Attempt
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attempt, err := lockAttemptRow(tx, attemptID)
		if err != nil {
			return err
		}
		if attempt.Status != entity.AttemptStatusInProgress {
			return apperrors.ErrInvalidState
		}

		if err := tx.Where("attempt_id = ?", attemptID).
			Order("position ASC").
			Find(&attempt.Answers).Error; err != nil {
			return err
		}

		fields, err := compute(attempt)
		if err != nil {
			return err
		}

		res := tx.Model(&entity.Attempt{}).
			Where("id = ? AND status = ?", attemptID, entity.AttemptStatusInProgress).
			Updates(map[string]interface{}{
				"status":          fields.Status,
				"end_time":        fields.EndTime,
				"time_spent_sec":  fields.TimeSpentSec,
				"correct_answers": fields.CorrectAnswers,
				"score":           fields.Score,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Строка заблокирована выше, сюда попадаем только при гонке
			// с прямой правкой БД
			return apperrors.ErrInvalidState
		}

		for questionID, isCorrect := range fields.AnswerCorrectness {
			if err := tx.Model(&entity.AttemptAnswer{}).
				Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
				Update("is_correct", isCorrect).Error; err != nil {
				return err
			}
		}

		attempt.Status = fields.Status
		endTime := fields.EndTime
		attempt.EndTime = &endTime
		attempt.TimeSpentSec = fields.TimeSpentSec
		attempt.CorrectAnswers = fields.CorrectAnswers
		attempt.Score = fields.Score
		for i := range attempt.Answers {
			attempt.Answers[i].IsCorrect = fields.AnswerCorrectness[attempt.Answers[i].QuestionID]
		}
		finalized = attempt
		return nil
	})
	if err != nil {
		return nil, mapStorageErr(err)
	}
	return finalized, nil
}

// ListByUser возвращает попытки пользователя с пагинацией, новые первыми
func (r *AttemptRepo) ListByUser(userID uint, limit, offset int) ([]entity.Attempt, int64, error) {
	ctx, cancel := r.withTimeout()
	defer cancel()

	var attempts []entity.Attempt
	var total int64

	db := r.db.WithContext(ctx)
	if err := db.Model(&entity.Attempt{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, mapStorageErr(err)
	}
	err := db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&attempts).Error
	return attempts, total, mapStorageErr(err)
}

// ListByQuiz возвращает попытки по викторине с пагинацией, новые первыми
func (r *AttemptRepo) ListByQuiz(quizID uint, limit, offset int) ([]entity.Attempt, int64, error) {
	ctx, cancel := r.withTimeout()
	defer cancel()

	var attempts []entity.Attempt
	var total int64

	db := r.db.WithContext(ctx)
	if err := db.Model(&entity.Attempt{}).Where("quiz_id = ?", quizID).Count(&total).Error; err != nil {
		return nil, 0, mapStorageErr(err)
	}
	err := db.Where("quiz_id = ?", quizID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&attempts).Error
	return attempts, total, mapStorageErr(err)
}

// ListAllByQuiz возвращает все финализированные попытки викторины без
// пагинации. Используется для экспорта: незавершенные попытки с нулевым
// счётом в выгрузку не попадают.
func (r *AttemptRepo) ListAllByQuiz(quizID uint) ([]entity.Attempt, error) {
	ctx, cancel := r.withTimeout()
	defer cancel()

	var attempts []entity.Attempt
	err := r.db.WithContext(ctx).
		Where("quiz_id = ? AND status <> ?", quizID, entity.AttemptStatusInProgress).
		Order("created_at DESC").
		Find(&attempts).Error
	return attempts, mapStorageErr(err)
}

// FindExpired возвращает in_progress попытки, чей дедлайн прошёл к моменту now
func (r *AttemptRepo) FindExpired(now time.Time, limit int) ([]entity.Attempt, error) {
	ctx, cancel := r.withTimeout()
	defer cancel()

	var attempts []entity.Attempt
	err := r.db.WithContext(ctx).
		Where("status = ? AND start_time + make_interval(secs => time_limit_sec) <= ?",
			entity.AttemptStatusInProgress, now).
		Order("start_time ASC").
		Limit(limit).
		Find(&attempts).Error
	return attempts, mapStorageErr(err)
}
