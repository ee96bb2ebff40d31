package postgres

import (
	"errors"

	"gorm.io/gorm"

	"github.com/yourusername/attempt-api/internal/domain/entity"
	"github.com/yourusername/attempt-api/internal/domain/repository"
	apperrors "github.com/yourusername/attempt-api/internal/pkg/errors"
)

// QuizRepo реализует repository.QuizBankRepository поверх PostgreSQL.
// Только чтение: наполнение банка вопросов - зона ответственности
// внешней админки, движок попыток его не изменяет.
type QuizRepo struct {
	db *gorm.DB
}

// NewQuizRepo создает новый репозиторий банка вопросов
func NewQuizRepo(db *gorm.DB) *QuizRepo {
	return &QuizRepo{db: db}
}

// GetByID возвращает викторину без вопросов
func (r *QuizRepo) GetByID(id uint) (*entity.Quiz, error) {
	var quiz entity.Quiz
	err := r.db.First(&quiz, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &quiz, nil
}

// GetQuizMeta возвращает метаданные викторины для старта попытки.
// Количество вопросов считается по таблице questions: снапшот должен
// отражать фактический состав банка на момент старта.
func (r *QuizRepo) GetQuizMeta(id uint) (*repository.QuizMeta, error) {
	quiz, err := r.GetByID(id)
	if err != nil {
		return nil, err
	}

	var count int64
	if err := r.db.Model(&entity.Question{}).Where("quiz_id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}

	return &repository.QuizMeta{
		TotalQuestions: int(count),
		TimeLimitSec:   quiz.TimeLimitSec,
	}, nil
}

// GetAnswerKey возвращает карту question_id -> правильный вариант
func (r *QuizRepo) GetAnswerKey(id uint) (map[uint]string, error) {
	// Сначала убеждаемся, что викторина существует: пустая карта для
	// неизвестной викторины маскировала бы NotFound
	if _, err := r.GetByID(id); err != nil {
		return nil, err
	}

	var questions []entity.Question
	if err := r.db.Select("id", "correct_option").
		Where("quiz_id = ?", id).
		Find(&questions).Error; err != nil {
		return nil, err
	}

	key := make(map[uint]string, len(questions))
	for _, q := range questions {
		key[q.ID] = q.CorrectOption
	}
	return key, nil
}
