package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yourusername/attempt-api/internal/domain/entity"
	"github.com/yourusername/attempt-api/internal/domain/repository"
	apperrors "github.com/yourusername/attempt-api/internal/pkg/errors"
	"github.com/yourusername/attempt-api/internal/service/attemptengine"
)

// AttemptService - контроллер жизненного цикла попытки.
// Единственный писатель status/end_time; правильность ответов и счёт
// записывает движок подсчёта через финализацию.
type AttemptService struct {
	attemptRepo repository.AttemptRepository
	quizRepo    repository.QuizBankRepository
	cacheRepo   repository.CacheRepository
	config      *attemptengine.Config
	db          *gorm.DB
	now         func() time.Time
}

// NewAttemptService создает новый сервис попыток
func NewAttemptService(
	attemptRepo repository.AttemptRepository,
	quizRepo repository.QuizBankRepository,
	cacheRepo repository.CacheRepository,
	config *attemptengine.Config,
	db *gorm.DB,
) *AttemptService {
	return &AttemptService{
		attemptRepo: attemptRepo,
		quizRepo:    quizRepo,
		cacheRepo:   cacheRepo,
		config:      config,
		db:          db,
		now:         time.Now,
	}
}

// SetClock подменяет источник текущего времени.
// Используется в тестах для детерминированной проверки таймингов.
func (s *AttemptService) SetClock(now func() time.Time) {
	s.now = now
}

func expiredMarkerKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:expired", attemptID)
}

func summaryCacheKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:summary", attemptID)
}

// StartAttempt создает новую попытку прохождения викторины.
// TotalQuestions и TimeLimitSec снапшотятся на момент старта.
func (s *AttemptService) StartAttempt(userID, quizID uint) (*entity.Attempt, error) {
	meta, err := s.quizRepo.GetQuizMeta(quizID)
	if err != nil {
		return nil, err
	}
	if meta.TotalQuestions == 0 {
		// Викторина без вопросов непроходима - для клиента это NotFound
		return nil, fmt.Errorf("quiz %d has no questions: %w", quizID, apperrors.ErrNotFound)
	}

	timeLimit := meta.TimeLimitSec
	if timeLimit <= 0 {
		timeLimit = s.config.DefaultTimeLimitSec
	}

	attempt := &entity.Attempt{
		ID:             uuid.NewString(),
		UserID:         userID,
		QuizID:         quizID,
		StartTime:      s.now(),
		TimeLimitSec:   timeLimit,
		TotalQuestions: meta.TotalQuestions,
		Status:         entity.AttemptStatusInProgress,
	}

	if err := s.attemptRepo.Create(attempt); err != nil {
		log.Printf("[AttemptService] Ошибка при создании попытки для пользователя #%d, викторина #%d: %v", userID, quizID, err)
		return nil, err
	}

	log.Printf("[AttemptService] Попытка %s создана: пользователь #%d, викторина #%d, %d вопросов, лимит %d сек",
		attempt.ID, userID, quizID, meta.TotalQuestions, timeLimit)
	return attempt, nil
}

// SubmitAnswer фиксирует ответ в рамках активной попытки.
// При исчерпанном лимите времени ответ отбрасывается, попытка
// авто-финализируется в abandoned и возвращается ErrExpired:
// в гонке отправки с дедлайном всегда побеждает дедлайн.
func (s *AttemptService) SubmitAnswer(attemptID string, questionID uint, selectedOption string) error {
	if len(selectedOption) > s.config.MaxOptionLength {
		return fmt.Errorf("selected option exceeds %d characters: %w", s.config.MaxOptionLength, apperrors.ErrValidation)
	}

	// Быстрый отказ по маркеру в кеше, без похода в БД.
	// Ошибка кеша не критична: ниже статус проверяется по записи.
	if expired, err := s.cacheRepo.Exists(expiredMarkerKey(attemptID)); err == nil && expired {
		return fmt.Errorf("attempt %s: %w", attemptID, apperrors.ErrExpired)
	}

	attempt, err := s.attemptRepo.GetByID(attemptID)
	if err != nil {
		return err
	}
	if !attempt.IsInProgress() {
		return fmt.Errorf("attempt %s is %s: %w", attemptID, attempt.Status, apperrors.ErrInvalidState)
	}

	if attempt.IsExpiredAt(s.now()) {
		// Дедлайн прошёл: ответ не записываем, попытку закрываем
		if _, finErr := s.FinalizeAttempt(attemptID, entity.FinalizeReasonTimeout); finErr != nil &&
			!errors.Is(finErr, apperrors.ErrInvalidState) {
			log.Printf("[AttemptService] Ошибка авто-финализации просроченной попытки %s: %v", attemptID, finErr)
		}
		return fmt.Errorf("attempt %s: %w", attemptID, apperrors.ErrExpired)
	}

	answerKey, err := s.quizRepo.GetAnswerKey(attempt.QuizID)
	if err != nil {
		return err
	}
	if _, ok := answerKey[questionID]; !ok {
		return fmt.Errorf("question %d is not part of quiz %d: %w", questionID, attempt.QuizID, apperrors.ErrNotFound)
	}

	if err := s.attemptRepo.UpsertAnswer(attemptID, questionID, selectedOption); err != nil {
		// ErrInvalidState - попытку успела закрыть конкурирующая финализация;
		// хранилище отбросило ответ под блокировкой строки
		if !errors.Is(err, apperrors.ErrInvalidState) {
			log.Printf("[AttemptService] Ошибка при сохранении ответа на вопрос #%d попытки %s: %v", questionID, attemptID, err)
		}
		return err
	}
	return nil
}

// FinalizeAttempt переводит попытку в терминальный статус и подсчитывает счёт.
// Повторная финализация возвращает ErrInvalidState, а не тихий no-op:
// двойная отправка - баг клиента, который должен быть наблюдаемым.
// Подсчёт выполняется внутри транзакции хранилища над ответами, прочитанными
// под блокировкой строки попытки: ответ, записанный до финализации, не может
// выпасть из счёта, а ответ после неё отбрасывается с ErrInvalidState.
func (s *AttemptService) FinalizeAttempt(attemptID string, reason string) (*entity.Attempt, error) {
	status, ok := entity.StatusForReason(reason)
	if !ok {
		return nil, fmt.Errorf("unknown finalize reason %q: %w", reason, apperrors.ErrValidation)
	}

	attempt, err := s.attemptRepo.Finalize(attemptID, func(current *entity.Attempt) (repository.FinalizeFields, error) {
		endTime := s.now()
		if reason == entity.FinalizeReasonTimeout {
			// Фиксируем момент дедлайна, а не момент обнаружения просрочки
			if deadline := current.Deadline(); endTime.After(deadline) {
				endTime = deadline
			}
		}
		timeSpent := int(endTime.Sub(current.StartTime) / time.Second)
		if timeSpent < 0 {
			timeSpent = 0
		}

		answerKey, err := s.quizRepo.GetAnswerKey(current.QuizID)
		if err != nil {
			return repository.FinalizeFields{}, err
		}

		scored, result := attemptengine.Score(current.Answers, attemptengine.AnswerKey(answerKey), current.TotalQuestions)

		correctness := make(map[uint]bool, len(scored))
		for _, a := range scored {
			correctness[a.QuestionID] = a.IsCorrect
		}

		return repository.FinalizeFields{
			Status:            status,
			EndTime:           endTime,
			TimeSpentSec:      timeSpent,
			CorrectAnswers:    result.CorrectAnswers,
			Score:             result.Score,
			AnswerCorrectness: correctness,
		}, nil
	})
	if err != nil {
		// ErrInvalidState здесь означает проигранную гонку двух финализаций -
		// хранилище уже записало терминальные поля ровно один раз
		return nil, err
	}

	if reason == entity.FinalizeReasonTimeout {
		if err := s.cacheRepo.Set(expiredMarkerKey(attemptID), "1", s.config.ExpiredMarkerTTL); err != nil {
			log.Printf("[AttemptService] WARNING: Не удалось установить маркер просрочки для попытки %s: %v", attemptID, err)
		}
	}
	if err := s.cacheRepo.SetJSON(summaryCacheKey(attemptID), s.summaryOf(attempt), s.config.SummaryCacheTTL); err != nil {
		log.Printf("[AttemptService] WARNING: Не удалось закешировать сводку попытки %s: %v", attemptID, err)
	}

	log.Printf("[AttemptService] Попытка %s финализирована: причина %s, статус %s, счёт %d (%d/%d)",
		attemptID, reason, status, attempt.Score, attempt.CorrectAnswers, attempt.TotalQuestions)
	return attempt, nil
}

// GetRemainingTime возвращает оставшееся время попытки.
// Только чтение: состояние не изменяется даже для просроченных попыток.
func (s *AttemptService) GetRemainingTime(attemptID string) (time.Duration, error) {
	attempt, err := s.attemptRepo.GetByID(attemptID)
	if err != nil {
		return 0, err
	}
	if attempt.IsTerminal() {
		return 0, nil
	}
	timeLimit := time.Duration(attempt.TimeLimitSec) * time.Second
	return attemptengine.Remaining(attempt.StartTime, timeLimit, s.now()), nil
}

// GetAttempt возвращает попытку с ответами
func (s *AttemptService) GetAttempt(attemptID string) (*entity.Attempt, error) {
	return s.attemptRepo.GetByID(attemptID)
}

// AttemptSummary - итоговая сводка финализированной попытки
type AttemptSummary struct {
	AttemptID      string `json:"attempt_id"`
	QuizID         uint   `json:"quiz_id"`
	Status         string `json:"status"`
	Score          int    `json:"score"`
	CorrectAnswers int    `json:"correct_answers"`
	TotalQuestions int    `json:"total_questions"`
	TimeSpentSec   int    `json:"time_spent_sec"`
}

func (s *AttemptService) summaryOf(attempt *entity.Attempt) *AttemptSummary {
	return &AttemptSummary{
		AttemptID:      attempt.ID,
		QuizID:         attempt.QuizID,
		Status:         attempt.Status,
		Score:          attempt.Score,
		CorrectAnswers: attempt.CorrectAnswers,
		TotalQuestions: attempt.TotalQuestions,
		TimeSpentSec:   attempt.TimeSpentSec,
	}
}

// GetAttemptSummary возвращает сводку попытки.
// Доступна только после финализации, иначе ErrInvalidState.
func (s *AttemptService) GetAttemptSummary(attemptID string) (*AttemptSummary, error) {
	var cached AttemptSummary
	if err := s.cacheRepo.GetJSON(summaryCacheKey(attemptID), &cached); err == nil {
		return &cached, nil
	}

	attempt, err := s.attemptRepo.GetByID(attemptID)
	if err != nil {
		return nil, err
	}
	if !attempt.IsTerminal() {
		return nil, fmt.Errorf("attempt %s is still in progress: %w", attemptID, apperrors.ErrInvalidState)
	}
	return s.summaryOf(attempt), nil
}

// GetUserAttempts возвращает попытки пользователя с пагинацией
func (s *AttemptService) GetUserAttempts(userID uint, page, pageSize int) ([]entity.Attempt, int64, error) {
	limit, offset := normalizePage(page, pageSize)
	return s.attemptRepo.ListByUser(userID, limit, offset)
}

// GetQuizAttempts возвращает попытки по викторине с пагинацией
func (s *AttemptService) GetQuizAttempts(quizID uint, page, pageSize int) ([]entity.Attempt, int64, error) {
	limit, offset := normalizePage(page, pageSize)
	return s.attemptRepo.ListByQuiz(quizID, limit, offset)
}

// GetQuizAttemptsAll возвращает все финализированные попытки викторины
// без пагинации. Используется для экспорта, где нужна полная выборка.
func (s *AttemptService) GetQuizAttemptsAll(quizID uint) ([]entity.Attempt, error) {
	return s.attemptRepo.ListAllByQuiz(quizID)
}

func normalizePage(page, pageSize int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	} else if pageSize > 100 {
		pageSize = 100
	}
	return pageSize, (page - 1) * pageSize
}

// QuizAttemptStatistics представляет агрегированную статистику попыток викторины
type QuizAttemptStatistics struct {
	QuizID            uint    `json:"quiz_id"`
	TotalAttempts     int     `json:"total_attempts"`
	InProgress        int     `json:"in_progress"`
	Completed         int     `json:"completed"`
	Abandoned         int     `json:"abandoned"`
	AvgScore          float64 `json:"avg_score"`
	AvgCorrectAnswers float64 `json:"avg_correct_answers"`
	AvgTimeSpentSec   float64 `json:"avg_time_spent_sec"`
}

// GetQuizAttemptStatistics вычисляет статистику попыток для викторины.
// Средние считаются только по финализированным попыткам.
func (s *AttemptService) GetQuizAttemptStatistics(quizID uint) (*QuizAttemptStatistics, error) {
	if _, err := s.quizRepo.GetByID(quizID); err != nil {
		return nil, err
	}

	stats := &QuizAttemptStatistics{QuizID: quizID}

	var counts struct {
		Total      int
		InProgress int
		Completed  int
		Abandoned  int
	}
	if err := s.db.Table("attempts").
		Select(`
			COUNT(*) as total,
			COUNT(*) FILTER (WHERE status = 'in_progress') as in_progress,
			COUNT(*) FILTER (WHERE status = 'completed') as completed,
			COUNT(*) FILTER (WHERE status = 'abandoned') as abandoned
		`).
		Where("quiz_id = ?", quizID).
		Scan(&counts).Error; err != nil {
		return nil, err
	}
	stats.TotalAttempts = counts.Total
	stats.InProgress = counts.InProgress
	stats.Completed = counts.Completed
	stats.Abandoned = counts.Abandoned

	var avgs struct {
		AvgScore     float64
		AvgCorrect   float64
		AvgTimeSpent float64
	}
	if err := s.db.Table("attempts").
		Select(`
			COALESCE(AVG(score), 0) as avg_score,
			COALESCE(AVG(correct_answers), 0) as avg_correct,
			COALESCE(AVG(time_spent_sec), 0) as avg_time_spent
		`).
		Where("quiz_id = ? AND status <> 'in_progress'", quizID).
		Scan(&avgs).Error; err != nil {
		return nil, err
	}
	stats.AvgScore = avgs.AvgScore
	stats.AvgCorrectAnswers = avgs.AvgCorrect
	stats.AvgTimeSpentSec = avgs.AvgTimeSpent

	log.Printf("[AttemptService] Статистика викторины #%d: %d попыток, %d завершено, %d заброшено",
		quizID, stats.TotalAttempts, stats.Completed, stats.Abandoned)
	return stats, nil
}

// RunExpirySweeper запускает фоновую финализацию просроченных попыток.
// Таймауты применяются и без входящего SubmitAnswer: клиент, закрывший
// вкладку, не оставит попытку висеть в in_progress навсегда.
func (s *AttemptService) RunExpirySweeper(ctx context.Context) {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	log.Printf("[AttemptService] Сборщик просроченных попыток запущен (интервал %s)", s.config.SweepInterval)
	for {
		select {
		case <-ticker.C:
			if n := s.sweepExpiredAttempts(); n > 0 {
				log.Printf("[AttemptService] Сборщик финализировал %d просроченных попыток", n)
			}
		case <-ctx.Done():
			log.Println("[AttemptService] Сборщик просроченных попыток остановлен")
			return
		}
	}
}

// sweepExpiredAttempts финализирует один батч просроченных попыток
func (s *AttemptService) sweepExpiredAttempts() int {
	expired, err := s.attemptRepo.FindExpired(s.now(), s.config.SweepBatchSize)
	if err != nil {
		log.Printf("[AttemptService] Ошибка при поиске просроченных попыток: %v", err)
		return 0
	}

	finalized := 0
	for _, attempt := range expired {
		if _, err := s.FinalizeAttempt(attempt.ID, entity.FinalizeReasonTimeout); err != nil {
			// InvalidState - попытку успел закрыть конкурирующий вызов
			if !errors.Is(err, apperrors.ErrInvalidState) {
				log.Printf("[AttemptService] Ошибка финализации просроченной попытки %s: %v", attempt.ID, err)
			}
			continue
		}
		finalized++
	}
	return finalized
}
