package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/attempt-api/internal/domain/entity"
	"github.com/yourusername/attempt-api/internal/domain/repository"
	apperrors "github.com/yourusername/attempt-api/internal/pkg/errors"
)

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newStoredAttempt(t *testing.T, repo *AttemptRepo, id string) *entity.Attempt {
	t.Helper()
	attempt := &entity.Attempt{
		ID:             id,
		UserID:         7,
		QuizID:         42,
		StartTime:      testStart,
		TimeLimitSec:   600,
		TotalQuestions: 4,
		Status:         entity.AttemptStatusInProgress,
		CreatedAt:      testStart,
	}
	require.NoError(t, repo.Create(attempt))
	return attempt
}

func completedFields(answers []entity.AttemptAnswer) repository.FinalizeFields {
	correct := 0
	correctness := make(map[uint]bool, len(answers))
	for _, a := range answers {
		isCorrect := a.SelectedOption == "B"
		correctness[a.QuestionID] = isCorrect
		if isCorrect {
			correct++
		}
	}
	return repository.FinalizeFields{
		Status:            entity.AttemptStatusCompleted,
		EndTime:           testStart.Add(2 * time.Minute),
		TimeSpentSec:      120,
		CorrectAnswers:    correct,
		Score:             50,
		AnswerCorrectness: correctness,
	}
}

// ================================================================
// UpsertAnswer
// ================================================================

func TestUpsertAnswer_LastWriteWinsKeepsPosition(t *testing.T) {
	repo := NewAttemptRepo()
	newStoredAttempt(t, repo, "attempt-1")

	require.NoError(t, repo.UpsertAnswer("attempt-1", 1, "A"))
	require.NoError(t, repo.UpsertAnswer("attempt-1", 2, "C"))
	require.NoError(t, repo.UpsertAnswer("attempt-1", 3, "D"))

	// Повторный ответ на вопрос 1 перезаписывает вариант,
	// но не двигает его с нулевой позиции
	require.NoError(t, repo.UpsertAnswer("attempt-1", 1, "B"))

	attempt, err := repo.GetByID("attempt-1")
	require.NoError(t, err)
	require.Len(t, attempt.Answers, 3)

	assert.Equal(t, uint(1), attempt.Answers[0].QuestionID)
	assert.Equal(t, "B", attempt.Answers[0].SelectedOption)
	assert.Equal(t, 0, attempt.Answers[0].Position)
	assert.Equal(t, uint(2), attempt.Answers[1].QuestionID)
	assert.Equal(t, 1, attempt.Answers[1].Position)
	assert.Equal(t, uint(3), attempt.Answers[2].QuestionID)
	assert.Equal(t, 2, attempt.Answers[2].Position)
}

func TestUpsertAnswer_NewQuestionAppends(t *testing.T) {
	repo := NewAttemptRepo()
	newStoredAttempt(t, repo, "attempt-1")

	require.NoError(t, repo.UpsertAnswer("attempt-1", 5, "A"))
	require.NoError(t, repo.UpsertAnswer("attempt-1", 5, "B"))
	require.NoError(t, repo.UpsertAnswer("attempt-1", 9, "C"))

	attempt, err := repo.GetByID("attempt-1")
	require.NoError(t, err)
	require.Len(t, attempt.Answers, 2)
	assert.Equal(t, 1, attempt.Answers[1].Position)
	assert.Equal(t, uint(9), attempt.Answers[1].QuestionID)
}

func TestUpsertAnswer_UnknownAttempt(t *testing.T) {
	repo := NewAttemptRepo()

	err := repo.UpsertAnswer("missing", 1, "A")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUpsertAnswer_TerminalAttemptRejected(t *testing.T) {
	repo := NewAttemptRepo()
	newStoredAttempt(t, repo, "attempt-1")
	require.NoError(t, repo.UpsertAnswer("attempt-1", 1, "B"))

	_, err := repo.Finalize("attempt-1", func(a *entity.Attempt) (repository.FinalizeFields, error) {
		return completedFields(a.Answers), nil
	})
	require.NoError(t, err)

	// После финализации ответы неизменяемы: новый ответ отбрасывается
	err = repo.UpsertAnswer("attempt-1", 2, "A")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	attempt, err := repo.GetByID("attempt-1")
	require.NoError(t, err)
	assert.Len(t, attempt.Answers, 1)
	assert.Equal(t, "B", attempt.Answers[0].SelectedOption)
}

// ================================================================
// Finalize
// ================================================================

func TestFinalize_ComputeSeesSubmittedAnswers(t *testing.T) {
	repo := NewAttemptRepo()
	newStoredAttempt(t, repo, "attempt-1")
	require.NoError(t, repo.UpsertAnswer("attempt-1", 1, "B"))
	require.NoError(t, repo.UpsertAnswer("attempt-1", 2, "A"))

	var seen []entity.AttemptAnswer
	finalized, err := repo.Finalize("attempt-1", func(a *entity.Attempt) (repository.FinalizeFields, error) {
		seen = a.Answers
		return completedFields(a.Answers), nil
	})
	require.NoError(t, err)

	// Подсчёт работает над ответами, прочитанными под той же блокировкой
	require.Len(t, seen, 2)
	assert.Equal(t, entity.AttemptStatusCompleted, finalized.Status)
	assert.Equal(t, 50, finalized.Score)
	require.NotNil(t, finalized.EndTime)
	assert.Equal(t, testStart.Add(2*time.Minute), *finalized.EndTime)

	require.Len(t, finalized.Answers, 2)
	assert.True(t, finalized.Answers[0].IsCorrect)
	assert.False(t, finalized.Answers[1].IsCorrect)
}

func TestFinalize_SecondCallRejected(t *testing.T) {
	repo := NewAttemptRepo()
	newStoredAttempt(t, repo, "attempt-1")

	_, err := repo.Finalize("attempt-1", func(a *entity.Attempt) (repository.FinalizeFields, error) {
		return completedFields(a.Answers), nil
	})
	require.NoError(t, err)

	calls := 0
	_, err = repo.Finalize("attempt-1", func(a *entity.Attempt) (repository.FinalizeFields, error) {
		calls++
		return completedFields(a.Answers), nil
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	assert.Zero(t, calls, "compute не должен вызываться для терминальной попытки")
}

func TestFinalize_ComputeErrorLeavesAttemptInProgress(t *testing.T) {
	repo := NewAttemptRepo()
	newStoredAttempt(t, repo, "attempt-1")

	_, err := repo.Finalize("attempt-1", func(a *entity.Attempt) (repository.FinalizeFields, error) {
		return repository.FinalizeFields{}, apperrors.ErrStorageUnavailable
	})
	require.ErrorIs(t, err, apperrors.ErrStorageUnavailable)

	attempt, err := repo.GetByID("attempt-1")
	require.NoError(t, err)
	assert.Equal(t, entity.AttemptStatusInProgress, attempt.Status)
	assert.Nil(t, attempt.EndTime)
}

func TestFinalize_ConcurrentSubmitNeverSilentlyDropped(t *testing.T) {
	repo := NewAttemptRepo()
	newStoredAttempt(t, repo, "attempt-1")
	require.NoError(t, repo.UpsertAnswer("attempt-1", 1, "B"))

	// Сабмит стартует, пока финализация держит блокировку попытки.
	// Допустимы ровно два исхода: ответ записан до финализации и попал
	// в подсчёт, либо отвергнут с ErrInvalidState. Тихая потеря
	// записанного ответа - нарушение контракта хранилища.
	computeEntered := make(chan struct{})
	var wg sync.WaitGroup
	var submitErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-computeEntered
		submitErr = repo.UpsertAnswer("attempt-1", 2, "A")
	}()

	var scoredCount int
	finalized, err := repo.Finalize("attempt-1", func(a *entity.Attempt) (repository.FinalizeFields, error) {
		close(computeEntered)
		time.Sleep(10 * time.Millisecond)
		scoredCount = len(a.Answers)
		return completedFields(a.Answers), nil
	})
	require.NoError(t, err)
	wg.Wait()

	attempt, err := repo.GetByID("attempt-1")
	require.NoError(t, err)
	if submitErr != nil {
		assert.ErrorIs(t, submitErr, apperrors.ErrInvalidState)
		assert.Len(t, attempt.Answers, scoredCount,
			"отвергнутый ответ не должен появиться в терминальной попытке")
	} else {
		assert.Len(t, attempt.Answers, scoredCount,
			"записанный ответ должен попасть в подсчёт")
	}
	assert.Equal(t, entity.AttemptStatusCompleted, finalized.Status)
}

// ================================================================
// Listings
// ================================================================

func TestListAllByQuiz_ExcludesInProgress(t *testing.T) {
	repo := NewAttemptRepo()
	newStoredAttempt(t, repo, "attempt-done")
	newStoredAttempt(t, repo, "attempt-open")

	_, err := repo.Finalize("attempt-done", func(a *entity.Attempt) (repository.FinalizeFields, error) {
		return completedFields(a.Answers), nil
	})
	require.NoError(t, err)

	attempts, err := repo.ListAllByQuiz(42)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, "attempt-done", attempts[0].ID)
	assert.Equal(t, entity.AttemptStatusCompleted, attempts[0].Status)
}

func TestFindExpired_ReturnsOnlyOverdueInProgress(t *testing.T) {
	repo := NewAttemptRepo()
	newStoredAttempt(t, repo, "attempt-1")

	attempts, err := repo.FindExpired(testStart.Add(5*time.Minute), 100)
	require.NoError(t, err)
	assert.Empty(t, attempts)

	attempts, err = repo.FindExpired(testStart.Add(10*time.Minute), 100)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, "attempt-1", attempts[0].ID)
}
