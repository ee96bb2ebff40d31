package attemptengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/attempt-api/internal/domain/entity"
)

func TestScore_FourQuestions(t *testing.T) {
	key := AnswerKey{
		1: "B",
		2: "A",
		3: "C",
		4: "D",
	}

	// Ответили на три вопроса из четырёх: два верно, один неверно.
	// Четвёртый вопрос пропущен вовсе.
	answers := []entity.AttemptAnswer{
		{QuestionID: 1, SelectedOption: "B", Position: 0},
		{QuestionID: 2, SelectedOption: "A", Position: 1},
		{QuestionID: 3, SelectedOption: "X", Position: 2},
	}

	scored, result := Score(answers, key, 4)

	require.Len(t, scored, 3)
	assert.True(t, scored[0].IsCorrect)
	assert.True(t, scored[1].IsCorrect)
	assert.False(t, scored[2].IsCorrect)

	assert.Equal(t, 2, result.CorrectAnswers)
	// 2/4 * 100 = 50
	assert.Equal(t, 50, result.Score)
}

func TestScore_EmptySelectionIsIncorrect(t *testing.T) {
	key := AnswerKey{1: "A"}

	// Пустой выбранный вариант никогда не считается правильным,
	// даже если в ключе вдруг окажется пустая строка
	answers := []entity.AttemptAnswer{
		{QuestionID: 1, SelectedOption: ""},
	}

	scored, result := Score(answers, key, 1)

	assert.False(t, scored[0].IsCorrect)
	assert.Equal(t, 0, result.CorrectAnswers)
	assert.Equal(t, 0, result.Score)
}

func TestScore_UnknownQuestionIsIncorrect(t *testing.T) {
	key := AnswerKey{1: "A"}

	answers := []entity.AttemptAnswer{
		{QuestionID: 99, SelectedOption: "A"},
	}

	scored, result := Score(answers, key, 1)

	assert.False(t, scored[0].IsCorrect)
	assert.Equal(t, 0, result.CorrectAnswers)
}

func TestScore_Rounding(t *testing.T) {
	tests := []struct {
		name      string
		correct   int
		total     int
		wantScore int
	}{
		{"1 из 3 - 33", 1, 3, 33},
		{"2 из 3 - 67", 2, 3, 67},
		{"1 из 8 - ровно половина округляется вверх", 1, 8, 13}, // 12.5 -> 13
		{"все верно", 5, 5, 100},
		{"ничего не отвечено", 0, 7, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := AnswerKey{}
			answers := make([]entity.AttemptAnswer, 0, tt.correct)
			for i := 0; i < tt.correct; i++ {
				qid := uint(i + 1)
				key[qid] = "A"
				answers = append(answers, entity.AttemptAnswer{QuestionID: qid, SelectedOption: "A"})
			}

			_, result := Score(answers, key, tt.total)
			assert.Equal(t, tt.correct, result.CorrectAnswers)
			assert.Equal(t, tt.wantScore, result.Score)
		})
	}
}

func TestScore_ZeroTotalQuestions(t *testing.T) {
	// Защитный случай: деления на ноль нет, счёт нулевой
	_, result := Score(nil, AnswerKey{}, 0)
	assert.Equal(t, 0, result.Score)
	assert.Equal(t, 0, result.CorrectAnswers)
}

func TestScore_DoesNotMutateInput(t *testing.T) {
	key := AnswerKey{1: "A"}
	answers := []entity.AttemptAnswer{
		{QuestionID: 1, SelectedOption: "A", IsCorrect: false},
	}

	scored, _ := Score(answers, key, 1)

	assert.True(t, scored[0].IsCorrect)
	// Исходный срез не тронут
	assert.False(t, answers[0].IsCorrect)
}

// Подсчёт детерминирован: повторный прогон тех же входов дает тот же результат
func TestScore_Determinism(t *testing.T) {
	key := AnswerKey{1: "A", 2: "B", 3: "C"}
	answers := []entity.AttemptAnswer{
		{QuestionID: 1, SelectedOption: "A"},
		{QuestionID: 2, SelectedOption: "X"},
		{QuestionID: 3, SelectedOption: "C"},
	}

	_, first := Score(answers, key, 3)
	for i := 0; i < 10; i++ {
		_, again := Score(answers, key, 3)
		assert.Equal(t, first, again)
	}
}
