package attemptengine

import (
	"math"

	"github.com/yourusername/attempt-api/internal/domain/entity"
)

// AnswerKey - карта правильных вариантов по question_id.
// Поставляется банком вопросов.
type AnswerKey map[uint]string

// ScoreResult - агрегат подсчёта очков попытки
type ScoreResult struct {
	CorrectAnswers int
	Score          int
}

// Score подсчитывает правильность каждого ответа и итоговый счёт попытки.
// Функция чистая и детерминированная: одинаковые входы всегда дают
// одинаковый результат, внешнее состояние и часы не читаются.
//
// Политика нормализации: score = round(correct / total * 100),
// половины округляются вверх. Пропущенные вопросы считаются неправильными
// и остаются в знаменателе. totalQuestions = 0 отсекается выше,
// при старте попытки; здесь защитно возвращается нулевой результат.
func Score(answers []entity.AttemptAnswer, key AnswerKey, totalQuestions int) ([]entity.AttemptAnswer, ScoreResult) {
	scored := make([]entity.AttemptAnswer, len(answers))
	copy(scored, answers)

	correct := 0
	for i := range scored {
		correctOption, known := key[scored[i].QuestionID]
		isCorrect := known && scored[i].SelectedOption != "" && scored[i].SelectedOption == correctOption
		scored[i].IsCorrect = isCorrect
		if isCorrect {
			correct++
		}
	}

	result := ScoreResult{CorrectAnswers: correct}
	if totalQuestions > 0 {
		result.Score = int(math.Round(float64(correct) / float64(totalQuestions) * 100))
	}
	return scored, result
}
