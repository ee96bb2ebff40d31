package dto

import (
	"time"

	"github.com/yourusername/attempt-api/internal/domain/entity"
)

// AnswerResponse представляет зафиксированный ответ в формате для клиента
type AnswerResponse struct {
	QuestionID     uint   `json:"question_id"`
	SelectedOption string `json:"selected_option"`
	IsCorrect      *bool  `json:"is_correct,omitempty"` // Только после финализации
	Position       int    `json:"position"`
}

// AttemptResponse представляет попытку в формате для клиента
type AttemptResponse struct {
	ID             string           `json:"id"`
	UserID         uint             `json:"user_id"`
	QuizID         uint             `json:"quiz_id"`
	Status         string           `json:"status"`
	StartTime      time.Time        `json:"start_time"`
	EndTime        *time.Time       `json:"end_time,omitempty"`
	TimeLimitSec   int              `json:"time_limit_sec"`
	TimeSpentSec   int              `json:"time_spent_sec"`
	TotalQuestions int              `json:"total_questions"`
	CorrectAnswers int              `json:"correct_answers"`
	Score          int              `json:"score"`
	Answers        []AnswerResponse `json:"answers,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// PaginatedAttemptsResponse представляет пагинированный список попыток
type PaginatedAttemptsResponse struct {
	Attempts []*AttemptResponse `json:"attempts"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PerPage  int                `json:"per_page"`
}

// RemainingTimeResponse представляет оставшееся время попытки
type RemainingTimeResponse struct {
	AttemptID    string `json:"attempt_id"`
	RemainingSec int64  `json:"remaining_sec"`
	Expired      bool   `json:"expired"`
}

// NewAnswerResponse создает DTO для ответа.
// Правильность раскрывается только для терминальных попыток:
// до финализации is_correct не существует с точки зрения клиента.
func NewAnswerResponse(a *entity.AttemptAnswer, revealCorrectness bool) AnswerResponse {
	resp := AnswerResponse{
		QuestionID:     a.QuestionID,
		SelectedOption: a.SelectedOption,
		Position:       a.Position,
	}
	if revealCorrectness {
		isCorrect := a.IsCorrect
		resp.IsCorrect = &isCorrect
	}
	return resp
}

// NewAttemptResponse создает DTO для попытки
func NewAttemptResponse(attempt *entity.Attempt, includeAnswers bool) *AttemptResponse {
	resp := &AttemptResponse{
		ID:             attempt.ID,
		UserID:         attempt.UserID,
		QuizID:         attempt.QuizID,
		Status:         attempt.Status,
		StartTime:      attempt.StartTime,
		EndTime:        attempt.EndTime,
		TimeLimitSec:   attempt.TimeLimitSec,
		TimeSpentSec:   attempt.TimeSpentSec,
		TotalQuestions: attempt.TotalQuestions,
		CorrectAnswers: attempt.CorrectAnswers,
		Score:          attempt.Score,
		CreatedAt:      attempt.CreatedAt,
	}
	if includeAnswers {
		reveal := attempt.IsTerminal()
		resp.Answers = make([]AnswerResponse, 0, len(attempt.Answers))
		for i := range attempt.Answers {
			resp.Answers = append(resp.Answers, NewAnswerResponse(&attempt.Answers[i], reveal))
		}
	}
	return resp
}

// NewPaginatedAttemptsResponse создает DTO для пагинированного списка попыток
func NewPaginatedAttemptsResponse(attempts []entity.Attempt, total int64, page, perPage int) *PaginatedAttemptsResponse {
	items := make([]*AttemptResponse, 0, len(attempts))
	for i := range attempts {
		items = append(items, NewAttemptResponse(&attempts[i], false))
	}
	return &PaginatedAttemptsResponse{
		Attempts: items,
		Total:    total,
		Page:     page,
		PerPage:  perPage,
	}
}
