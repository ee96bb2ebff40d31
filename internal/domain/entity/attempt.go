package entity

import (
	"time"
)

// Константы статусов попытки
const (
	AttemptStatusInProgress = "in_progress"
	AttemptStatusCompleted  = "completed"
	AttemptStatusAbandoned  = "abandoned"
)

// Причины финализации попытки
const (
	FinalizeReasonUserSubmit = "user-submit"
	FinalizeReasonTimeout    = "timeout"
	FinalizeReasonAbandon    = "abandon"
)

// Attempt представляет одну попытку прохождения викторины пользователем.
// TotalQuestions и TimeLimitSec - снапшоты на момент старта: последующее
// редактирование викторины на попытку не влияет.
type Attempt struct {
	ID             string          `gorm:"primaryKey;size:36" json:"id"`
	UserID         uint            `gorm:"not null;index" json:"user_id"`
	QuizID         uint            `gorm:"not null;index" json:"quiz_id"`
	StartTime      time.Time       `gorm:"not null" json:"start_time"`
	EndTime        *time.Time      `json:"end_time,omitempty"`
	TimeSpentSec   int             `gorm:"not null;default:0" json:"time_spent_sec"`
	TimeLimitSec   int             `gorm:"not null" json:"time_limit_sec"`
	TotalQuestions int             `gorm:"not null" json:"total_questions"`
	CorrectAnswers int             `gorm:"not null;default:0" json:"correct_answers"`
	Score          int             `gorm:"not null;default:0" json:"score"`
	Status         string          `gorm:"size:20;not null;default:'in_progress';index" json:"status"`
	Answers        []AttemptAnswer `gorm:"foreignKey:AttemptID" json:"answers,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Attempt) TableName() string {
	return "attempts"
}

// IsInProgress проверяет, активна ли попытка
func (a *Attempt) IsInProgress() bool {
	return a.Status == AttemptStatusInProgress
}

// IsTerminal проверяет, находится ли попытка в терминальном статусе.
// Терминальные попытки неизменяемы.
func (a *Attempt) IsTerminal() bool {
	return a.Status == AttemptStatusCompleted || a.Status == AttemptStatusAbandoned
}

// CanTransitionTo проверяет допустимость перехода статуса.
// Разрешены только переходы in_progress -> {completed, abandoned}.
func (a *Attempt) CanTransitionTo(status string) bool {
	if !a.IsInProgress() {
		return false
	}
	return status == AttemptStatusCompleted || status == AttemptStatusAbandoned
}

// Deadline возвращает момент, после которого попытка считается просроченной
func (a *Attempt) Deadline() time.Time {
	return a.StartTime.Add(time.Duration(a.TimeLimitSec) * time.Second)
}

// IsExpiredAt проверяет, исчерпан ли лимит времени на момент now
func (a *Attempt) IsExpiredAt(now time.Time) bool {
	return !now.Before(a.Deadline())
}

// StatusForReason возвращает терминальный статус для причины финализации.
// user-submit -> completed, timeout и abandon -> abandoned.
func StatusForReason(reason string) (string, bool) {
	switch reason {
	case FinalizeReasonUserSubmit:
		return AttemptStatusCompleted, true
	case FinalizeReasonTimeout, FinalizeReasonAbandon:
		return AttemptStatusAbandoned, true
	default:
		return "", false
	}
}

// AttemptAnswer представляет зафиксированный ответ в рамках попытки.
// Пара (attempt_id, question_id) уникальна: повторная отправка ответа
// на тот же вопрос перезаписывает выбранный вариант (last write wins),
// сохраняя исходную позицию в порядке отправки.
type AttemptAnswer struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	AttemptID      string    `gorm:"size:36;not null;index;uniqueIndex:idx_attempt_question" json:"attempt_id"`
	QuestionID     uint      `gorm:"not null;uniqueIndex:idx_attempt_question" json:"question_id"`
	SelectedOption string    `gorm:"size:255;not null;default:''" json:"selected_option"`
	IsCorrect      bool      `gorm:"not null;default:false" json:"is_correct"`
	Position       int       `gorm:"not null;default:0" json:"position"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (AttemptAnswer) TableName() string {
	return "attempt_answers"
}
