package handler

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"github.com/yourusername/attempt-api/internal/domain/entity"
	"github.com/yourusername/attempt-api/internal/handler/dto"
	apperrors "github.com/yourusername/attempt-api/internal/pkg/errors"
	"github.com/yourusername/attempt-api/internal/service"
)

// AttemptHandler обрабатывает запросы, связанные с попытками
type AttemptHandler struct {
	attemptService *service.AttemptService
}

// NewAttemptHandler создает новый обработчик попыток
func NewAttemptHandler(attemptService *service.AttemptService) *AttemptHandler {
	return &AttemptHandler{
		attemptService: attemptService,
	}
}

// StartAttemptRequest представляет запрос на старт попытки
type StartAttemptRequest struct {
	QuizID uint `json:"quiz_id" binding:"required"`
}

// StartAttempt обрабатывает запрос на старт попытки
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	var req StartAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.MustGet("user_id").(uint)

	attempt, err := h.attemptService.StartAttempt(userID, req.QuizID)
	if err != nil {
		h.handleAttemptError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewAttemptResponse(attempt, false))
}

// SubmitAnswerRequest представляет запрос на отправку ответа
type SubmitAnswerRequest struct {
	QuestionID uint `json:"question_id" binding:"required"`
	// SelectedOption может быть пустым: пропущенный вопрос - валидный ответ
	SelectedOption string `json:"selected_option" binding:"omitempty,max=255"`
}

// SubmitAnswer обрабатывает отправку ответа в рамках попытки
func (h *AttemptHandler) SubmitAnswer(c *gin.Context) {
	attemptID := c.MustGet("attemptID").(string)

	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.attemptService.SubmitAnswer(attemptID, req.QuestionID, req.SelectedOption); err != nil {
		h.handleAttemptError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

// FinalizeAttemptRequest представляет запрос на финализацию попытки
type FinalizeAttemptRequest struct {
	Reason string `json:"reason" binding:"required,oneof=user-submit timeout abandon"`
}

// FinalizeAttempt обрабатывает финализацию попытки
func (h *AttemptHandler) FinalizeAttempt(c *gin.Context) {
	attemptID := c.MustGet("attemptID").(string)

	var req FinalizeAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	attempt, err := h.attemptService.FinalizeAttempt(attemptID, req.Reason)
	if err != nil {
		h.handleAttemptError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewAttemptResponse(attempt, true))
}

// GetRemainingTime возвращает оставшееся время попытки
func (h *AttemptHandler) GetRemainingTime(c *gin.Context) {
	attemptID := c.MustGet("attemptID").(string)

	remaining, err := h.attemptService.GetRemainingTime(attemptID)
	if err != nil {
		h.handleAttemptError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.RemainingTimeResponse{
		AttemptID:    attemptID,
		RemainingSec: int64(remaining / time.Second),
		Expired:      remaining == 0,
	})
}

// GetAttempt возвращает попытку с ответами
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	attemptID := c.MustGet("attemptID").(string)

	attempt, err := h.attemptService.GetAttempt(attemptID)
	if err != nil {
		h.handleAttemptError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewAttemptResponse(attempt, true))
}

// GetAttemptSummary возвращает сводку финализированной попытки
func (h *AttemptHandler) GetAttemptSummary(c *gin.Context) {
	attemptID := c.MustGet("attemptID").(string)

	summary, err := h.attemptService.GetAttemptSummary(attemptID)
	if err != nil {
		h.handleAttemptError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// GetMyAttempts возвращает попытки текущего пользователя
func (h *AttemptHandler) GetMyAttempts(c *gin.Context) {
	userID := c.MustGet("user_id").(uint)
	page, perPage := paginationParams(c)

	attempts, total, err := h.attemptService.GetUserAttempts(userID, page, perPage)
	if err != nil {
		h.handleAttemptError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewPaginatedAttemptsResponse(attempts, total, page, perPage))
}

// GetQuizAttempts возвращает попытки по викторине (админ)
func (h *AttemptHandler) GetQuizAttempts(c *gin.Context) {
	quizID := c.MustGet("quizID").(uint)
	page, perPage := paginationParams(c)

	attempts, total, err := h.attemptService.GetQuizAttempts(quizID, page, perPage)
	if err != nil {
		h.handleAttemptError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewPaginatedAttemptsResponse(attempts, total, page, perPage))
}

// GetQuizAttemptStats возвращает агрегированную статистику попыток викторины (админ)
func (h *AttemptHandler) GetQuizAttemptStats(c *gin.Context) {
	quizID := c.MustGet("quizID").(uint)

	stats, err := h.attemptService.GetQuizAttemptStatistics(quizID)
	if err != nil {
		h.handleAttemptError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ExportQuizAttempts экспортирует финализированные попытки викторины в CSV или XLSX (админ)
func (h *AttemptHandler) ExportQuizAttempts(c *gin.Context) {
	quizID := c.MustGet("quizID").(uint)
	format := c.DefaultQuery("format", "csv")

	// Полная выборка финализированных попыток, без пагинации
	attempts, err := h.attemptService.GetQuizAttemptsAll(quizID)
	if err != nil {
		h.handleAttemptError(c, err)
		return
	}

	filename := fmt.Sprintf("quiz_%d_attempts_%s", quizID, time.Now().Format("2006-01-02"))

	switch format {
	case "xlsx":
		h.exportXLSX(c, attempts, filename)
	default:
		h.exportCSV(c, attempts, filename)
	}
}

var exportHeader = []string{
	"attempt_id", "user_id", "status", "score", "correct_answers",
	"total_questions", "time_spent_sec", "start_time", "end_time",
}

func exportRow(a *entity.Attempt) []string {
	endTime := ""
	if a.EndTime != nil {
		endTime = a.EndTime.Format(time.RFC3339)
	}
	return []string{
		a.ID,
		strconv.FormatUint(uint64(a.UserID), 10),
		a.Status,
		strconv.Itoa(a.Score),
		strconv.Itoa(a.CorrectAnswers),
		strconv.Itoa(a.TotalQuestions),
		strconv.Itoa(a.TimeSpentSec),
		a.StartTime.Format(time.RFC3339),
		endTime,
	}
}

func (h *AttemptHandler) exportCSV(c *gin.Context, attempts []entity.Attempt, filename string) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", filename))

	w := csv.NewWriter(c.Writer)
	defer w.Flush()

	if err := w.Write(exportHeader); err != nil {
		log.Printf("[AttemptHandler] Ошибка записи заголовка CSV: %v", err)
		return
	}
	for i := range attempts {
		if err := w.Write(exportRow(&attempts[i])); err != nil {
			log.Printf("[AttemptHandler] Ошибка записи строки CSV: %v", err)
			return
		}
	}
}

func (h *AttemptHandler) exportXLSX(c *gin.Context, attempts []entity.Attempt, filename string) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("[AttemptHandler] Ошибка закрытия файла XLSX: %v", err)
		}
	}()

	sheet := "Attempts"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build export file"})
		return
	}

	for col, title := range exportHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build export file"})
			return
		}
	}
	for row := range attempts {
		for col, value := range exportRow(&attempts[row]) {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build export file"})
				return
			}
		}
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.xlsx", filename))

	if err := f.Write(c.Writer); err != nil {
		log.Printf("[AttemptHandler] Ошибка записи XLSX: %v", err)
	}
}

// paginationParams извлекает параметры пагинации из query-строки
func paginationParams(c *gin.Context) (page, perPage int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "10"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	return page, perPage
}

// handleAttemptError отображает доменные ошибки на HTTP-статусы
func (h *AttemptHandler) handleAttemptError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "error_type": "not_found"})
	case errors.Is(err, apperrors.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "error_type": "invalid_state"})
	case errors.Is(err, apperrors.ErrExpired):
		c.JSON(http.StatusGone, gin.H{"error": err.Error(), "error_type": "attempt_expired"})
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "validation"})
	case errors.Is(err, apperrors.ErrStorageUnavailable):
		// Транзиентно: клиент может повторить с backoff
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "error_type": "storage_unavailable", "retryable": true})
	default:
		log.Printf("[AttemptHandler] Внутренняя ошибка: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
