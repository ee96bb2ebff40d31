package handler

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	apperrors "github.com/yourusername/attempt-api/internal/pkg/errors"
	"github.com/yourusername/attempt-api/internal/service"
)

const (
	wsWriteWait    = 5 * time.Second
	wsTickInterval = 1 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Маршрут отдает только обратный отсчет по известному attemptID,
	// поэтому Origin не проверяется
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler отдает клиенту обратный отсчет оставшегося времени попытки
type WSHandler struct {
	attemptService *service.AttemptService
}

// NewWSHandler создает новый обработчик WebSocket
func NewWSHandler(attemptService *service.AttemptService) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
	}
}

// remainingEvent - событие обратного отсчета
type remainingEvent struct {
	Type string `json:"type"`
	Data struct {
		AttemptID    string `json:"attempt_id"`
		RemainingSec int64  `json:"remaining_sec"`
		Expired      bool   `json:"expired"`
	} `json:"data"`
}

// StreamRemainingTime держит соединение и раз в секунду отправляет
// оставшееся время попытки. Закрывает соединение, когда время вышло
// или попытка финализирована.
func (h *WSHandler) StreamRemainingTime(c *gin.Context) {
	attemptID := c.MustGet("attemptID").(string)

	// Проверяем существование попытки ДО апгрейда, чтобы клиент
	// получил нормальный HTTP-статус вместо обрыва соединения
	if _, err := h.attemptService.GetAttempt(attemptID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "attempt not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WSHandler] Ошибка апгрейда соединения для попытки %s: %v", attemptID, err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(wsTickInterval)
	defer ticker.Stop()

	for range ticker.C {
		remaining, err := h.attemptService.GetRemainingTime(attemptID)
		if err != nil {
			log.Printf("[WSHandler] Ошибка получения оставшегося времени попытки %s: %v", attemptID, err)
			return
		}

		var event remainingEvent
		event.Type = "attempt:remaining"
		event.Data.AttemptID = attemptID
		event.Data.RemainingSec = int64(remaining / time.Second)
		event.Data.Expired = remaining == 0

		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
			return
		}
		if err := conn.WriteJSON(event); err != nil {
			// Клиент отключился - штатное завершение потока
			return
		}

		if remaining == 0 {
			return
		}
	}
}
