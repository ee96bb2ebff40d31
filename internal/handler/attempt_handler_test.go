package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/yourusername/attempt-api/internal/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestGinContext создает *gin.Context для тестов с JSON body
func newTestGinContext(method, path string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()

	var req *http.Request
	if body != nil {
		bodyBytes, _ := json.Marshal(body)
		req, _ = http.NewRequest(method, path, bytes.NewReader(bodyBytes))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, path, nil)
	}

	c, _ := gin.CreateTestContext(w)
	c.Request = req
	return c, w
}

// parseJSONResponse парсит JSON ответ из *httptest.ResponseRecorder
func parseJSONResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err, "Response body should be valid JSON: %s", w.Body.String())
	return resp
}

// ============================================================================
// Request validation tests — не требуют реального AttemptService
// Handler возвращает 400 до вызова сервиса
// ============================================================================

func TestStartAttempt_ValidationErrors(t *testing.T) {
	handler := &AttemptHandler{} // nil service — OK для validation tests

	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
	}{
		{
			name:       "empty body",
			body:       nil,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing quiz_id",
			body:       map[string]interface{}{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "zero quiz_id",
			body:       map[string]interface{}{"quiz_id": 0},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestGinContext("POST", "/api/attempts", tt.body)
			c.Set("user_id", uint(7))
			handler.StartAttempt(c)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestSubmitAnswer_ValidationErrors(t *testing.T) {
	handler := &AttemptHandler{}

	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
	}{
		{
			name:       "empty body",
			body:       nil,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing question_id",
			body:       map[string]interface{}{"selected_option": "B"},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestGinContext("POST", "/api/attempts/x/answers", tt.body)
			c.Set("attemptID", "11111111-1111-1111-1111-111111111111")
			handler.SubmitAnswer(c)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestFinalizeAttempt_ValidationErrors(t *testing.T) {
	handler := &AttemptHandler{}

	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
	}{
		{
			name:       "empty body",
			body:       nil,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing reason",
			body:       map[string]interface{}{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown reason",
			body:       map[string]interface{}{"reason": "because"},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestGinContext("POST", "/api/attempts/x/finalize", tt.body)
			c.Set("attemptID", "11111111-1111-1111-1111-111111111111")
			handler.FinalizeAttempt(c)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

// ============================================================================
// Error mapping tests
// ============================================================================

func TestHandleAttemptError(t *testing.T) {
	handler := &AttemptHandler{}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{
			name:       "not found -> 404",
			err:        fmt.Errorf("attempt x: %w", apperrors.ErrNotFound),
			wantStatus: http.StatusNotFound,
			wantType:   "not_found",
		},
		{
			name:       "invalid state -> 409",
			err:        fmt.Errorf("attempt x is completed: %w", apperrors.ErrInvalidState),
			wantStatus: http.StatusConflict,
			wantType:   "invalid_state",
		},
		{
			name:       "expired -> 410",
			err:        fmt.Errorf("attempt x: %w", apperrors.ErrExpired),
			wantStatus: http.StatusGone,
			wantType:   "attempt_expired",
		},
		{
			name:       "validation -> 400",
			err:        fmt.Errorf("bad option: %w", apperrors.ErrValidation),
			wantStatus: http.StatusBadRequest,
			wantType:   "validation",
		},
		{
			name:       "storage unavailable -> 503",
			err:        fmt.Errorf("timeout: %w", apperrors.ErrStorageUnavailable),
			wantStatus: http.StatusServiceUnavailable,
			wantType:   "storage_unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestGinContext("GET", "/api/attempts/x", nil)
			handler.handleAttemptError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := parseJSONResponse(t, w)
			assert.Equal(t, tt.wantType, resp["error_type"])
		})
	}
}

func TestHandleAttemptError_StorageIsRetryable(t *testing.T) {
	handler := &AttemptHandler{}
	c, w := newTestGinContext("GET", "/api/attempts/x", nil)

	handler.handleAttemptError(c, fmt.Errorf("timeout: %w", apperrors.ErrStorageUnavailable))

	resp := parseJSONResponse(t, w)
	assert.Equal(t, true, resp["retryable"])
}
