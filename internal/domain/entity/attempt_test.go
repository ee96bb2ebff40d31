package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAttempt_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name   string
		status string
		target string
		want   bool
	}{
		{"in_progress -> completed", AttemptStatusInProgress, AttemptStatusCompleted, true},
		{"in_progress -> abandoned", AttemptStatusInProgress, AttemptStatusAbandoned, true},
		{"in_progress -> in_progress запрещено", AttemptStatusInProgress, AttemptStatusInProgress, false},
		{"completed терминален", AttemptStatusCompleted, AttemptStatusAbandoned, false},
		{"abandoned терминален", AttemptStatusAbandoned, AttemptStatusCompleted, false},
		{"completed -> completed запрещено", AttemptStatusCompleted, AttemptStatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Attempt{Status: tt.status}
			assert.Equal(t, tt.want, a.CanTransitionTo(tt.target))
		})
	}
}

func TestAttempt_IsTerminal(t *testing.T) {
	assert.False(t, (&Attempt{Status: AttemptStatusInProgress}).IsTerminal())
	assert.True(t, (&Attempt{Status: AttemptStatusCompleted}).IsTerminal())
	assert.True(t, (&Attempt{Status: AttemptStatusAbandoned}).IsTerminal())
}

func TestStatusForReason(t *testing.T) {
	tests := []struct {
		reason     string
		wantStatus string
		wantOK     bool
	}{
		{FinalizeReasonUserSubmit, AttemptStatusCompleted, true},
		{FinalizeReasonTimeout, AttemptStatusAbandoned, true},
		{FinalizeReasonAbandon, AttemptStatusAbandoned, true},
		{"unknown", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			status, ok := StatusForReason(tt.reason)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestAttempt_Deadline(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := &Attempt{StartTime: start, TimeLimitSec: 600}

	assert.Equal(t, start.Add(600*time.Second), a.Deadline())
}

func TestAttempt_IsExpiredAt(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := &Attempt{StartTime: start, TimeLimitSec: 600}

	assert.False(t, a.IsExpiredAt(start))
	assert.False(t, a.IsExpiredAt(start.Add(599*time.Second)))
	// Граница включительно
	assert.True(t, a.IsExpiredAt(start.Add(600*time.Second)))
	assert.True(t, a.IsExpiredAt(start.Add(601*time.Second)))
}
