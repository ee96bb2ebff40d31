package attemptengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var timerStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestElapsed(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Duration
	}{
		{
			name: "в момент старта",
			now:  timerStart,
			want: 0,
		},
		{
			name: "через 30 секунд",
			now:  timerStart.Add(30 * time.Second),
			want: 30 * time.Second,
		},
		{
			name: "часы ушли назад - обрезается до нуля",
			now:  timerStart.Add(-5 * time.Second),
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Elapsed(timerStart, tt.now))
		})
	}
}

func TestRemaining(t *testing.T) {
	limit := 600 * time.Second

	tests := []struct {
		name string
		now  time.Time
		want time.Duration
	}{
		{
			name: "в момент старта - полный лимит",
			now:  timerStart,
			want: 600 * time.Second,
		},
		{
			name: "в середине попытки",
			now:  timerStart.Add(599 * time.Second),
			want: 1 * time.Second,
		},
		{
			name: "ровно на дедлайне",
			now:  timerStart.Add(600 * time.Second),
			want: 0,
		},
		{
			name: "после дедлайна - не уходит в минус",
			now:  timerStart.Add(700 * time.Second),
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Remaining(timerStart, limit, tt.now))
		})
	}
}

func TestIsExpired(t *testing.T) {
	limit := 600 * time.Second

	assert.False(t, IsExpired(timerStart, limit, timerStart))
	assert.False(t, IsExpired(timerStart, limit, timerStart.Add(599*time.Second)))

	// Граница включительно: ровно в момент дедлайна попытка уже просрочена
	assert.True(t, IsExpired(timerStart, limit, timerStart.Add(600*time.Second)))
	assert.True(t, IsExpired(timerStart, limit, timerStart.Add(601*time.Second)))
}

// Трекер чистый: повторный вызов с теми же аргументами дает тот же результат
func TestTimerDeterminism(t *testing.T) {
	now := timerStart.Add(42 * time.Second)
	limit := 600 * time.Second

	first := Remaining(timerStart, limit, now)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Remaining(timerStart, limit, now))
	}
}
