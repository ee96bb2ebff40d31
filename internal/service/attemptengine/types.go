package attemptengine

import (
	"time"

	"github.com/yourusername/attempt-api/internal/domain/repository"
)

// Constants for default values
const (
	DefaultTimeLimitSec = 600
	DefaultSweepBatch   = 100
)

// Config содержит настройки движка попыток
type Config struct {
	// DefaultTimeLimitSec - лимит времени попытки, если у викторины он не задан
	DefaultTimeLimitSec int

	// MaxOptionLength - максимальная длина выбранного варианта ответа
	MaxOptionLength int

	// SweepInterval - интервал фоновой проверки просроченных попыток
	SweepInterval time.Duration

	// SweepBatchSize - сколько просроченных попыток обрабатывать за проход
	SweepBatchSize int

	// ExpiredMarkerTTL - время жизни маркера просроченной попытки в кеше
	ExpiredMarkerTTL time.Duration

	// SummaryCacheTTL - время жизни закешированной сводки финализированной попытки
	SummaryCacheTTL time.Duration
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		DefaultTimeLimitSec: DefaultTimeLimitSec,
		MaxOptionLength:     255,
		SweepInterval:       15 * time.Second,
		SweepBatchSize:      DefaultSweepBatch,
		ExpiredMarkerTTL:    24 * time.Hour,
		SummaryCacheTTL:     1 * time.Hour,
	}
}

// Dependencies содержит зависимости движка попыток
type Dependencies struct {
	AttemptRepo repository.AttemptRepository
	QuizRepo    repository.QuizBankRepository
	CacheRepo   repository.CacheRepository
	Config      *Config
}
