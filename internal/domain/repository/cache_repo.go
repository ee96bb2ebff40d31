package repository

import (
	"time"
)

// CacheRepository определяет методы для работы с кешем.
// Движку попыток нужны маркеры просрочки и закешированные сводки,
// поэтому контракт сведён к этим операциям.
type CacheRepository interface {
	Set(key string, value interface{}, expiration time.Duration) error
	SetJSON(key string, value interface{}, expiration time.Duration) error
	GetJSON(key string, dest interface{}) error
	Exists(key string) (bool, error)
}
