package attemptengine

import (
	"time"
)

// Трекер времени попытки. Все функции чистые: текущий момент передаётся
// явным аргументом now, глобальные часы здесь не читаются.

// Elapsed возвращает время, прошедшее с начала попытки.
// Отрицательная разница (рассинхронизация часов) обрезается до нуля.
func Elapsed(startTime, now time.Time) time.Duration {
	d := now.Sub(startTime)
	if d < 0 {
		return 0
	}
	return d
}

// Remaining возвращает оставшееся время попытки, но не меньше нуля
func Remaining(startTime time.Time, timeLimit time.Duration, now time.Time) time.Duration {
	remaining := timeLimit - Elapsed(startTime, now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsExpired проверяет, исчерпан ли лимит времени на момент now.
// Граница включительно: в момент t = startTime + timeLimit попытка уже просрочена.
func IsExpired(startTime time.Time, timeLimit time.Duration, now time.Time) bool {
	return Remaining(startTime, timeLimit, now) == 0
}
