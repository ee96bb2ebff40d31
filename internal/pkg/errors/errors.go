package errors

import "errors"

// Общие ошибки приложения
var (
	// ErrNotFound используется, когда запись или ресурс не найдены
	// (неизвестная викторина, попытка или вопрос).
	ErrNotFound = errors.New("record not found")

	// ErrInvalidState используется, когда операция недопустима для текущего
	// статуса попытки (например, повторная финализация уже завершённой попытки).
	ErrInvalidState = errors.New("operation invalid for current attempt state")

	// ErrExpired используется, когда лимит времени попытки исчерпан.
	// Побочный эффект (авто-финализация в abandoned) выполняет сервис, не вызывающий код.
	ErrExpired = errors.New("attempt time limit exceeded")

	// ErrStorageUnavailable используется при транзиентных сбоях хранилища.
	// Ретраи выполняет вызывающая сторона, движок их не делает.
	ErrStorageUnavailable = errors.New("storage temporarily unavailable")

	// ErrValidation используется для ошибок валидации входных данных.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized используется для ошибок авторизации (неверный токен, нет прав).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict используется для конфликтов состояния (например, гонка двух финализаций).
	ErrConflict = errors.New("resource state conflict")
)
