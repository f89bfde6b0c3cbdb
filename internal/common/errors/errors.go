package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode представляет код ошибки
type ErrorCode string

const (
	// Общие ошибки
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"

	// Ошибки маршрутизации
	ErrCodeSenderNotFound       ErrorCode = "SENDER_NOT_FOUND"
	ErrCodeDuplicateAttribution ErrorCode = "DUPLICATE_ATTRIBUTION"
	ErrCodeMalformedCallback    ErrorCode = "MALFORMED_CALLBACK"

	// Ошибки хранилища
	ErrCodeDatabaseError ErrorCode = "DATABASE_ERROR"
	ErrCodeCacheError    ErrorCode = "CACHE_ERROR"

	// Ошибки внешних API
	ErrCodeTelegramAPI    ErrorCode = "TELEGRAM_API_ERROR"
	ErrCodeDeliveryFailed ErrorCode = "DELIVERY_FAILED"
)

// AppError представляет типизированную ошибку приложения
type AppError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Stack     []string               `json:"stack,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	EventID   string                 `json:"event_id,omitempty"`
	UserID    int64                  `json:"user_id,omitempty"`
	Cause     error                  `json:"-"`
}

// Error возвращает строковое представление ошибки
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap возвращает причину ошибки
func (e *AppError) Unwrap() error {
	return e.Cause
}

// IsStorage reports whether the error means durable state is unavailable.
func (e *AppError) IsStorage() bool {
	return e.Code == ErrCodeDatabaseError
}

// WithDetail добавляет детальную информацию к ошибке
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithEventID attaches the inbound event id the error was raised for.
func (e *AppError) WithEventID(eventID string) *AppError {
	e.EventID = eventID
	return e
}

// WithUserID добавляет ID пользователя к ошибке
func (e *AppError) WithUserID(userID int64) *AppError {
	e.UserID = userID
	return e
}

// New создает новую ошибку приложения
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Stack:     getStackTrace(),
	}
}

// Wrap оборачивает существующую ошибку
func Wrap(err error, code ErrorCode, message string) *AppError {
	appErr := New(code, message)
	appErr.Cause = err
	return appErr
}

// getStackTrace возвращает стек вызовов
func getStackTrace() []string {
	var stack []string
	for i := 2; ; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		// Пропускаем внутренние функции пакета errors
		if strings.Contains(fn.Name(), "internal/common/errors") {
			continue
		}
		stack = append(stack, fmt.Sprintf("%s:%d %s", file, line, fn.Name()))
		if len(stack) >= 10 { // Ограничиваем глубину стека
			break
		}
	}
	return stack
}

// Конструкторы для часто используемых ошибок

// NewValidationError создает ошибку валидации
func NewValidationError(field, reason string) *AppError {
	return New(ErrCodeValidation, fmt.Sprintf("Validation failed for field '%s': %s", field, reason)).
		WithDetail("field", field).
		WithDetail("reason", reason)
}

// NewSenderNotFoundError is returned when an operator reply cannot be attributed.
// replyTo is zero for un-threaded replies.
func NewSenderNotFoundError(replyTo int64) *AppError {
	if replyTo == 0 {
		return New(ErrCodeSenderNotFound, "No forwarded message to reply to")
	}
	return New(ErrCodeSenderNotFound, fmt.Sprintf("No sender recorded for message %d", replyTo)).
		WithDetail("message_id", replyTo)
}

// NewDuplicateAttributionError reports a second ledger write for the same forwarded message.
func NewDuplicateAttributionError(messageID int64, err error) *AppError {
	return Wrap(err, ErrCodeDuplicateAttribution, fmt.Sprintf("Attribution already recorded for message %d", messageID)).
		WithDetail("message_id", messageID)
}

// NewMalformedCallbackError создает ошибку разбора callback-данных
func NewMalformedCallbackError(data string) *AppError {
	return New(ErrCodeMalformedCallback, fmt.Sprintf("Malformed callback data: %q", data)).
		WithDetail("data", data)
}

// NewDatabaseError создает ошибку базы данных
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseError, fmt.Sprintf("Database operation failed: %s", operation)).
		WithDetail("operation", operation)
}

// NewCacheError создает ошибку кэша
func NewCacheError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeCacheError, fmt.Sprintf("Cache operation failed: %s", operation)).
		WithDetail("operation", operation)
}

// NewTelegramAPIError создает ошибку Telegram API
func NewTelegramAPIError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeTelegramAPI, fmt.Sprintf("Telegram API operation failed: %s", operation)).
		WithDetail("operation", operation)
}

// NewDeliveryError reports a failed copy/send towards chatID.
func NewDeliveryError(chatID int64, err error) *AppError {
	return Wrap(err, ErrCodeDeliveryFailed, fmt.Sprintf("Delivery to chat %d failed", chatID)).
		WithDetail("chat_id", chatID)
}

// AsAppError приводит ошибку к AppError
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if err == nil || !stderrors.As(err, &appErr) {
		return nil, false
	}
	return appErr, true
}

// HasCode reports whether err wraps an AppError carrying code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// IsStorage reports whether err wraps a storage failure.
func IsStorage(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.IsStorage()
}
