// Пакет errors — конструкторы стандартных ошибок API.
// Единый формат: {"ok": false, "error": "...", "error_type": "...", "message": "..."}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // TODO: переименовать пакет errors, конфликт со stdlib

import (
	"encoding/json"
	"net/http"
)

// Типы ошибок в поле error_type.
const (
	TypeValidationError = "validation_error"
	TypeNotFound        = "not_found"
	TypeUnauthorized    = "unauthorized"
	TypeForbidden       = "forbidden"
	TypeFileTooLarge    = "file_too_large"
	TypeTimeout         = "timeout"
	TypeInternalError   = "server_error"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
	Message   string `json:"message,omitempty"`
}

// WriteError записывает ответ ошибки в стандартном формате API.
// statusCode — HTTP статус-код, errorType — машиночитаемый тип,
// errText — краткий текст ошибки, message — человекочитаемое описание.
func WriteError(w http.ResponseWriter, statusCode int, errorType, errText, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		OK:        false,
		Error:     errText,
		ErrorType: errorType,
		Message:   message,
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, TypeValidationError, message, "")
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, TypeNotFound, message, "")
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, TypeUnauthorized, message, "")
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, TypeForbidden, message, "")
}

// FileTooLarge — 413 файл превышает лимит.
func FileTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, TypeFileTooLarge, message, "")
}

// Timeout — 504 превышен дедлайн операции.
func Timeout(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusGatewayTimeout, TypeTimeout, message, "")
}

// InternalError — 500 внутренняя ошибка.
// message — человекочитаемое пояснение для фронтенда.
func InternalError(w http.ResponseWriter, errText, message string) {
	WriteError(w, http.StatusInternalServerError, TypeInternalError, errText, message)
}
