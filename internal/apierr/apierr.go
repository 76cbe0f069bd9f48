// Package apierr описывает единую таксономию ошибок клиента витрины.
//
// Любая операция ядра возвращает либо результат, либо *Error с тегом Kind:
// вызывающему коду не нужно разбирать произвольные полезные нагрузки ошибок.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind классифицирует ошибку.
type Kind int

const (
	KindOperationFailed Kind = iota
	KindAuth
	KindUnauthenticated
	KindForbidden
	KindValidation
	KindNotFound
	KindConflict
	KindBusy
	KindPrecondition
	KindStale
)

var kindNames = map[Kind]string{
	KindOperationFailed: "operation failed",
	KindAuth:            "authentication failed",
	KindUnauthenticated: "unauthenticated",
	KindForbidden:       "role not permitted",
	KindValidation:      "validation failed",
	KindNotFound:        "not found",
	KindConflict:        "conflict",
	KindBusy:            "operation in flight",
	KindPrecondition:    "precondition failed",
	KindStale:           "session ended",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error описывает структурированную ошибку операции.
// Status равен нулю для ошибок, возникших до обращения к сети.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil && e.Message == "" {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New создаёт ошибку указанного вида.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation создаёт ошибку клиентской проверки входных данных.
func Validation(field, message string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: message,
		Fields:  map[string]string{field: message},
	}
}

// Failed оборачивает транспортную или иную непредвиденную ошибку.
func Failed(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindOperationFailed, Err: err}
}

// FromStatus строит ошибку по HTTP-статусу ответа сервера.
func FromStatus(status int, message string, fields map[string]string) *Error {
	return &Error{
		Kind:    kindForStatus(status),
		Status:  status,
		Message: message,
		Fields:  fields,
	}
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized:
		return KindAuth
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	}
	return KindOperationFailed
}

// KindOf возвращает вид ошибки; для ошибок вне таксономии возвращает KindOperationFailed.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOperationFailed
}

// IsKind сообщает, относится ли ошибка к указанному виду.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// StatusOf возвращает HTTP-статус ошибки сервера или ноль.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}
