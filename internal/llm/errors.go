package llm

import (
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"
)

// ErrorKind classifies why a model call failed.
type ErrorKind string

const (
	KindConfig     ErrorKind = "config"
	KindAuth       ErrorKind = "auth"
	KindForbidden  ErrorKind = "forbidden"
	KindNotFound   ErrorKind = "not_found"
	KindOverloaded ErrorKind = "overloaded"
	KindUpstream   ErrorKind = "upstream"
	KindClient     ErrorKind = "client"
	KindTransport  ErrorKind = "transport"
	KindMalformed  ErrorKind = "malformed"
	KindTimeout    ErrorKind = "timeout"
)

// User-facing replies. They never carry raw transport details.
const (
	MsgTimeout    = "Извините, сервис ИИ не ответил вовремя. Попробуйте позже."
	MsgGeneric    = "Извините, произошла ошибка при обращении к ИИ."
	MsgOverloaded = "Сервис ИИ сейчас перегружен. Пожалуйста, повторите запрос позже."
	MsgAuth       = "Ошибка авторизации при обращении к ИИ. Проверьте API-ключ."
	MsgForbidden  = "Доступ к модели ИИ запрещён."
	MsgNotFound   = "Адрес сервиса ИИ не найден. Проверьте настройки модели."
	MsgTransport  = "Извините, сервис ИИ временно недоступен. Попробуйте позже."
	MsgMalformed  = "Сервис ИИ вернул ответ в неожиданном формате."
)

const maxBodySnippet = 500

// Error is the only error type the invoker returns.
type Error struct {
	Kind   ErrorKind
	Model  string
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("llm %s (%s): status %d: %s", e.Kind, e.Model, e.Status, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("llm %s (%s): %v", e.Kind, e.Model, e.Err)
	default:
		return fmt.Sprintf("llm %s (%s)", e.Kind, e.Model)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether another attempt may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindUpstream, KindOverloaded, KindTransport:
		return true
	}
	return false
}

// UserMessage is the sanitized text shown to the chat user.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindConfig:
		if e.Err != nil {
			return "Ошибка конфигурации модели ИИ: " + e.Err.Error()
		}
		return MsgGeneric
	case KindAuth:
		return MsgAuth
	case KindForbidden:
		return MsgForbidden
	case KindNotFound:
		return MsgNotFound
	case KindOverloaded:
		return MsgOverloaded
	case KindTimeout:
		return MsgTimeout
	case KindTransport:
		return MsgTransport
	case KindMalformed:
		return MsgMalformed
	case KindUpstream, KindClient:
		return fmt.Sprintf("Ошибка сервиса ИИ (код %d): %s", e.Status, e.Body)
	}
	return MsgGeneric
}

// UserMessage maps any error to a user-facing reply.
func UserMessage(err error) string {
	var le *Error
	if errors.As(err, &le) {
		return le.UserMessage()
	}
	return MsgGeneric
}

func statusError(model string, status int, body string) *Error {
	return &Error{Kind: kindForStatus(status), Model: model, Status: status, Body: snippet(body)}
}

func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuth
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusServiceUnavailable, status == http.StatusTooManyRequests:
		return KindOverloaded
	case status >= 500:
		return KindUpstream
	default:
		return KindClient
	}
}

func snippet(body string) string {
	if utf8.RuneCountInString(body) <= maxBodySnippet {
		return body
	}
	r := []rune(body)
	return string(r[:maxBodySnippet]) + "…"
}
