package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fekuna/omnipos-backoffice/pkg/i18n"
)

const maxBodySize = 1 << 20

var (
	ErrInvalidJSON  = errors.New("httpx: invalid JSON body")
	ErrBodyTooLarge = errors.New("httpx: request body too large")
)

// Error is the error envelope returned by the API. Code doubles as the i18n
// message id; Fallback is used when no translation exists.
type Error struct {
	Code     string
	Fallback string
	Status   int
	Data     map[string]interface{}
	Details  interface{}
}

func NewError(code, fallback string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{Code: code, Fallback: fallback, Status: status}
}

// WithData sets template data for the localized message.
func (e Error) WithData(data map[string]interface{}) Error {
	e.Data = data
	return e
}

func (e Error) WithDetails(details interface{}) Error {
	e.Details = details
	return e
}

type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type errorEnvelope struct {
	Success bool        `json:"success"`
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Success writes {success: true, message, data}.
func Success(w http.ResponseWriter, status int, message string, data interface{}) {
	WriteJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

// WriteError localizes e for the request's Accept-Language and writes it.
func WriteError(w http.ResponseWriter, r *http.Request, e Error) {
	msg := i18n.Localize(e.Code, e.Data, r.Header.Get("Accept-Language"))
	if msg == e.Code && e.Fallback != "" {
		msg = e.Fallback
	}
	WriteJSON(w, e.Status, errorEnvelope{
		Success: false,
		Error:   e.Code,
		Message: msg,
		Details: e.Details,
	})
}

// DecodeJSON reads at most 1 MiB of JSON from r into dst.
func DecodeJSON(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if len(body) > maxBodySize {
		return ErrBodyTooLarge
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return fmt.Errorf("%w: empty body", ErrInvalidJSON)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	return nil
}

// DecodeError maps a DecodeJSON failure to its envelope. Errors raised by
// enum UnmarshalText methods are passed to mapDomain first so they keep their
// specific code.
func DecodeError(err error, mapDomain func(error) (Error, bool)) Error {
	if mapDomain != nil {
		if e, ok := mapDomain(err); ok {
			return e
		}
	}
	if errors.Is(err, ErrBodyTooLarge) {
		return NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge)
	}
	return NewError("invalid_json", "invalid JSON body", http.StatusBadRequest)
}
