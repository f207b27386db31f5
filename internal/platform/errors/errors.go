// Package errors provides structured errors with HTTP status mapping and the translation
// from domain rejections to API responses.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/pscheid92/teamdraft/internal/domain"
)

// ErrorType is the category of an error, used for metrics and response formatting.
type ErrorType string

const (
	TypeValidation   ErrorType = "validation"   // 400
	TypeNotFound     ErrorType = "not_found"    // 404
	TypeConflict     ErrorType = "conflict"     // 409
	TypeForbidden    ErrorType = "forbidden"    // 403
	TypePrecondition ErrorType = "precondition" // 422
	TypeRateLimited  ErrorType = "rate_limited" // 429
	TypeUnavailable  ErrorType = "unavailable"  // 503
	TypeInternal     ErrorType = "internal"     // 500
	TypeExternal     ErrorType = "external"     // 502
)

type Error struct {
	Type    ErrorType
	Reason  domain.Reason
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeConflict:
		return http.StatusConflict
	case TypeForbidden:
		return http.StatusForbidden
	case TypePrecondition:
		return http.StatusUnprocessableEntity
	case TypeRateLimited:
		return http.StatusTooManyRequests
	case TypeUnavailable:
		return http.StatusServiceUnavailable
	case TypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func newError(t ErrorType, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause, Context: make(map[string]any)}
}

func ValidationError(message string) *Error { return newError(TypeValidation, message, nil) }
func NotFoundError(message string) *Error   { return newError(TypeNotFound, message, nil) }
func ConflictError(message string) *Error   { return newError(TypeConflict, message, nil) }
func ForbiddenError(message string) *Error  { return newError(TypeForbidden, message, nil) }
func RateLimitedError(message string) *Error {
	return newError(TypeRateLimited, message, nil)
}

func InternalError(message string, cause error) *Error {
	return newError(TypeInternal, message, cause)
}

func ExternalError(message string, cause error) *Error {
	return newError(TypeExternal, message, cause)
}

func UnavailableError(message string, cause error) *Error {
	return newError(TypeUnavailable, message, cause)
}

// WithField adds a context field to the error (chainable).
func (e *Error) WithField(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ErrorResponse is the JSON body sent to clients.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Type    ErrorType      `json:"type"`
	Reason  domain.Reason  `json:"reason,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:   e.Message,
		Type:    e.Type,
		Reason:  e.Reason,
		Context: e.Context,
	}
}

// FromDomain classifies a domain error. Rejections keep their sentinel message so clients
// see the rule that failed; I/O failures are reported without leaking the cause.
func FromDomain(err error) *Error {
	if err == nil {
		return nil
	}
	var structured *Error
	if errors.As(err, &structured) {
		return structured
	}

	reason := domain.ReasonOf(err)
	var out *Error
	switch reason {
	case domain.ReasonNotFound:
		out = newError(TypeNotFound, domain.ErrSessionNotFound.Error(), err)
	case domain.ReasonNotOwner:
		out = newError(TypeForbidden, domain.ErrNotOwner.Error(), err)
	case domain.ReasonSessionExists:
		out = newError(TypeConflict, domain.ErrSessionExists.Error(), err)
	case domain.ReasonSessionClosed:
		out = newError(TypeConflict, domain.ErrSessionClosed.Error(), err)
	case domain.ReasonAlreadyJoined:
		out = newError(TypeConflict, domain.ErrAlreadyJoined.Error(), err)
	case domain.ReasonNotInSession:
		out = newError(TypeConflict, domain.ErrNotInSession.Error(), err)
	case domain.ReasonTooManyConcurrentAttempts:
		out = newError(TypeConflict, domain.ErrTooManyConcurrentAttempts.Error(), err)
	case domain.ReasonInsufficientPlayers:
		out = newError(TypePrecondition, domain.ErrInsufficientPlayers.Error(), err)
	case domain.ReasonUnknownAction:
		out = newError(TypeValidation, domain.ErrUnknownAction.Error(), err)
	case domain.ReasonPermissionDenied:
		out = newError(TypeExternal, "document store refused access", err)
	default:
		out = newError(TypeUnavailable, "session store unavailable", err)
	}
	out.Reason = reason
	return out
}

// AsStructuredError converts any error into a structured Error.
func AsStructuredError(err error) *Error {
	return FromDomain(err)
}
