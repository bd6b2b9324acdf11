package errorx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// AuthError is the closed error taxonomy of the authorization subsystem.
// Every failure surfaced at a call boundary is one of the sentinel values
// below, optionally wrapped with detail via WithDescription.
type AuthError struct {
	ErrorType        string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorURI         string `json:"error_uri,omitempty"`
	HTTPStatus       int    `json:"-"`

	kind kind
}

type kind int

const (
	kindValidation kind = iota + 1
	kindNotFound
	kindConflict
	kindUpstream
	kindInvalidTransition
)

func (e *AuthError) Error() string {
	out, _ := json.Marshal(e)
	return string(out)
}

// Is matches any AuthError of the same kind, so wrapped and
// description-carrying copies compare equal to their sentinel.
func (e *AuthError) Is(target error) bool {
	var other *AuthError
	if !errors.As(target, &other) {
		return false
	}
	return e.kind == other.kind
}

// WithDescription returns a copy of the sentinel carrying detail text.
func (e *AuthError) WithDescription(format string, args ...any) *AuthError {
	clone := *e
	clone.ErrorDescription = fmt.Sprintf(format, args...)
	return &clone
}

var (
	// ErrValidation rejects malformed input (scope, href, state token format)
	// before any persistent write happens.
	ErrValidation = &AuthError{
		ErrorType:  "invalid_request",
		HTTPStatus: http.StatusBadRequest,
		kind:       kindValidation,
	}

	// ErrNotFound covers unknown state tokens and unknown client ids.
	// Surfaced on the wire as a generic invalid_request.
	ErrNotFound = &AuthError{
		ErrorType:  "invalid_request",
		HTTPStatus: http.StatusNotFound,
		kind:       kindNotFound,
	}

	// ErrConflict is returned to the loser of a concurrent state-token
	// consumption race, distinct from a plain miss.
	ErrConflict = &AuthError{
		ErrorType:  "invalid_request",
		HTTPStatus: http.StatusConflict,
		kind:       kindConflict,
	}

	// ErrUpstream captures token-endpoint failures. It is absorbed into the
	// authorization record, never propagated past the state machine.
	ErrUpstream = &AuthError{
		ErrorType:  "server_error",
		HTTPStatus: http.StatusBadGateway,
		kind:       kindUpstream,
	}

	// ErrInvalidTransition rejects a lifecycle transition not permitted from
	// the record's current status.
	ErrInvalidTransition = &AuthError{
		ErrorType:  "invalid_request",
		HTTPStatus: http.StatusConflict,
		kind:       kindInvalidTransition,
	}
)
