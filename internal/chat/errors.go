package chat

import (
	"errors"

	"kbassist/internal/api"
	"kbassist/internal/credentials"
	"kbassist/internal/httpclient"
)

type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindAuthorization
	KindRemote
	KindDataShape
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindRemote:
		return "remote"
	case KindDataShape:
		return "data-shape"
	default:
		return "unknown"
	}
}

// Error is what lands in the coordinator's error slot.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// classify wraps a failed call under action with the matching kind.
func classify(action string, err error) *Error {
	kind := KindRemote
	switch {
	case errors.Is(err, credentials.ErrNotAuthenticated):
		kind = KindAuthorization
	case errors.Is(err, api.ErrUnexpectedShape):
		kind = KindDataShape
	default:
		if se, ok := httpclient.AsStatusError(err); ok && se.Unauthorized() {
			kind = KindAuthorization
		}
	}
	return &Error{Kind: kind, Message: action, Err: err}
}
