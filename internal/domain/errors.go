package domain

import "errors"

var (
	ErrInvalidInput            = errors.New("invalid input")
	ErrInvalidRole             = errors.New("message is not user-authored")
	ErrSessionNotFound         = errors.New("session not found")
	ErrMessageNotFound         = errors.New("message not found")
	ErrAccessDenied            = errors.New("access denied")
	ErrSessionAlreadyCompleted = errors.New("session already completed")
	ErrUnauthenticated         = errors.New("unauthenticated")
	ErrRateLimited             = errors.New("rate limited")
	ErrUpstream                = errors.New("upstream service error")
)

// ErrorKind groups errors the way callers need to react to them.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindAccessDenied
	KindConflict
	KindUnauthenticated
	KindRateLimited
	KindUpstream
)

// KindOf classifies err by the sentinel it wraps.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidRole):
		return KindValidation
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrMessageNotFound):
		return KindNotFound
	case errors.Is(err, ErrAccessDenied):
		return KindAccessDenied
	case errors.Is(err, ErrSessionAlreadyCompleted):
		return KindConflict
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrUpstream):
		return KindUpstream
	default:
		return KindInternal
	}
}
