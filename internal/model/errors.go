package model

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the workflows and the API layer.
var (
	ErrNotFound           = errors.New("item not found")
	ErrForbidden          = errors.New("not permitted")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInvite      = errors.New("invalid or expired invite")
	ErrEmailTaken         = errors.New("email already registered")
	ErrLastAdmin          = errors.New("cannot demote the last admin")
)

// ValidationError reports a missing or malformed input. The operation was
// not attempted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return e.Message
}

// AuthorizationError reports a role or ownership check failure. It is
// returned before any store call is made.
type AuthorizationError struct {
	Action  string
	ActorID int64
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Action, ErrForbidden)
}

// Is lets errors.Is(err, ErrForbidden) match.
func (e *AuthorizationError) Is(target error) bool {
	return target == ErrForbidden
}

// StoreError wraps a backend failure during a row mutation. Its message is
// the store's own message so it can be shown to the user verbatim.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
