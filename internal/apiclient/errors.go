package apiclient

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials means the backend explicitly rejected a login
	// attempt. It never touches an existing session.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthorized means an authenticated request came back 401: the
	// stored token is no longer good.
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError reports malformed local input. It is raised before any
// network I/O happens.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// NetworkError means no response was received at all: backend down, DNS
// failure, timeout. It is never proof that a stored token is invalid.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ServerError means the backend was reachable but answered with an
// unexpected non-2xx, non-401 status.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server: status %d", e.Status)
}
