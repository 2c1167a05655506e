package hola_errors

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrTooLarge           = errors.New("file too large")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrAlreadyExists      = errors.New("already exists")
)

// Sync engine errors. Callers classify with errors.Is.
var (
	// ErrAuth means there is no usable session; surfaced as "must sign in".
	ErrAuth = errors.New("not signed in")
	// ErrTransport covers network and query failures against the backend.
	ErrTransport = errors.New("transport failure")
	// ErrUpload aborts a send before any message is created.
	ErrUpload = errors.New("attachment upload failed")
	// ErrSubscription is raised after repeated change-stream failures.
	ErrSubscription = errors.New("change stream unavailable")

	ErrNoActiveChat     = errors.New("no active conversation")
	ErrUploadInProgress = errors.New("an upload is already in progress")
)

// Transport marks err as a transport failure.
func Transport(err error) error {
	return wrap(ErrTransport, err)
}

// Upload marks err as an attachment upload failure.
func Upload(err error) error {
	return wrap(ErrUpload, err)
}

// Subscription marks err as a persistent change-stream failure.
func Subscription(err error) error {
	return wrap(ErrSubscription, err)
}

func wrap(kind, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
