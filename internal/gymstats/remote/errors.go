package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrInvalidDocument = errors.New("invalid document")
)

// TransientError is a failure worth retrying later: network, timeout or
// anything not known to be permanent.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %s", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError is a failure that will not go away on retry: schema,
// validation or not-found.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %s", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

func NewTransientError(err error) error {
	return &TransientError{Err: err}
}

// Classify wraps err into a TransientError or a PermanentError. Errors that
// are already classified are returned as they are. Unknown errors are
// treated as transient.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var pErr *PermanentError
	if errors.As(err, &pErr) {
		return err
	}
	var tErr *TransientError
	if errors.As(err, &tErr) {
		return err
	}

	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidDocument) {
		return &PermanentError{Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &TransientError{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &TransientError{Err: err}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "validation") || strings.Contains(msg, "schema") {
		return &PermanentError{Err: err}
	}

	return &TransientError{Err: err}
}

func IsPermanent(err error) bool {
	var pErr *PermanentError
	return errors.As(Classify(err), &pErr)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
