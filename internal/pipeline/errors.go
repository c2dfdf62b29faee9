package pipeline

import (
	"errors"
	"fmt"
)

// Taxonomy used across the ingest and derivation stages. Ingest surfaces
// these synchronously to its caller; the worker maps them onto the queue's
// retry-or-drop decision.
var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrStorageUnavailable     = errors.New("object storage unavailable")
	ErrRecordStoreUnavailable = errors.New("record store unavailable")
	ErrQueueUnavailable       = errors.New("job queue unavailable")
	ErrNotFound               = errors.New("not found")
)

// permanentError marks a derivation failure that redelivery cannot fix:
// the original is gone, the record is gone, or the bytes do not decode.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.err)
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent wraps err so IsPermanent reports true for it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was classified as a permanent failure.
// Anything else is treated as transient and eligible for redelivery.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
