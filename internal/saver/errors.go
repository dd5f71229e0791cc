package saver

import (
	"errors"
	"fmt"
)

var (
	// ErrNamespaceExists is returned by EnsureNamespace when the namespace is already present
	ErrNamespaceExists = errors.New("namespace already exists")

	// ErrWriteConflict is returned by Write when the target name is already occupied
	ErrWriteConflict = errors.New("artifact already exists")

	// ErrNotFound is returned when reading an artifact that does not exist
	ErrNotFound = errors.New("artifact not found")

	// ErrMissingPayload is returned when a structured envelope lacks the payload field
	ErrMissingPayload = errors.New("envelope has no payload field")

	// ErrInvalidName is returned for empty or escaping artifact names
	ErrInvalidName = errors.New("invalid artifact name")

	// ErrBackendUnavailable matches every per-backend save failure
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// BackendError reports a failed save on a single backend
type BackendError struct {
	Backend string
	Name    string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: failed to save %s: %v", e.Backend, e.Name, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrBackendUnavailable) hold for any BackendError.
func (e *BackendError) Is(target error) bool {
	return target == ErrBackendUnavailable
}
