package connector

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrUnsupportedOperation indicates an operation the kind does not offer.
	ErrUnsupportedOperation = errors.New("connector: unsupported operation")
	// ErrInvalidLimit indicates a negative pull limit.
	ErrInvalidLimit = errors.New("connector: invalid limit")
	// ErrMissingHostID indicates a push without a host id.
	ErrMissingHostID = errors.New("connector: host id is required")
	// ErrMissingEndpointID indicates an operation that needs an endpoint id but got none.
	ErrMissingEndpointID = errors.New("connector: endpoint id is required")
	// ErrUnknownKind indicates a kind outside the closed set.
	ErrUnknownKind = errors.New("connector: unknown kind")
	// ErrUnknownEndpoint indicates an acknowledged endpoint id with no storefront record.
	ErrUnknownEndpoint = errors.New("connector: endpoint record not found")

	errMissingDatabase  = errors.New("database handle is required")
	errReferenceMissing = errors.New("referenced record is missing")
	noOpLogger          = zap.NewNop()
)

// ServiceError carries a dotted operation.reason code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// SoftResolutionFailure records a push whose referenced foreign entity could not be found. The
// entity is returned unchanged and the batch continues.
type SoftResolutionFailure struct {
	Kind      Kind     `json:"kind"`
	Entity    Identity `json:"entity"`
	Reference Kind     `json:"reference"`
	Missing   Identity `json:"missing"`
}

func (f SoftResolutionFailure) Error() string {
	return fmt.Sprintf("connector: %s %s references unknown %s %s", f.Kind, f.Entity, f.Reference, f.Missing)
}

func checkLimit(operation string, limit int) error {
	if limit < 0 {
		return newServiceError(operation, "invalid_limit", fmt.Errorf("%w: %d", ErrInvalidLimit, limit))
	}
	return nil
}

func unsupported(kind Kind, operation string) error {
	return fmt.Errorf("%w: %s.%s", ErrUnsupportedOperation, kind, operation)
}
