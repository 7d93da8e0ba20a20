// Package domain defines the core domain models for heapsight.
package domain

import (
	"errors"
	"fmt"
)

// DomainError is an error with a structured error code.
// Codes have the form HS-<AREA>-<NNNN>.
type DomainError struct {
	Code    string // Error code (e.g., "HS-MEM-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.

func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Wrap wraps an error with this domain error as the cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return e.WithCause(cause)
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.

func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true // Only check if it's a DomainError
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.

func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Memory errors (MEM)
var (
	// ErrAddressNotMapped indicates an address range is not inside any captured region.
	ErrAddressNotMapped = NewDomainError("HS-MEM-4040", "address not mapped")

	// ErrRegionUnreadable indicates a region never produced a full-length read.
	ErrRegionUnreadable = NewDomainError("HS-MEM-5030", "region unreadable")

	// ErrNoRegions indicates the capture produced an empty snapshot.
	ErrNoRegions = NewDomainError("HS-MEM-5031", "no readable regions captured")
)

// Object decoding errors (OBJ)
var (
	// ErrCorruptStructure indicates a decode sanity check failed; the memory is
	// not the structure it was assumed to be.
	ErrCorruptStructure = NewDomainError("HS-OBJ-4220", "corrupt structure")

	// ErrUnexpectedType indicates an object's type pointer does not match the decoder.
	ErrUnexpectedType = NewDomainError("HS-OBJ-4221", "unexpected object type")
)

// Resolution errors (RES)
var (
	// ErrAmbiguousIdentification indicates a step expecting exactly one match
	// got zero or several.
	ErrAmbiguousIdentification = NewDomainError("HS-RES-4090", "ambiguous identification")

	// ErrUnresolvableRuntime indicates the foreign object model could not be
	// identified. The attach must abort.
	ErrUnresolvableRuntime = NewDomainError("HS-RES-5000", "runtime object model unresolvable")
)

// Session errors (SES)
var (
	// ErrInvalidTransition indicates an attach state transition out of order.
	ErrInvalidTransition = NewDomainError("HS-SES-4000", "invalid state transition")

	// ErrSessionDropped indicates the session snapshot was released.
	ErrSessionDropped = NewDomainError("HS-SES-4001", "session dropped")

	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("HS-ARG-1001", "invalid argument")
)
