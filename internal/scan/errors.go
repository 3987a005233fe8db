package scan

import (
	"errors"
	"fmt"
)

// ValidationCode categorizes why a scanned payload was refused.
type ValidationCode string

const (
	// CodeMalformedPayload indicates the raw text did not decode.
	CodeMalformedPayload ValidationCode = "MALFORMED_PAYLOAD"

	// CodeInvalidTeacher indicates a missing or non-positive teacher id.
	CodeInvalidTeacher ValidationCode = "INVALID_TEACHER"

	// CodeInvalidTimestamp indicates the embedded timestamp did not parse.
	CodeInvalidTimestamp ValidationCode = "INVALID_TIMESTAMP"

	// CodeWrongDay indicates the timestamp belongs to another calendar day.
	CodeWrongDay ValidationCode = "WRONG_DAY"

	// CodeExpired indicates a check-in older than the validity window.
	CodeExpired ValidationCode = "EXPIRED"

	// CodeUnknownType indicates a type other than Entrada/Salida.
	CodeUnknownType ValidationCode = "UNKNOWN_TYPE"
)

// ValidationError is terminal for the scan that produced it: the payload is
// discarded with a user-visible message and nothing is persisted.
type ValidationError struct {
	Code    ValidationCode
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newValidationError(code ValidationCode, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsValidation unwraps err into a ValidationError if it is one.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
