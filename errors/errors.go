package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Configuration errors
	ErrConfigParse   ErrorType = "CONFIG_PARSE_ERROR"
	ErrConfigInvalid ErrorType = "CONFIG_INVALID_ERROR"
	ErrInputRead     ErrorType = "INPUT_READ_ERROR"

	// Declaration errors
	ErrGraph       ErrorType = "GRAPH_ERROR"
	ErrDeclaration ErrorType = "DECLARATION_ERROR"
	ErrRender      ErrorType = "RENDER_ERROR"

	// Provisioning engine errors
	ErrEngine ErrorType = "ENGINE_ERROR"

	// AWS errors
	ErrAWSClient   ErrorType = "AWS_CLIENT_ERROR"
	ErrAWSInstance ErrorType = "AWS_INSTANCE_ERROR"

	// Drift checker errors
	ErrDriftChecker ErrorType = "DRIFT_CHECKER_ERROR"
)

// CustomError represents a custom error with additional context
type CustomError struct {
	Type       ErrorType
	Message    string
	Context    map[string]interface{}
	WrappedErr error
}

// New creates a new custom error
func New(errorType ErrorType, message string, context map[string]interface{}, wrappedErr error) *CustomError {
	return &CustomError{
		Type:       errorType,
		Message:    message,
		Context:    context,
		WrappedErr: wrappedErr,
	}
}

// Error implements the error interface
func (e *CustomError) Error() string {
	if e.WrappedErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.WrappedErr)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error
func (e *CustomError) Unwrap() error {
	return e.WrappedErr
}

// Is reports whether any CustomError in err's chain has the given type.
func Is(err error, errType ErrorType) bool {
	for err != nil {
		var customErr *CustomError
		if !stderrors.As(err, &customErr) {
			return false
		}
		if customErr.Type == errType {
			return true
		}
		err = customErr.WrappedErr
	}
	return false
}

// As is a re-export of the standard library errors.As so callers importing
// this package do not need both.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
