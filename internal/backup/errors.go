package backup

import (
	"errors"
	"fmt"
)

// BackupError represents errors that occur while processing backup and restore jobs
type BackupError struct {
	Type    BackupErrorType        `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *BackupError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause error
func (e *BackupError) Unwrap() error {
	return e.Cause
}

// BackupErrorType represents different types of backup errors
type BackupErrorType string

const (
	BackupErrorTypeNotFound      BackupErrorType = "NOT_FOUND"
	BackupErrorTypeInvalidState  BackupErrorType = "INVALID_STATE"
	BackupErrorTypeIO            BackupErrorType = "IO_ERROR"
	BackupErrorTypeProcess       BackupErrorType = "PROCESS_ERROR"
	BackupErrorTypeStorage       BackupErrorType = "STORAGE_ERROR"
	BackupErrorTypeValidation    BackupErrorType = "VALIDATION_ERROR"
	BackupErrorTypeConfiguration BackupErrorType = "CONFIGURATION_ERROR"
	BackupErrorTypeDatabase      BackupErrorType = "DATABASE_ERROR"
)

// NewBackupError creates a new BackupError
func NewBackupError(errorType BackupErrorType, message string, cause error) *BackupError {
	return &BackupError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (e *BackupError) WithContext(key string, value interface{}) *BackupError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Common error constructors
func NewNotFoundError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeNotFound, message, cause)
}

func NewInvalidStateError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeInvalidState, message, cause)
}

func NewIOError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeIO, message, cause)
}

func NewProcessError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeProcess, message, cause)
}

func NewStorageError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeStorage, message, cause)
}

func NewValidationError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeValidation, message, cause)
}

func NewConfigurationError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeConfiguration, message, cause)
}

func NewDatabaseError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeDatabase, message, cause)
}

// ValidationError represents validation-specific errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidationErrors represents a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("%d validation errors: %s (and %d more)", len(e), e[0].Error(), len(e)-1)
}

// Add adds a validation error to the collection
func (e *ValidationErrors) Add(field, message string, value interface{}) {
	*e = append(*e, ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	})
}

// Merge appends the errors carried by err, or a single entry under field.
func (e *ValidationErrors) Merge(field string, err error) {
	if err == nil {
		return
	}
	var nested ValidationErrors
	if errors.As(err, &nested) {
		*e = append(*e, nested...)
		return
	}
	e.Add(field, err.Error(), nil)
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

func errorType(err error) (BackupErrorType, bool) {
	var backupErr *BackupError
	if errors.As(err, &backupErr) {
		return backupErr.Type, true
	}
	return "", false
}

// IsNotFound reports whether err is a NOT_FOUND backup error
func IsNotFound(err error) bool {
	t, ok := errorType(err)
	return ok && t == BackupErrorTypeNotFound
}

// IsInvalidState reports whether err is an INVALID_STATE backup error
func IsInvalidState(err error) bool {
	t, ok := errorType(err)
	return ok && t == BackupErrorTypeInvalidState
}

// IsProcessError reports whether err is a PROCESS_ERROR backup error
func IsProcessError(err error) bool {
	t, ok := errorType(err)
	return ok && t == BackupErrorTypeProcess
}

// IsIOError reports whether err is an IO_ERROR backup error
func IsIOError(err error) bool {
	t, ok := errorType(err)
	return ok && t == BackupErrorTypeIO
}

// IsValidation reports whether err is a VALIDATION_ERROR backup error
func IsValidation(err error) bool {
	t, ok := errorType(err)
	return ok && t == BackupErrorTypeValidation
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	t, ok := errorType(err)
	if !ok {
		return false
	}
	switch t {
	case BackupErrorTypeStorage, BackupErrorTypeIO, BackupErrorTypeDatabase:
		return true
	default:
		return false
	}
}

// IsPermanent determines if an error is permanent and should not be retried
func IsPermanent(err error) bool {
	t, ok := errorType(err)
	if !ok {
		return false
	}
	switch t {
	case BackupErrorTypeValidation, BackupErrorTypeConfiguration,
		BackupErrorTypeInvalidState, BackupErrorTypeNotFound:
		return true
	default:
		return false
	}
}

// ErrorKind returns the BackupErrorType of err, or "UNKNOWN".
func ErrorKind(err error) string {
	if t, ok := errorType(err); ok {
		return string(t)
	}
	return "UNKNOWN"
}
