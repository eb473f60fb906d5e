package backup

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBackupError(t *testing.T) {
	cause := errors.New("disk full")
	err := NewIOError("failed to write dump", cause).WithContext("path", "/tmp/backups/b1")

	assert.Equal(t, "IO_ERROR: failed to write dump (caused by: disk full)", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "/tmp/backups/b1", err.Context["path"])
	assert.Equal(t, "NOT_FOUND: job b1 not found", NewNotFoundError("job b1 not found", nil).Error())
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		err       error
		kind      string
		retryable bool
		permanent bool
	}{
		{NewNotFoundError("x", nil), "NOT_FOUND", false, true},
		{NewInvalidStateError("x", nil), "INVALID_STATE", false, true},
		{NewValidationError("x", nil), "VALIDATION_ERROR", false, true},
		{NewConfigurationError("x", nil), "CONFIGURATION_ERROR", false, true},
		{NewIOError("x", nil), "IO_ERROR", true, false},
		{NewStorageError("x", nil), "STORAGE_ERROR", true, false},
		{NewDatabaseError("x", nil), "DATABASE_ERROR", true, false},
		{NewProcessError("x", nil), "PROCESS_ERROR", false, false},
		{errors.New("plain"), "UNKNOWN", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			wrapped := fmt.Errorf("job b1: %w", tt.err)
			assert.Equal(t, tt.kind, ErrorKind(wrapped))
			assert.Equal(t, tt.retryable, IsRetryable(wrapped))
			assert.Equal(t, tt.permanent, IsPermanent(wrapped))
		})
	}

	assert.True(t, IsNotFound(NewNotFoundError("x", nil)))
	assert.True(t, IsProcessError(NewProcessError("x", nil)))
	assert.True(t, IsIOError(NewIOError("x", nil)))
	assert.False(t, IsIOError(nil))
}

func TestValidationErrors(t *testing.T) {
	var errs ValidationErrors
	assert.False(t, errs.HasErrors())
	assert.Equal(t, "no validation errors", errs.Error())

	errs.Add("host", "database host is required", "")
	assert.Equal(t, "validation error for field 'host': database host is required", errs.Error())

	var nested ValidationErrors
	nested.Add("bucket", "bucket is required", "")
	nested.Add("region", "region is required", "")
	errs.Merge("s3", nested)
	errs.Merge("local", errors.New("bad path"))
	errs.Merge("gcs", nil)

	assert.Len(t, errs, 4)
	assert.Equal(t, "local", errs[3].Field)
	assert.Contains(t, errs.Error(), "4 validation errors")
}
