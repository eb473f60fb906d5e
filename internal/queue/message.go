package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"tenant-backup-worker/internal/backup"
)

// MaxMessageBytes bounds the size of a decoded job message
const MaxMessageBytes = 64 << 10

// Delivery is one accepted message waiting for the worker
type Delivery struct {
	ID         string
	Message    backup.Message
	ReceivedAt time.Time
}

// DecodeMessage reads a JSON job message from r and validates it
func DecodeMessage(r io.Reader) (backup.Message, error) {
	var msg backup.Message

	decoder := json.NewDecoder(io.LimitReader(r, MaxMessageBytes+1))
	if err := decoder.Decode(&msg); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return msg, backup.NewValidationError("message body is empty or truncated", err)
		}
		return msg, backup.NewValidationError(fmt.Sprintf("malformed message: %v", err), err)
	}
	if decoder.More() {
		return msg, backup.NewValidationError("message body contains trailing data", nil)
	}

	if err := msg.Validate(); err != nil {
		return msg, backup.NewValidationError("invalid job message", err)
	}
	return msg, nil
}
