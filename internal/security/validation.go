package security

import (
	"errors"
	"fmt"
)

// DefaultMaxMessageSize bounds an ingress request body absent an explicit
// configured limit.
const DefaultMaxMessageSize = 1 << 20 // 1 MiB

// ErrMessageTooLarge is returned by ValidateMessageSize when data exceeds
// the configured limit.
var ErrMessageTooLarge = errors.New("message exceeds maximum size")

// ValidateMessageSize checks that data does not exceed limit bytes.
// If limit is <= 0, DefaultMaxMessageSize is used.
func ValidateMessageSize(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxMessageSize
	}
	if len(data) > limit {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, len(data), limit)
	}
	return nil
}
