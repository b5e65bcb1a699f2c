// Package messaging connects chat transports to the command pipeline.
package messaging

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/BTreeMap/ArgPipe/internal/models"
	"github.com/BTreeMap/ArgPipe/internal/prompt"
)

// Constants for service configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for incoming message channels
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for non-blocking channel operations
	DefaultChannelTimeout = 1 * time.Second
)

// ErrServiceStopped is returned when sending through a stopped service.
var ErrServiceStopped = errors.New("messaging service stopped")

// phoneNumberRegex matches everything that is not a digit.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Service defines a pluggable chat transport.
// It sends, edits and deletes messages and delivers incoming user messages.
type Service interface {
	prompt.Messenger

	// Start begins any background processing (e.g., event handling).
	Start(ctx context.Context) error

	// Stop stops background processing and closes the incoming channel.
	Stop() error

	// Incoming returns a channel of messages sent by users.
	Incoming() <-chan models.Message
}
