// Package prompt runs interactive follow-up collections in chat.
//
// A Collector keeps at most one pending collection per (channel, user) key.
// Starting a new collection for an occupied key supersedes the old one.
// Every collection ends either with a value or with a *RejectionError whose
// Reason tells the caller why it ended.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BTreeMap/ArgPipe/internal/models"
)

// Messenger is the transport a Collector uses to talk to users.
type Messenger interface {
	Send(ctx context.Context, channelID, content string) (models.MessageRef, error)
	Edit(ctx context.Context, ref models.MessageRef, content string) error
	Delete(ctx context.Context, ref models.MessageRef) error
}

// Key identifies the user a collection is waiting on.
type Key struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
}

func (k Key) String() string {
	return k.ChannelID + "/" + k.UserID
}

// KeyFor returns the collection key of an invocation.
func KeyFor(inv models.Invocation) Key {
	return Key{ChannelID: inv.ChannelID, UserID: inv.UserID}
}

// Validator checks one reply. It returns the accepted value and true, or
// false to ask the user again. A non-nil error ends the collection.
type Validator func(ctx context.Context, content string) (any, bool, error)

// Request describes one collection.
type Request struct {
	Key       Key
	Text      string
	RetryText string
	// Timeout and Retries fall back to the collector defaults when zero.
	// A negative Retries disables retrying.
	Timeout  time.Duration
	Retries  int
	Validate Validator
	// Infinite keeps collecting valid replies until a stop word is sent or
	// Limit values were collected. The result is a []any.
	Infinite  bool
	Limit     int
	StopWords []string
}

// Reason explains why a collection was rejected.
type Reason string

const (
	ReasonCancelled  Reason = "cancelled"
	ReasonSuperseded Reason = "superseded"
	ReasonTimedOut   Reason = "timed_out"
	ReasonRetryLimit Reason = "retry_limit"
	ReasonAborted    Reason = "aborted"
	ReasonStopped    Reason = "stopped"
)

// Rejection sentinels, one per Reason.
var (
	ErrCancelled  = errors.New("prompt cancelled")
	ErrSuperseded = errors.New("prompt superseded by a newer prompt")
	ErrTimedOut   = errors.New("prompt timed out")
	ErrRetryLimit = errors.New("prompt retry limit reached")
	ErrAborted    = errors.New("prompt aborted")
	ErrStopped    = errors.New("prompt collector stopped")
)

// Request errors.
var (
	ErrInvalidRequest = errors.New("invalid prompt request")
	ErrNoChoices      = errors.New("no choices to pick from")
)

var reasonErrors = map[Reason]error{
	ReasonCancelled:  ErrCancelled,
	ReasonSuperseded: ErrSuperseded,
	ReasonTimedOut:   ErrTimedOut,
	ReasonRetryLimit: ErrRetryLimit,
	ReasonAborted:    ErrAborted,
	ReasonStopped:    ErrStopped,
}

// RejectionError is the outcome of a collection that produced no value.
type RejectionError struct {
	Reason   Reason
	Key      Key
	Attempts int
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("prompt for %s rejected: %s after %d attempts", e.Key, e.Reason, e.Attempts)
}

func (e *RejectionError) Unwrap() error {
	return reasonErrors[e.Reason]
}

// ReasonOf returns the rejection reason carried by err, if any.
func ReasonOf(err error) (Reason, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}

// PendingInfo describes a waiting collection.
type PendingInfo struct {
	ID        string    `json:"id"`
	Key       Key       `json:"key"`
	Attempts  int       `json:"attempts"`
	Infinite  bool      `json:"infinite,omitempty"`
	Collected int       `json:"collected,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Default reply vocabularies and copy.
var (
	DefaultCancelWords = []string{"cancel", "exit"}
	DefaultStopWords   = []string{"stop", "done"}
)

const (
	DefaultRetryText = "That didn't work. Please try again, or reply `cancel` to stop."
	cleanupTimeout   = 5 * time.Second
)

// Opts holds Collector configuration.
type Opts struct {
	CancelWords    []string
	StopWords      []string
	RetryText      string
	DefaultTimeout time.Duration
	DefaultRetries int
	Cleanup        bool
}

// Option configures a Collector.
type Option func(*Opts)

// WithCancelWords adds cancel words to the defaults.
func WithCancelWords(words ...string) Option {
	return func(o *Opts) {
		o.CancelWords = append(o.CancelWords, words...)
	}
}

// WithStopWords replaces the words that end an infinite collection.
func WithStopWords(words ...string) Option {
	return func(o *Opts) {
		o.StopWords = words
	}
}

// WithRetryText sets the retry notice used when a request has none.
func WithRetryText(text string) Option {
	return func(o *Opts) {
		o.RetryText = text
	}
}

// WithDefaultTimeout sets the timeout used when a request has none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.DefaultTimeout = d
	}
}

// WithDefaultRetries sets the retry limit used when a request has none.
func WithDefaultRetries(n int) Option {
	return func(o *Opts) {
		o.DefaultRetries = n
	}
}

// WithCleanup deletes prompt and retry messages once a collection ends.
func WithCleanup(enabled bool) Option {
	return func(o *Opts) {
		o.Cleanup = enabled
	}
}
