// Package twiliowhatsapp wraps the Twilio API for WhatsApp integration in ArgPipe.
package twiliowhatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Sender sends and deletes WhatsApp messages through Twilio. Twilio cannot
// edit a delivered message body.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) (string, error)
	DeleteMessage(ctx context.Context, sid string) error
}

// Opts holds configuration options for the Twilio WhatsApp client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sending number, e.g. "whatsapp:+1234567890".
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// Client wraps Twilio REST API for WhatsApp
type Client struct {
	client    *twilio.RestClient
	fromWhats string
}

// NewClient creates a Twilio client. Unset options fall back to the
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER variables.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromWhats_set", cfg.FromWhats != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Client{client: client, fromWhats: WhatsAppAddress(cfg.FromWhats)}, nil
}

// WhatsAppAddress adds the "whatsapp:" channel prefix when missing.
func WhatsAppAddress(number string) string {
	number = strings.TrimSpace(number)
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}

// SendMessage sends a WhatsApp message and returns its SID.
func (c *Client) SendMessage(ctx context.Context, to string, body string) (string, error) {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(WhatsAppAddress(to))
	params.SetFrom(c.fromWhats)
	params.SetBody(body)

	resp, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendMessage failed", "to", to, "error", err)
		return "", fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	sid := ""
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	slog.Debug("Twilio message sent", "to", to, "sid", sid)
	return sid, nil
}

// DeleteMessage removes a message record from the Twilio account.
func (c *Client) DeleteMessage(ctx context.Context, sid string) error {
	if sid == "" {
		return fmt.Errorf("message sid cannot be empty")
	}
	if err := c.client.Api.DeleteMessage(sid, &twilioApi.DeleteMessageParams{}); err != nil {
		slog.Error("Twilio DeleteMessage failed", "sid", sid, "error", err)
		return fmt.Errorf("failed to delete message %s: %w", sid, err)
	}
	return nil
}

// MockClient records messages instead of calling Twilio (for tests).
type MockClient struct {
	mu           sync.Mutex
	SentMessages []SentMessage
	Deleted      []string
	SendErr      error
}

// SentMessage is a message recorded by MockClient.
type SentMessage struct {
	SID  string
	To   string
	Body string
}

// NewMockClient creates a MockClient.
func NewMockClient() *MockClient {
	return &MockClient{SentMessages: []SentMessage{}}
}

// SendMessage records the message and returns a sequential SID.
func (m *MockClient) SendMessage(ctx context.Context, to string, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return "", m.SendErr
	}
	sid := fmt.Sprintf("SM%d", len(m.SentMessages)+1)
	m.SentMessages = append(m.SentMessages, SentMessage{SID: sid, To: to, Body: body})
	return sid, nil
}

// DeleteMessage records the deleted SID.
func (m *MockClient) DeleteMessage(ctx context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deleted = append(m.Deleted, sid)
	return nil
}

// Messages returns a copy of the recorded messages.
func (m *MockClient) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.SentMessages...)
}
