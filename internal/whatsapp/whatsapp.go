// Package whatsapp wraps the Whatsmeow client for WhatsApp integration in ArgPipe.
//
// It provides methods for sending, editing and revoking messages and exposes
// the underlying client for event handling.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/BTreeMap/ArgPipe/internal/store"
)

// Constants for WhatsApp client configuration
const (
	// DefaultSQLitePath is the default path for WhatsApp/whatsmeow SQLite database
	DefaultSQLitePath = "/var/lib/argpipe/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID suffix for regular users
	JIDSuffix = "s.whatsapp.net"
)

// Sender sends, edits and revokes WhatsApp messages (for production and testing).
// Chats are addressed by JID string; a bare phone number is treated as a user JID.
type Sender interface {
	SendText(ctx context.Context, chat string, body string) (string, error)
	EditText(ctx context.Context, chat string, id string, body string) error
	Revoke(ctx context.Context, chat string, id string) error
}

// Opts holds configuration options for the WhatsApp client.
// This focuses solely on WhatsApp/whatsmeow database configuration and login settings.
type Opts struct {
	DBDSN       string // WhatsApp/whatsmeow database connection string
	QRPath      string // path to write login QR code
	NumericCode bool   // use numeric login code instead of QR code
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithDBDSN sets the WhatsApp/whatsmeow database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) {
		o.DBDSN = dsn
	}
}

// WithQRCodeOutput instructs the WhatsApp client to write the login QR code to the specified path.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) {
		o.QRPath = path
	}
}

// WithNumericCode instructs the WhatsApp client to use numeric login code instead of QR code.
func WithNumericCode() Option {
	return func(o *Opts) {
		o.NumericCode = true
	}
}

// Client wraps the Whatsmeow client for modular use
type Client struct {
	waClient *whatsmeow.Client
}

// NewClient creates a new WhatsApp client, applying any provided options for customization.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("WhatsApp NewClient options set", "DBDSN_set", cfg.DBDSN != "", "QRPath_set", cfg.QRPath != "", "NumericCode", cfg.NumericCode)

	dbDSN := cfg.DBDSN
	if dbDSN == "" {
		dbDSN = DefaultSQLitePath
		slog.Debug("No WhatsApp database DSN provided, using default SQLite path", "default_path", dbDSN)
	}

	dbDriver := store.DetectDSNType(dbDSN)
	if dbDriver == store.DriverSQLite && !strings.Contains(dbDSN, "foreign_keys") {
		slog.Warn("SQLite database for WhatsApp does not appear to have foreign keys enabled. "+
			"Consider adding '?_foreign_keys=on' to your connection string.",
			"dsn_example", "file:"+dbDSN+"?_foreign_keys=on")
	}

	slog.Debug("WhatsApp NewClient initializing DB store", "driver", dbDriver)
	container, err := sqlstore.New(ctx, dbDriver, dbDSN, waLog.Stdout("Database", "INFO", true))
	if err != nil {
		slog.Error("Failed to initialize WhatsApp DB store", "error", err)
		return nil, fmt.Errorf("failed to initialize WhatsApp database store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		slog.Error("Failed to get first device from store", "error", err)
		return nil, fmt.Errorf("failed to get device from WhatsApp store: %w", err)
	}

	waClient := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "INFO", true))

	if waClient.Store.ID == nil {
		slog.Info("WhatsApp login required; starting QR code flow")
		qrChan, _ := waClient.GetQRChannel(ctx)
		if err := waClient.Connect(); err != nil {
			slog.Error("Failed to connect to WhatsApp during login", "error", err)
			return nil, fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
		}
		writer := io.Writer(os.Stdout)
		if cfg.QRPath != "" {
			f, ferr := os.Create(cfg.QRPath)
			if ferr != nil {
				slog.Error("Failed to create QR file", "error", ferr)
				return nil, fmt.Errorf("failed to create QR file: %w", ferr)
			}
			defer f.Close()
			writer = f
		}
		for evt := range qrChan {
			if evt.Event == "code" {
				if cfg.NumericCode {
					fmt.Fprintln(writer, evt.Code)
				} else {
					qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
				}
			} else {
				slog.Info("WhatsApp login event", "event", evt.Event)
			}
		}
	} else {
		slog.Debug("WhatsApp already logged in, connecting to server")
		if err := waClient.Connect(); err != nil {
			slog.Error("Failed to connect to WhatsApp server", "error", err)
			return nil, fmt.Errorf("failed to connect to WhatsApp server: %w", err)
		}
	}
	slog.Info("WhatsApp client connected successfully")
	return &Client{waClient: waClient}, nil
}

// ParseChat converts a chat identifier into a JID. Identifiers without a
// server part are treated as phone numbers.
func ParseChat(chat string) (types.JID, error) {
	chat = strings.TrimSpace(chat)
	if chat == "" {
		return types.EmptyJID, fmt.Errorf("chat cannot be empty")
	}
	if !strings.Contains(chat, "@") {
		return types.NewJID(strings.TrimPrefix(chat, "+"), JIDSuffix), nil
	}
	jid, err := types.ParseJID(chat)
	if err != nil {
		return types.EmptyJID, fmt.Errorf("invalid chat %q: %w", chat, err)
	}
	return jid, nil
}

func (c *Client) ready() error {
	if c.waClient == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	if c.waClient.Store == nil {
		return fmt.Errorf("whatsapp client store not available")
	}
	return nil
}

// SendText sends a text message and returns its message ID.
func (c *Client) SendText(ctx context.Context, chat string, body string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	if body == "" {
		return "", fmt.Errorf("message body cannot be empty")
	}
	jid, err := ParseChat(chat)
	if err != nil {
		return "", err
	}

	slog.Debug("Sending WhatsApp message", "chat", jid.String(), "body_length", len(body))
	resp, err := c.waClient.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(body)})
	if err != nil {
		slog.Error("Failed to send WhatsApp message", "error", err, "chat", jid.String())
		return "", fmt.Errorf("failed to send message to %s: %w", jid.String(), err)
	}
	return string(resp.ID), nil
}

// EditText replaces the text of a message previously sent by this client.
func (c *Client) EditText(ctx context.Context, chat string, id string, body string) error {
	if err := c.ready(); err != nil {
		return err
	}
	jid, err := ParseChat(chat)
	if err != nil {
		return err
	}
	edit := c.waClient.BuildEdit(jid, types.MessageID(id), &waE2E.Message{Conversation: proto.String(body)})
	if _, err := c.waClient.SendMessage(ctx, jid, edit); err != nil {
		slog.Error("Failed to edit WhatsApp message", "error", err, "chat", jid.String(), "id", id)
		return fmt.Errorf("failed to edit message %s: %w", id, err)
	}
	return nil
}

// Revoke deletes a message previously sent by this client for everyone.
func (c *Client) Revoke(ctx context.Context, chat string, id string) error {
	if err := c.ready(); err != nil {
		return err
	}
	jid, err := ParseChat(chat)
	if err != nil {
		return err
	}
	revoke := c.waClient.BuildRevoke(jid, types.EmptyJID, types.MessageID(id))
	if _, err := c.waClient.SendMessage(ctx, jid, revoke); err != nil {
		slog.Error("Failed to revoke WhatsApp message", "error", err, "chat", jid.String(), "id", id)
		return fmt.Errorf("failed to revoke message %s: %w", id, err)
	}
	return nil
}

// GetClient returns the underlying whatsmeow client for event handling
func (c *Client) GetClient() *whatsmeow.Client {
	return c.waClient
}

// Disconnect closes the connection to WhatsApp.
func (c *Client) Disconnect() {
	if c.waClient != nil {
		c.waClient.Disconnect()
	}
}

// MockClient records messages instead of talking to WhatsApp (for tests).
type MockClient struct {
	mu      sync.Mutex
	nextID  int
	Sent    []MockMessage
	Edited  []MockMessage
	Revoked []string
}

// MockMessage is a message recorded by MockClient.
type MockMessage struct {
	Chat string
	ID   string
	Body string
}

// NewMockClient creates a MockClient.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// SendText records the message and returns a sequential ID.
func (m *MockClient) SendText(ctx context.Context, chat string, body string) (string, error) {
	if _, err := ParseChat(chat); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fmt.Sprintf("wa-%d", m.nextID)
	m.Sent = append(m.Sent, MockMessage{Chat: chat, ID: id, Body: body})
	return id, nil
}

// EditText records the edit.
func (m *MockClient) EditText(ctx context.Context, chat string, id string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Edited = append(m.Edited, MockMessage{Chat: chat, ID: id, Body: body})
	return nil
}

// Revoke records the revoked message ID.
func (m *MockClient) Revoke(ctx context.Context, chat string, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Revoked = append(m.Revoked, id)
	return nil
}
