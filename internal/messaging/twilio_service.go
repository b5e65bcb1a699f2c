package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/ArgPipe/internal/models"
	"github.com/BTreeMap/ArgPipe/internal/twiliowhatsapp"
)

// TwilioService implements Service using the Twilio API. Incoming messages
// arrive through TwilioWebhookHandler. Every chat is one-to-one, so the
// channel ID is the user's canonical phone number.
type TwilioService struct {
	client   twiliowhatsapp.Sender
	incoming chan models.Message
	mu       sync.RWMutex
	stopped  bool
}

// NewTwilioService creates a new TwilioService around a Twilio client or MockClient.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{
		client:   client,
		incoming: make(chan models.Message, DefaultChannelBufferSize),
	}
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp phone number.
// It removes all non-numeric characters and validates the result has at least 6 digits.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(strings.TrimPrefix(recipient, "whatsapp:"), "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	if recipient != canonical {
		slog.Debug("TwilioService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// Start is a no-op for Twilio; messages arrive through the webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the incoming channel and rejects further sends.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.incoming)
	return nil
}

func (s *TwilioService) isStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

// Send sends a message via Twilio.
func (s *TwilioService) Send(ctx context.Context, channelID string, content string) (models.MessageRef, error) {
	if s.isStopped() {
		return models.MessageRef{}, ErrServiceStopped
	}
	to, err := s.ValidateAndCanonicalizeRecipient(channelID)
	if err != nil {
		slog.Error("TwilioService Send validation error", "error", err, "to", channelID)
		return models.MessageRef{}, err
	}
	sid, err := s.client.SendMessage(ctx, "+"+to, content)
	if err != nil {
		return models.MessageRef{}, err
	}
	return models.MessageRef{ChannelID: to, ID: sid}, nil
}

// Edit cannot change a delivered WhatsApp message through Twilio, so the
// new content is sent as a fresh message.
func (s *TwilioService) Edit(ctx context.Context, ref models.MessageRef, content string) error {
	slog.Debug("TwilioService Edit unsupported, sending new message", "sid", ref.ID, "to", ref.ChannelID)
	_, err := s.Send(ctx, ref.ChannelID, content)
	return err
}

// Delete removes the message record from Twilio.
func (s *TwilioService) Delete(ctx context.Context, ref models.MessageRef) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	return s.client.DeleteMessage(ctx, ref.ID)
}

// Incoming returns the channel of messages received by the webhook.
func (s *TwilioService) Incoming() <-chan models.Message {
	return s.incoming
}

// TwilioWebhookHandler handles inbound Twilio webhook requests.
// It parses incoming messages and emits them into the Incoming() channel.
func (s *TwilioService) TwilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("Failed to parse Twilio webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := r.FormValue("From")
	body := r.FormValue("Body")
	if from == "" || body == "" {
		slog.Warn("Twilio webhook missing fields", "from_set", from != "", "body_set", body != "")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	user, err := s.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		slog.Warn("Twilio webhook invalid sender", "from", from, "error", err)
		http.Error(w, "Invalid sender", http.StatusBadRequest)
		return
	}

	msg := models.Message{
		ID:        r.FormValue("MessageSid"),
		ChannelID: user,
		UserID:    user,
		UserName:  r.FormValue("ProfileName"),
		Content:   body,
		Time:      time.Now().Unix(),
	}
	if !s.emit(msg) {
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// emit forwards msg and reports whether it was accepted.
func (s *TwilioService) emit(msg models.Message) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		slog.Warn("TwilioService dropping inbound message (service stopped)", "from", msg.UserID)
		return false
	}
	select {
	case s.incoming <- msg:
		slog.Debug("TwilioService emitted inbound message", "from", msg.UserID)
		return true
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService incoming channel blocked, dropping message", "from", msg.UserID)
		return false
	}
}
