package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/BTreeMap/ArgPipe/internal/models"
	"github.com/BTreeMap/ArgPipe/internal/whatsapp"
)

// WhatsAppService implements Service using the Whatsmeow-based whatsapp client.
type WhatsAppService struct {
	client   whatsapp.Sender
	waClient *whatsapp.Client // access to the underlying client for event handling
	incoming chan models.Message
	mu       sync.RWMutex
	stopped  bool
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given Sender.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	service := &WhatsAppService{
		client:   client,
		incoming: make(chan models.Message, DefaultChannelBufferSize),
	}
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}
	return service
}

// Start registers the event handler on the underlying client.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Debug("WhatsAppService no full client available, skipping event handling (likely mock)")
		return nil
	}
	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			s.handleIncomingMessage(v)
		case *events.Connected:
			slog.Info("WhatsAppService connected")
		case *events.Disconnected:
			slog.Warn("WhatsAppService disconnected")
		}
	})
	slog.Debug("WhatsAppService event handler registered")
	return nil
}

// Stop closes the incoming channel. Later sends fail with ErrServiceStopped.
func (s *WhatsAppService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.incoming)
	if s.waClient != nil {
		s.waClient.Disconnect()
	}
	slog.Info("WhatsAppService stopped")
	return nil
}

func (s *WhatsAppService) isStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

// Send sends a text message to a chat.
func (s *WhatsAppService) Send(ctx context.Context, channelID string, content string) (models.MessageRef, error) {
	if s.isStopped() {
		return models.MessageRef{}, ErrServiceStopped
	}
	id, err := s.client.SendText(ctx, channelID, content)
	if err != nil {
		slog.Error("WhatsAppService Send error", "error", err, "channel", channelID)
		return models.MessageRef{}, err
	}
	slog.Debug("WhatsAppService message sent", "channel", channelID, "id", id)
	return models.MessageRef{ChannelID: channelID, ID: id}, nil
}

// Edit replaces the text of a sent message.
func (s *WhatsAppService) Edit(ctx context.Context, ref models.MessageRef, content string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	return s.client.EditText(ctx, ref.ChannelID, ref.ID, content)
}

// Delete revokes a sent message for everyone.
func (s *WhatsAppService) Delete(ctx context.Context, ref models.MessageRef) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	return s.client.Revoke(ctx, ref.ChannelID, ref.ID)
}

// Incoming returns a channel of incoming user messages.
func (s *WhatsAppService) Incoming() <-chan models.Message {
	return s.incoming
}

// MessageFromEvent converts a whatsmeow message event into a chat message.
// It reports false for messages without text and for the bot's own messages.
func MessageFromEvent(evt *events.Message) (models.Message, bool) {
	if evt == nil || evt.Message == nil || evt.Info.IsFromMe {
		return models.Message{}, false
	}
	var text string
	switch {
	case evt.Message.GetConversation() != "":
		text = evt.Message.GetConversation()
	case evt.Message.GetExtendedTextMessage().GetText() != "":
		text = evt.Message.GetExtendedTextMessage().GetText()
	default:
		return models.Message{}, false
	}
	return models.Message{
		ID:        string(evt.Info.ID),
		ChannelID: evt.Info.Chat.String(),
		UserID:    evt.Info.Sender.ToNonAD().String(),
		UserName:  evt.Info.PushName,
		Content:   text,
		Time:      evt.Info.Timestamp.Unix(),
	}, true
}

func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	msg, ok := MessageFromEvent(evt)
	if !ok {
		slog.Debug("WhatsAppService ignoring message", "from", evt.Info.Sender.String())
		return
	}
	s.emit(msg)
}

// emit forwards msg unless the service is stopped or the channel stays full.
func (s *WhatsAppService) emit(msg models.Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return
	}
	select {
	case s.incoming <- msg:
		slog.Debug("WhatsAppService incoming message forwarded", "channel", msg.ChannelID, "user", msg.UserID)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService incoming channel blocked, dropping message", "channel", msg.ChannelID, "timeout", DefaultChannelTimeout)
	}
}
