package store

import "context"

// DedupRepo remembers inbound message ids so redelivered messages are
// handled once. Transports redeliver on reconnect (WhatsApp) and on webhook
// retries (Twilio).
type DedupRepo interface {
	// RecordInbound stores messageID for channelID. It returns false when the
	// message was already recorded.
	RecordInbound(ctx context.Context, channelID, messageID string) (bool, error)
}
