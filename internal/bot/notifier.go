package bot

import (
	"context"

	"shop-bot/internal/chat"
	"shop-bot/internal/domain/loyalty"
)

var _ loyalty.Notifier = (*TransportNotifier)(nil)

// TransportNotifier delivers loyalty notifications through the chat
// transport. Direct chats share their ID with the user.
type TransportNotifier struct {
	transport chat.Transport
}

// NewTransportNotifier creates a TransportNotifier.
func NewTransportNotifier(t chat.Transport) *TransportNotifier {
	return &TransportNotifier{transport: t}
}

// Notify sends a plain text message to the user's direct chat.
func (n *TransportNotifier) Notify(ctx context.Context, userID int64, text string) error {
	return n.transport.Send(ctx, chat.Outgoing{ChatID: userID, Text: text})
}
