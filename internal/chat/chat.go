// Package chat defines the messaging transport the bot speaks through.
// The concrete wire protocol lives in subpackages; the dispatcher only
// depends on these types.
package chat

import "context"

// Update is one inbound event from the transport.
type Update struct {
	ID       int64
	Message  *Message
	Callback *Callback
}

// Message is an inbound text message.
type Message struct {
	ChatID    int64
	UserID    int64
	FirstName string
	Text      string
}

// Callback is an inline button press.
type Callback struct {
	ID        string
	ChatID    int64
	UserID    int64
	MessageID int64
	Data      string
}

// Button is one inline keyboard button.
type Button struct {
	Text string
	Data string
}

// Outgoing is a message to deliver, optionally with an inline keyboard
// laid out as rows of buttons.
type Outgoing struct {
	ChatID   int64
	Text     string
	Keyboard [][]Button
}

// Transport delivers updates from and messages to the chat platform.
type Transport interface {
	// Updates returns a channel of inbound events. The channel closes when
	// ctx is cancelled or the transport fails permanently.
	Updates(ctx context.Context) <-chan Update
	Send(ctx context.Context, msg Outgoing) error
	// Edit replaces the text and keyboard of a previously sent message.
	Edit(ctx context.Context, chatID, messageID int64, msg Outgoing) error
	// AnswerCallback acknowledges a button press so the client stops the
	// loading indicator.
	AnswerCallback(ctx context.Context, callbackID, text string) error
}
