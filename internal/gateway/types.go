package gateway

import (
	"context"
	"errors"
	"time"
)

// ErrBlockedByUser means the platform refused delivery because the recipient
// blocked the bot or closed DMs. The notifier disables notifications on it.
var ErrBlockedByUser = errors.New("recipient blocked the bot")

// Adapter is a chat platform connection: one per platform.
type Adapter interface {
	Platform() string
	Connect(ctx context.Context) error
	Send(ctx context.Context, msg *OutboundMessage) error
	OnMessage(handler MessageHandler)
	Close() error
}

// MessageHandler processes inbound messages from any platform.
type MessageHandler func(msg *InboundMessage)

// InboundMessage is a normalized message from any platform.
type InboundMessage struct {
	Platform  string    `json:"platform"`
	ChannelID string    `json:"channel_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// OutboundMessage is a reply sent to a platform channel. Options, when set,
// render as a numbered answer list; the user replies with the number or the
// option text.
type OutboundMessage struct {
	Platform  string   `json:"platform"`
	ChannelID string   `json:"channel_id"`
	Content   string   `json:"content"`
	Options   []string `json:"options,omitempty"`
}
