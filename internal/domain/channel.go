package domain

import "context"

// OutboundMessage is an agent response to deliver through the messaging
// channel.
type OutboundMessage struct {
	UserID  string `json:"user_id"`
	To      string `json:"to"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Sender delivers outbound messages to the messaging channel.
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) error
	Name() string
}
