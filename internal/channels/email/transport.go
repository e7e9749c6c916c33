package email

import "context"

// Message is the provider-neutral outbound email.
type Message struct {
	From     string
	To       string
	ReplyTo  string
	Subject  string
	Template string
	Data     map[string]any
}

// Transport sends one message through a concrete provider.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}
