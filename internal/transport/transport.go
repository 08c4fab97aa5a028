package transport

import "context"

// Envelope is one fully assembled outbound message.
type Envelope struct {
	Subject  string
	FromAddr string
	ReplyTo  string
	To       []string
	CC       []string
	BCC      []string
	HTML     string
	Text     string
	Headers  map[string]string
}

// Transport delivers one envelope. Implementations classify failures
// with appErrors.NewTransientDelivery / NewPermanentDelivery so the
// delivery engine can decide whether to retry.
type Transport interface {
	Send(ctx context.Context, env *Envelope) error
	Close() error
}
