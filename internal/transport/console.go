package transport

import (
	"context"
	"log"
)

// ConsoleTransport logs envelopes instead of delivering them. Used in
// development and as the default when no SMTP host is configured.
type ConsoleTransport struct{}

func NewConsoleTransport() *ConsoleTransport { return &ConsoleTransport{} }

func (t *ConsoleTransport) Send(_ context.Context, env *Envelope) error {
	log.Printf("console transport: to=%v subject=%q bytes=%d", env.To, env.Subject, len(env.HTML))
	return nil
}

func (t *ConsoleTransport) Close() error { return nil }
