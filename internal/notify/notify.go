// Package notify declares the status-channel interface used by the
// executor and scan scheduler. Concrete senders (Telegram, Discord, etc.)
// are out of scope; only a logging stub is provided.
package notify

import "github.com/rs/zerolog"

// Notifier delivers a status update to whatever downstream channel is
// configured. Delivery is best-effort; failures are not surfaced as
// pipeline errors.
type Notifier interface {
	Notify(event string, fields map[string]any)
}

// LogNotifier logs every notification instead of sending it anywhere,
// standing in for the concrete messaging senders the core pipeline treats
// as an external collaborator.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) Notify(event string, fields map[string]any) {
	e := n.Log.Info().Str("event", event)
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	e.Msg("notification")
}
