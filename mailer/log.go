package mailer

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/tunevault/authcore"
)

// LogMailer writes an info line per message instead of dispatching it.
// The raw token is never logged; pair it with ChanMailer when a test
// needs the token itself.
type LogMailer struct {
	logger zerolog.Logger
}

// NewLogMailer returns a mailer that logs through the given logger.
func NewLogMailer(logger zerolog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg authcore.MailMessage) error {
	m.logger.Info().
		Str("to", msg.To).
		Str("kind", string(msg.Kind)).
		Dur("ttl", msg.TTL).
		Msg("mail dispatched")
	return nil
}

// ChanMailer delivers messages to a buffered channel. Tests read the raw
// token from the channel instead of an inbox.
type ChanMailer struct {
	ch chan authcore.MailMessage
}

// NewChanMailer returns a ChanMailer with the given buffer size.
func NewChanMailer(buffer int) *ChanMailer {
	return &ChanMailer{ch: make(chan authcore.MailMessage, buffer)}
}

func (m *ChanMailer) Send(_ context.Context, msg authcore.MailMessage) error {
	select {
	case m.ch <- msg:
		return nil
	default:
		return errors.New("mail buffer full")
	}
}

// Messages exposes the delivery channel.
func (m *ChanMailer) Messages() <-chan authcore.MailMessage {
	return m.ch
}
