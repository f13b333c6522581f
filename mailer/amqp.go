// Package mailer provides Mailer implementations: an AMQP publisher for
// production, a zerolog-backed mailer for development, and a channel
// mailer for tests.
package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tunevault/authcore"
)

const (
	// Exchange is the topic exchange mail payloads are published to.
	Exchange = "auth.events"

	routingKeyVerification  = "email.verification"
	routingKeyPasswordReset = "email.password_reset"
)

// payload is the JSON body a downstream mail worker consumes.
type payload struct {
	To         string `json:"to"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Token      string `json:"token"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

// Publisher publishes mail payloads to a durable AMQP topic exchange.
// Delivery to the recipient is the consumer's job; the publisher only
// guarantees the broker accepted the message.
type Publisher struct {
	channel *amqp.Channel
}

// NewPublisher declares the exchange on the given channel and returns a
// Publisher bound to it.
func NewPublisher(ch *amqp.Channel) (*Publisher, error) {
	err := ch.ExchangeDeclare(
		Exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("declaring exchange %q: %w", Exchange, err)
	}
	return &Publisher{channel: ch}, nil
}

// Send publishes the message with a routing key derived from its kind.
func (p *Publisher) Send(ctx context.Context, msg authcore.MailMessage) error {
	key, err := routingKey(msg.Kind)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload{
		To:         msg.To,
		Name:       msg.Name,
		Kind:       string(msg.Kind),
		Token:      msg.Token,
		TTLSeconds: int64(msg.TTL / time.Second),
	})
	if err != nil {
		return fmt.Errorf("encoding mail payload: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		Exchange,
		key,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publishing to %q: %w", Exchange, err)
	}
	return nil
}

func routingKey(kind authcore.MessageKind) (string, error) {
	switch kind {
	case authcore.MailVerification:
		return routingKeyVerification, nil
	case authcore.MailPasswordReset:
		return routingKeyPasswordReset, nil
	default:
		return "", fmt.Errorf("unknown message kind %q", kind)
	}
}
