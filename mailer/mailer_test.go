package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunevault/authcore"
)

func TestRoutingKeys(t *testing.T) {
	cases := map[authcore.MessageKind]string{
		authcore.MailVerification:  "email.verification",
		authcore.MailPasswordReset: "email.password_reset",
	}
	for kind, want := range cases {
		got, err := routingKey(kind)
		if err != nil {
			t.Fatalf("routingKey(%q) failed: %v", kind, err)
		}
		if got != want {
			t.Fatalf("routingKey(%q): got %q, want %q", kind, got, want)
		}
	}

	if _, err := routingKey("smoke-signal"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestPayloadEncoding(t *testing.T) {
	body, err := json.Marshal(payload{
		To:         "alice@example.com",
		Name:       "Alice",
		Kind:       string(authcore.MailPasswordReset),
		Token:      "deadbeef",
		TTLSeconds: 600,
	})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded["to"] != "alice@example.com" || decoded["kind"] != "password_reset" {
		t.Fatalf("unexpected payload: %v", decoded)
	}
	if decoded["ttl_seconds"] != float64(600) {
		t.Fatalf("expected ttl_seconds 600, got %v", decoded["ttl_seconds"])
	}
}

func TestLogMailerOmitsToken(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogMailer(zerolog.New(&buf))

	err := m.Send(context.Background(), authcore.MailMessage{
		To:    "alice@example.com",
		Name:  "Alice",
		Kind:  authcore.MailVerification,
		Token: "secret-raw-token",
		TTL:   time.Hour,
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if bytes.Contains(buf.Bytes(), []byte("secret-raw-token")) {
		t.Fatal("raw token must never be logged")
	}
	if !bytes.Contains(buf.Bytes(), []byte("alice@example.com")) {
		t.Fatal("expected recipient in log line")
	}
}

func TestChanMailerDelivers(t *testing.T) {
	m := NewChanMailer(1)

	msg := authcore.MailMessage{To: "alice@example.com", Kind: authcore.MailVerification, Token: "tok"}
	if err := m.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	got := <-m.Messages()
	if got.Token != "tok" {
		t.Fatalf("unexpected message: %+v", got)
	}

	// Full buffer is an error, not a block.
	if err := m.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := m.Send(context.Background(), msg); err == nil {
		t.Fatal("expected error when buffer is full")
	}
}
