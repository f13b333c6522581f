package internal

import (
	"encoding/hex"
	"testing"
)

func TestNewChallengeToken(t *testing.T) {
	a, err := NewChallengeToken()
	if err != nil {
		t.Fatalf("NewChallengeToken failed: %v", err)
	}
	if len(a) != 40 {
		t.Fatalf("expected 40 hex characters, got %d", len(a))
	}
	if _, err := hex.DecodeString(a); err != nil {
		t.Fatalf("token is not valid hex: %v", err)
	}

	b, err := NewChallengeToken()
	if err != nil {
		t.Fatalf("NewChallengeToken failed: %v", err)
	}
	if a == b {
		t.Fatal("two tokens must not collide")
	}
}

func TestHashChallengeToken(t *testing.T) {
	digest := HashChallengeToken("deadbeef")
	if len(digest) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(digest))
	}
	if digest != HashChallengeToken("deadbeef") {
		t.Fatal("digest must be deterministic")
	}
	if digest == HashChallengeToken("deadbeee") {
		t.Fatal("different inputs must not share a digest")
	}
}
