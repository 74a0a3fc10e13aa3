// ABOUTME: Unit tests for JWT payload decoding and expiry evaluation
// ABOUTME: Covers round-trips, malformed input, and expiry boundaries

package token

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/sjson"
)

// mint signs a token with test claims. Signing matters only for producing a
// well-formed 3-segment token; the decoder never checks the signature.
func mint(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("unit-test-secret"))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tok
}

// rewriteClaims applies an sjson mutation to the payload segment of a token.
func rewriteClaims(t *testing.T, tok string, mutate func(payload string) string) string {
	t.Helper()
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(parts))
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(mutate(string(raw))))
	return strings.Join(parts, ".")
}

func TestDecodePayload_RoundTrip(t *testing.T) {
	now := time.Now().Unix()
	exp := now + 3600
	tok := mint(t, jwt.MapClaims{
		"userId": "user-42",
		"iat":    now,
		"exp":    exp,
		"deck":   map[string]any{"name": "go-basics", "cards": 12},
	})

	p := DecodePayload(tok)
	if p == nil {
		t.Fatal("DecodePayload returned nil for well-formed token")
	}
	if p.UserID != "user-42" {
		t.Errorf("UserID = %q, want %q", p.UserID, "user-42")
	}
	if p.IssuedAt.Unix() != now {
		t.Errorf("IssuedAt = %d, want %d", p.IssuedAt.Unix(), now)
	}
	if p.ExpiresAt.Unix() != exp {
		t.Errorf("ExpiresAt = %d, want %d", p.ExpiresAt.Unix(), exp)
	}
	if got := p.Claim("deck.name").String(); got != "go-basics" {
		t.Errorf("Claim(deck.name) = %q, want %q", got, "go-basics")
	}
	if got := p.Claim("deck.cards").Int(); got != 12 {
		t.Errorf("Claim(deck.cards) = %d, want 12", got)
	}
}

func TestDecodePayload_PaddedSegment(t *testing.T) {
	// Some issuers emit padded base64url. Re-encode the payload with padding
	// and check the decoder still accepts it.
	tok := mint(t, jwt.MapClaims{"userId": "u1", "exp": time.Now().Unix() + 60})
	parts := strings.Split(tok, ".")
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	parts[1] = base64.URLEncoding.EncodeToString(raw) // padded variant
	padded := strings.Join(parts, ".")

	p := DecodePayload(padded)
	if p == nil {
		t.Fatal("DecodePayload returned nil for padded payload segment")
	}
	if p.UserID != "u1" {
		t.Errorf("UserID = %q, want %q", p.UserID, "u1")
	}
}

func TestDecodePayload_Malformed(t *testing.T) {
	valid := mint(t, jwt.MapClaims{"userId": "u1"})

	tests := []struct {
		name string
		tok  string
	}{
		{"empty", ""},
		{"two segments", "aaaa.bbbb"},
		{"four segments", valid + ".extra"},
		{"invalid base64", "aaaa.!!!!.cccc"},
		{"payload not json", "aaaa." + base64.RawURLEncoding.EncodeToString([]byte("not json")) + ".cccc"},
		{"payload json null", "aaaa." + base64.RawURLEncoding.EncodeToString([]byte("null")) + ".cccc"},
		{"payload json array", "aaaa." + base64.RawURLEncoding.EncodeToString([]byte("[1,2]")) + ".cccc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if p := DecodePayload(tt.tok); p != nil {
				t.Errorf("DecodePayload(%q) = %+v, want nil", tt.tok, p)
			}
		})
	}
}

func TestIsExpired_Boundaries(t *testing.T) {
	now := time.Now().Unix()

	future := mint(t, jwt.MapClaims{"userId": "u1", "exp": now + 10})
	if IsExpired(future) {
		t.Error("token expiring in 10s should not be expired")
	}

	past := mint(t, jwt.MapClaims{"userId": "u1", "exp": now - 10})
	if !IsExpired(past) {
		t.Error("token expired 10s ago should be expired")
	}
}

func TestIsExpired_FailClosed(t *testing.T) {
	if !IsExpired("not-a-token") {
		t.Error("malformed token should be expired")
	}

	// Strip the exp claim from an otherwise valid token
	tok := mint(t, jwt.MapClaims{"userId": "u1", "exp": time.Now().Unix() + 3600})
	noExp := rewriteClaims(t, tok, func(payload string) string {
		out, err := sjson.Delete(payload, "exp")
		if err != nil {
			t.Fatalf("sjson.Delete failed: %v", err)
		}
		return out
	})
	if !IsExpired(noExp) {
		t.Error("token without exp claim should be expired")
	}
	if _, ok := ExpiresAt(noExp); ok {
		t.Error("ExpiresAt should report absence for token without exp")
	}
	if r := Remaining(noExp); r != 0 {
		t.Errorf("Remaining = %v for token without exp, want 0", r)
	}
}

func TestRemaining_ThirtyDays(t *testing.T) {
	exp := time.Now().Add(30 * 24 * time.Hour).Unix()
	tok := mint(t, jwt.MapClaims{"userId": "u1", "exp": exp})

	if IsExpired(tok) {
		t.Fatal("token expiring in 30 days should not be expired")
	}

	r := Remaining(tok)
	lo := time.Duration(29.9 * 24 * float64(time.Hour))
	hi := time.Duration(30.1 * 24 * float64(time.Hour))
	if r < lo || r > hi {
		t.Errorf("Remaining = %v, want within [%v, %v]", r, lo, hi)
	}
}

func TestRemaining_NeverNegative(t *testing.T) {
	tok := mint(t, jwt.MapClaims{"userId": "u1", "exp": time.Now().Unix() - 60})
	if r := Remaining(tok); r != 0 {
		t.Errorf("Remaining = %v for expired token, want 0", r)
	}
}
