// ABOUTME: JWT payload inspection without signature verification
// ABOUTME: Decodes base64url payloads and evaluates token expiry

// Package token decodes JWT payloads for expiry and metadata inspection.
//
// Nothing here verifies signatures. The decoder trusts that tokens reaching
// it were issued by the backend and authenticated at login time; it must
// never be used as an authorization check on its own. Expiry evaluation is
// fail-closed: anything that cannot be decoded, or that carries no exp
// claim, is treated as expired.
package token

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Payload is the decoded middle segment of a JWT. IssuedAt and ExpiresAt are
// zero when the corresponding claim is absent.
type Payload struct {
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time

	raw []byte
}

// Claim looks up an arbitrary claim by gjson path ("deck.count", "roles.0").
func (p *Payload) Claim(path string) gjson.Result {
	return gjson.GetBytes(p.raw, path)
}

// HasExpiry reports whether the token carried an exp claim.
func (p *Payload) HasExpiry() bool {
	return !p.ExpiresAt.IsZero()
}

// DecodePayload extracts the payload of a JWT without verifying its
// signature. Returns nil on any malformation: wrong segment count, invalid
// base64url, or a payload that is not a JSON object. It never panics or
// returns an error; callers treat nil as "no usable token".
func DecodePayload(tok string) *Payload {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return nil
	}

	raw, err := base64URLDecode(parts[1])
	if err != nil {
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil
	}

	p := &Payload{raw: raw}
	p.UserID = gjson.GetBytes(raw, "userId").String()
	if iat := gjson.GetBytes(raw, "iat"); iat.Exists() {
		p.IssuedAt = time.Unix(iat.Int(), 0)
	}
	if exp := gjson.GetBytes(raw, "exp"); exp.Exists() {
		p.ExpiresAt = time.Unix(exp.Int(), 0)
	}
	return p
}

// IsExpired reports whether the token is past its expiry. Fail-closed: a
// token that cannot be decoded or has no exp claim is expired. There is no
// grace buffer; a token expiring this exact second counts as expired.
func IsExpired(tok string) bool {
	p := DecodePayload(tok)
	if p == nil || !p.HasExpiry() {
		return true
	}
	return !time.Now().Before(p.ExpiresAt)
}

// ExpiresAt returns the token's expiry time. The second return value is
// false when the token cannot be decoded or carries no exp claim.
func ExpiresAt(tok string) (time.Time, bool) {
	p := DecodePayload(tok)
	if p == nil || !p.HasExpiry() {
		return time.Time{}, false
	}
	return p.ExpiresAt, true
}

// Remaining returns the token's remaining lifetime, never negative.
// Zero on any decode failure or missing exp claim.
func Remaining(tok string) time.Duration {
	expiry, ok := ExpiresAt(tok)
	if !ok {
		return 0
	}
	d := time.Until(expiry)
	if d < 0 {
		return 0
	}
	return d
}

// base64URLDecode decodes a base64url segment (RFC 4648): substitute the
// url-safe alphabet back to the standard one, pad to a multiple of 4, then
// decode with the standard alphabet. Handles both padded and unpadded input.
func base64URLDecode(s string) ([]byte, error) {
	s = strings.ReplaceAll(s, "-", "+")
	s = strings.ReplaceAll(s, "_", "/")
	if m := len(s) % 4; m != 0 {
		s += strings.Repeat("=", 4-m)
	}
	return base64.StdEncoding.DecodeString(s)
}
