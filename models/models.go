// ABOUTME: Shared data types for the FlashVault client SDK
// ABOUTME: API response envelope, per-request overrides, and user profile

package models

import (
	"encoding/json"
	"time"
)

// Envelope is the uniform result shape for every API call. The backend's
// JSON body is the source of truth for Success and Message on parseable
// responses; transport-level failures (timeout, retry exhaustion, 401, 404)
// produce synthetic envelopes with Success=false.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// DecodeData unmarshals the envelope's Data field into v.
func (e *Envelope) DecodeData(v any) error {
	return json.Unmarshal(e.Data, v)
}

// RequestConfig overrides client defaults for a single request.
// Zero values fall back to the client's configuration.
type RequestConfig struct {
	Headers   map[string]string // extra headers, override built-ins on collision
	Timeout   time.Duration     // per-attempt timeout
	Retries   int               // total attempts
	ShowError *bool             // notify the user on final failure (default true)
}

// ShowErrorEnabled resolves the ShowError flag with its default.
func (rc *RequestConfig) ShowErrorEnabled() bool {
	if rc == nil || rc.ShowError == nil {
		return true
	}
	return *rc.ShowError
}

// UserProfile is the locally persisted account snapshot.
type UserProfile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Language string `json:"language,omitempty"`
}
