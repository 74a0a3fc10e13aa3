// ABOUTME: Two-tier credential store: encrypted secrets and plain preferences
// ABOUTME: Typed wrappers for auth token, user profile, logout, and migration

package credstore

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/flashvault/go-client/config"
	"github.com/flashvault/go-client/models"
)

// Write-path errors carry fixed messages so backend internals never leak to
// callers. The underlying cause is logged, not returned.
var (
	ErrStoreSecure  = errors.New("failed to store secure data")
	ErrRemoveSecure = errors.New("failed to remove secure data")
	ErrClearSecure  = errors.New("failed to clear secure data")
	ErrStorePlain   = errors.New("failed to store data")
	ErrRemovePlain  = errors.New("failed to remove data")
	ErrClearPlain   = errors.New("failed to clear data")
)

// Store exposes two independent storage tiers behind one interface: an
// encrypted secret tier for credentials and a plain tier for preferences.
// Clearing one tier never affects the other.
//
// Error policy is asymmetric on purpose: writes fail hard with a typed
// error, reads fail soft and report "absent". A read failure is therefore
// indistinguishable from "not logged in" -- the session bootstrap depends on
// that equivalence.
type Store struct {
	secrets Backend
	prefs   Backend
	keys    config.StorageKeys
}

func New(secrets, prefs Backend, keys config.StorageKeys) *Store {
	return &Store{secrets: secrets, prefs: prefs, keys: keys}
}

// --- secret tier ---

func (s *Store) SetSecret(key, value string) error {
	if err := s.secrets.Set(key, value); err != nil {
		slog.Error("secure store write failed", "key", key, "error", err)
		return ErrStoreSecure
	}
	return nil
}

// Secret returns the value for key, or absent on a read failure.
func (s *Store) Secret(key string) (string, bool) {
	v, ok, err := s.secrets.Get(key)
	if err != nil {
		slog.Warn("secure store read failed, treating as absent", "key", key, "error", err)
		return "", false
	}
	return v, ok
}

func (s *Store) RemoveSecret(key string) error {
	if err := s.secrets.Remove(key); err != nil {
		slog.Error("secure store remove failed", "key", key, "error", err)
		return ErrRemoveSecure
	}
	return nil
}

func (s *Store) ClearSecrets() error {
	if err := s.secrets.Clear(); err != nil {
		slog.Error("secure store clear failed", "error", err)
		return ErrClearSecure
	}
	return nil
}

// --- plain tier ---

func (s *Store) SetPref(key, value string) error {
	if err := s.prefs.Set(key, value); err != nil {
		slog.Error("preference write failed", "key", key, "error", err)
		return ErrStorePlain
	}
	return nil
}

func (s *Store) Pref(key string) (string, bool) {
	v, ok, err := s.prefs.Get(key)
	if err != nil {
		slog.Warn("preference read failed, treating as absent", "key", key, "error", err)
		return "", false
	}
	return v, ok
}

func (s *Store) RemovePref(key string) error {
	if err := s.prefs.Remove(key); err != nil {
		slog.Error("preference remove failed", "key", key, "error", err)
		return ErrRemovePlain
	}
	return nil
}

func (s *Store) ClearPrefs() error {
	if err := s.prefs.Clear(); err != nil {
		slog.Error("preference clear failed", "error", err)
		return ErrClearPlain
	}
	return nil
}

// --- typed convenience wrappers ---

func (s *Store) SetAuthToken(tok string) error {
	return s.SetSecret(s.keys.AuthToken, tok)
}

func (s *Store) AuthToken() (string, bool) {
	return s.Secret(s.keys.AuthToken)
}

func (s *Store) SetUserProfile(p *models.UserProfile) error {
	data, err := json.Marshal(p)
	if err != nil {
		slog.Error("user profile marshal failed", "error", err)
		return ErrStoreSecure
	}
	return s.SetSecret(s.keys.UserProfile, string(data))
}

// UserProfile returns the stored profile, or nil when absent or unparseable.
func (s *Store) UserProfile() *models.UserProfile {
	raw, ok := s.Secret(s.keys.UserProfile)
	if !ok {
		return nil
	}
	var p models.UserProfile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		slog.Warn("stored user profile is unparseable, treating as absent", "error", err)
		return nil
	}
	return &p
}

func (s *Store) SetTheme(theme string) error {
	return s.SetPref(s.keys.Theme, theme)
}

func (s *Store) Theme() (string, bool) {
	return s.Pref(s.keys.Theme)
}

func (s *Store) SetLanguage(lang string) error {
	return s.SetPref(s.keys.Language, lang)
}

func (s *Store) Language() (string, bool) {
	return s.Pref(s.keys.Language)
}

// Logout wipes the secret tier. Preferences survive: theme and language are
// not account state. Idempotent.
func (s *Store) Logout() error {
	return s.ClearSecrets()
}

// IsAuthenticated reports whether an auth token is present.
func (s *Store) IsAuthenticated() bool {
	tok, ok := s.AuthToken()
	return ok && tok != ""
}

// MigrateToSecure is a one-time move of the auth token and user profile from
// the plain tier into the secret tier, for installs that predate encrypted
// storage. Guarded by a migration-flag preference; re-running is a no-op.
// Returns whether anything was moved.
func (s *Store) MigrateToSecure() (bool, error) {
	if _, done := s.Pref(s.keys.MigrationFlag); done {
		return false, nil
	}

	moved := false
	if tok, ok := s.Pref(s.keys.AuthToken); ok && tok != "" {
		if err := s.SetAuthToken(tok); err != nil {
			return false, err
		}
		if err := s.RemovePref(s.keys.AuthToken); err != nil {
			return false, err
		}
		moved = true
	}
	if raw, ok := s.Pref(s.keys.UserProfile); ok && raw != "" {
		if err := s.SetSecret(s.keys.UserProfile, raw); err != nil {
			return false, err
		}
		if err := s.RemovePref(s.keys.UserProfile); err != nil {
			return false, err
		}
		moved = true
	}

	if err := s.SetPref(s.keys.MigrationFlag, "1"); err != nil {
		return moved, err
	}
	if moved {
		slog.Info("migrated credentials from plain to secure storage")
	}
	return moved, nil
}
