// ABOUTME: Session lifecycle: startup bootstrap, login/logout, auto-logout timer
// ABOUTME: Bridges the credential store, token inspection, and the API client

package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/flashvault/go-client/apiclient"
	"github.com/flashvault/go-client/credstore"
	"github.com/flashvault/go-client/models"
	"github.com/flashvault/go-client/token"
)

// Manager owns the session lifecycle. It is the single writer of the API
// client's token slot: Bootstrap at startup, Login after authentication,
// Logout on user action, and the auto-logout timer on expiry.
type Manager struct {
	store  *credstore.Store
	client *apiclient.Client

	sf singleflight.Group

	mu       sync.Mutex
	timer    *time.Timer
	onLogout func()
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogoutCallback registers a hook invoked after an automatic logout
// (expired token at startup is not "automatic": Bootstrap's return value
// covers that). Used to drive the UI back to an unauthenticated state.
func WithLogoutCallback(fn func()) Option {
	return func(m *Manager) { m.onLogout = fn }
}

func NewManager(store *credstore.Store, client *apiclient.Client, opts ...Option) *Manager {
	m := &Manager{store: store, client: client}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Bootstrap restores the session at app start: runs the one-time storage
// migration, loads the persisted token, and either authenticates the client
// or tears stale credentials down. Returns whether the user is
// authenticated. Concurrent calls are coalesced into one execution.
func (m *Manager) Bootstrap(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	v, err, _ := m.sf.Do("bootstrap", func() (interface{}, error) {
		return m.bootstrap()
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (m *Manager) bootstrap() (bool, error) {
	if _, err := m.store.MigrateToSecure(); err != nil {
		return false, err
	}

	tok, ok := m.store.AuthToken()
	if !ok || tok == "" {
		slog.Debug("no stored token, starting unauthenticated")
		return false, nil
	}

	if token.IsExpired(tok) {
		slog.Info("stored token expired, clearing credentials")
		m.client.ClearToken()
		if err := m.store.Logout(); err != nil {
			return false, err
		}
		return false, nil
	}

	m.client.SetToken(tok)
	remaining := token.Remaining(tok)
	m.armAutoLogout(remaining)
	slog.Info("session restored", "expires_in", remaining)
	return true, nil
}

// Login persists the credentials and authenticates the client. The token is
// written before the profile; a crash between the two leaves a usable
// session, and a missing profile is tolerated everywhere.
func (m *Manager) Login(tok string, profile *models.UserProfile) error {
	if err := m.store.SetAuthToken(tok); err != nil {
		return err
	}
	if profile != nil {
		if err := m.store.SetUserProfile(profile); err != nil {
			return err
		}
	}
	m.client.SetToken(tok)
	m.armAutoLogout(token.Remaining(tok))
	return nil
}

// Logout ends the session: timer off, in-memory token cleared, secret tier
// wiped. Idempotent.
func (m *Manager) Logout() error {
	m.Stop()
	m.client.ClearToken()
	return m.store.Logout()
}

// Stop cancels the auto-logout timer. Call on shutdown.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// armAutoLogout schedules a teardown when the token's lifetime runs out.
// Re-arming replaces any previous timer.
func (m *Manager) armAutoLogout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
	}
	if d <= 0 {
		m.timer = nil
		return
	}
	m.timer = time.AfterFunc(d, m.expire)
}

func (m *Manager) expire() {
	slog.Info("token lifetime elapsed, logging out")
	m.client.ClearToken()
	if err := m.store.Logout(); err != nil {
		slog.Error("failed to clear credentials on auto-logout", "error", err)
	}
	if m.onLogout != nil {
		m.onLogout()
	}
}
