// ABOUTME: Unit tests for the session lifecycle manager
// ABOUTME: Covers bootstrap restore/teardown, migration, login/logout, auto-logout timer

package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/flashvault/go-client/apiclient"
	"github.com/flashvault/go-client/config"
	"github.com/flashvault/go-client/credstore"
	"github.com/flashvault/go-client/models"
)

func testKeys() config.StorageKeys {
	return config.StorageKeys{
		AuthToken:     "auth_token",
		UserProfile:   "user_profile",
		Theme:         "theme",
		Language:      "language",
		MigrationFlag: "storage_migrated",
	}
}

func testClient(t *testing.T) *apiclient.Client {
	t.Helper()
	return apiclient.New(&config.Config{
		APIBaseURL: "http://localhost:0",
		APITimeout: time.Second,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
	})
}

func testStore() *credstore.Store {
	return credstore.New(credstore.NewMemStore(), credstore.NewMemStore(), testKeys())
}

func mint(t *testing.T, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": "user-77",
		"iat":    now.Unix(),
		"exp":    now.Add(ttl).Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestBootstrap_NoStoredToken(t *testing.T) {
	client := testClient(t)
	m := NewManager(testStore(), client)
	defer m.Stop()

	ok, err := m.Bootstrap(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("bootstrap without a stored token should report unauthenticated")
	}
	if client.Token() != "" {
		t.Error("client should stay unauthenticated")
	}
}

func TestBootstrap_RestoresValidSession(t *testing.T) {
	client := testClient(t)
	store := testStore()
	tok := mint(t, time.Hour)
	if err := store.SetAuthToken(tok); err != nil {
		t.Fatal(err)
	}

	m := NewManager(store, client)
	defer m.Stop()

	ok, err := m.Bootstrap(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("valid stored token should restore the session")
	}
	if client.Token() != tok {
		t.Error("client token not set from storage")
	}
}

func TestBootstrap_ExpiredTokenTearsDown(t *testing.T) {
	client := testClient(t)
	client.SetToken("stale-in-memory")
	store := testStore()
	if err := store.SetAuthToken(mint(t, -time.Hour)); err != nil {
		t.Fatal(err)
	}

	m := NewManager(store, client)
	defer m.Stop()

	ok, err := m.Bootstrap(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expired token should report unauthenticated")
	}
	if client.Token() != "" {
		t.Error("client token should be cleared")
	}
	if _, present := store.AuthToken(); present {
		t.Error("expired token should be wiped from storage")
	}
}

func TestBootstrap_MalformedTokenTearsDown(t *testing.T) {
	client := testClient(t)
	store := testStore()
	if err := store.SetAuthToken("not.a.jwt"); err != nil {
		t.Fatal(err)
	}

	m := NewManager(store, client)
	defer m.Stop()

	ok, err := m.Bootstrap(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("undecodable token should report unauthenticated")
	}
	if _, present := store.AuthToken(); present {
		t.Error("undecodable token should be wiped from storage")
	}
}

func TestBootstrap_RunsStorageMigration(t *testing.T) {
	client := testClient(t)
	store := testStore()
	tok := mint(t, time.Hour)
	// Legacy layout: token in the plain tier.
	if err := store.SetPref(testKeys().AuthToken, tok); err != nil {
		t.Fatal(err)
	}

	m := NewManager(store, client)
	defer m.Stop()

	ok, err := m.Bootstrap(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("migrated token should restore the session")
	}
	if client.Token() != tok {
		t.Error("client token not set from migrated storage")
	}
	if _, present := store.Pref(testKeys().AuthToken); present {
		t.Error("plain-tier token copy should be removed by migration")
	}
}

func TestBootstrap_CanceledContext(t *testing.T) {
	m := NewManager(testStore(), testClient(t))
	defer m.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Bootstrap(ctx); err == nil {
		t.Error("bootstrap with canceled context should fail")
	}
}

func TestLoginAndLogout(t *testing.T) {
	client := testClient(t)
	store := testStore()
	m := NewManager(store, client)
	defer m.Stop()

	tok := mint(t, time.Hour)
	profile := &models.UserProfile{ID: "user-77", Username: "dana"}
	if err := m.Login(tok, profile); err != nil {
		t.Fatal(err)
	}
	if client.Token() != tok {
		t.Error("login should authenticate the client")
	}
	if !store.IsAuthenticated() {
		t.Error("login should persist the token")
	}
	if p := store.UserProfile(); p == nil || p.Username != "dana" {
		t.Errorf("profile = %+v, want dana", p)
	}

	if err := m.Logout(); err != nil {
		t.Fatal(err)
	}
	if client.Token() != "" {
		t.Error("logout should clear the client token")
	}
	if store.IsAuthenticated() {
		t.Error("logout should wipe the persisted token")
	}
	// Idempotent.
	if err := m.Logout(); err != nil {
		t.Fatal(err)
	}
}

func TestAutoLogout_FiresWhenLifetimeElapses(t *testing.T) {
	client := testClient(t)
	store := testStore()

	var fired atomic.Int32
	m := NewManager(store, client, WithLogoutCallback(func() { fired.Add(1) }))
	defer m.Stop()

	tok := mint(t, time.Hour)
	client.SetToken(tok)
	store.SetAuthToken(tok)

	// JWT exp has second granularity; drive the timer directly to keep the
	// test fast.
	m.armAutoLogout(20 * time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if fired.Load() != 1 {
		t.Fatalf("logout callback fired %d times, want 1", fired.Load())
	}
	if client.Token() != "" {
		t.Error("auto-logout should clear the client token")
	}
	if store.IsAuthenticated() {
		t.Error("auto-logout should wipe the persisted token")
	}
}

func TestAutoLogout_StopCancelsTimer(t *testing.T) {
	client := testClient(t)
	var fired atomic.Int32
	m := NewManager(testStore(), client, WithLogoutCallback(func() { fired.Add(1) }))

	client.SetToken("live")
	m.armAutoLogout(20 * time.Millisecond)
	m.Stop()

	time.Sleep(60 * time.Millisecond)
	if fired.Load() != 0 {
		t.Error("stopped timer should not fire")
	}
	if client.Token() != "live" {
		t.Error("stopped timer should leave the session alone")
	}
}

func TestAutoLogout_RearmReplacesTimer(t *testing.T) {
	client := testClient(t)
	var fired atomic.Int32
	m := NewManager(testStore(), client, WithLogoutCallback(func() { fired.Add(1) }))
	defer m.Stop()

	m.armAutoLogout(10 * time.Millisecond)
	m.armAutoLogout(time.Hour)

	time.Sleep(60 * time.Millisecond)
	if fired.Load() != 0 {
		t.Error("replaced timer should not fire")
	}
}
