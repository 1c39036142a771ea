package session

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"nexus-backend/internal/models"
	"nexus-backend/internal/redis"
)

var testKey = []byte("0123456789abcdef0123456789abcdef") // 32 bytes

func newTestManager(t *testing.T, encKey []byte) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	kv := redis.NewFromAddr(mr.Addr())
	t.Cleanup(func() { kv.Close() })
	return NewManager(slog.New(slog.NewTextHandler(io.Discard, nil)), kv, encKey), mr
}

func TestEnsure_CreatesAnonymousSession(t *testing.T) {
	m, mr := newTestManager(t, nil)
	ctx := context.Background()

	sid, err := m.Ensure(ctx, "")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if len(sid) != sidLength {
		t.Errorf("expected %d-char id, got %d", sidLength, len(sid))
	}
	if !mr.Exists("session:" + sid) {
		t.Error("expected session record in kv")
	}
}

func TestEnsure_ReusesLiveSession(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	sid, err := m.Ensure(ctx, "")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	again, err := m.Ensure(ctx, sid)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if again != sid {
		t.Errorf("expected same sid, got %q then %q", sid, again)
	}
}

func TestEnsure_ReplacesUnknownSid(t *testing.T) {
	m, _ := newTestManager(t, nil)

	sid, err := m.Ensure(context.Background(), "stale-or-forged")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if sid == "stale-or-forged" {
		t.Error("unknown sid must be replaced")
	}
}

func TestGet_AbsentSessionIsNil(t *testing.T) {
	m, _ := newTestManager(t, nil)

	sess, err := m.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess != nil {
		t.Errorf("expected nil, got %+v", sess)
	}
}

func TestSaveGet_RoundTripsUserAndIdentities(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	sid, err := m.Ensure(ctx, "")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	sess, err := m.Get(ctx, sid)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	sess.User = &models.SessionUser{ID: "u1", DisplayName: "Player"}
	sess.Twitch = &models.LinkedIdentity{ID: "t1", Login: "player", AccessToken: "tok"}
	if err := m.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := m.Get(ctx, sid)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.User == nil || got.User.ID != "u1" {
		t.Errorf("user lost: %+v", got.User)
	}
	if got.Twitch == nil || got.Twitch.AccessToken != "tok" {
		t.Errorf("identity lost: %+v", got.Twitch)
	}
}

func TestSave_EncryptsTokensAtRest(t *testing.T) {
	m, mr := newTestManager(t, testKey)
	ctx := context.Background()

	sid, err := m.Ensure(ctx, "")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	sess := &models.Session{
		ID:     sid,
		User:   &models.SessionUser{ID: "u1"},
		Twitch: &models.LinkedIdentity{ID: "t1", AccessToken: "super-secret-token"},
	}
	if err := m.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	// caller's copy stays plaintext
	if sess.Twitch.AccessToken != "super-secret-token" {
		t.Errorf("save must not mutate the caller's session: %q", sess.Twitch.AccessToken)
	}

	// stored copy does not
	raw, err := mr.Get("session:" + sid)
	if err != nil {
		t.Fatalf("kv get: %v", err)
	}
	if strings.Contains(raw, "super-secret-token") {
		t.Error("token stored in plaintext")
	}
	var stored models.Session
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		t.Fatalf("unmarshal stored: %v", err)
	}
	if stored.Twitch.AccessToken == "" || stored.Twitch.AccessToken == "super-secret-token" {
		t.Errorf("expected ciphertext, got %q", stored.Twitch.AccessToken)
	}

	// read path decrypts
	got, err := m.Get(ctx, sid)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Twitch.AccessToken != "super-secret-token" {
		t.Errorf("expected decrypted token, got %q", got.Twitch.AccessToken)
	}
}

func TestGet_KeyRotationDropsTokensNotSession(t *testing.T) {
	m, mr := newTestManager(t, testKey)
	ctx := context.Background()

	sid, err := m.Ensure(ctx, "")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	sess := &models.Session{
		ID:     sid,
		User:   &models.SessionUser{ID: "u1"},
		Twitch: &models.LinkedIdentity{ID: "t1", AccessToken: "tok"},
	}
	if err := m.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	rotated := NewManager(slog.New(slog.NewTextHandler(io.Discard, nil)),
		redis.NewFromAddr(mr.Addr()), []byte("fedcba9876543210fedcba9876543210"))

	got, err := rotated.Get(ctx, sid)
	if err != nil {
		t.Fatalf("get after rotation must not fail: %v", err)
	}
	if got == nil || got.User == nil || got.User.ID != "u1" {
		t.Errorf("session must survive rotation: %+v", got)
	}
	if got.Twitch.AccessToken != "" {
		t.Errorf("unreadable token must be dropped, got %q", got.Twitch.AccessToken)
	}
}

func TestDestroy(t *testing.T) {
	m, mr := newTestManager(t, nil)
	ctx := context.Background()

	sid, err := m.Ensure(ctx, "")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := m.Destroy(ctx, sid); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if mr.Exists("session:" + sid) {
		t.Error("expected session gone")
	}
}
