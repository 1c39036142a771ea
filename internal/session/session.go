package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"nexus-backend/internal/models"
	"nexus-backend/internal/redis"
	"nexus-backend/internal/security"
)

// CookieName is the browser session cookie.
const CookieName = "nexus_session"

const sidLength = 32

func sessionKey(sid string) string { return "session:" + sid }

// Manager stores browser sessions in the KV store. Linked-identity OAuth
// tokens are encrypted at rest when a key is configured; records round-trip
// through Save/Get with plaintext tokens in memory only.
type Manager struct {
	kv     *redis.Client
	log    *slog.Logger
	encKey []byte // nil disables token encryption
}

func NewManager(log *slog.Logger, kv *redis.Client, encKey []byte) *Manager {
	return &Manager{kv: kv, log: log, encKey: encKey}
}

// Ensure returns the given session id if it exists, creating an anonymous
// session otherwise.
func (m *Manager) Ensure(ctx context.Context, sid string) (string, error) {
	if sid != "" {
		_, found, err := m.kv.Get(ctx, sessionKey(sid))
		if err != nil {
			return "", fmt.Errorf("session lookup: %w", err)
		}
		if found {
			return sid, nil
		}
	}

	newSID, err := gonanoid.New(sidLength)
	if err != nil {
		return "", fmt.Errorf("session id: %w", err)
	}
	sess := models.Session{ID: newSID, CreatedAt: time.Now().UnixMilli()}
	if err := m.kv.SetJSON(ctx, sessionKey(newSID), sess, 0); err != nil {
		return "", fmt.Errorf("session write: %w", err)
	}
	return newSID, nil
}

// Get returns the session or nil when absent.
func (m *Manager) Get(ctx context.Context, sid string) (*models.Session, error) {
	if sid == "" {
		return nil, nil
	}
	var sess models.Session
	found, err := m.kv.GetJSON(ctx, sessionKey(sid), &sess)
	if err != nil {
		return nil, fmt.Errorf("session read: %w", err)
	}
	if !found {
		return nil, nil
	}
	sess.ID = sid
	if err := m.transformTokens(&sess, security.DecryptSecret); err != nil {
		// a key rotation leaves old tokens unreadable; drop them instead of
		// failing the whole session
		m.log.Warn("session_token_decrypt_failed", "sid_masked", sid[:4]+"***")
		clearTokens(&sess)
	}
	return &sess, nil
}

func (m *Manager) Save(ctx context.Context, sess *models.Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("session without id")
	}
	stored := *sess
	if stored.Twitch != nil {
		cp := *stored.Twitch
		stored.Twitch = &cp
	}
	if stored.YouTube != nil {
		cp := *stored.YouTube
		stored.YouTube = &cp
	}
	if err := m.transformTokens(&stored, security.EncryptSecret); err != nil {
		return fmt.Errorf("session token encrypt: %w", err)
	}
	if err := m.kv.SetJSON(ctx, sessionKey(stored.ID), stored, 0); err != nil {
		return fmt.Errorf("session write: %w", err)
	}
	return nil
}

func (m *Manager) Destroy(ctx context.Context, sid string) error {
	if sid == "" {
		return nil
	}
	if err := m.kv.Del(ctx, sessionKey(sid)); err != nil {
		return fmt.Errorf("session delete: %w", err)
	}
	return nil
}

func (m *Manager) transformTokens(sess *models.Session, fn func(string, []byte) (string, error)) error {
	if m.encKey == nil {
		return nil
	}
	for _, identity := range []*models.LinkedIdentity{sess.Twitch, sess.YouTube} {
		if identity == nil || identity.AccessToken == "" {
			continue
		}
		out, err := fn(identity.AccessToken, m.encKey)
		if err != nil {
			return err
		}
		identity.AccessToken = out
	}
	return nil
}

func clearTokens(sess *models.Session) {
	if sess.Twitch != nil {
		sess.Twitch.AccessToken = ""
	}
	if sess.YouTube != nil {
		sess.YouTube.AccessToken = ""
	}
}
