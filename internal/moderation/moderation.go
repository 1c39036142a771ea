package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"nexus-backend/internal/models"
	"nexus-backend/internal/redis"
)

var (
	ErrNotAuthenticated = errors.New("not logged in")
	ErrForbidden        = errors.New("forbidden")
)

const (
	RoleOwner = "owner"
	RoleMod   = "mod"
)

const moderationDocKey = "moderation"

func banKey(userID string) string { return "ban:" + userID }

// Service tracks bans and moderator roles. A ban is active while its
// expiry is unset or in the future; expiry is evaluated lazily at read
// time, there is no background sweep.
type Service struct {
	kv      *redis.Client
	log     *slog.Logger
	ownerID string
}

func NewService(log *slog.Logger, kv *redis.Client, ownerID string) *Service {
	return &Service{kv: kv, log: log, ownerID: ownerID}
}

// ActiveBan returns the account's current ban, or nil when none is active.
// Expired records are treated as inactive and cleared on sight.
func (s *Service) ActiveBan(ctx context.Context, userID string) (*models.ModerationRecord, error) {
	var rec models.ModerationRecord
	found, err := s.kv.GetJSON(ctx, banKey(userID), &rec)
	if err != nil {
		return nil, fmt.Errorf("ban lookup: %w", err)
	}
	if !found {
		return nil, nil
	}
	if rec.ExpiresAt != nil && *rec.ExpiresAt <= time.Now().UnixMilli() {
		_ = s.kv.Del(ctx, banKey(userID)) // lazy expiry
		return nil, nil
	}
	return &rec, nil
}

func (s *Service) IsBanned(ctx context.Context, userID string) (bool, error) {
	rec, err := s.ActiveBan(ctx, userID)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// ApplyTimeout records a timed ban issued by automod or a moderator.
func (s *Service) ApplyTimeout(ctx context.Context, userID, reason, kind string, duration time.Duration, modID, modName string) (models.ModerationRecord, error) {
	expires := time.Now().Add(duration).UnixMilli()
	rec := models.ModerationRecord{
		UserID:    userID,
		Reason:    reason,
		BanKind:   kind,
		CreatedAt: time.Now().UnixMilli(),
		ExpiresAt: &expires,
		ModID:     modID,
		ModName:   modName,
		Platform:  "nexus",
	}
	return rec, s.persistBan(ctx, rec)
}

// Ban records a manual ban; nil duration means permanent.
func (s *Service) Ban(ctx context.Context, userID, reason string, duration *time.Duration, modID, modName string) (models.ModerationRecord, error) {
	rec := models.ModerationRecord{
		UserID:    userID,
		Reason:    reason,
		BanKind:   models.BanKindManual,
		CreatedAt: time.Now().UnixMilli(),
		ModID:     modID,
		ModName:   modName,
		Platform:  "nexus",
	}
	if duration != nil {
		expires := time.Now().Add(*duration).UnixMilli()
		rec.ExpiresAt = &expires
	}
	return rec, s.persistBan(ctx, rec)
}

func (s *Service) persistBan(ctx context.Context, rec models.ModerationRecord) error {
	id, err := gonanoid.New()
	if err != nil {
		return fmt.Errorf("ban id: %w", err)
	}
	rec.ID = id

	if err := s.kv.SetJSON(ctx, banKey(rec.UserID), rec, 0); err != nil {
		return fmt.Errorf("ban write: %w", err)
	}

	doc, err := s.doc(ctx)
	if err != nil {
		return err
	}
	doc.Bans = append(doc.Bans, rec)
	if err := s.kv.SetJSON(ctx, moderationDocKey, doc, 0); err != nil {
		return fmt.Errorf("moderation doc write: %w", err)
	}

	s.log.Info("ban_recorded", "user_id", rec.UserID, "kind", rec.BanKind, "mod_id", rec.ModID)
	return nil
}

func (s *Service) Unban(ctx context.Context, userID string) error {
	if err := s.kv.Del(ctx, banKey(userID)); err != nil {
		return fmt.Errorf("unban: %w", err)
	}
	s.log.Info("unbanned", "user_id", userID)
	return nil
}

func (s *Service) doc(ctx context.Context) (models.ModerationDoc, error) {
	var doc models.ModerationDoc
	if _, err := s.kv.GetJSON(ctx, moderationDocKey, &doc); err != nil {
		return doc, fmt.Errorf("moderation doc read: %w", err)
	}
	if doc.Mods == nil {
		doc.Mods = []string{}
	}
	if doc.Bans == nil {
		doc.Bans = []models.ModerationRecord{}
	}
	return doc, nil
}

func (s *Service) Moderators(ctx context.Context) ([]string, error) {
	doc, err := s.doc(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Mods, nil
}

func (s *Service) AddModerator(ctx context.Context, userID string) error {
	doc, err := s.doc(ctx)
	if err != nil {
		return err
	}
	for _, id := range doc.Mods {
		if id == userID {
			return nil
		}
	}
	doc.Mods = append(doc.Mods, userID)
	return s.kv.SetJSON(ctx, moderationDocKey, doc, 0)
}

func (s *Service) RemoveModerator(ctx context.Context, userID string) error {
	doc, err := s.doc(ctx)
	if err != nil {
		return err
	}
	mods := doc.Mods[:0]
	for _, id := range doc.Mods {
		if id != userID {
			mods = append(mods, id)
		}
	}
	doc.Mods = mods
	return s.kv.SetJSON(ctx, moderationDocKey, doc, 0)
}

// BanHistory returns the recorded bans, newest last.
func (s *Service) BanHistory(ctx context.Context) ([]models.ModerationRecord, error) {
	doc, err := s.doc(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Bans, nil
}

// Roles classifies an account. The owner is implicitly a mod.
func (s *Service) Roles(ctx context.Context, userID string) ([]string, error) {
	roles := []string{}
	isOwner := userID == s.ownerID
	if isOwner {
		roles = append(roles, RoleOwner)
	}
	mods, err := s.Moderators(ctx)
	if err != nil {
		return nil, err
	}
	isMod := isOwner
	for _, id := range mods {
		if id == userID {
			isMod = true
		}
	}
	if isMod {
		roles = append(roles, RoleMod)
	}
	return roles, nil
}

// RequireRole is a read-only authorization query over the session and the
// moderator set; it never changes state.
func (s *Service) RequireRole(ctx context.Context, session *models.Session, minRole string) ([]string, error) {
	if session == nil || session.User == nil || session.User.ID == "" {
		return nil, ErrNotAuthenticated
	}
	roles, err := s.Roles(ctx, session.User.ID)
	if err != nil {
		return nil, err
	}
	has := func(role string) bool {
		for _, r := range roles {
			if r == role {
				return true
			}
		}
		return false
	}
	switch minRole {
	case RoleOwner:
		if !has(RoleOwner) {
			return nil, ErrForbidden
		}
	case RoleMod:
		if !has(RoleMod) {
			return nil, ErrForbidden
		}
	}
	return roles, nil
}
