package profile

import (
	"context"
	"fmt"
	"log/slog"

	"nexus-backend/internal/ledger"
	"nexus-backend/internal/models"
	"nexus-backend/internal/redis"
)

const (
	legacyDocKey = "userdata"

	signInBonus         = 2000
	linkedAccountsBonus = 2000
)

func metaKey(userID string) string { return "nexus:meta:" + userID }

// Manager owns the per-account meta record (inventory, decorations, bonus
// flags) and the lazy migration out of the legacy single-document store.
type Manager struct {
	kv     *redis.Client
	ledger *ledger.Service
	log    *slog.Logger
}

func NewManager(log *slog.Logger, kv *redis.Client, led *ledger.Service) *Manager {
	return &Manager{kv: kv, ledger: led, log: log}
}

// Load is a read-through: the new per-account shape wins; otherwise the
// legacy document is consulted and this account's entry, if present, is
// migrated on the spot. Absent from both, a fresh default is returned
// without being persisted; it lands in storage on the first mutation.
func (m *Manager) Load(ctx context.Context, userID, fallbackName string) (models.AccountMeta, error) {
	var meta models.AccountMeta
	found, err := m.kv.GetJSON(ctx, metaKey(userID), &meta)
	if err != nil {
		return meta, fmt.Errorf("meta read: %w", err)
	}
	if found {
		return normalize(meta, userID), nil
	}

	migrated, found, err := m.migrateFromLegacy(ctx, userID)
	if err != nil {
		return meta, err
	}
	if found {
		return normalize(migrated, userID), nil
	}

	name := fallbackName
	if name == "" {
		name = "Adventurer"
	}
	return models.AccountMeta{
		UUID:        userID,
		Platform:    "nexus",
		DisplayName: name,
		Inventory:   []string{},
	}, nil
}

// migrateFromLegacy copies one account's entry from the legacy document
// into the per-account shape and seeds the canonical balance with a single
// bonus credit. SetNX decides which of several concurrent first-reads gets
// to seed, so redundant migration never credits twice.
func (m *Manager) migrateFromLegacy(ctx context.Context, userID string) (models.AccountMeta, bool, error) {
	var legacy models.LegacyStore
	found, err := m.kv.GetJSON(ctx, legacyDocKey, &legacy)
	if err != nil {
		return models.AccountMeta{}, false, fmt.Errorf("legacy doc read: %w", err)
	}
	if !found || legacy.Users == nil {
		return models.AccountMeta{}, false, nil
	}
	entry, ok := legacy.Users["nexus:"+userID]
	if !ok {
		return models.AccountMeta{}, false, nil
	}

	entry = normalize(entry, userID)
	wrote, err := m.kv.SetJSONNX(ctx, metaKey(userID), entry)
	if err != nil {
		return models.AccountMeta{}, false, fmt.Errorf("meta migrate write: %w", err)
	}
	if wrote && entry.Points > 0 {
		if _, _, err := m.ledger.Credit(ctx, userID, entry.Points, ledger.CreditOptions{
			Type:   models.EventBonus,
			Reason: "legacy_migration",
			Source: legacyDocKey,
		}); err != nil {
			return models.AccountMeta{}, false, fmt.Errorf("legacy balance seed: %w", err)
		}
	}
	if wrote {
		m.log.Info("legacy_account_migrated", "user_id", userID, "points", entry.Points)
	}
	return entry, true, nil
}

func (m *Manager) Save(ctx context.Context, meta models.AccountMeta) error {
	if err := m.kv.SetJSON(ctx, metaKey(meta.UUID), meta, 0); err != nil {
		return fmt.Errorf("meta write: %w", err)
	}
	return nil
}

// EnsureBonuses grants the one-time sign-in and linked-accounts bonuses.
// The flags on the meta record are the idempotency guards; the credit goes
// through the ledger like any other balance change. Returns the total
// granted this call.
func (m *Manager) EnsureBonuses(ctx context.Context, session *models.Session) (int64, error) {
	if session == nil || session.User == nil || session.User.ID == "" {
		return 0, nil
	}
	userID := session.User.ID

	meta, err := m.Load(ctx, userID, session.User.DisplayName)
	if err != nil {
		return 0, err
	}

	var total int64
	changed := false
	if !meta.BonusSignInGiven {
		meta.BonusSignInGiven = true
		total += signInBonus
		changed = true
	}
	if session.Twitch != nil && session.YouTube != nil && !meta.BonusLinkedGiven {
		meta.BonusLinkedGiven = true
		total += linkedAccountsBonus
		changed = true
	}

	if changed {
		if err := m.Save(ctx, meta); err != nil {
			return 0, err
		}
	}
	if total > 0 {
		if _, _, err := m.ledger.Credit(ctx, userID, total, ledger.CreditOptions{
			Reason: "bonus",
			Source: "nexus_bonus",
		}); err != nil {
			return 0, err
		}
		m.log.Info("bonus_granted", "user_id", userID, "amount", total)
	}
	return total, nil
}

func normalize(meta models.AccountMeta, userID string) models.AccountMeta {
	meta.UUID = userID
	if meta.Platform == "" {
		meta.Platform = "nexus"
	}
	if meta.Inventory == nil {
		meta.Inventory = []string{}
	}
	return meta
}
