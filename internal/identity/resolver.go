package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"nexus-backend/internal/redis"
)

// Resolver maps a (platform, native id) pair to one canonical account id.
// The forward mapping is written once and then never changes; resolving the
// same pair again always returns the stored id.
//
// There is no distributed lock around first resolution. Two concurrent
// first-time resolves can race and the later write wins; the loser's id is
// a spare account that never earned anything, so money accounting is not
// affected.
type Resolver struct {
	kv  *redis.Client
	log *slog.Logger
}

func NewResolver(log *slog.Logger, kv *redis.Client) *Resolver {
	return &Resolver{kv: kv, log: log}
}

func forwardKey(platform, nativeID string) string {
	return fmt.Sprintf("map:%s:%s", platform, nativeID)
}

func reverseKey(accountID string) string {
	return "rev:" + accountID
}

// Resolve returns the canonical account id for a platform identity,
// allocating one on first sight. preferredID, when non-empty, is used for
// the allocation (account linking flows pass the id the user already has).
func (r *Resolver) Resolve(ctx context.Context, platform, nativeID, preferredID string) (string, error) {
	key := forwardKey(platform, nativeID)

	existing, found, err := r.kv.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("identity lookup: %w", err)
	}
	if found {
		return existing, nil
	}

	accountID := preferredID
	if accountID == "" {
		accountID = uuid.NewString()
	}

	if err := r.kv.Set(ctx, key, accountID, 0); err != nil {
		return "", fmt.Errorf("identity mapping write: %w", err)
	}
	if err := r.kv.Set(ctx, reverseKey(accountID), platform+":"+nativeID, 0); err != nil {
		return "", fmt.Errorf("identity reverse write: %w", err)
	}

	r.log.Info("identity_allocated", "platform", platform, "account_id", accountID)
	return accountID, nil
}

// ReverseLookup returns the "<platform>:<nativeId>" pair an account was
// first seen as, if any.
func (r *Resolver) ReverseLookup(ctx context.Context, accountID string) (string, bool, error) {
	v, found, err := r.kv.Get(ctx, reverseKey(accountID))
	if err != nil {
		return "", false, fmt.Errorf("identity reverse lookup: %w", err)
	}
	return v, found, nil
}
