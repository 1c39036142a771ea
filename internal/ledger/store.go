package ledger

import (
	"context"

	"nexus-backend/internal/models"
)

// Store is the persistence boundary of the ledger. Two implementations
// exist: the Postgres store used in production and an in-memory store for
// tests and local runs (see memstore.go).
//
// DebitIfAffordable is the only call that must be atomic: check and
// decrement happen in a single conditional update so two concurrent spends
// can never both succeed on one spend's worth of balance. Credits are
// plain read-modify-write; a lost increment under a genuine race is a
// tolerated anomaly, not a money-safety issue.
type Store interface {
	// EnsureAccount creates the users row and a zero user_points row if
	// absent, refreshing the display name when one is supplied.
	EnsureAccount(ctx context.Context, userID, displayName, avatarURL string, now int64) error

	// Balance reports the stored balance; found is false when no row exists.
	Balance(ctx context.Context, userID string) (balance int64, found bool, err error)

	// ApplyCredit adds delta to the balance, flooring the result at zero,
	// and bumps the message/watch counters. Returns before and after.
	ApplyCredit(ctx context.Context, userID string, delta int64, isMessage, isWatch bool, now int64) (before, after int64, err error)

	// DebitIfAffordable subtracts amount only when the balance covers it.
	// ok is false (with no state change) otherwise.
	DebitIfAffordable(ctx context.Context, userID string, amount, now int64) (after int64, ok bool, err error)

	// AppendEvent records one immutable ledger entry.
	AppendEvent(ctx context.Context, ev models.PointEvent) error

	// EventsFor returns an account's events in creation order.
	EventsFor(ctx context.Context, userID string, limit int) ([]models.PointEvent, error)
}
