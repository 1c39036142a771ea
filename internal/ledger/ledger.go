package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nexus-backend/internal/models"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// Service owns balances and the append-only event history. Everything that
// moves points goes through here; the store and automod never touch
// balances directly.
type Service struct {
	store      Store
	log        *slog.Logger
	infiniteID string
}

func NewService(log *slog.Logger, store Store, infiniteID string) *Service {
	return &Service{store: store, log: log, infiniteID: infiniteID}
}

// CreditOptions describes one balance change. Type may be left empty, in
// which case it is derived from the reason and flags the way legacy
// clients expect.
type CreditOptions struct {
	Type      string
	Reason    string
	Source    string
	IsMessage bool
	IsWatch   bool
}

func (o CreditOptions) eventType() string {
	if o.Type != "" {
		return o.Type
	}
	switch o.Reason {
	case "redeem":
		return models.EventRedeem
	case "bonus":
		return models.EventBonus
	case "store_purchase":
		return models.EventPurchase
	case "tip":
		return models.EventTip
	case "subscription":
		return models.EventSubscription
	}
	if o.IsMessage {
		return models.EventMessage
	}
	if o.IsWatch {
		return models.EventWatch
	}
	if strings.HasPrefix(o.Reason, "mod_") {
		return models.EventMod
	}
	return models.EventAdjust
}

func (s *Service) GetBalance(ctx context.Context, userID string) (int64, error) {
	if userID == s.infiniteID {
		return models.InfinitePoints, nil
	}
	balance, _, err := s.store.Balance(ctx, userID)
	return balance, err
}

// EnsureAccount makes the account rows exist, refreshing the display name.
func (s *Service) EnsureAccount(ctx context.Context, userID, displayName, avatarURL string) error {
	return s.store.EnsureAccount(ctx, userID, displayName, avatarURL, nowMillis())
}

// Credit applies a signed delta. Negative deltas are floored at zero
// rather than rejected, to tolerate clients that over-apply deductions.
// Zero-delta results still record nothing: events with delta == 0 are
// invisible in the audit trail.
func (s *Service) Credit(ctx context.Context, userID string, delta int64, opts CreditOptions) (before, after int64, err error) {
	if userID == "" {
		return 0, 0, nil
	}
	now := nowMillis()
	if err := s.store.EnsureAccount(ctx, userID, "", "", now); err != nil {
		return 0, 0, err
	}

	if userID == s.infiniteID {
		// sentinel account: balance never moves, but the event trail keeps
		// the delta for reporting
		if delta != 0 {
			if err := s.appendEvent(ctx, userID, delta, opts, models.InfinitePoints, now); err != nil {
				return 0, 0, err
			}
		}
		return models.InfinitePoints, models.InfinitePoints, nil
	}

	before, after, err = s.store.ApplyCredit(ctx, userID, delta, opts.IsMessage, opts.IsWatch, now)
	if err != nil {
		return 0, 0, err
	}
	if delta != 0 {
		if err := s.appendEvent(ctx, userID, delta, opts, after, now); err != nil {
			return 0, 0, err
		}
	}
	return before, after, nil
}

// DebitIfAffordable decrements the balance only when funds cover the
// amount, atomically against the persistent store, and records a redeem
// event. The infinite account always affords without mutation.
func (s *Service) DebitIfAffordable(ctx context.Context, userID string, amount int64, reason, source string) (after int64, err error) {
	if amount < 0 {
		return 0, ErrInvalidAmount
	}
	if userID == s.infiniteID {
		return models.InfinitePoints, nil
	}
	now := nowMillis()
	if err := s.store.EnsureAccount(ctx, userID, "", "", now); err != nil {
		return 0, err
	}

	after, ok, err := s.store.DebitIfAffordable(ctx, userID, amount, now)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrInsufficientFunds
	}

	if amount != 0 {
		// event type follows the reason, so purchases audit as "purchase"
		// and plain redeems as "redeem"
		opts := CreditOptions{Reason: reason, Source: source}
		if opts.Reason == "" {
			opts.Reason = "redeem"
		}
		if err := s.appendEvent(ctx, userID, -amount, opts, after, now); err != nil {
			// the debit already landed; losing the event would break replay,
			// so surface the failure
			return 0, fmt.Errorf("debit applied but event append failed: %w", err)
		}
	}
	return after, nil
}

func (s *Service) Events(ctx context.Context, userID string, limit int) ([]models.PointEvent, error) {
	return s.store.EventsFor(ctx, userID, limit)
}

func (s *Service) appendEvent(ctx context.Context, userID string, delta int64, opts CreditOptions, balanceAfter, now int64) error {
	ev := models.PointEvent{
		UserID:       userID,
		Delta:        delta,
		Type:         opts.eventType(),
		CreatedAt:    now,
		BalanceAfter: balanceAfter,
	}
	if opts.Reason != "" {
		ev.Reason = &opts.Reason
	}
	if opts.Source != "" {
		ev.Source = &opts.Source
	}
	return s.store.AppendEvent(ctx, ev)
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
