package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"nexus-backend/internal/redis"
)

const (
	awardThrottleWindow = 10 * time.Second
	awardMarkerTTL      = 60 * time.Second
)

// Awarder hands out message points with a best-effort per-account
// throttle: at most one award per window, tracked by a short-lived KV
// marker. It is a rate limiter, not an exactly-once guarantee.
type Awarder struct {
	svc    *Service
	kv     *redis.Client
	log    *slog.Logger
	points map[string]int64
}

func NewAwarder(log *slog.Logger, svc *Service, kv *redis.Client, points map[string]int64) *Awarder {
	return &Awarder{svc: svc, kv: kv, log: log, points: points}
}

// AwardMessagePoints credits the platform's message rate unless the
// account was already awarded inside the throttle window. Returns whether
// a credit happened.
func (a *Awarder) AwardMessagePoints(ctx context.Context, userID, platform string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	amount := a.points[platform]
	if amount == 0 {
		return false, nil
	}

	key := "points_throttle:" + userID
	now := time.Now().UnixMilli()

	last, found, err := a.kv.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("throttle check: %w", err)
	}
	if found {
		if ms, err := strconv.ParseInt(last, 10, 64); err == nil && now-ms < awardThrottleWindow.Milliseconds() {
			return false, nil
		}
	}
	if err := a.kv.Set(ctx, key, strconv.FormatInt(now, 10), awardMarkerTTL); err != nil {
		return false, fmt.Errorf("throttle marker: %w", err)
	}

	_, _, err = a.svc.Credit(ctx, userID, amount, CreditOptions{
		Reason:    "message",
		Source:    platform,
		IsMessage: true,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// AwardWatchPoints credits watch-time points, one minute per call.
func (a *Awarder) AwardWatchPoints(ctx context.Context, userID string, amount int64) error {
	if userID == "" || amount == 0 {
		return nil
	}
	_, _, err := a.svc.Credit(ctx, userID, amount, CreditOptions{
		Reason:  "watch",
		Source:  "nexus",
		IsWatch: true,
	})
	return err
}
