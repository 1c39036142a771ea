package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"nexus-backend/internal/db"
	"nexus-backend/internal/models"
)

// PGStore keeps balances and the event log in Postgres.
type PGStore struct {
	db *db.DB
}

func NewPGStore(dbConn *db.DB) *PGStore {
	return &PGStore{db: dbConn}
}

func (s *PGStore) EnsureAccount(ctx context.Context, userID, displayName, avatarURL string, now int64) error {
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO users (id, display_name, avatar_url, created_at, updated_at)
		 VALUES ($1, COALESCE(NULLIF($2, ''), 'Adventurer'), NULLIF($3, ''), $4, $4)
		 ON CONFLICT (id) DO UPDATE SET
			display_name = COALESCE(NULLIF(excluded.display_name, ''), users.display_name),
			avatar_url = COALESCE(excluded.avatar_url, users.avatar_url),
			updated_at = excluded.updated_at`,
		userID, displayName, avatarURL, now)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}

	_, err = s.db.Pool.Exec(ctx,
		`INSERT INTO user_points (user_id, balance_total, messages_count, watch_minutes, updated_at)
		 VALUES ($1, 0, 0, 0, $2)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, now)
	if err != nil {
		return fmt.Errorf("ensure points row: %w", err)
	}
	return nil
}

func (s *PGStore) Balance(ctx context.Context, userID string) (int64, bool, error) {
	var balance int64
	err := s.db.Pool.QueryRow(ctx,
		`SELECT balance_total FROM user_points WHERE user_id = $1`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("balance query: %w", err)
	}
	return balance, true, nil
}

// ApplyCredit is a plain read-modify-write; see Store for why that is
// acceptable for credits.
func (s *PGStore) ApplyCredit(ctx context.Context, userID string, delta int64, isMessage, isWatch bool, now int64) (int64, int64, error) {
	var before int64
	err := s.db.Pool.QueryRow(ctx,
		`SELECT balance_total FROM user_points WHERE user_id = $1`, userID).Scan(&before)
	if errors.Is(err, pgx.ErrNoRows) {
		before = 0
	} else if err != nil {
		return 0, 0, fmt.Errorf("credit read: %w", err)
	}

	after := before + delta
	if after < 0 {
		after = 0
	}

	msgInc, watchInc := 0, 0
	if isMessage {
		msgInc = 1
	}
	if isWatch {
		watchInc = 1
	}

	_, err = s.db.Pool.Exec(ctx,
		`UPDATE user_points SET
			balance_total = $2,
			messages_count = messages_count + $3,
			watch_minutes = watch_minutes + $4,
			updated_at = $5
		 WHERE user_id = $1`,
		userID, after, msgInc, watchInc, now)
	if err != nil {
		return 0, 0, fmt.Errorf("credit write: %w", err)
	}
	return before, after, nil
}

func (s *PGStore) DebitIfAffordable(ctx context.Context, userID string, amount, now int64) (int64, bool, error) {
	var after int64
	err := s.db.Pool.QueryRow(ctx,
		`UPDATE user_points
		 SET balance_total = balance_total - $1, updated_at = $2
		 WHERE user_id = $3 AND balance_total >= $1
		 RETURNING balance_total`,
		amount, now, userID).Scan(&after)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("conditional debit: %w", err)
	}
	return after, true, nil
}

func (s *PGStore) AppendEvent(ctx context.Context, ev models.PointEvent) error {
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO point_events (user_id, delta, type, reason, source, created_at, balance_after)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.UserID, ev.Delta, ev.Type, ev.Reason, ev.Source, ev.CreatedAt, ev.BalanceAfter)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *PGStore) EventsFor(ctx context.Context, userID string, limit int) ([]models.PointEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Pool.Query(ctx,
		`SELECT id, user_id, delta, type, reason, source, created_at, balance_after
		 FROM point_events WHERE user_id = $1 ORDER BY id ASC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("events query: %w", err)
	}
	defer rows.Close()

	events := []models.PointEvent{}
	for rows.Next() {
		var ev models.PointEvent
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.Delta, &ev.Type, &ev.Reason, &ev.Source, &ev.CreatedAt, &ev.BalanceAfter); err != nil {
			return nil, fmt.Errorf("events scan: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
