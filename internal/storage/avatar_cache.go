package storage

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"nexus-backend/internal/db"
)

// AvatarCacheJob periodically re-hosts avatars still pointing at platform
// CDNs. Runs in the background; individual failures are logged and
// retried on the next cycle.
type AvatarCacheJob struct {
	db        *db.DB
	storage   StorageClient
	logger    *slog.Logger
	publicURL string
}

func NewAvatarCacheJob(logger *slog.Logger, dbConn *db.DB, storageClient StorageClient, publicURL string) *AvatarCacheJob {
	return &AvatarCacheJob{
		db:        dbConn,
		storage:   storageClient,
		logger:    logger,
		publicURL: publicURL,
	}
}

func (aj *AvatarCacheJob) Start(ctx context.Context) {
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()

	aj.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cycleCtx, cancel := context.WithTimeout(ctx, time.Hour)
			aj.runCycle(cycleCtx)
			cancel()
		}
	}
}

func (aj *AvatarCacheJob) runCycle(ctx context.Context) {
	aj.logger.Info("avatar_cache_cycle_started")

	rows, err := aj.db.Pool.Query(ctx,
		`SELECT id, avatar_url
		 FROM users
		 WHERE avatar_url IS NOT NULL
		 AND avatar_url != ''
		 AND avatar_url NOT LIKE $1
		 LIMIT 100`,
		strings.TrimRight(aj.publicURL, "/")+"%",
	)
	if err != nil {
		aj.logger.Warn("failed_to_fetch_avatars", "error", err)
		return
	}
	defer rows.Close()

	type pending struct{ userID, sourceURL string }
	var work []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.userID, &p.sourceURL); err != nil {
			continue
		}
		work = append(work, p)
	}

	count := 0
	for _, p := range work {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s3Client, ok := aj.storage.(*S3Client)
		if !ok {
			return
		}

		url, err := s3Client.CacheAvatarFromURL(p.userID, p.sourceURL)
		if err != nil {
			aj.logger.Warn("avatar_cache_failed",
				"user_id", p.userID,
				"error", err,
			)
			continue
		}

		_, err = aj.db.Pool.Exec(ctx,
			`UPDATE users SET avatar_url = $1 WHERE id = $2 AND avatar_url = $3`,
			url, p.userID, p.sourceURL,
		)
		if err != nil {
			aj.logger.Warn("failed_to_update_avatar_url", "user_id", p.userID, "error", err)
			continue
		}

		count++

		// one upload per second keeps the bucket rate limits happy
		time.Sleep(time.Second)
	}

	aj.logger.Info("avatar_cache_cycle_completed", "processed", count)
}
