// Package matchcache is the durable store of raw match records, keyed by
// (puuid, matchId). Writes are idempotent and records are never deleted.
package matchcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"rift-rewind/internal/config"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var ErrNotFound = errors.New("matchcache: match not found")

type Cache struct {
	db         *sql.DB
	logger     zerolog.Logger
	batchSize  int
	batchDelay time.Duration
}

func New(db *sql.DB, cfg *config.Config, logger zerolog.Logger) *Cache {
	return &Cache{
		db:         db,
		logger:     logger.With().Str("component", "matchcache").Logger(),
		batchSize:  cfg.ProbeBatchSize,
		batchDelay: cfg.ProbeDelay,
	}
}

// Exists probes for a key without touching the payload column.
func (c *Cache) Exists(ctx context.Context, puuid, matchID string) (bool, error) {
	var one int
	err := c.db.QueryRowContext(ctx,
		`SELECT 1 FROM cached_matches WHERE puuid = ? AND match_id = ?`, puuid, matchID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to probe match %s: %w", matchID, err)
	}
	return true, nil
}

func (c *Cache) Get(ctx context.Context, puuid, matchID string) ([]byte, error) {
	var body []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT body FROM cached_matches WHERE puuid = ? AND match_id = ?`, puuid, matchID).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read match %s: %w", matchID, err)
	}
	return body, nil
}

// Put writes a match record. Re-writing an existing key with identical
// content is a no-op for readers.
func (c *Cache) Put(ctx context.Context, puuid, matchID, region string, body []byte) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cached_matches (puuid, match_id, region, body, fetched_at)
		 VALUES (?, ?, ?, ?, ?)`,
		puuid, matchID, region, body, time.Now())
	if err != nil {
		return fmt.Errorf("failed to cache match %s: %w", matchID, err)
	}
	return nil
}

// List returns one page of the player's cached match ids in lexicographic
// order. The ordering is stable across calls, which the windowed delta
// depends on.
func (c *Cache) List(ctx context.Context, puuid string, offset, limit int) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT match_id FROM cached_matches WHERE puuid = ? ORDER BY match_id ASC LIMIT ? OFFSET ?`,
		puuid, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan match id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (c *Cache) Count(ctx context.Context, puuid string) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cached_matches WHERE puuid = ?`, puuid).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count matches: %w", err)
	}
	return count, nil
}

// FilterUncached partitions ids into cached and uncached sets. Probes run
// concurrently within a fixed-size batch, with a short delay between
// batches to bound outbound concurrency against the store.
func (c *Cache) FilterUncached(ctx context.Context, puuid string, ids []string) (cached, uncached []string, err error) {
	var mu sync.Mutex

	for start := 0; start < len(ids); start += c.batchSize {
		end := start + c.batchSize
		if end > len(ids) {
			end = len(ids)
		}

		g, gCtx := errgroup.WithContext(ctx)
		for _, id := range ids[start:end] {
			g.Go(func() error {
				exists, err := c.Exists(gCtx, puuid, id)
				if err != nil {
					return err
				}
				mu.Lock()
				if exists {
					cached = append(cached, id)
				} else {
					uncached = append(uncached, id)
				}
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, fmt.Errorf("failed to probe batch: %w", err)
		}

		if end < len(ids) && c.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(c.batchDelay):
			}
		}
	}

	c.logger.Debug().
		Str("puuid", puuid).
		Int("cached", len(cached)).
		Int("uncached", len(uncached)).
		Msg("cache filter complete")

	return cached, uncached, nil
}
