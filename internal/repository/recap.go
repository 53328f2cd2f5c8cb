package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rift-rewind/internal/constants"
	"rift-rewind/internal/domain"

	"github.com/rs/zerolog"
)

var ErrRecapNotFound = errors.New("repository: recap not found")

type RecapRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewRecapRepository(sqlDB *sql.DB, logger zerolog.Logger) *RecapRepository {
	return &RecapRepository{db: sqlDB, logger: logger}
}

func (r *RecapRepository) Get(ctx context.Context, puuid string, year int) (*domain.ChampionRecap, error) {
	var recap domain.ChampionRecap
	var statsJSON string
	err := r.db.QueryRowContext(ctx,
		`SELECT puuid, year, stats, version, content_hash, last_updated, ttl
		 FROM champion_recaps WHERE puuid = ? AND year = ?`, puuid, year).
		Scan(&recap.Puuid, &recap.Year, &statsJSON, &recap.Version, &recap.ContentHash, &recap.LastUpdated, &recap.TTL)
	if err == sql.ErrNoRows {
		return nil, ErrRecapNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read recap: %w", err)
	}
	if err := json.Unmarshal([]byte(statsJSON), &recap.Stats); err != nil {
		return nil, fmt.Errorf("failed to decode recap stats: %w", err)
	}
	return &recap, nil
}

// Put replaces the recap wholesale with the given version and content hash.
// The version/hash decision belongs to the aggregator; this is a plain
// write.
func (r *RecapRepository) Put(ctx context.Context, puuid string, year int, stats domain.RecapStats, version int, contentHash string) (*domain.ChampionRecap, error) {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return nil, fmt.Errorf("failed to encode recap stats: %w", err)
	}

	now := time.Now()
	ttl := now.Add(constants.RecapTTL)
	_, err = r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO champion_recaps (puuid, year, stats, version, content_hash, last_updated, ttl)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		puuid, year, string(statsJSON), version, contentHash, now, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to write recap: %w", err)
	}

	r.logger.Debug().
		Str("puuid", puuid).
		Int("year", year).
		Int("version", version).
		Str("content_hash", contentHash).
		Msg("recap written")

	return &domain.ChampionRecap{
		Puuid:       puuid,
		Year:        year,
		Stats:       stats,
		Version:     version,
		ContentHash: contentHash,
		LastUpdated: now,
		TTL:         ttl,
	}, nil
}
