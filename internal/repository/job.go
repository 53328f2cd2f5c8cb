package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rift-rewind/internal/constants"
	"rift-rewind/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

var ErrJobNotFound = errors.New("repository: job not found")

type JobRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewJobRepository(sqlDB *sql.DB, logger zerolog.Logger) *JobRepository {
	return &JobRepository{db: sqlDB, logger: logger}
}

// Create returns the job for (puuid, year), inserting a fresh PENDING one on
// first request. A stored ERROR job is reset to PENDING and reported as
// created, so the caller restarts ingestion. The bool reports whether the
// caller owns a fresh run.
func (r *JobRepository) Create(ctx context.Context, puuid string, year int, gameName, tagLine, region string) (*domain.PlayerJob, bool, error) {
	existing, err := r.GetByKey(ctx, puuid, year)
	if err == nil {
		if existing.Status != domain.JobError {
			return existing, false, nil
		}
		return r.retry(ctx, puuid, year)
	}
	if !errors.Is(err, ErrJobNotFound) {
		return nil, false, err
	}

	jobID, err := gonanoid.New()
	if err != nil {
		return nil, false, fmt.Errorf("failed to generate job id: %w", err)
	}

	now := time.Now()
	job := &domain.PlayerJob{
		JobID:       jobID,
		Puuid:       puuid,
		Year:        year,
		GameName:    gameName,
		TagLine:     tagLine,
		Region:      region,
		Status:      domain.JobPending,
		LastUpdated: now,
		TTL:         now.Add(constants.JobTTL),
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO player_jobs (puuid, year, job_id, game_name, tag_line, region, status, last_updated, ttl)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (puuid, year) DO NOTHING`,
		puuid, year, jobID, gameName, tagLine, region, string(domain.JobPending), now, job.TTL)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create job: %w", err)
	}

	// A concurrent request may have won the insert; surface the stored row
	// either way.
	stored, err := r.GetByKey(ctx, puuid, year)
	if err != nil {
		return nil, false, err
	}
	created := stored.JobID == jobID

	if created {
		r.logger.Info().Str("job_id", jobID).Str("puuid", puuid).Int("year", year).Msg("job created")
	}
	return stored, created, nil
}

// retry resets an ERROR job back to PENDING with cleared counters so a new
// request can rerun ingestion from scratch. The status guard in the update
// ensures exactly one of several concurrent requests owns the restart.
func (r *JobRepository) retry(ctx context.Context, puuid string, year int) (*domain.PlayerJob, bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE player_jobs
		 SET status = ?, error_message = '', total_matches = 0, cached_matches = 0,
		     queued_matches = 0, processed_matches = 0, last_updated = ?
		 WHERE puuid = ? AND year = ? AND status = ?`,
		string(domain.JobPending), time.Now(), puuid, year, string(domain.JobError))
	if err != nil {
		return nil, false, fmt.Errorf("failed to reset job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	stored, err := r.GetByKey(ctx, puuid, year)
	if err != nil {
		return nil, false, err
	}
	if n > 0 {
		r.logger.Info().Str("job_id", stored.JobID).Str("puuid", puuid).Int("year", year).Msg("job reset for retry")
	}
	return stored, n > 0, nil
}

func (r *JobRepository) GetByKey(ctx context.Context, puuid string, year int) (*domain.PlayerJob, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT puuid, year, job_id, game_name, tag_line, region, status, total_matches,
		        cached_matches, queued_matches, processed_matches, error_message, last_updated, ttl
		 FROM player_jobs WHERE puuid = ? AND year = ?`, puuid, year)
	return scanJob(row)
}

func (r *JobRepository) GetByJobID(ctx context.Context, jobID string) (*domain.PlayerJob, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT puuid, year, job_id, game_name, tag_line, region, status, total_matches,
		        cached_matches, queued_matches, processed_matches, error_message, last_updated, ttl
		 FROM player_jobs WHERE job_id = ?`, jobID)
	return scanJob(row)
}

// SetDiscovered records the discovery outcome and moves the job to
// PROCESSING. total counts only matches that go through the queue.
func (r *JobRepository) SetDiscovered(ctx context.Context, puuid string, year, total, cached, queued int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE player_jobs
		 SET status = ?, total_matches = ?, cached_matches = ?, queued_matches = ?, last_updated = ?
		 WHERE puuid = ? AND year = ?`,
		string(domain.JobProcessing), total, cached, queued, time.Now(), puuid, year)
	if err != nil {
		return fmt.Errorf("failed to set discovery counts: %w", err)
	}
	return nil
}

// IncrementProcessed atomically bumps the processed counter and returns the
// resulting counters and status in the same statement, so concurrent
// processors never observe a torn update.
func (r *JobRepository) IncrementProcessed(ctx context.Context, puuid string, year int) (processed, total int, status domain.JobStatus, err error) {
	var s string
	err = r.db.QueryRowContext(ctx,
		`UPDATE player_jobs
		 SET processed_matches = processed_matches + 1, last_updated = ?
		 WHERE puuid = ? AND year = ?
		 RETURNING processed_matches, total_matches, status`,
		time.Now(), puuid, year).Scan(&processed, &total, &s)
	if err == sql.ErrNoRows {
		return 0, 0, "", ErrJobNotFound
	}
	if err != nil {
		return 0, 0, "", fmt.Errorf("failed to increment processed count: %w", err)
	}
	return processed, total, domain.JobStatus(s), nil
}

// CompleteIfProcessing transitions PROCESSING -> COMPLETE only when every
// queued match has been processed. Returns whether this call made the
// transition.
func (r *JobRepository) CompleteIfProcessing(ctx context.Context, puuid string, year int) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE player_jobs
		 SET status = ?, last_updated = ?
		 WHERE puuid = ? AND year = ? AND status = ? AND processed_matches = total_matches`,
		string(domain.JobComplete), time.Now(), puuid, year, string(domain.JobProcessing))
	if err != nil {
		return false, fmt.Errorf("failed to complete job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *JobRepository) MarkError(ctx context.Context, puuid string, year int, message string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE player_jobs SET status = ?, error_message = ?, last_updated = ? WHERE puuid = ? AND year = ?`,
		string(domain.JobError), message, time.Now(), puuid, year)
	if err != nil {
		return fmt.Errorf("failed to mark job error: %w", err)
	}
	return nil
}

func scanJob(row *sql.Row) (*domain.PlayerJob, error) {
	var job domain.PlayerJob
	var status string
	err := row.Scan(&job.Puuid, &job.Year, &job.JobID, &job.GameName, &job.TagLine, &job.Region,
		&status, &job.TotalMatches, &job.CachedMatches, &job.QueuedMatches, &job.ProcessedMatches,
		&job.ErrorMessage, &job.LastUpdated, &job.TTL)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	job.Status = domain.JobStatus(status)
	return &job, nil
}
