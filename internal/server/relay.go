package server

import (
	"context"
	"errors"
	"time"

	"rift-rewind/internal/config"
	"rift-rewind/internal/domain"
	"rift-rewind/internal/metrics"
	"rift-rewind/internal/repository"

	"github.com/rs/zerolog"
)

// Relay polls the status/recap store and pushes typed events to a sink
// until the job reaches a terminal state or the session times out. The
// timeout only stops the caller from waiting; the pipeline keeps running and
// a reconnect by job id observes the latest state.
type Relay struct {
	jobs     *repository.JobRepository
	recaps   *repository.RecapRepository
	interval time.Duration
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func NewRelay(jobs *repository.JobRepository, recaps *repository.RecapRepository, cfg *config.Config, m *metrics.Metrics, logger zerolog.Logger) *Relay {
	return &Relay{
		jobs:     jobs,
		recaps:   recaps,
		interval: cfg.StreamPollInterval,
		timeout:  cfg.StreamTimeout,
		metrics:  m,
		logger:   logger.With().Str("component", "relay").Logger(),
	}
}

// Stream emits player_info once, then status on every poll, partial
// whenever the recap version advances, and a single terminal event.
func (r *Relay) Stream(ctx context.Context, sink EventSink, job *domain.PlayerJob) error {
	r.metrics.ActiveStreams.Inc()
	defer r.metrics.ActiveStreams.Dec()

	err := sink.Send(EventPlayerInfo, PlayerInfoPayload{
		Type:     EventPlayerInfo,
		JobID:    job.JobID,
		Puuid:    job.Puuid,
		GameName: job.GameName,
		TagLine:  job.TagLine,
		Region:   job.Region,
		Year:     job.Year,
	})
	if err != nil {
		return err
	}

	deadline := time.NewTimer(r.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	lastVersion := 0
	for {
		current, err := r.jobs.GetByJobID(ctx, job.JobID)
		if err != nil {
			return r.sendError(sink, job.JobID, "job_lookup_failed", err.Error())
		}

		if err := sink.Send(EventStatus, StatusPayload{
			Type:      EventStatus,
			JobID:     current.JobID,
			Status:    string(current.Status),
			Total:     current.TotalMatches,
			Cached:    current.CachedMatches,
			Processed: current.ProcessedMatches,
		}); err != nil {
			return err
		}

		if current.Status == domain.JobError {
			return r.sendError(sink, current.JobID, "job_failed", current.ErrorMessage)
		}

		if current.Status == domain.JobComplete {
			recap, err := r.recaps.Get(ctx, current.Puuid, current.Year)
			switch {
			case err == nil:
				return sink.Send(EventComplete, RecapPayload{
					Type:    EventComplete,
					JobID:   current.JobID,
					Version: recap.Version,
					Stats:   recap.Stats,
				})
			case errors.Is(err, repository.ErrRecapNotFound):
				if current.TotalMatches == 0 && current.CachedMatches == 0 {
					return r.sendError(sink, current.JobID, "no_matches", "no matches found for this player and year")
				}
				// Final aggregation still in flight; keep polling.
			default:
				return r.sendError(sink, current.JobID, "recap_lookup_failed", err.Error())
			}
		}

		if recap, err := r.recaps.Get(ctx, current.Puuid, current.Year); err == nil && recap.Version > lastVersion {
			lastVersion = recap.Version
			if err := sink.Send(EventPartial, RecapPayload{
				Type:    EventPartial,
				JobID:   current.JobID,
				Version: recap.Version,
				Stats:   recap.Stats,
			}); err != nil {
				return err
			}
		} else if err != nil && !errors.Is(err, repository.ErrRecapNotFound) {
			r.logger.Warn().Err(err).Str("job_id", current.JobID).Msg("recap poll failed")
		}

		select {
		case <-ctx.Done():
			// Client went away; nothing to send.
			return ctx.Err()
		case <-deadline.C:
			r.logger.Info().Str("job_id", job.JobID).Msg("stream session timed out")
			return sink.Send(EventTimeout, TimeoutPayload{Type: EventTimeout, JobID: job.JobID})
		case <-ticker.C:
		}
	}
}

func (r *Relay) sendError(sink EventSink, jobID, code, message string) error {
	return sink.Send(EventError, ErrorPayload{Type: EventError, JobID: jobID, Code: code, Message: message})
}
