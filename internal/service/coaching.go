package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rift-rewind/internal/config"
	"rift-rewind/internal/constants"
	"rift-rewind/internal/domain"
	"rift-rewind/internal/matchcache"
	"rift-rewind/internal/repository"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// CoachingInvoker posts windowed deltas to the downstream coaching consumer.
// Invocations are dispatch-and-detach: nothing in the pipeline waits on them
// and failures are only logged.
type CoachingInvoker struct {
	url    string
	client *fasthttp.Client
	logger zerolog.Logger
}

func NewCoachingInvoker(cfg *config.Config, logger zerolog.Logger) *CoachingInvoker {
	return &CoachingInvoker{
		url: cfg.CoachingURL,
		client: &fasthttp.Client{
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger.With().Str("component", "coaching_invoker").Logger(),
	}
}

// Dispatch spawns the invocation and returns immediately.
func (i *CoachingInvoker) Dispatch(payload domain.CoachingPayload) {
	if i.url == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), constants.ExternalAPITimeout)
		defer cancel()

		if err := i.invoke(ctx, payload); err != nil {
			i.logger.Error().
				Err(err).
				Str("session_id", payload.SessionID).
				Int("matches", len(payload.Matches)).
				Msg("coaching invocation failed")
			return
		}
		i.logger.Info().
			Str("session_id", payload.SessionID).
			Int("matches", len(payload.Matches)).
			Int("new_last_match_index_sent", payload.NewLastMatchIndexSent).
			Msg("coaching consumer invoked")
	}()
}

func (i *CoachingInvoker) invoke(ctx context.Context, payload domain.CoachingPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(i.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	deadline, ok := ctx.Deadline()
	if ok {
		err = i.client.DoDeadline(req, resp, deadline)
	} else {
		err = i.client.Do(req, resp)
	}
	if err != nil {
		return err
	}

	if resp.StatusCode() >= 300 {
		return fmt.Errorf("consumer returned status %d", resp.StatusCode())
	}
	return nil
}

// CoachingService owns the session lifecycle: registration and the
// consumer-side ack that advances the window cursor.
type CoachingService struct {
	sessions *repository.CoachingRepository
	cache    *matchcache.Cache
	logger   zerolog.Logger
}

func NewCoachingService(sessions *repository.CoachingRepository, cache *matchcache.Cache, logger zerolog.Logger) *CoachingService {
	return &CoachingService{sessions: sessions, cache: cache, logger: logger}
}

func (s *CoachingService) CreateSession(ctx context.Context, puuid, championPersonality, connectionID string) (*domain.CoachingSession, error) {
	total, err := s.cache.Count(ctx, puuid)
	if err != nil {
		return nil, fmt.Errorf("failed to count cached matches: %w", err)
	}
	return s.sessions.CreateSession(ctx, puuid, championPersonality, connectionID, total)
}

// Ack records that the consumer has handled matches up to newIndex.
func (s *CoachingService) Ack(ctx context.Context, sessionID string, newIndex int) error {
	if _, err := s.sessions.GetSession(ctx, sessionID); err != nil {
		return err
	}
	return s.sessions.AdvanceWindow(ctx, sessionID, newIndex)
}
