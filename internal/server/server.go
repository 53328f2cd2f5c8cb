// Package server is the client-facing HTTP surface: the SSE progress stream
// plus JSON endpoints for job snapshots, recaps, and coaching sessions.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"rift-rewind/internal/domain"
	"rift-rewind/internal/repository"
	"rift-rewind/internal/riot"
	"rift-rewind/internal/service"

	"github.com/rs/zerolog"
)

type Server struct {
	riotClient *riot.Client
	jobs       *repository.JobRepository
	recaps     *repository.RecapRepository
	coaching   *service.CoachingService
	ingest     *service.IngestService
	relay      *Relay
	logger     zerolog.Logger
}

func New(
	riotClient *riot.Client,
	jobs *repository.JobRepository,
	recaps *repository.RecapRepository,
	coaching *service.CoachingService,
	ingest *service.IngestService,
	relay *Relay,
	logger zerolog.Logger,
) *Server {
	return &Server{
		riotClient: riotClient,
		jobs:       jobs,
		recaps:     recaps,
		coaching:   coaching,
		ingest:     ingest,
		relay:      relay,
		logger:     logger.With().Str("component", "server").Logger(),
	}
}

// Register attaches all routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/rewind/events", s.handleRewindEvents)
	mux.HandleFunc("GET /api/jobs/{jobID}/events", s.handleJobEvents)
	mux.HandleFunc("GET /api/jobs/{jobID}", s.handleJobSnapshot)
	mux.HandleFunc("GET /api/players/{puuid}/recap", s.handleRecap)
	mux.HandleFunc("POST /api/coaching/sessions", s.handleCreateSession)
	mux.HandleFunc("POST /api/coaching/sessions/{sessionID}/ack", s.handleSessionAck)
	mux.HandleFunc("GET /healthz", s.handleHealth)
}

// handleRewindEvents resolves the account, creates or resumes the job for
// (player, year), starts ingestion for a fresh job, and streams progress.
// A previously failed job counts as fresh: Create resets it and this handler
// reruns ingestion for it.
func (s *Server) handleRewindEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	gameName := q.Get("gameName")
	tagLine := q.Get("tagLine")
	region := q.Get("region")
	if gameName == "" || tagLine == "" || region == "" {
		writeError(w, http.StatusBadRequest, "gameName, tagLine and region are required")
		return
	}
	year, err := parseYear(q.Get("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	account, err := s.riotClient.AccountByRiotID(r.Context(), riot.RoutingRegion(region), gameName, tagLine)
	if err != nil {
		if errors.Is(err, riot.ErrNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		s.logger.Error().Err(err).Str("game_name", gameName).Msg("account resolution failed")
		writeError(w, http.StatusBadGateway, "account lookup failed")
		return
	}

	job, created, err := s.jobs.Create(r.Context(), account.Puuid, year, account.GameName, account.TagLine, region)
	if err != nil {
		s.logger.Error().Err(err).Str("puuid", account.Puuid).Msg("job creation failed")
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	if created {
		// Ingestion outlives this request; the stream below (or a resumed
		// one) observes its progress through the job row.
		go func() {
			if err := s.ingest.Start(context.Background(), job); err != nil {
				s.logger.Error().Err(err).Str("job_id", job.JobID).Msg("ingestion failed")
			}
		}()
	}

	s.stream(w, r, job)
}

// handleJobEvents re-attaches a client to a running job by its resumable id.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.GetByJobID(r.Context(), r.PathValue("jobID"))
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	s.stream(w, r, job)
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, job *domain.PlayerJob) {
	sink, err := newSSESink(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.relay.Stream(r.Context(), sink, job); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("stream ended with error")
	}
}

func (s *Server) handleJobSnapshot(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.GetByJobID(r.Context(), r.PathValue("jobID"))
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobId":            job.JobID,
		"puuid":            job.Puuid,
		"year":             job.Year,
		"status":           job.Status,
		"totalMatches":     job.TotalMatches,
		"cachedMatches":    job.CachedMatches,
		"processedMatches": job.ProcessedMatches,
		"errorMessage":     job.ErrorMessage,
		"lastUpdated":      job.LastUpdated,
	})
}

func (s *Server) handleRecap(w http.ResponseWriter, r *http.Request) {
	year, err := parseYear(r.URL.Query().Get("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	recap, err := s.recaps.Get(r.Context(), r.PathValue("puuid"), year)
	if err != nil {
		if errors.Is(err, repository.ErrRecapNotFound) {
			writeError(w, http.StatusNotFound, "no recap for this player and year")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load recap")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"puuid":       recap.Puuid,
		"year":        recap.Year,
		"version":     recap.Version,
		"stats":       recap.Stats,
		"lastUpdated": recap.LastUpdated,
	})
}

type createSessionRequest struct {
	Puuid               string `json:"puuid"`
	ChampionPersonality string `json:"championPersonality"`
	ConnectionID        string `json:"connectionId"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Puuid == "" || req.ChampionPersonality == "" {
		writeError(w, http.StatusBadRequest, "puuid and championPersonality are required")
		return
	}

	session, err := s.coaching.CreateSession(r.Context(), req.Puuid, req.ChampionPersonality, req.ConnectionID)
	if err != nil {
		s.logger.Error().Err(err).Str("puuid", req.Puuid).Msg("session creation failed")
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"sessionId":    session.SessionID,
		"totalMatches": session.TotalMatches,
	})
}

type sessionAckRequest struct {
	NewLastMatchIndexSent int `json:"newLastMatchIndexSent"`
}

func (s *Server) handleSessionAck(w http.ResponseWriter, r *http.Request) {
	var req sessionAckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.coaching.Ack(r.Context(), r.PathValue("sessionID"), req.NewLastMatchIndexSent)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to advance window")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

func parseYear(raw string) (int, error) {
	if raw == "" {
		return time.Now().UTC().Year(), nil
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 2010 || year > time.Now().UTC().Year()+1 {
		return 0, errors.New("invalid year")
	}
	return year, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
