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

var ErrSessionNotFound = errors.New("repository: coaching session not found")

type CoachingRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewCoachingRepository(sqlDB *sql.DB, logger zerolog.Logger) *CoachingRepository {
	return &CoachingRepository{db: sqlDB, logger: logger}
}

func (r *CoachingRepository) CreateSession(ctx context.Context, puuid, championPersonality, connectionID string, totalMatches int) (*domain.CoachingSession, error) {
	sessionID, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	now := time.Now()
	session := &domain.CoachingSession{
		SessionID:           sessionID,
		Puuid:               puuid,
		ChampionPersonality: championPersonality,
		ConnectionID:        connectionID,
		Status:              domain.SessionActive,
		TotalMatches:        totalMatches,
		CreatedAt:           now,
		UpdatedAt:           now,
		TTL:                 now.Add(constants.SessionTTL),
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO coaching_sessions
		 (session_id, puuid, champion_personality, connection_id, status, total_matches,
		  last_match_index_sent, created_at, updated_at, ttl)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		sessionID, puuid, championPersonality, connectionID, string(domain.SessionActive),
		totalMatches, now, now, session.TTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	r.logger.Info().Str("session_id", sessionID).Str("puuid", puuid).Msg("coaching session created")
	return session, nil
}

func (r *CoachingRepository) GetSession(ctx context.Context, sessionID string) (*domain.CoachingSession, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT session_id, puuid, champion_personality, connection_id, status, total_matches,
		        last_match_index_sent, created_at, updated_at, ttl
		 FROM coaching_sessions WHERE session_id = ?`, sessionID)
	return scanSession(row)
}

// ActiveSessionForPlayer returns the most recent active session for a
// player, or ErrSessionNotFound.
func (r *CoachingRepository) ActiveSessionForPlayer(ctx context.Context, puuid string) (*domain.CoachingSession, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT session_id, puuid, champion_personality, connection_id, status, total_matches,
		        last_match_index_sent, created_at, updated_at, ttl
		 FROM coaching_sessions
		 WHERE puuid = ? AND status = ?
		 ORDER BY created_at DESC LIMIT 1`, puuid, string(domain.SessionActive))
	return scanSession(row)
}

// AdvanceWindow moves the consumer's cursor forward. The cursor never moves
// backwards, which is what makes redelivered deltas safe.
func (r *CoachingRepository) AdvanceWindow(ctx context.Context, sessionID string, newIndex int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE coaching_sessions
		 SET last_match_index_sent = ?, updated_at = ?
		 WHERE session_id = ? AND last_match_index_sent < ?`,
		newIndex, time.Now(), sessionID, newIndex)
	if err != nil {
		return fmt.Errorf("failed to advance window: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		r.logger.Debug().Str("session_id", sessionID).Int("new_index", newIndex).Msg("window already at or past index")
	}
	return nil
}

func (r *CoachingRepository) SetStatus(ctx context.Context, sessionID string, status domain.SessionStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE coaching_sessions SET status = ?, updated_at = ? WHERE session_id = ?`,
		string(status), time.Now(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to set session status: %w", err)
	}
	return nil
}

// ClearConnection drops a stale push connection without ending the session.
func (r *CoachingRepository) ClearConnection(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE coaching_sessions SET connection_id = '', updated_at = ? WHERE session_id = ?`,
		time.Now(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to clear connection: %w", err)
	}
	return nil
}

func scanSession(row *sql.Row) (*domain.CoachingSession, error) {
	var s domain.CoachingSession
	var status string
	err := row.Scan(&s.SessionID, &s.Puuid, &s.ChampionPersonality, &s.ConnectionID, &status,
		&s.TotalMatches, &s.LastMatchIndexSent, &s.CreatedAt, &s.UpdatedAt, &s.TTL)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	s.Status = domain.SessionStatus(status)
	return &s, nil
}
