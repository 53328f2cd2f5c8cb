package repository

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rift-rewind/internal/domain"
)

func TestCoachingSessionLifecycle(t *testing.T) {
	repo := NewCoachingRepository(testDB(t), zerolog.Nop())
	ctx := context.Background()

	created, err := repo.CreateSession(ctx, "p1", "jinx", "conn-1", 30)
	require.NoError(t, err)
	assert.NotEmpty(t, created.SessionID)
	assert.Equal(t, domain.SessionActive, created.Status)
	assert.Equal(t, 0, created.LastMatchIndexSent)

	got, err := repo.GetSession(ctx, created.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "jinx", got.ChampionPersonality)
	assert.Equal(t, 30, got.TotalMatches)

	require.NoError(t, repo.SetStatus(ctx, created.SessionID, domain.SessionCompleted))
	got, err = repo.GetSession(ctx, created.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, got.Status)
}

func TestCoachingActiveSessionForPlayer(t *testing.T) {
	repo := NewCoachingRepository(testDB(t), zerolog.Nop())
	ctx := context.Background()

	_, err := repo.ActiveSessionForPlayer(ctx, "p1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	old, err := repo.CreateSession(ctx, "p1", "jinx", "conn-1", 30)
	require.NoError(t, err)
	require.NoError(t, repo.SetStatus(ctx, old.SessionID, domain.SessionCompleted))

	current, err := repo.CreateSession(ctx, "p1", "thresh", "conn-2", 30)
	require.NoError(t, err)

	got, err := repo.ActiveSessionForPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, current.SessionID, got.SessionID)
}

func TestCoachingAdvanceWindowMonotonic(t *testing.T) {
	repo := NewCoachingRepository(testDB(t), zerolog.Nop())
	ctx := context.Background()

	session, err := repo.CreateSession(ctx, "p1", "jinx", "conn-1", 30)
	require.NoError(t, err)

	require.NoError(t, repo.AdvanceWindow(ctx, session.SessionID, 10))
	got, err := repo.GetSession(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.LastMatchIndexSent)

	// A redelivered delta with a lower index must not move the cursor back.
	require.NoError(t, repo.AdvanceWindow(ctx, session.SessionID, 5))
	got, err = repo.GetSession(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.LastMatchIndexSent)

	// Nor must an equal one rewrite the row.
	require.NoError(t, repo.AdvanceWindow(ctx, session.SessionID, 10))
	got, err = repo.GetSession(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.LastMatchIndexSent)

	require.NoError(t, repo.AdvanceWindow(ctx, session.SessionID, 15))
	got, err = repo.GetSession(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 15, got.LastMatchIndexSent)
}

func TestCoachingClearConnection(t *testing.T) {
	repo := NewCoachingRepository(testDB(t), zerolog.Nop())
	ctx := context.Background()

	session, err := repo.CreateSession(ctx, "p1", "jinx", "conn-1", 30)
	require.NoError(t, err)

	require.NoError(t, repo.ClearConnection(ctx, session.SessionID))

	got, err := repo.GetSession(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Empty(t, got.ConnectionID)
	assert.Equal(t, domain.SessionActive, got.Status)
}
