package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rift-rewind/internal/repository"
)

func TestCoachingCreateSessionCountsCache(t *testing.T) {
	f := newAggFixture(t)
	ctx := context.Background()

	f.cacheMatches(t, "p1", 7)

	svc := NewCoachingService(f.sessions, f.cache, zerolog.Nop())
	session, err := svc.CreateSession(ctx, "p1", "jinx", "conn-1")
	require.NoError(t, err)
	assert.Equal(t, 7, session.TotalMatches)
	assert.Equal(t, 0, session.LastMatchIndexSent)
}

func TestCoachingAckAdvancesWindow(t *testing.T) {
	f := newAggFixture(t)
	ctx := context.Background()

	svc := NewCoachingService(f.sessions, f.cache, zerolog.Nop())
	session, err := svc.CreateSession(ctx, "p1", "jinx", "conn-1")
	require.NoError(t, err)

	require.NoError(t, svc.Ack(ctx, session.SessionID, 12))
	got, err := f.sessions.GetSession(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 12, got.LastMatchIndexSent)

	// A duplicate ack with a stale index is harmless.
	require.NoError(t, svc.Ack(ctx, session.SessionID, 4))
	got, err = f.sessions.GetSession(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 12, got.LastMatchIndexSent)
}

func TestCoachingAckUnknownSession(t *testing.T) {
	f := newAggFixture(t)

	svc := NewCoachingService(f.sessions, f.cache, zerolog.Nop())
	err := svc.Ack(context.Background(), "missing", 3)
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
}
