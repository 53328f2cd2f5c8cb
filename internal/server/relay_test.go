package server

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rift-rewind/internal/config"
	"rift-rewind/internal/database"
	"rift-rewind/internal/domain"
	"rift-rewind/internal/metrics"
	"rift-rewind/internal/repository"
)

type recordedEvent struct {
	name    string
	payload any
}

type fakeSink struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (s *fakeSink) Send(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recordedEvent{name: event, payload: payload})
	return nil
}

func (s *fakeSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.name)
	}
	return out
}

func (s *fakeSink) last() recordedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[len(s.events)-1]
}

type relayFixture struct {
	relay  *Relay
	jobs   *repository.JobRepository
	recaps *repository.RecapRepository
}

func newRelayFixture(t *testing.T, timeout time.Duration) *relayFixture {
	t.Helper()

	cfg := &config.Config{
		DBPath:             filepath.Join(t.TempDir(), "test.db"),
		StreamPollInterval: 5 * time.Millisecond,
		StreamTimeout:      timeout,
	}
	db, err := database.New(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	jobs := repository.NewJobRepository(db, zerolog.Nop())
	recaps := repository.NewRecapRepository(db, zerolog.Nop())
	return &relayFixture{
		relay:  NewRelay(jobs, recaps, cfg, metrics.New(), zerolog.Nop()),
		jobs:   jobs,
		recaps: recaps,
	}
}

func (f *relayFixture) createJob(t *testing.T) *domain.PlayerJob {
	t.Helper()
	job, _, err := f.jobs.Create(context.Background(), "p1", 2025, "Faker", "KR1", "kr")
	require.NoError(t, err)
	return job
}

func TestRelayStreamsCompletedJob(t *testing.T) {
	f := newRelayFixture(t, time.Second)
	ctx := context.Background()

	job := f.createJob(t)
	require.NoError(t, f.jobs.SetDiscovered(ctx, "p1", 2025, 1, 3, 1))
	_, _, _, err := f.jobs.IncrementProcessed(ctx, "p1", 2025)
	require.NoError(t, err)
	_, err = f.jobs.CompleteIfProcessing(ctx, "p1", 2025)
	require.NoError(t, err)
	_, err = f.recaps.Put(ctx, "p1", 2025, domain.RecapStats{Games: 4, Wins: 2}, 1, "h1")
	require.NoError(t, err)

	sink := &fakeSink{}
	require.NoError(t, f.relay.Stream(ctx, sink, job))

	names := sink.names()
	assert.Equal(t, EventPlayerInfo, names[0])
	assert.Contains(t, names, EventStatus)

	last := sink.last()
	assert.Equal(t, EventComplete, last.name)
	recap, ok := last.payload.(RecapPayload)
	require.True(t, ok)
	assert.Equal(t, job.JobID, recap.JobID)
	assert.Equal(t, 1, recap.Version)
	assert.Equal(t, 4, recap.Stats.Games)
}

func TestRelayStreamsFailedJob(t *testing.T) {
	f := newRelayFixture(t, time.Second)
	ctx := context.Background()

	job := f.createJob(t)
	require.NoError(t, f.jobs.MarkError(ctx, "p1", 2025, "riot upstream down"))

	sink := &fakeSink{}
	require.NoError(t, f.relay.Stream(ctx, sink, job))

	last := sink.last()
	assert.Equal(t, EventError, last.name)
	errPayload, ok := last.payload.(ErrorPayload)
	require.True(t, ok)
	assert.Equal(t, "job_failed", errPayload.Code)
	assert.Equal(t, "riot upstream down", errPayload.Message)
}

func TestRelayReportsNoMatches(t *testing.T) {
	f := newRelayFixture(t, time.Second)
	ctx := context.Background()

	job := f.createJob(t)
	require.NoError(t, f.jobs.SetDiscovered(ctx, "p1", 2025, 0, 0, 0))
	_, err := f.jobs.CompleteIfProcessing(ctx, "p1", 2025)
	require.NoError(t, err)

	sink := &fakeSink{}
	require.NoError(t, f.relay.Stream(ctx, sink, job))

	last := sink.last()
	assert.Equal(t, EventError, last.name)
	errPayload, ok := last.payload.(ErrorPayload)
	require.True(t, ok)
	assert.Equal(t, "no_matches", errPayload.Code)
}

func TestRelayWaitsForFinalRecap(t *testing.T) {
	f := newRelayFixture(t, 2*time.Second)
	ctx := context.Background()

	// Job is COMPLETE but the final aggregation has not written the recap
	// yet. The relay must keep polling instead of reporting no matches.
	job := f.createJob(t)
	require.NoError(t, f.jobs.SetDiscovered(ctx, "p1", 2025, 1, 0, 1))
	_, _, _, err := f.jobs.IncrementProcessed(ctx, "p1", 2025)
	require.NoError(t, err)
	_, err = f.jobs.CompleteIfProcessing(ctx, "p1", 2025)
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = f.recaps.Put(context.Background(), "p1", 2025, domain.RecapStats{Games: 1}, 1, "h1")
	}()

	sink := &fakeSink{}
	require.NoError(t, f.relay.Stream(ctx, sink, job))

	last := sink.last()
	assert.Equal(t, EventComplete, last.name)
	assert.NotContains(t, sink.names(), EventError)
}

func TestRelayEmitsPartialOncePerVersion(t *testing.T) {
	f := newRelayFixture(t, 100*time.Millisecond)
	ctx := context.Background()

	job := f.createJob(t)
	require.NoError(t, f.jobs.SetDiscovered(ctx, "p1", 2025, 10, 0, 10))
	_, err := f.recaps.Put(ctx, "p1", 2025, domain.RecapStats{Games: 3}, 1, "h1")
	require.NoError(t, err)

	sink := &fakeSink{}
	require.NoError(t, f.relay.Stream(ctx, sink, job))

	partials := 0
	for _, name := range sink.names() {
		if name == EventPartial {
			partials++
		}
	}
	// Many polls, one version: exactly one partial, then the timeout fires.
	assert.Equal(t, 1, partials)
	last := sink.last()
	assert.Equal(t, EventTimeout, last.name)
	timeoutPayload, ok := last.payload.(TimeoutPayload)
	require.True(t, ok)
	assert.Equal(t, job.JobID, timeoutPayload.JobID)
}

func TestRelayClientDisconnect(t *testing.T) {
	f := newRelayFixture(t, time.Second)

	job := f.createJob(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	sink := &fakeSink{}
	err := f.relay.Stream(ctx, sink, job)
	assert.ErrorIs(t, err, context.Canceled)

	// No terminal event goes to a client that already left.
	for _, name := range sink.names() {
		assert.NotContains(t, []string{EventComplete, EventError, EventTimeout}, name)
	}
}
