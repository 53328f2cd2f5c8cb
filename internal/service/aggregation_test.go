package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
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
	"rift-rewind/internal/matchcache"
	"rift-rewind/internal/metrics"
	"rift-rewind/internal/repository"
	"rift-rewind/internal/riot"
)

type capturingDispatcher struct {
	mu       sync.Mutex
	payloads []domain.CoachingPayload
}

func (d *capturingDispatcher) Dispatch(payload domain.CoachingPayload) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payloads = append(d.payloads, payload)
}

func (d *capturingDispatcher) all() []domain.CoachingPayload {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.CoachingPayload, len(d.payloads))
	copy(out, d.payloads)
	return out
}

type aggFixture struct {
	svc        *AggregationService
	cache      *matchcache.Cache
	sessions   *repository.CoachingRepository
	jobs       *repository.JobRepository
	dispatcher *capturingDispatcher
	db         *sql.DB
}

func newAggFixture(t *testing.T) *aggFixture {
	t.Helper()

	cfg := &config.Config{
		DBPath:         filepath.Join(t.TempDir(), "test.db"),
		ProbeBatchSize: 5,
		ProbeDelay:     time.Millisecond,
	}
	db, err := database.New(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cache := matchcache.New(db, cfg, zerolog.Nop())
	recaps := repository.NewRecapRepository(db, zerolog.Nop())
	sessions := repository.NewCoachingRepository(db, zerolog.Nop())
	jobs := repository.NewJobRepository(db, zerolog.Nop())
	dispatcher := &capturingDispatcher{}

	svc := NewAggregationService(cache, recaps, sessions, jobs, dispatcher, metrics.New(), zerolog.Nop())
	return &aggFixture{svc: svc, cache: cache, sessions: sessions, jobs: jobs, dispatcher: dispatcher, db: db}
}

func (f *aggFixture) cacheMatches(t *testing.T, puuid string, count int) {
	t.Helper()
	ctx := context.Background()
	for i := 1; i <= count; i++ {
		matchID := fmt.Sprintf("NA1_%03d", i)
		match := riot.Match{
			Metadata: riot.MatchMetadata{MatchID: matchID},
			Info: riot.MatchInfo{
				GameCreation: int64(i) * 1000,
				GameDuration: 1800,
				Participants: []riot.Participant{
					{
						Puuid: puuid, ChampionName: "Ahri", TeamID: 100, TeamPosition: "MIDDLE",
						Win: i%2 == 0, Kills: 5, Deaths: 2, Assists: 7,
					},
				},
			},
		}
		body, err := json.Marshal(match)
		require.NoError(t, err)
		require.NoError(t, f.cache.Put(ctx, puuid, matchID, "na1", body))
	}
}

func TestAggregateWritesVersionedRecap(t *testing.T) {
	f := newAggFixture(t)
	ctx := context.Background()

	f.cacheMatches(t, "p1", 3)

	recap, err := f.svc.Aggregate(ctx, "p1", 2025)
	require.NoError(t, err)
	assert.Equal(t, 1, recap.Version)
	assert.Equal(t, 3, recap.Stats.Games)
	assert.Equal(t, "Ahri", recap.Stats.TopChampion)
}

func TestAggregateUnchangedContentSkipsWrite(t *testing.T) {
	f := newAggFixture(t)
	ctx := context.Background()

	f.cacheMatches(t, "p1", 3)

	first, err := f.svc.Aggregate(ctx, "p1", 2025)
	require.NoError(t, err)

	second, err := f.svc.Aggregate(ctx, "p1", 2025)
	require.NoError(t, err)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, first.ContentHash, second.ContentHash)
	assert.Equal(t, first.LastUpdated.Unix(), second.LastUpdated.Unix())
}

func TestAggregateNewMatchesBumpVersion(t *testing.T) {
	f := newAggFixture(t)
	ctx := context.Background()

	f.cacheMatches(t, "p1", 3)
	_, err := f.svc.Aggregate(ctx, "p1", 2025)
	require.NoError(t, err)

	f.cacheMatches(t, "p1", 4) // rewrites 1-3, adds a 4th

	recap, err := f.svc.Aggregate(ctx, "p1", 2025)
	require.NoError(t, err)
	assert.Equal(t, 2, recap.Version)
	assert.Equal(t, 4, recap.Stats.Games)
}

func TestAggregateEmptyCache(t *testing.T) {
	f := newAggFixture(t)

	_, err := f.svc.Aggregate(context.Background(), "p1", 2025)
	assert.ErrorIs(t, err, ErrNoMatches)
}

func TestAggregateDispatchesWindowedDelta(t *testing.T) {
	f := newAggFixture(t)
	ctx := context.Background()

	f.cacheMatches(t, "p1", 15)
	session, err := f.sessions.CreateSession(ctx, "p1", "jinx", "conn-1", 15)
	require.NoError(t, err)
	require.NoError(t, f.sessions.AdvanceWindow(ctx, session.SessionID, 10))

	_, err = f.svc.Aggregate(ctx, "p1", 2025)
	require.NoError(t, err)

	payloads := f.dispatcher.all()
	require.Len(t, payloads, 1)
	p := payloads[0]
	assert.Equal(t, session.SessionID, p.SessionID)
	assert.Equal(t, 10, p.LastMatchIndexSent)
	assert.Equal(t, 15, p.NewLastMatchIndexSent)
	require.Len(t, p.Matches, 5)
	assert.Equal(t, "NA1_011", p.Matches[0].MatchID)
	assert.Equal(t, "NA1_015", p.Matches[4].MatchID)

	// The dispatch alone must not move the consumer's cursor.
	got, err := f.sessions.GetSession(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.LastMatchIndexSent)
}

func TestAggregateFullyCaughtUpSessionGetsNoDelta(t *testing.T) {
	f := newAggFixture(t)
	ctx := context.Background()

	f.cacheMatches(t, "p1", 5)
	session, err := f.sessions.CreateSession(ctx, "p1", "jinx", "conn-1", 5)
	require.NoError(t, err)
	require.NoError(t, f.sessions.AdvanceWindow(ctx, session.SessionID, 5))

	_, err = f.svc.Aggregate(ctx, "p1", 2025)
	require.NoError(t, err)
	assert.Empty(t, f.dispatcher.all())
}

func TestAggregateWithoutMetricsRegistry(t *testing.T) {
	f := newAggFixture(t)
	ctx := context.Background()

	svc := NewAggregationService(f.cache, repository.NewRecapRepository(f.db, zerolog.Nop()),
		f.sessions, f.jobs, f.dispatcher, nil, zerolog.Nop())

	f.cacheMatches(t, "p1", 3)

	// Both the write path and the unchanged-hash path must tolerate a
	// missing registry.
	_, err := svc.Aggregate(ctx, "p1", 2025)
	require.NoError(t, err)
	_, err = svc.Aggregate(ctx, "p1", 2025)
	require.NoError(t, err)
}

func TestTriggerCheckpointFailureKeepsJobRunning(t *testing.T) {
	f := newAggFixture(t)
	ctx := context.Background()

	_, _, err := f.jobs.Create(ctx, "p1", 2025, "Faker", "KR1", "kr")
	require.NoError(t, err)
	require.NoError(t, f.jobs.SetDiscovered(ctx, "p1", 2025, 10, 0, 10))
	_, _, _, err = f.jobs.IncrementProcessed(ctx, "p1", 2025)
	require.NoError(t, err)

	// A corrupt cached body makes the aggregation fail.
	require.NoError(t, f.cache.Put(ctx, "p1", "NA1_bad", "na1", []byte("{")))

	f.svc.Trigger("p1", 2025)
	time.Sleep(200 * time.Millisecond)

	// Workers are still draining the queue and will trigger again, so a
	// mid-run failure must not flip the job to ERROR.
	job, err := f.jobs.GetByKey(ctx, "p1", 2025)
	require.NoError(t, err)
	assert.Equal(t, domain.JobProcessing, job.Status)
	assert.Empty(t, job.ErrorMessage)
}

func TestTriggerFinalFailureMarksJobError(t *testing.T) {
	f := newAggFixture(t)
	ctx := context.Background()

	_, _, err := f.jobs.Create(ctx, "p1", 2025, "Faker", "KR1", "kr")
	require.NoError(t, err)
	require.NoError(t, f.jobs.SetDiscovered(ctx, "p1", 2025, 1, 0, 1))
	_, _, _, err = f.jobs.IncrementProcessed(ctx, "p1", 2025)
	require.NoError(t, err)
	done, err := f.jobs.CompleteIfProcessing(ctx, "p1", 2025)
	require.NoError(t, err)
	require.True(t, done)

	require.NoError(t, f.cache.Put(ctx, "p1", "NA1_bad", "na1", []byte("{")))

	f.svc.Trigger("p1", 2025)

	assert.Eventually(t, func() bool {
		job, err := f.jobs.GetByKey(ctx, "p1", 2025)
		return err == nil && job.Status == domain.JobError
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAggregateWithoutSessionSkipsDispatch(t *testing.T) {
	f := newAggFixture(t)
	ctx := context.Background()

	f.cacheMatches(t, "p1", 3)
	_, err := f.svc.Aggregate(ctx, "p1", 2025)
	require.NoError(t, err)
	assert.Empty(t, f.dispatcher.all())
}
