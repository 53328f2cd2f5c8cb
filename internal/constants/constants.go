package constants

import "time"

const (
	// Riot enforces 20 req/s and 100 req/2min on development keys; the
	// limiter paces to a fraction of the short window and tracks the long
	// one explicitly.
	RiotRequestsPerSecond = 20
	RiotLimiterFraction   = 0.75
	RiotWindowSize        = 2 * time.Minute
	RiotWindowLimit       = 100

	RiotRetryBaseDelay = 500 * time.Millisecond
	RiotRetryMaxDelay  = 8 * time.Second
	RiotRetryBudget    = 5
)

const (
	DiscoveryPageSize  = 100
	DiscoveryPageDelay = 200 * time.Millisecond
)

const (
	CacheProbeBatchSize = 50
	CacheProbeDelay     = 50 * time.Millisecond
	CacheListPageSize   = 200
)

const (
	QueueBatchSize    = 10
	QueueMaxReceive   = 3
	QueueDedupeWindow = 5 * time.Minute
	QueueReceiveMax   = 5
)

const (
	WorkerCount         = 4
	CheckpointInterval  = 20
	AggregateFetchBatch = 50
)

const (
	StreamPollInterval = 5 * time.Second
	StreamTimeout      = 5 * time.Minute
)

const (
	JobTTL     = 24 * time.Hour
	RecapTTL   = 24 * time.Hour
	SessionTTL = 24 * time.Hour
)

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
	AggregationTimeout = 2 * time.Minute
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	RecentMatchLimit  = 10
	TopChampionLimit  = 5
	NemesisLimit      = 3
	MinGamesThreshold = 3
)
