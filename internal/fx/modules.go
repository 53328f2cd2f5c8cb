package fx

import (
	"rift-rewind/internal/config"
	"rift-rewind/internal/database"
	"rift-rewind/internal/logger"
	"rift-rewind/internal/matchcache"
	"rift-rewind/internal/metrics"
	"rift-rewind/internal/queue"
	"rift-rewind/internal/repository"
	"rift-rewind/internal/riot"
	"rift-rewind/internal/server"
	"rift-rewind/internal/service"
	"rift-rewind/internal/worker"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func ProvideQueue(m *metrics.Metrics, cfg *config.Config, log zerolog.Logger) *queue.Queue {
	return queue.New(m, log,
		queue.WithMaxReceive(cfg.QueueMaxReceive),
		queue.WithDedupeWindow(cfg.QueueDedupeWindow),
	)
}

func ProvideAggregation(
	cache *matchcache.Cache,
	recaps *repository.RecapRepository,
	sessions *repository.CoachingRepository,
	jobs *repository.JobRepository,
	invoker *service.CoachingInvoker,
	m *metrics.Metrics,
	log zerolog.Logger,
) *service.AggregationService {
	return service.NewAggregationService(cache, recaps, sessions, jobs, invoker, m, log)
}

func ProvideProcessor(
	client *riot.Client,
	cache *matchcache.Cache,
	jobs *repository.JobRepository,
	aggregation *service.AggregationService,
	cfg *config.Config,
	m *metrics.Metrics,
	log zerolog.Logger,
) *worker.Processor {
	return worker.NewProcessor(client, cache, jobs, aggregation, cfg, m, log)
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(metrics.New),
	fx.Provide(database.New),
	// storage
	fx.Provide(matchcache.New),
	fx.Provide(repository.NewJobRepository),
	fx.Provide(repository.NewRecapRepository),
	fx.Provide(repository.NewCoachingRepository),
	// riot client
	fx.Provide(riot.NewLimiter),
	fx.Provide(riot.NewClient),
	// queue
	fx.Provide(ProvideQueue),
	fx.Provide(queue.NewDispatcher),
	// svc
	fx.Provide(service.NewDiscoveryService),
	fx.Provide(service.NewCoachingInvoker),
	fx.Provide(service.NewCoachingService),
	fx.Provide(ProvideAggregation),
	fx.Provide(service.NewIngestService),
	// workers
	fx.Provide(ProvideProcessor),
	fx.Provide(worker.NewPool),
	// server
	fx.Provide(server.NewRelay),
	fx.Provide(server.New),
)
