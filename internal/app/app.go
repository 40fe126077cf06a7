// Package app wires configuration, stores and services into a runnable
// engine shared by the API server and the batch commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/gymflow/internal/api"
	"github.com/timmy/gymflow/internal/api/handler"
	"github.com/timmy/gymflow/internal/api/middleware"
	"github.com/timmy/gymflow/internal/cache"
	"github.com/timmy/gymflow/internal/config"
	"github.com/timmy/gymflow/internal/logger"
	"github.com/timmy/gymflow/internal/repository"
	"github.com/timmy/gymflow/internal/service"
	"github.com/timmy/gymflow/internal/worker"
	"gorm.io/gorm"
)

// App holds the constructed engine.
type App struct {
	Config *config.Config
	DB     *gorm.DB

	Store cache.Store
	Cache *cache.Layer
	Index repository.VectorIndex
	Queue *worker.Queue

	Members  *repository.MemberRepository
	Classes  *repository.ClassRepository
	Embedder *service.EmbeddingClient

	Recommendations *service.RecommendationService
	Schedules       *service.ScheduleService
	Search          *service.SearchService
	Profiles        *service.MemberProfileService
	ClassUpdates    *service.ClassService
	Reembed         *service.ReembedService
	Warmer          *cache.Warmer

	closers []func() error
}

// New opens every store named in cfg and builds the services. Optional
// backends (Redis, Qdrant) that cannot be reached are replaced by their
// fallbacks with a warning; the primary database is required.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.DB = db
	if sqlDB, err := db.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}

	a.Store = a.openCacheStore(ctx)
	a.closers = append(a.closers, a.Store.Close)
	a.Cache = cache.NewLayer(a.Store, cfg.Cache.OpTimeout)

	index, err := a.openVectorIndex(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Index = index

	provider, err := service.NewEmbeddingProvider(&cfg.Embedding)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	a.Embedder = service.NewEmbeddingClient(provider, cfg.Embedding.Name, cfg.Embedding.Timeout, cfg.Breaker)

	var advisor service.Advisor
	if cfg.AI.Enabled {
		advisor = service.NewChatAdvisor(&cfg.AI, cfg.Breaker)
		logger.Info("AI advisor enabled: model=%s", cfg.AI.Model)
	}

	loc, err := time.LoadLocation(cfg.Recommendation.Timezone)
	if err != nil {
		logger.Warn("Unknown timezone %q, using UTC: %v", cfg.Recommendation.Timezone, err)
		loc = time.UTC
	}

	a.Queue = worker.NewQueue(worker.Config{
		Workers:     cfg.Queue.Workers,
		BufferSize:  cfg.Queue.BufferSize,
		TaskTimeout: 2 * cfg.Embedding.Timeout,
	})

	a.Members = repository.NewMemberRepository(db)
	a.Classes = repository.NewClassRepository(db)
	history := repository.NewHistoryRepository(db)
	schedules := repository.NewScheduleRepository(db)
	metrics := service.NewMetricsCollector(repository.NewClassMetricsRepository(db), cfg.Database.QueryTimeout)
	analyzer := service.NewPatternAnalyzer(loc)
	w := cfg.Recommendation.Weights
	scoring := service.NewScoringEngine(service.Weights{
		Similarity: w.Similarity,
		Popularity: w.Popularity,
		Recency:    w.Recency,
		Diversity:  w.Diversity,
	})

	a.Recommendations = service.NewRecommendationService(service.RecommendationDeps{
		Members:  a.Members,
		Classes:  a.Classes,
		History:  history,
		Index:    a.Index,
		Embedder: a.Embedder,
		Advisor:  advisor,
		Metrics:  metrics,
		Scoring:  scoring,
		Analyzer: analyzer,
		Cache:    a.Cache,
		Tasks:    a.Queue,
	}, service.RecommendationConfig{
		CandidateK:    cfg.Recommendation.CandidateK,
		Limit:         cfg.Recommendation.Limit,
		RecentWindow:  cfg.Recommendation.RecentWindow,
		HistoryLimit:  cfg.Recommendation.HistoryLimit,
		CacheTTL:      cfg.Cache.RecommendationTTL,
		QueryTimeout:  cfg.Database.QueryTimeout,
		AIEnabled:     cfg.AI.Enabled,
		EligibleTiers: cfg.AI.EligibleTiers,
	})

	a.Schedules = service.NewScheduleService(service.ScheduleDeps{
		Members:  a.Members,
		History:  history,
		Slots:    schedules,
		Advisor:  advisor,
		Analyzer: analyzer,
		Cache:    a.Cache,
	}, service.ScheduleConfig{
		Days:          cfg.Recommendation.ScheduleDays,
		Limit:         cfg.Recommendation.Limit,
		HistoryLimit:  cfg.Recommendation.HistoryLimit,
		CacheTTL:      cfg.Cache.ScheduleTTL,
		QueryTimeout:  cfg.Database.QueryTimeout,
		AIEnabled:     cfg.AI.Enabled,
		EligibleTiers: cfg.AI.EligibleTiers,
		Location:      loc,
	})

	a.Search = service.NewSearchService(a.Classes, a.Index, a.Embedder, cfg.Database.QueryTimeout)
	a.Profiles = service.NewMemberProfileService(a.Members, a.Embedder, a.Cache, a.Queue)
	a.ClassUpdates = service.NewClassService(a.Classes, a.Index, a.Embedder, a.Queue)
	a.Reembed = service.NewReembedService(a.Classes, a.Members, a.ClassUpdates, a.Embedder,
		&service.ReembedConfig{Workers: cfg.Queue.Workers})

	a.Warmer = cache.NewWarmer(a.Members,
		cache.MultiWarmer{a.Recommendations, a.Schedules},
		cache.WarmerConfig{
			Interval:    cfg.Cache.WarmInterval,
			ActiveDays:  cfg.Cache.WarmActiveDays,
			MemberLimit: cfg.Cache.WarmMemberLimit,
		})

	return a, nil
}

func (a *App) openCacheStore(ctx context.Context) cache.Store {
	if !a.Config.Redis.Enabled {
		logger.Info("Redis disabled, using in-memory cache")
		return cache.NewMemoryStore(nil)
	}
	store, err := cache.NewRedisStore(ctx, &a.Config.Redis)
	if err != nil {
		logger.Warn("Redis unavailable at %s, using in-memory cache: %v", a.Config.Redis.Addr, err)
		return cache.NewMemoryStore(nil)
	}
	logger.Info("Using Redis cache: addr=%s", a.Config.Redis.Addr)
	return store
}

func (a *App) openVectorIndex(ctx context.Context) (repository.VectorIndex, error) {
	cfg := a.Config
	switch cfg.Vector.Backend {
	case "qdrant":
		q, err := repository.NewQdrantIndex(&repository.QdrantConnectionConfig{
			Host:            cfg.Vector.Qdrant.Host,
			Port:            cfg.Vector.Qdrant.Port,
			Collection:      cfg.Vector.Qdrant.Collection,
			APIKey:          cfg.Vector.Qdrant.APIKey,
			UseTLS:          cfg.Vector.Qdrant.UseTLS,
			VectorDimension: cfg.Embedding.Dimensions,
			Timeout:         cfg.Database.QueryTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Qdrant index: %w", err)
		}
		a.closers = append(a.closers, q.Close)
		if err := q.EnsureCollection(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure Qdrant collection: %w", err)
		}
		logger.Info("Using Qdrant vector index: collection=%s", cfg.Vector.Qdrant.Collection)
		return q, nil
	case "pgvector", "":
		if cfg.Database.Driver != "postgres" {
			logger.Warn("pgvector index needs PostgreSQL, vector search will return no matches on %s", cfg.Database.Driver)
		}
		return repository.NewPgvectorIndex(a.DB, cfg.Embedding.Dimensions, cfg.Database.QueryTimeout), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Vector.Backend)
	}
}

// Router builds the HTTP router.
func (a *App) Router() *gin.Engine {
	checks := map[string]handler.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := a.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"cache": func(ctx context.Context) error {
			_, err := a.Store.Get(ctx, "health:ping")
			if errors.Is(err, cache.ErrMiss) {
				return nil
			}
			return err
		},
	}

	return api.SetupRouter(api.Handlers{
		Health:     handler.NewHealthHandler(checks),
		Suggestion: handler.NewSuggestionHandler(a.Recommendations, a.Schedules),
		Search:     handler.NewSearchHandler(a.Search),
		Profile:    handler.NewProfileHandler(a.Profiles, a.ClassUpdates),
		Admin:      handler.NewAdminHandler(a.Warmer, a.Cache),
	}, a.Config.Server.Mode, middleware.CORSConfig{
		AllowedOrigins:  a.Config.Server.CORS.AllowedOrigins,
		AllowAllOrigins: a.Config.Server.CORS.AllowAllOrigins,
	})
}

// Close releases the stores in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
