package services

import (
	"context"
	"fmt"

	"catalog-hierarchy/config"
	"catalog-hierarchy/database"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// ServiceContainer holds all service instances
type ServiceContainer struct {
	Config *config.Config

	Store    database.TreeStore
	Postgres *database.PostgresService
	Redis    redis.UniversalClient

	Cache     HierarchyCache
	Publisher EventPublisher
	Manager   *HierarchyManager

	// Performance and monitoring
	Logger        Logger
	Registry      *prometheus.Registry
	Metrics       *HierarchyMetrics
	Monitor       QueryPerformanceMonitor
	HealthService HealthService

	closers []func()
}

// ServiceFactory creates and configures all services
type ServiceFactory struct {
	config *config.Config
	logger Logger
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(cfg *config.Config) *ServiceFactory {
	return &ServiceFactory{config: cfg}
}

// WithLogger replaces the logger built from the logging config.
func (f *ServiceFactory) WithLogger(logger Logger) *ServiceFactory {
	f.logger = logger
	return f
}

// CreateServices creates and wires all services together. The container
// must be closed by the caller.
func (f *ServiceFactory) CreateServices(ctx context.Context) (*ServiceContainer, error) {
	c := &ServiceContainer{Config: f.config}

	c.Logger = f.logger
	if c.Logger == nil {
		c.Logger = NewLoggerFromConfig(&LoggerConfig{
			Level:  ParseLogLevel(f.config.Logging.Level),
			Format: f.config.Logging.Format,
		})
	}

	c.Registry = prometheus.NewRegistry()
	if f.config.Performance.MetricsEnabled {
		c.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		c.Metrics = NewHierarchyMetrics(c.Registry)
	}

	if f.config.Performance.MonitoringEnabled {
		c.Monitor = NewInMemoryPerformanceMonitor(
			f.config.Performance.SlowQueryThreshold,
			f.config.Performance.MaxSlowQueries,
			c.Logger,
		)
	} else {
		c.Monitor = NewNoOpMonitor()
	}

	if err := f.createStore(ctx, c); err != nil {
		c.Close()
		return nil, err
	}

	if f.needsRedis() {
		c.Redis = redis.NewClient(&redis.Options{
			Addr:     f.config.Redis.Addr,
			Password: f.config.Redis.Password,
			DB:       f.config.Redis.DB,
		})
		client := c.Redis
		c.closers = append(c.closers, func() { _ = client.Close() })
	}

	f.createCache(c)
	f.createPublisher(c)

	c.Manager = NewHierarchyManager(c.Store, c.Cache,
		WithLogger(c.Logger),
		WithMetrics(c.Metrics),
		WithEventPublisher(c.Publisher),
		WithQueryMonitor(c.Monitor),
		WithMaxDepth(f.config.Hierarchy.MaxDepth),
		WithMutationTimeout(f.config.Hierarchy.MutationTimeout),
	)

	health := NewHealthService(Version, c.Logger)
	health.RegisterChecker(NewStoreHealthChecker("store", c.Store))
	if c.Postgres != nil {
		health.RegisterChecker(NewDatabaseHealthChecker("database", c.Postgres))
	}
	if c.Cache != nil {
		health.RegisterChecker(NewCacheHealthChecker("cache", c.Cache))
	}
	health.RegisterChecker(NewHierarchyIntegrityChecker("hierarchy", c.Manager))
	c.HealthService = health

	c.Logger.Info("Services created",
		String("store", f.config.Hierarchy.Store),
		Bool("cache_enabled", c.Cache != nil),
		String("events", f.config.Events.Backend),
		Int("max_depth", f.config.Hierarchy.MaxDepth))

	return c, nil
}

func (f *ServiceFactory) createStore(ctx context.Context, c *ServiceContainer) error {
	switch f.config.Hierarchy.Store {
	case "postgres":
		pgConfig := database.DefaultPostgresConfig()
		pgConfig.Host = f.config.Database.Host
		pgConfig.Port = f.config.Database.Port
		pgConfig.Database = f.config.Database.Database
		pgConfig.User = f.config.Database.User
		pgConfig.Password = f.config.Database.Password
		pgConfig.SSLMode = f.config.Database.SSLMode
		pgConfig.MaxConns = int32(f.config.Database.MaxConns)
		pgConfig.MinConns = int32(f.config.Database.MinConns)

		postgresService, err := database.NewPostgresService(ctx, pgConfig)
		if err != nil {
			return fmt.Errorf("failed to create PostgreSQL service: %w", err)
		}
		c.Postgres = postgresService
		c.closers = append(c.closers, postgresService.Close)

		store := postgresService.TreeStore(f.config.Hierarchy.LockTimeout)
		if f.config.Hierarchy.AutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("failed to ensure schema: %w", err)
			}
		}
		c.Store = store
	default:
		c.Store = database.NewMemoryTreeStore(f.config.Hierarchy.LockTimeout)
	}
	return nil
}

func (f *ServiceFactory) needsRedis() bool {
	return (f.config.Cache.Enabled && f.config.Cache.Backend == "redis") || f.config.Events.Backend == "redis"
}

func (f *ServiceFactory) createCache(c *ServiceContainer) {
	if !f.config.Cache.Enabled {
		return
	}
	switch f.config.Cache.Backend {
	case "redis":
		c.Cache = NewRedisHierarchyCache(c.Redis, RedisCacheConfig{
			KeyPrefix:        f.config.Redis.KeyPrefix,
			TTL:              f.config.Cache.DefaultTTL,
			FailureThreshold: uint32(f.config.Redis.FailureThreshold),
			OpenTimeout:      f.config.Redis.OpenTimeout,
		}, c.Logger)
	default:
		cache := NewInMemoryHierarchyCache(
			f.config.Cache.MaxSize,
			f.config.Cache.DefaultTTL,
			f.config.Cache.CleanupInterval,
		)
		c.Cache = cache
		c.closers = append(c.closers, cache.Stop)
	}
}

func (f *ServiceFactory) createPublisher(c *ServiceContainer) {
	var next EventPublisher
	switch f.config.Events.Backend {
	case "redis":
		next = NewRedisEventPublisher(c.Redis, f.config.Events.Channel)
	case "log":
		next = NewLoggingEventPublisher(c.Logger)
	default:
		return
	}

	async := NewAsyncEventPublisher(next, f.config.Events.BufferSize, c.Logger, c.Metrics)
	c.Publisher = async
	// Closers run in reverse, so pending events drain before the Redis client closes.
	c.closers = append(c.closers, async.Close)
}

// Close releases resources in reverse order of creation.
func (c *ServiceContainer) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// HealthCheck verifies the store is reachable
func (c *ServiceContainer) HealthCheck(ctx context.Context) error {
	if err := c.Store.Ping(ctx); err != nil {
		return fmt.Errorf("store health check failed: %w", err)
	}
	return nil
}
