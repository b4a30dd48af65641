package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"catalog-hierarchy/database"
	"catalog-hierarchy/models"

	"golang.org/x/sync/errgroup"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

const defaultCheckTimeout = 5 * time.Second

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Name      string                 `json:"name"`
	Status    HealthStatus           `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  time.Duration          `json:"duration"`
}

// SystemHealth represents the overall system health
type SystemHealth struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Uptime     time.Duration              `json:"uptime"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components"`
}

// HealthChecker interface for health checking
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) ComponentHealth
}

// HealthService manages health checks for the system
type HealthService interface {
	RegisterChecker(checker HealthChecker)
	CheckHealth(ctx context.Context) SystemHealth
	CheckComponent(ctx context.Context, name string) (ComponentHealth, error)
	GetSystemInfo() map[string]interface{}
}

// DefaultHealthService implements HealthService
type DefaultHealthService struct {
	mu           sync.RWMutex
	checkers     map[string]HealthChecker
	startTime    time.Time
	version      string
	logger       Logger
	checkTimeout time.Duration
}

// NewHealthService creates a new health service
func NewHealthService(version string, logger Logger) *DefaultHealthService {
	if logger == nil {
		logger = NewDefaultLogger()
	}

	return &DefaultHealthService{
		checkers:     make(map[string]HealthChecker),
		startTime:    time.Now(),
		version:      version,
		logger:       logger,
		checkTimeout: defaultCheckTimeout,
	}
}

// SetCheckTimeout bounds how long a single component check may run.
func (h *DefaultHealthService) SetCheckTimeout(d time.Duration) {
	if d > 0 {
		h.checkTimeout = d
	}
}

// RegisterChecker registers a health checker
func (h *DefaultHealthService) RegisterChecker(checker HealthChecker) {
	h.mu.Lock()
	h.checkers[checker.Name()] = checker
	h.mu.Unlock()
	h.logger.Info("Health checker registered", String("component", checker.Name()))
}

// CheckHealth runs every registered checker concurrently.
func (h *DefaultHealthService) CheckHealth(ctx context.Context) SystemHealth {
	start := time.Now()

	h.mu.RLock()
	checkers := make([]HealthChecker, 0, len(h.checkers))
	for _, c := range h.checkers {
		checkers = append(checkers, c)
	}
	h.mu.RUnlock()

	results := make([]ComponentHealth, len(checkers))
	g, gctx := errgroup.WithContext(ctx)
	for i, checker := range checkers {
		i, checker := i, checker
		g.Go(func() error {
			results[i] = h.checkComponentWithTimeout(gctx, checker, h.checkTimeout)
			return nil
		})
	}
	_ = g.Wait()

	components := make(map[string]ComponentHealth, len(results))
	overallStatus := HealthStatusHealthy
	for i, result := range results {
		components[checkers[i].Name()] = result
		switch result.Status {
		case HealthStatusUnhealthy:
			overallStatus = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if overallStatus == HealthStatusHealthy {
				overallStatus = HealthStatusDegraded
			}
		}
	}

	h.logger.Info("Health check completed",
		String("status", string(overallStatus)),
		Duration("duration", time.Since(start)),
		Int("components_checked", len(components)))

	return SystemHealth{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Uptime:     time.Since(h.startTime),
		Version:    h.version,
		Components: components,
	}
}

// CheckComponent checks the health of a specific component
func (h *DefaultHealthService) CheckComponent(ctx context.Context, name string) (ComponentHealth, error) {
	h.mu.RLock()
	checker, exists := h.checkers[name]
	h.mu.RUnlock()
	if !exists {
		return ComponentHealth{}, fmt.Errorf("component %s not found", name)
	}

	return h.checkComponentWithTimeout(ctx, checker, h.checkTimeout), nil
}

// GetSystemInfo returns general system information
func (h *DefaultHealthService) GetSystemInfo() map[string]interface{} {
	h.mu.RLock()
	count := len(h.checkers)
	h.mu.RUnlock()

	return map[string]interface{}{
		"version":    h.version,
		"uptime":     time.Since(h.startTime).String(),
		"start_time": h.startTime.Format(time.RFC3339),
		"components": count,
	}
}

func (h *DefaultHealthService) checkComponentWithTimeout(ctx context.Context, checker HealthChecker, timeout time.Duration) ComponentHealth {
	start := time.Now()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultChan := make(chan ComponentHealth, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultChan <- ComponentHealth{
					Name:      checker.Name(),
					Status:    HealthStatusUnhealthy,
					Message:   fmt.Sprintf("Health check panicked: %v", r),
					Timestamp: time.Now(),
					Duration:  time.Since(start),
				}
			}
		}()

		result := checker.Check(timeoutCtx)
		result.Duration = time.Since(start)
		resultChan <- result
	}()

	select {
	case result := <-resultChan:
		return result
	case <-timeoutCtx.Done():
		return ComponentHealth{
			Name:      checker.Name(),
			Status:    HealthStatusUnhealthy,
			Message:   "Health check timed out",
			Timestamp: time.Now(),
			Duration:  timeout,
		}
	}
}

// StoreHealthChecker checks tree store connectivity
type StoreHealthChecker struct {
	name  string
	store database.TreeStore
}

// NewStoreHealthChecker creates a store health checker
func NewStoreHealthChecker(name string, store database.TreeStore) *StoreHealthChecker {
	return &StoreHealthChecker{name: name, store: store}
}

// Name returns the checker name
func (s *StoreHealthChecker) Name() string {
	return s.name
}

// Check pings the store
func (s *StoreHealthChecker) Check(ctx context.Context) ComponentHealth {
	if err := s.store.Ping(ctx); err != nil {
		return ComponentHealth{
			Name:      s.name,
			Status:    HealthStatusUnhealthy,
			Message:   fmt.Sprintf("Store ping failed: %v", err),
			Timestamp: time.Now(),
		}
	}
	return ComponentHealth{
		Name:      s.name,
		Status:    HealthStatusHealthy,
		Message:   "Store connection successful",
		Timestamp: time.Now(),
	}
}

// DatabaseProbe is what the database checker needs from the Postgres pool.
type DatabaseProbe interface {
	Ping(ctx context.Context) error
	SchemaReady(ctx context.Context) (bool, error)
	PoolStats() database.PoolStats
}

// DatabaseHealthChecker reports pool saturation and whether the categories
// schema has been migrated.
type DatabaseHealthChecker struct {
	name  string
	probe DatabaseProbe
}

func NewDatabaseHealthChecker(name string, probe DatabaseProbe) *DatabaseHealthChecker {
	return &DatabaseHealthChecker{name: name, probe: probe}
}

// Name returns the checker name
func (d *DatabaseHealthChecker) Name() string {
	return d.name
}

// Check pings the pool, probes the schema and inspects pool usage.
func (d *DatabaseHealthChecker) Check(ctx context.Context) ComponentHealth {
	health := ComponentHealth{Name: d.name, Timestamp: time.Now()}

	if err := d.probe.Ping(ctx); err != nil {
		health.Status = HealthStatusUnhealthy
		health.Message = fmt.Sprintf("Database ping failed: %v", err)
		return health
	}

	ready, err := d.probe.SchemaReady(ctx)
	if err != nil {
		health.Status = HealthStatusUnhealthy
		health.Message = err.Error()
		return health
	}
	if !ready {
		health.Status = HealthStatusUnhealthy
		health.Message = "categories table missing, run hierarchyctl migrate"
		return health
	}

	stats := d.probe.PoolStats()
	health.Details = map[string]interface{}{
		"total_conns":    stats.TotalConns,
		"idle_conns":     stats.IdleConns,
		"acquired_conns": stats.AcquiredConns,
		"max_conns":      stats.MaxConns,
		"empty_acquires": stats.EmptyAcquires,
	}
	if stats.MaxConns > 0 && stats.AcquiredConns >= stats.MaxConns {
		health.Status = HealthStatusDegraded
		health.Message = "Connection pool exhausted"
		return health
	}

	health.Status = HealthStatusHealthy
	health.Message = "Database connection successful"
	return health
}

type pinger interface {
	Ping(ctx context.Context) error
}

// CacheHealthChecker checks the hierarchy cache. A cache that cannot be
// reached only degrades the service since reads fall through to the store.
type CacheHealthChecker struct {
	name  string
	cache HierarchyCache
}

// NewCacheHealthChecker creates a cache health checker
func NewCacheHealthChecker(name string, cache HierarchyCache) *CacheHealthChecker {
	return &CacheHealthChecker{name: name, cache: cache}
}

// Name returns the checker name
func (c *CacheHealthChecker) Name() string {
	return c.name
}

// Check verifies the cache generation can be read
func (c *CacheHealthChecker) Check(ctx context.Context) ComponentHealth {
	if p, ok := c.cache.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return ComponentHealth{
				Name:      c.name,
				Status:    HealthStatusDegraded,
				Message:   fmt.Sprintf("Cache ping failed: %v", err),
				Timestamp: time.Now(),
			}
		}
	}

	if _, err := c.cache.Generation(ctx); err != nil {
		return ComponentHealth{
			Name:      c.name,
			Status:    HealthStatusDegraded,
			Message:   fmt.Sprintf("Cache generation unavailable: %v", err),
			Timestamp: time.Now(),
		}
	}

	stats := c.cache.GetStats()
	return ComponentHealth{
		Name:    c.name,
		Status:  HealthStatusHealthy,
		Message: "Cache check successful",
		Details: map[string]interface{}{
			"backend":    stats.Backend,
			"hit_rate":   stats.HitRate,
			"size":       stats.Size,
			"max_size":   stats.MaxSize,
			"generation": stats.Generation,
		},
		Timestamp: time.Now(),
	}
}

// ForestValidator is the part of the manager the integrity checker needs.
type ForestValidator interface {
	ValidateForest(ctx context.Context) (*models.ValidationReport, error)
}

// HierarchyIntegrityChecker reports degraded while the forest has anomalies.
type HierarchyIntegrityChecker struct {
	name      string
	validator ForestValidator
}

// NewHierarchyIntegrityChecker creates an integrity checker
func NewHierarchyIntegrityChecker(name string, validator ForestValidator) *HierarchyIntegrityChecker {
	return &HierarchyIntegrityChecker{name: name, validator: validator}
}

// Name returns the checker name
func (c *HierarchyIntegrityChecker) Name() string {
	return c.name
}

// Check validates the whole forest
func (c *HierarchyIntegrityChecker) Check(ctx context.Context) ComponentHealth {
	report, err := c.validator.ValidateForest(ctx)
	if err != nil {
		return ComponentHealth{
			Name:      c.name,
			Status:    HealthStatusUnhealthy,
			Message:   fmt.Sprintf("Validation failed: %v", err),
			Timestamp: time.Now(),
		}
	}

	details := map[string]interface{}{
		"nodes_total": report.NodesTotal,
		"anomalies":   len(report.Anomalies),
	}
	for kind, n := range report.CountByKind {
		details[string(kind)] = n
	}

	if len(report.Anomalies) > 0 {
		return ComponentHealth{
			Name:      c.name,
			Status:    HealthStatusDegraded,
			Message:   fmt.Sprintf("%d anomalies detected", len(report.Anomalies)),
			Details:   details,
			Timestamp: time.Now(),
		}
	}
	return ComponentHealth{
		Name:      c.name,
		Status:    HealthStatusHealthy,
		Message:   "Hierarchy is consistent",
		Details:   details,
		Timestamp: time.Now(),
	}
}
