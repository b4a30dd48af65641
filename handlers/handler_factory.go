package handlers

import (
	"time"

	"catalog-hierarchy/services"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
)

// HandlerFactory creates handlers with proper dependencies
type HandlerFactory struct {
	hierarchy          HierarchyService
	logger             services.Logger
	validate           *validator.Validate
	registry           prometheus.Registerer
	slowQueryThreshold time.Duration
}

// NewHandlerFactory creates a new handler factory. registry may be nil when
// metrics are disabled.
func NewHandlerFactory(
	hierarchy HierarchyService,
	logger services.Logger,
	registry prometheus.Registerer,
	slowQueryThreshold time.Duration,
) *HandlerFactory {
	if logger == nil {
		logger = services.NewNopLogger()
	}
	return &HandlerFactory{
		hierarchy:          hierarchy,
		logger:             logger,
		validate:           validator.New(),
		registry:           registry,
		slowQueryThreshold: slowQueryThreshold,
	}
}

// CreateCategoryHandler creates the category handler
func (f *HandlerFactory) CreateCategoryHandler() *CategoryHandler {
	return NewCategoryHandler(f.hierarchy, f.validate, f.logger.With(services.String("handler", "category")))
}

// CreateMaintenanceHandler creates the maintenance handler
func (f *HandlerFactory) CreateMaintenanceHandler() *MaintenanceHandler {
	return NewMaintenanceHandler(f.hierarchy, f.validate, f.logger.With(services.String("handler", "maintenance")))
}

// CreatePerformanceMonitor creates the request monitor
func (f *HandlerFactory) CreatePerformanceMonitor() *PerformanceMonitor {
	return NewPerformanceMonitor(f.slowQueryThreshold, f.logger, f.registry)
}
