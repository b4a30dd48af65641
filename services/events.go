package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	apperrors "catalog-hierarchy/errors"
	"catalog-hierarchy/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EventPublisher delivers domain events after a mutation commits. Delivery is
// best effort; a publish failure never undoes a committed mutation.
type EventPublisher interface {
	Publish(ctx context.Context, event models.HierarchyEvent) error
}

// NewHierarchyEvent stamps an event with an id and the current time.
func NewHierarchyEvent(eventType models.EventType, nodeIDs []string, oldPath, newPath string, changes []models.PathChange) models.HierarchyEvent {
	return models.HierarchyEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		NodeIDs:    nodeIDs,
		OldPath:    oldPath,
		NewPath:    newPath,
		Changes:    changes,
		OccurredAt: time.Now().UTC(),
	}
}

// LoggingEventPublisher writes events to the log. It is the default backend.
type LoggingEventPublisher struct {
	logger Logger
}

func NewLoggingEventPublisher(logger Logger) *LoggingEventPublisher {
	return &LoggingEventPublisher{logger: logger}
}

func (p *LoggingEventPublisher) Publish(ctx context.Context, event models.HierarchyEvent) error {
	p.logger.Info("Hierarchy event",
		String("event_id", event.ID),
		String("event_type", string(event.Type)),
		Any("node_ids", event.NodeIDs),
		String("old_path", event.OldPath),
		String("new_path", event.NewPath),
		Int("changes", len(event.Changes)))
	return nil
}

// RedisEventPublisher publishes JSON-encoded events on a pub/sub channel.
type RedisEventPublisher struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisEventPublisher(client redis.UniversalClient, channel string) *RedisEventPublisher {
	if channel == "" {
		channel = "catalog.hierarchy.events"
	}
	return &RedisEventPublisher{client: client, channel: channel}
}

func (p *RedisEventPublisher) Publish(ctx context.Context, event models.HierarchyEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return apperrors.NewInternalError(apperrors.ErrCodeSerializationError, "Failed to encode event", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return apperrors.NewExternalServiceError(apperrors.ErrCodeEventPublish, "Failed to publish event", err).
			WithDetails("channel %s", p.channel)
	}
	return nil
}

// AsyncEventPublisher hands events to a background worker so that callers
// never wait on the downstream publisher. Events are dropped when the buffer
// is full.
type AsyncEventPublisher struct {
	next    EventPublisher
	logger  Logger
	metrics *HierarchyMetrics
	timeout time.Duration

	queue     chan models.HierarchyEvent
	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewAsyncEventPublisher starts the worker. Close must be called on shutdown.
func NewAsyncEventPublisher(next EventPublisher, bufferSize int, logger Logger, metrics *HierarchyMetrics) *AsyncEventPublisher {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if logger == nil {
		logger = NewNopLogger()
	}

	p := &AsyncEventPublisher{
		next:    next,
		logger:  logger,
		metrics: metrics,
		timeout: 5 * time.Second,
		queue:   make(chan models.HierarchyEvent, bufferSize),
	}

	p.wg.Add(1)
	go p.run()

	return p
}

func (p *AsyncEventPublisher) Publish(ctx context.Context, event models.HierarchyEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return apperrors.NewInternalError(apperrors.ErrCodeEventPublish, "Event publisher closed", nil)
	}

	select {
	case p.queue <- event:
		return nil
	default:
		p.logger.Warn("Event buffer full, dropping event",
			String("event_id", event.ID),
			String("event_type", string(event.Type)))
		err := apperrors.NewRateLimitError(apperrors.ErrCodeEventPublish, "Event buffer full", nil)
		p.metrics.EventPublished(string(event.Type), err)
		return err
	}
}

// Close stops accepting events and waits until the buffer is drained.
func (p *AsyncEventPublisher) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
		p.wg.Wait()
	})
}

func (p *AsyncEventPublisher) run() {
	defer p.wg.Done()

	for event := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.next.Publish(ctx, event)
		cancel()

		p.metrics.EventPublished(string(event.Type), err)
		if err != nil {
			p.logger.Error("Failed to publish hierarchy event", err,
				String("event_id", event.ID),
				String("event_type", string(event.Type)))
		}
	}
}
