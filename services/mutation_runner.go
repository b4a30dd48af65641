package services

import (
	"context"
	stderrors "errors"
	"time"

	"catalog-hierarchy/database"
	apperrors "catalog-hierarchy/errors"
	"catalog-hierarchy/models"

	"go.opentelemetry.io/otel/attribute"
)

// MutationState is the lifecycle of a single mutation.
type MutationState string

const (
	StateValidating   MutationState = "validating"
	StateLocked       MutationState = "locked"
	StateApplying     MutationState = "applying"
	StateInvalidating MutationState = "invalidating"
	StateCommitted    MutationState = "committed"
	StateRejected     MutationState = "rejected"
)

// mutationOutcome is what an applied mutation leaves behind for the
// post-commit steps.
type mutationOutcome struct {
	touched []string
	events  []models.HierarchyEvent
	noop    bool
}

// prepareFunc validates the request and returns the lock scopes. A nil scope
// list means there is nothing to do.
type prepareFunc func(ctx context.Context) (scopes []string, err error)
type applyFunc func(ctx context.Context, tx database.TreeTx) (*mutationOutcome, error)

// mutationRunner drives prepare, lock, apply, commit, invalidate, publish.
// The caller only sees a result once the cache no longer holds anything the
// mutation made stale.
type mutationRunner struct {
	store     database.TreeStore
	cache     HierarchyCache
	publisher EventPublisher
	logger    Logger
	metrics   *HierarchyMetrics
	timeout   time.Duration
}

func (r *mutationRunner) run(ctx context.Context, op string, prepare prepareFunc, apply applyFunc) error {
	start := time.Now()
	ctx, span := startSpan(ctx, op)
	log := r.logger.With(String("operation", op))

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	reject := func(err error) error {
		err = classifyMutationError(ctx, err, op)
		if apperrors.Is(err, apperrors.ErrConcurrentModification) {
			r.metrics.LockConflict(op)
		}
		log.Warn("Mutation rejected",
			String("state", string(StateRejected)),
			String("error", err.Error()),
			Duration("elapsed", time.Since(start)))
		r.metrics.ObserveMutation(op, OutcomeRejected, time.Since(start))
		endSpan(span, err)
		return err
	}

	log.Debug("Mutation state", String("state", string(StateValidating)))
	scopes, err := prepare(ctx)
	if err != nil {
		return reject(err)
	}
	if scopes == nil {
		r.metrics.ObserveMutation(op, OutcomeNoop, time.Since(start))
		endSpan(span, nil)
		return nil
	}
	span.SetAttributes(attribute.StringSlice("lock.scopes", scopes))

	var outcome *mutationOutcome
	err = r.store.WithinTx(ctx, scopes, func(ctx context.Context, tx database.TreeTx) error {
		log.Debug("Mutation state", String("state", string(StateLocked)), Any("scopes", scopes))
		log.Debug("Mutation state", String("state", string(StateApplying)))
		out, err := apply(ctx, tx)
		if err != nil {
			return err
		}
		outcome = out
		return nil
	})
	if err != nil {
		return reject(err)
	}

	if outcome == nil || outcome.noop {
		log.Debug("Mutation was a no-op")
		r.metrics.ObserveMutation(op, OutcomeNoop, time.Since(start))
		endSpan(span, nil)
		return nil
	}

	// The transaction is committed; the caller's deadline no longer applies.
	post := context.WithoutCancel(ctx)

	log.Debug("Mutation state", String("state", string(StateInvalidating)))
	if r.cache != nil {
		if err := r.cache.Invalidate(post, outcome.touched); err != nil {
			log.Error("Cache invalidation failed", err, Any("touched", outcome.touched))
		}
	}

	if r.publisher != nil {
		for _, event := range outcome.events {
			if err := r.publisher.Publish(post, event); err != nil {
				log.Warn("Event not published",
					String("event_type", string(event.Type)),
					String("error", err.Error()))
			}
		}
	}

	elapsed := time.Since(start)
	log.Info("Mutation committed",
		String("state", string(StateCommitted)),
		Int("touched", len(outcome.touched)),
		Duration("elapsed", elapsed))
	r.metrics.ObserveMutation(op, OutcomeCommitted, elapsed)
	endSpan(span, nil)
	return nil
}

func classifyMutationError(ctx context.Context, err error, op string) error {
	if apperrors.IsAppError(err) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return apperrors.FromContext(ctxErr, op)
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return apperrors.FromContext(err, op)
	}
	return apperrors.WrapError(err, apperrors.ErrTypeInternal, apperrors.ErrCodeProcessingError, "Mutation failed")
}
