package errors

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig bounds caller-side retries of hierarchy mutations. The
// hierarchy itself never retries; a CLI or service wraps its calls in a
// Retryer when it wants lock races absorbed.
type RetryConfig struct {
	MaxRetries int           `json:"max_retries"`
	BaseDelay  time.Duration `json:"base_delay"`
	MaxDelay   time.Duration `json:"max_delay"`
	// Jitter spreads each delay by up to this fraction either way. 0 disables it.
	Jitter float64 `json:"jitter"`
	// RetryOn lists the error codes worth another attempt.
	RetryOn []string `json:"retry_on"`
}

// MutationRetryConfig retries mutations that lost a subtree or sibling-group
// lock race, including Postgres serialization failures. Deadline errors are
// left alone because the caller's budget is already spent.
func MutationRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 4,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   2 * time.Second,
		Jitter:     0.1,
		RetryOn:    []string{ErrCodeConcurrentModification},
	}
}

// Retryer re-runs an operation with capped exponential backoff.
type Retryer struct {
	config *RetryConfig
}

// NewRetryer creates a retryer. A nil config means MutationRetryConfig.
func NewRetryer(config *RetryConfig) *Retryer {
	if config == nil {
		config = MutationRetryConfig()
	}
	return &Retryer{config: config}
}

// Execute runs op until it succeeds, fails with an error outside RetryOn,
// runs out of retries, or ctx ends during a backoff.
func (r *Retryer) Execute(ctx context.Context, op func() error) error {
	_, err := run(ctx, r, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// ExecuteWithResult is Execute for operations that return a value.
func ExecuteWithResult[T any](ctx context.Context, config *RetryConfig, op func() (T, error)) (T, error) {
	return run(ctx, NewRetryer(config), op)
}

func run[T any](ctx context.Context, r *Retryer, op func() (T, error)) (T, error) {
	for attempt := 0; ; attempt++ {
		result, err := op()
		if err == nil {
			return result, nil
		}
		if attempt >= r.config.MaxRetries || !r.retries(err) {
			return result, annotate(err, attempt)
		}

		timer := time.NewTimer(r.backoff(attempt + 1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, annotate(err, attempt)
		case <-timer.C:
		}
	}
}

func (r *Retryer) retries(err error) bool {
	appErr, ok := AsAppError(err)
	if !ok || !appErr.IsRetryable() {
		return false
	}
	for _, code := range r.config.RetryOn {
		if appErr.Code == code {
			return true
		}
	}
	return false
}

// backoff returns the wait before retry n (1-based): BaseDelay doubled per
// retry, capped at MaxDelay, then jittered.
func (r *Retryer) backoff(n int) time.Duration {
	delay := r.config.BaseDelay
	for i := 1; i < n && delay < r.config.MaxDelay; i++ {
		delay *= 2
	}
	if r.config.MaxDelay > 0 && delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}
	if r.config.Jitter > 0 {
		delay += time.Duration(float64(delay) * r.config.Jitter * (rand.Float64()*2 - 1))
	}
	return delay
}

// annotate records how many retries were spent. Errors that failed on the
// first attempt come back unchanged.
func annotate(err error, retries int) error {
	if retries == 0 {
		return err
	}
	appErr, ok := AsAppError(err)
	if !ok {
		return err
	}
	if appErr.Details == "" {
		return appErr.WithDetails("Failed after %d retries", retries)
	}
	return appErr.WithDetails("Failed after %d retries: %s", retries, appErr.Details)
}
