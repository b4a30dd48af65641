package database

import (
	"context"
	"sync"
	"testing"
	"time"

	apperrors "catalog-hierarchy/errors"
	"catalog-hierarchy/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubtreeLocker_DisjointScopesProceedInParallel(t *testing.T) {
	locker := NewSubtreeLocker()
	ctx := context.Background()

	releaseA, err := locker.Acquire(ctx, []string{"electronics/phones"}, 50*time.Millisecond)
	require.NoError(t, err)
	defer releaseA()

	releaseB, err := locker.Acquire(ctx, []string{"electronics/tv"}, 50*time.Millisecond)
	require.NoError(t, err)
	defer releaseB()

	assert.Equal(t, 2, locker.Held())
}

func TestSubtreeLocker_OverlappingScopeFailsFast(t *testing.T) {
	locker := NewSubtreeLocker()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, []string{"electronics"}, time.Second)
	require.NoError(t, err)
	defer release()

	start := time.Now()
	_, err = locker.Acquire(ctx, []string{"electronics/phones/android"}, 30*time.Millisecond)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConcurrentModification))
	assert.Less(t, time.Since(start), time.Second)
}

func TestSubtreeLocker_WaiterProceedsAfterRelease(t *testing.T) {
	locker := NewSubtreeLocker()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, []string{"a/b"}, time.Second)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	var waitErr error
	go func() {
		defer wg.Done()
		r, err := locker.Acquire(ctx, []string{"a"}, time.Second)
		waitErr = err
		if r != nil {
			r()
		}
	}()

	time.Sleep(20 * time.Millisecond)
	release()
	release() // second call is a no-op
	wg.Wait()

	assert.NoError(t, waitErr)
	assert.Equal(t, 0, locker.Held())
}

func TestSubtreeLocker_ForestScopeConflictsWithEverything(t *testing.T) {
	locker := NewSubtreeLocker()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, []string{""}, time.Second)
	require.NoError(t, err)
	defer release()

	_, err = locker.Acquire(ctx, []string{"anything"}, 10*time.Millisecond)
	assert.True(t, apperrors.Is(err, apperrors.ErrConcurrentModification))
}

func TestSubtreeLocker_ContextDeadline(t *testing.T) {
	locker := NewSubtreeLocker()

	release, err := locker.Acquire(context.Background(), []string{"a"}, 0)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = locker.Acquire(ctx, []string{"a"}, 0)
	assert.True(t, apperrors.Is(err, apperrors.ErrDeadlineExceeded))
}

func TestNormalizeScopes(t *testing.T) {
	assert.Equal(t, []string{"a", "a-b"}, normalizeScopes([]string{"a/b", "a-b", "a", "a/b/c"}))
	assert.Equal(t, []string{""}, normalizeScopes([]string{"x", ""}))
	assert.Empty(t, normalizeScopes(nil))
}

func TestSubtreeLocker_SiblingScopes(t *testing.T) {
	locker := NewSubtreeLocker()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, []string{SiblingScope(models.StringPtr("e"))}, time.Second)
	require.NoError(t, err)
	defer release()

	// a sibling group never overlaps a subtree below it
	other, err := locker.Acquire(ctx, []string{"electronics", SiblingScope(nil), SiblingScope(models.StringPtr("e/x"))}, 30*time.Millisecond)
	require.NoError(t, err)
	other()

	_, err = locker.Acquire(ctx, []string{SiblingScope(models.StringPtr("e"))}, 30*time.Millisecond)
	assert.True(t, apperrors.Is(err, apperrors.ErrConcurrentModification))

	_, err = locker.Acquire(ctx, []string{""}, 30*time.Millisecond)
	assert.True(t, apperrors.Is(err, apperrors.ErrConcurrentModification))
}
