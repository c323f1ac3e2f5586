package reaper_test

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stox_auth/internal/reaper"
)

type recordingStore struct {
	sweeps        chan time.Time
	resetSweeps   atomic.Int64
	refreshCutoff atomic.Value
}

func (s *recordingStore) DeleteDeadRefreshTokens(_ context.Context, expiredBefore time.Time) (int64, error) {
	s.refreshCutoff.Store(expiredBefore)
	s.sweeps <- time.Now()
	return 3, nil
}

func (s *recordingStore) DeleteExpiredResetTokens(_ context.Context) (int64, error) {
	s.resetSweeps.Add(1)
	return 1, nil
}

func TestReaperSweepsOnInterval(t *testing.T) {
	store := &recordingStore{sweeps: make(chan time.Time, 10)}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	retention := 720 * time.Hour
	r := reaper.New(log, store, 10*time.Millisecond, retention)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go r.Run(ctx)

	select {
	case <-store.sweeps:
	case <-time.After(2 * time.Second):
		t.Fatal("reaper never swept")
	}

	cutoff, ok := store.refreshCutoff.Load().(time.Time)
	require.True(t, ok)

	// The cutoff trails now by the retention window.
	assert.WithinDuration(t, time.Now().Add(-retention), cutoff, time.Minute)

	assert.Eventually(t, func() bool {
		return store.resetSweeps.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReaperStopsOnCancel(t *testing.T) {
	store := &recordingStore{sweeps: make(chan time.Time, 100)}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := reaper.New(log, store, 5*time.Millisecond, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop on cancel")
	}
}
