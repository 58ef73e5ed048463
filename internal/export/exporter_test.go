package export

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilmarket/veilmarket/internal/domain"
)

type fakeArchiver struct {
	count  int64
	err    error
	calls  atomic.Int32
	cutoff time.Time
}

func (a *fakeArchiver) ArchiveEvents(_ context.Context, before time.Time) (int64, error) {
	a.calls.Add(1)
	a.cutoff = before
	return a.count, a.err
}

type fakeLocks struct {
	held     bool
	acquired int
	released int
}

func (l *fakeLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	if l.held {
		return nil, domain.ErrLockHeld
	}
	l.acquired++
	return func() { l.released++ }, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunExports(t *testing.T) {
	arch := &fakeArchiver{count: 42}
	e := NewExporter(arch, nil, testLogger())

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, int32(1), arch.calls.Load())
	assert.WithinDuration(t, time.Now().UTC(), arch.cutoff, 5*time.Second)
}

func TestRunSkipsWhenLockHeld(t *testing.T) {
	arch := &fakeArchiver{}
	locks := &fakeLocks{held: true}
	e := NewExporter(arch, locks, testLogger())

	require.NoError(t, e.Run(context.Background()))
	assert.Zero(t, arch.calls.Load())
}

func TestRunReleasesLock(t *testing.T) {
	arch := &fakeArchiver{count: 1}
	locks := &fakeLocks{}
	e := NewExporter(arch, locks, testLogger())

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, 1, locks.acquired)
	assert.Equal(t, 1, locks.released)
}

func TestRunSurfacesArchiverError(t *testing.T) {
	arch := &fakeArchiver{err: assert.AnError}
	e := NewExporter(arch, nil, testLogger())

	err := e.Run(context.Background())
	require.ErrorIs(t, err, assert.AnError)
}

func TestRunLoopStopsOnCancel(t *testing.T) {
	arch := &fakeArchiver{}
	e := NewExporter(arch, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.RunLoop(ctx, 5*time.Millisecond) }()

	// The first run happens before the first tick.
	require.Eventually(t, func() bool { return arch.calls.Load() >= 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("RunLoop did not stop after cancel")
	}
}
