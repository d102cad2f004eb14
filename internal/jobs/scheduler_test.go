package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) { goleak.VerifyTestMain(m) }

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestEveryRunsInitialThenInterval(t *testing.T) {
	clk := NewFakeClock(epoch)
	s := NewScheduler(clk)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	tk := s.Every(ctx, "engage", 5*time.Minute, func(context.Context) { runs.Add(1) }, WithInitialRun(5*time.Second))
	defer tk.Cancel()

	assert.Equal(t, int32(0), runs.Load())
	clk.Advance(5 * time.Second)
	assert.Equal(t, int32(1), runs.Load())
	clk.Advance(5 * time.Minute)
	assert.Equal(t, int32(2), runs.Load())
	clk.Advance(10 * time.Minute)
	assert.Equal(t, int32(4), runs.Load())
}

func TestZeroDelayInitialRunIsDeferred(t *testing.T) {
	clk := NewFakeClock(epoch)
	var runs int
	tk := NewScheduler(clk).Every(context.Background(), "ingest", 30*time.Second, func(context.Context) { runs++ }, WithInitialRun(0))
	defer tk.Cancel()
	assert.Equal(t, 0, runs)
	clk.Advance(0)
	assert.Equal(t, 1, runs)
	clk.Advance(30 * time.Second)
	assert.Equal(t, 2, runs)
}

func TestCancelStopsFutureRuns(t *testing.T) {
	clk := NewFakeClock(epoch)
	var runs int
	tk := NewScheduler(clk).Every(context.Background(), "reset", time.Hour, func(context.Context) { runs++ })
	clk.Advance(time.Hour)
	require.Equal(t, 1, runs)
	tk.Cancel()
	tk.Cancel()
	assert.False(t, tk.Active())
	clk.Advance(3 * time.Hour)
	assert.Equal(t, 1, runs)
	assert.Equal(t, 0, clk.Pending())
}

func TestCancelFromInsideRunLetsRunFinish(t *testing.T) {
	clk := NewFakeClock(epoch)
	var tk *Ticket
	finished := false
	tk = NewScheduler(clk).Every(context.Background(), "engage", time.Minute, func(context.Context) {
		tk.Cancel()
		finished = true
	})
	clk.Advance(time.Minute)
	assert.True(t, finished)
	clk.Advance(time.Hour)
	assert.False(t, tk.Active())
}

func TestOverlappingFireIsSkipped(t *testing.T) {
	s := NewScheduler(RealClock())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	var runs atomic.Int32
	tk := s.Every(ctx, "slow", 10*time.Millisecond, func(context.Context) {
		runs.Add(1)
		<-release
	})
	require.Eventually(t, tk.Running, time.Second, 5*time.Millisecond)
	// several intervals pass while the first run blocks
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
	tk.Cancel()
	close(release)
	tk.Wait()
	assert.False(t, tk.Running())
}

func TestPanicIsRecovered(t *testing.T) {
	clk := NewFakeClock(epoch)
	var runs int
	tk := NewScheduler(clk).Every(context.Background(), "boom", time.Minute, func(context.Context) {
		runs++
		panic("boom")
	})
	defer tk.Cancel()
	clk.Advance(2 * time.Minute)
	assert.Equal(t, 2, runs)
	assert.False(t, tk.Running())
}

func TestContextCancelCancelsTicket(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tk := NewScheduler(NewFakeClock(epoch)).Every(ctx, "ctx", time.Minute, func(context.Context) {})
	cancel()
	require.Eventually(t, func() bool { return !tk.Active() }, time.Second, 5*time.Millisecond)
}

func TestFakeClockSleepRecords(t *testing.T) {
	clk := NewFakeClock(epoch)
	require.NoError(t, clk.Sleep(context.Background(), time.Second))
	require.NoError(t, clk.Sleep(context.Background(), 2*time.Second))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clk.Slept())
	assert.Equal(t, epoch, clk.Now())
}

func TestRealClockSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RealClock().Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
