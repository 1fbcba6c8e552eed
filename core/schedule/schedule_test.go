package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ulearn/tests"
)

var t0 = time.Date(2024, 3, 4, 7, 58, 0, 0, time.UTC)

func waitRun(t *testing.T, runs <-chan time.Time) time.Time {
	t.Helper()
	select {
	case at := <-runs:
		return at
	case <-time.After(time.Second):
		t.Fatal("job did not run")
	}
	return time.Time{}
}

func assertNoRun(t *testing.T, runs <-chan time.Time) {
	t.Helper()
	select {
	case at := <-runs:
		t.Fatalf("unexpected run at %s", at)
	case <-time.After(50 * time.Millisecond):
	}
}

func recordingJob(name string, trigger Trigger, grace time.Duration, clock Clock) (Job, chan time.Time) {
	runs := make(chan time.Time, 10)
	return Job{
		Name:    name,
		Trigger: trigger,
		Grace:   grace,
		Run:     func(context.Context) { runs <- clock.Now() },
	}, runs
}

func TestEvery_Next(t *testing.T) {
	iv := Every(2*time.Minute, t0)
	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{name: "at anchor", at: t0, want: t0.Add(2 * time.Minute)},
		{name: "before anchor", at: t0.Add(-time.Hour), want: t0.Add(2 * time.Minute)},
		{name: "between ticks", at: t0.Add(3 * time.Minute), want: t0.Add(4 * time.Minute)},
		{name: "on a tick", at: t0.Add(4 * time.Minute), want: t0.Add(6 * time.Minute)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, iv.Next(tt.at))
		})
	}
}

func TestDailyAt_Next(t *testing.T) {
	d := DailyAt(8, 0, time.UTC)
	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{name: "earlier today", at: t0, want: time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)},
		{name: "exactly now", at: time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC), want: time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)},
		{name: "later today", at: time.Date(2024, 3, 4, 20, 0, 0, 0, time.UTC), want: time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)},
		{name: "month end", at: time.Date(2024, 3, 31, 9, 0, 0, 0, time.UTC), want: time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Next(tt.at))
		})
	}
	assert.Equal(t, "daily at 08:00", d.String())
}

func TestParseDaily(t *testing.T) {
	d, err := ParseDaily("08:30", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 4, 8, 30, 0, 0, time.UTC), d.Next(t0))

	for _, bad := range []string{"", "8h", "25:00", "08:61"} {
		_, err = ParseDaily(bad, time.UTC)
		assert.Error(t, err, bad)
	}
}

func TestScheduler_Add(t *testing.T) {
	s := New(testutil.NewFakeClock(t0), testutil.NewLogger())
	assert.Error(t, s.Add(Job{Name: "no trigger", Run: func(context.Context) {}}))
	require.NoError(t, s.Add(Job{Name: "ok", Trigger: Every(time.Minute, t0), Run: func(context.Context) {}}))
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Equal(t, ErrAlreadyStarted, s.Add(Job{Name: "late", Trigger: Every(time.Minute, t0), Run: func(context.Context) {}}))
	assert.Equal(t, ErrAlreadyStarted, s.Start())
}

func TestScheduler_interval(t *testing.T) {
	clock := testutil.NewFakeClock(t0)
	s := New(clock, testutil.NewLogger())
	job, runs := recordingJob("checkin", Every(2*time.Minute, t0), time.Minute, clock)
	require.NoError(t, s.Add(job))
	require.NoError(t, s.Start())
	defer s.Stop()
	assert.True(t, s.Running())

	for i := 1; i <= 3; i++ {
		clock.BlockUntil(t, 1)
		clock.Advance(2 * time.Minute)
		assert.Equal(t, t0.Add(time.Duration(i)*2*time.Minute), waitRun(t, runs))
	}
}

func TestScheduler_graceWindow(t *testing.T) {
	clock := testutil.NewFakeClock(t0)
	logger := testutil.NewLogger()
	s := New(clock, logger)
	job, runs := recordingJob("checkin", Every(2*time.Minute, t0), time.Minute, clock)
	require.NoError(t, s.Add(job))
	require.NoError(t, s.Start())
	defer s.Stop()

	// late within the grace window: runs once
	clock.BlockUntil(t, 1)
	clock.Advance(2*time.Minute + 50*time.Second)
	assert.Equal(t, t0.Add(2*time.Minute+50*time.Second), waitRun(t, runs))

	// late beyond the grace window: skipped, not queued
	clock.BlockUntil(t, 1)
	clock.Advance(3 * time.Minute) // due at +4m, now +5m50s
	clock.BlockUntil(t, 1)
	assertNoRun(t, runs)
	assert.True(t, logger.Contains("checkin: missed run"))

	// next tick on schedule
	clock.Advance(10 * time.Second)
	assert.Equal(t, t0.Add(6*time.Minute), waitRun(t, runs))
}

func TestScheduler_daily(t *testing.T) {
	clock := testutil.NewFakeClock(t0)
	logger := testutil.NewLogger()
	s := New(clock, logger)
	job, runs := recordingJob("homework", DailyAt(8, 0, time.UTC), 5*time.Minute, clock)
	require.NoError(t, s.Add(job))
	require.NoError(t, s.Start())
	defer s.Stop()

	clock.BlockUntil(t, 1)
	clock.Advance(2 * time.Minute)
	assert.Equal(t, time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC), waitRun(t, runs))

	// process asleep past the fire time, within grace
	clock.BlockUntil(t, 1)
	clock.Advance(24*time.Hour + 4*time.Minute)
	assert.Equal(t, time.Date(2024, 3, 5, 8, 4, 0, 0, time.UTC), waitRun(t, runs))

	// asleep beyond grace
	clock.BlockUntil(t, 1)
	clock.Advance(24*time.Hour + 2*time.Minute) // due 03-06 08:00, now 08:06
	clock.BlockUntil(t, 1)
	assertNoRun(t, runs)
	assert.True(t, logger.Contains("homework: missed run"))
}

func TestScheduler_noOverlap(t *testing.T) {
	clock := testutil.NewFakeClock(t0)
	logger := testutil.NewLogger()
	s := New(clock, logger)

	var calls int32
	started := make(chan struct{}, 10)
	release := make(chan struct{})
	require.NoError(t, s.Add(Job{
		Name:    "checkin",
		Trigger: Every(2*time.Minute, t0),
		Grace:   time.Minute,
		Run: func(context.Context) {
			atomic.AddInt32(&calls, 1)
			started <- struct{}{}
			<-release
		},
	}))
	require.NoError(t, s.Start())
	defer s.Stop()

	clock.BlockUntil(t, 1)
	clock.Advance(2 * time.Minute)
	<-started
	assert.True(t, s.Busy("checkin"))

	// the first run is still in flight
	clock.BlockUntil(t, 1)
	clock.Advance(2 * time.Minute)
	clock.BlockUntil(t, 1)
	assert.True(t, logger.Contains("previous run still in progress"))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	close(release)
	assert.Eventually(t, func() bool { return !s.Busy("checkin") }, time.Second, time.Millisecond)

	clock.Advance(2 * time.Minute)
	<-started
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestScheduler_panicIsContained(t *testing.T) {
	clock := testutil.NewFakeClock(t0)
	logger := testutil.NewLogger()
	s := New(clock, logger)
	var calls int32
	require.NoError(t, s.Add(Job{
		Name:    "checkin",
		Trigger: Every(time.Minute, t0),
		Grace:   time.Minute,
		Run: func(context.Context) {
			atomic.AddInt32(&calls, 1)
			panic("boom")
		},
	}))
	require.NoError(t, s.Start())
	defer s.Stop()

	for i := 0; i < 2; i++ {
		clock.BlockUntil(t, 1)
		clock.Advance(time.Minute)
		assert.Eventually(t, func() bool { return !s.Busy("checkin") && atomic.LoadInt32(&calls) == int32(i+1) }, time.Second, time.Millisecond)
	}
	assert.True(t, logger.Contains("checkin: run panicked: boom"))
}

func TestScheduler_Stop(t *testing.T) {
	clock := testutil.NewFakeClock(t0)
	s := New(clock, testutil.NewLogger())

	started := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan error, 1)
	var calls int32
	require.NoError(t, s.Add(Job{
		Name:    "checkin",
		Trigger: Every(time.Minute, t0),
		Grace:   time.Minute,
		Run: func(ctx context.Context) {
			atomic.AddInt32(&calls, 1)
			close(started)
			<-release
			finished <- ctx.Err()
		},
	}))
	require.NoError(t, s.Start())

	clock.BlockUntil(t, 1)
	clock.Advance(time.Minute)
	<-started

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		s.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop() blocked on the in-flight run")
	}
	assert.False(t, s.Running())

	// no run admitted after stop
	clock.Advance(time.Minute)
	clock.Advance(time.Minute)

	// the in-flight run completes after stop, with a live context
	close(release)
	assert.NoError(t, <-finished)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestManager_restart(t *testing.T) {
	clock := testutil.NewFakeClock(t0)
	logger := testutil.NewLogger()
	runs := make(chan time.Time, 10)
	built := 0
	factory := func() (*Scheduler, error) {
		built++
		s := New(clock, logger)
		err := s.Add(Job{
			Name:    "checkin",
			Trigger: Every(2*time.Minute, t0),
			Grace:   time.Minute,
			Run:     func(context.Context) { runs <- clock.Now() },
		})
		return s, err
	}
	m := NewManager(factory, logger)

	require.NoError(t, m.Start())
	clock.BlockUntil(t, 1)
	require.NoError(t, m.Start())
	assert.Equal(t, 2, built)
	assert.True(t, m.Running())
	assert.True(t, logger.Contains("previous scheduler stopped"))

	// the stale timer of the first scheduler is still pending on the clock
	clock.BlockUntil(t, 2)
	clock.Advance(2 * time.Minute)
	waitRun(t, runs)
	clock.BlockUntil(t, 1)
	assertNoRun(t, runs)

	m.Stop()
	assert.False(t, m.Running())
	clock.Advance(2 * time.Minute)
	assertNoRun(t, runs)
}
