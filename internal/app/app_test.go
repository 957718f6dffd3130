package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balkashynov/dtr/internal/blob"
	"github.com/balkashynov/dtr/internal/db"
	"github.com/balkashynov/dtr/internal/models"
	"github.com/balkashynov/dtr/internal/reconcile"
	"github.com/balkashynov/dtr/internal/tracker"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeSyncer struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
	entered chan struct{}
	result  func([]models.Session) *reconcile.Result
	err     error
}

func (f *fakeSyncer) Sync(_ context.Context, sessions []models.Session, _ map[string]string) (*reconcile.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return &reconcile.Result{}, f.err
	}
	if f.result != nil {
		return f.result(sessions), nil
	}
	return &reconcile.Result{Success: true}, nil
}

func (f *fakeSyncer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestCore(t *testing.T, syncer Syncer, opts Options) (*Core, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)}

	store := db.New(blob.NewMemory(), db.WithScratchDir(t.TempDir()), db.WithClock(c.Now))
	tr := tracker.New(store, tracker.WithClock(c.Now))

	opts.Clock = c.Now
	core := New(store, tr, syncer, nil, opts)
	require.NoError(t, core.Start(context.Background()))
	t.Cleanup(func() { core.Close() })
	return core, c
}

func workHours(t *testing.T, core *Core, c *clock, d time.Duration) *models.Session {
	t.Helper()
	ctx := context.Background()
	_, err := core.TimeIn(ctx)
	require.NoError(t, err)
	c.Advance(d)
	s, err := core.TimeOut(ctx, "", nil)
	require.NoError(t, err)
	c.Advance(time.Hour)
	return s
}

func TestDashboardSnapshot(t *testing.T) {
	core, c := newTestCore(t, nil, Options{})
	ctx := context.Background()

	require.NoError(t, core.SetGoal(ctx, 10))
	workHours(t, core, c, 3*time.Hour)
	workHours(t, core, c, 1*time.Hour)

	_, err := core.TimeIn(ctx)
	require.NoError(t, err)
	c.Advance(90*time.Minute + 5*time.Second)

	d, err := core.DashboardSnapshot(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, d.RenderedHours, 0.0001)
	assert.Equal(t, 10.0, d.GoalHours)
	assert.InDelta(t, 6.0, d.RemainingHours, 0.0001)
	assert.InDelta(t, 40.0, d.Progress, 0.0001)
	assert.Len(t, d.Recent, 2)

	require.NotNil(t, d.Active)
	assert.Equal(t, "01:30:05", d.Active.ElapsedText)
	assert.False(t, d.Active.Paused)

	_, err = core.Pause(ctx)
	require.NoError(t, err)
	c.Advance(time.Hour)

	d, err = core.DashboardSnapshot(ctx)
	require.NoError(t, err)
	assert.True(t, d.Active.Paused)
	assert.Equal(t, "01:30:05", d.Active.ElapsedText)
}

func TestDashboardSnapshot_GoalReached(t *testing.T) {
	core, c := newTestCore(t, nil, Options{})
	ctx := context.Background()

	require.NoError(t, core.SetGoal(ctx, 2))
	workHours(t, core, c, 3*time.Hour)

	d, err := core.DashboardSnapshot(ctx)
	require.NoError(t, err)
	assert.Zero(t, d.RemainingHours)
	assert.Equal(t, 100.0, d.Progress)
	assert.Nil(t, d.Active)

	assert.Error(t, core.SetGoal(ctx, 0))
}

func TestSync_Disabled(t *testing.T) {
	core, _ := newTestCore(t, nil, Options{})
	_, err := core.Sync(context.Background())
	assert.ErrorIs(t, err, ErrSyncDisabled)
}

func TestSync_AppliesPulledFields(t *testing.T) {
	syncer := &fakeSyncer{
		result: func(sessions []models.Session) *reconcile.Result {
			res := &reconcile.Result{Success: true}
			for _, s := range sessions {
				res.StatusUpdates = append(res.StatusUpdates, reconcile.StatusUpdate{ID: s.ID, Key: s.Key(), Status: models.ApprovalApproved})
				res.PhotoUpdates = append(res.PhotoUpdates, reconcile.PhotoUpdate{ID: s.ID, Key: s.Key(), URL: "https://cdn.example/" + s.Key()})
			}
			return res
		},
	}
	core, c := newTestCore(t, syncer, Options{SyncMinGap: time.Hour})
	ctx := context.Background()

	s := workHours(t, core, c, 2*time.Hour)

	res, err := core.Sync(ctx)
	require.NoError(t, err)
	assert.Len(t, res.StatusUpdates, 1)

	sessions, err := core.ListSessions(ctx, "", true)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, models.ApprovalApproved, sessions[0].Approval())
	assert.Equal(t, "https://cdn.example/"+s.Key(), models.StringValue(sessions[0].PhotoURL))
	assert.InDelta(t, 2.0, sessions[0].Hours(), 0.0001)

	// approved sessions cannot be archived
	assert.Error(t, core.Archive(ctx, s.ID))
}

func TestSync_OverlappingCallsShareOnePass(t *testing.T) {
	syncer := &fakeSyncer{release: make(chan struct{}), entered: make(chan struct{}, 1)}
	core, _ := newTestCore(t, syncer, Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := core.Sync(ctx)
		assert.NoError(t, err)
	}()
	<-syncer.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := core.Sync(ctx)
		assert.NoError(t, err)
	}()

	time.Sleep(50 * time.Millisecond)
	close(syncer.release)
	wg.Wait()

	assert.Equal(t, 1, syncer.Calls())
}

func TestTimeOut_TriggersRateLimitedSync(t *testing.T) {
	syncer := &fakeSyncer{}
	core, c := newTestCore(t, syncer, Options{SyncMinGap: time.Hour})

	workHours(t, core, c, time.Hour)
	workHours(t, core, c, time.Hour)
	require.NoError(t, core.Close())

	assert.Equal(t, 1, syncer.Calls())
}

func TestApplyResult_ContinuesPastFailures(t *testing.T) {
	core, c := newTestCore(t, nil, Options{})
	ctx := context.Background()
	s := workHours(t, core, c, time.Hour)

	err := core.ApplyResult(ctx, &reconcile.Result{
		StatusUpdates: []reconcile.StatusUpdate{
			{ID: 9999, Key: "missing", Status: models.ApprovalApproved},
			{ID: s.ID, Key: s.Key(), Status: models.ApprovalRejected},
		},
	})
	assert.Error(t, err)

	got, err := core.ListSessions(ctx, "", true)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalRejected, got[0].Approval())

	assert.NoError(t, core.ApplyResult(ctx, nil))
}

func TestStart_PurgesExpiredArchive(t *testing.T) {
	c := &clock{now: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)}
	blobs := blob.NewMemory()
	scratch := t.TempDir()
	ctx := context.Background()

	store := db.New(blobs, db.WithScratchDir(scratch), db.WithClock(c.Now))
	core := New(store, tracker.New(store, tracker.WithClock(c.Now)), nil, nil, Options{Clock: c.Now})
	require.NoError(t, core.Start(ctx))

	s := workHours(t, core, c, time.Hour)
	require.NoError(t, core.Archive(ctx, s.ID))
	require.NoError(t, core.Close())

	c.Advance(31 * 24 * time.Hour)

	store = db.New(blobs, db.WithScratchDir(scratch), db.WithClock(c.Now))
	core = New(store, tracker.New(store, tracker.WithClock(c.Now)), nil, nil, Options{Clock: c.Now})
	require.NoError(t, core.Start(ctx))
	t.Cleanup(func() { core.Close() })

	archived, err := core.ListArchived(ctx)
	require.NoError(t, err)
	assert.Empty(t, archived)
}

func TestRun_SyncsAndStops(t *testing.T) {
	syncer := &fakeSyncer{entered: make(chan struct{}, 1)}
	core, _ := newTestCore(t, syncer, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- core.Run(ctx) }()

	select {
	case <-syncer.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("run loop did not sync")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run loop did not stop")
	}
}

type toggleConn struct {
	mu     sync.Mutex
	online bool
}

func (c *toggleConn) Online(context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *toggleConn) Set(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online = v
}

func TestRun_SyncsWhenConnectivityReturns(t *testing.T) {
	conn := &toggleConn{}
	syncer := &fakeSyncer{entered: make(chan struct{}, 1)}
	core, _ := newTestCore(t, syncer, Options{
		Connectivity:  conn,
		ProbeInterval: 10 * time.Millisecond,
		SyncInterval:  time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- core.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, syncer.Calls(), "offline: no sync")

	conn.Set(true)
	select {
	case <-syncer.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("no sync after connectivity returned")
	}

	cancel()
	<-done
}

func TestRun_BacksOffAfterFailure(t *testing.T) {
	syncer := &fakeSyncer{err: errors.New("unreachable"), entered: make(chan struct{}, 1)}
	core, _ := newTestCore(t, syncer, Options{SyncInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- core.Run(ctx) }()

	<-syncer.entered
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, syncer.Calls(), "retry waits for the backoff interval")

	cancel()
	<-done
}

func TestDialProbe(t *testing.T) {
	assert.True(t, DialProbe{}.Online(context.Background()))
	assert.False(t, DialProbe{Addr: "127.0.0.1:1", Timeout: 200 * time.Millisecond}.Online(context.Background()))
}

func TestRun_AutosaveKeepsOtherProcessWrites(t *testing.T) {
	c := &clock{now: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)}
	blobs, err := blob.NewFile(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	daemonStore := db.New(blobs, db.WithScratchDir(t.TempDir()), db.WithClock(c.Now))
	daemon := New(daemonStore, tracker.New(daemonStore, tracker.WithClock(c.Now)), nil, nil, Options{
		AutosaveInterval: 50 * time.Millisecond,
		Clock:            c.Now,
	})
	require.NoError(t, daemon.Start(ctx))

	cliStore := db.New(blobs, db.WithScratchDir(t.TempDir()), db.WithClock(c.Now))
	cli := New(cliStore, tracker.New(cliStore, tracker.WithClock(c.Now)), nil, nil, Options{Clock: c.Now})
	require.NoError(t, cli.Start(ctx))
	_, err = cli.TimeIn(ctx)
	require.NoError(t, err)
	require.NoError(t, cli.Close())

	runCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	require.NoError(t, daemon.Run(runCtx))

	state, err := daemon.State(ctx)
	require.NoError(t, err)
	assert.False(t, state.Idle(), "daemon sees the time-in after reloading")
	require.NoError(t, daemon.Close())

	fresh := db.New(blobs, db.WithScratchDir(t.TempDir()), db.WithClock(c.Now))
	require.NoError(t, fresh.Init(ctx))
	t.Cleanup(func() { fresh.Close() })

	active, err := fresh.GetActiveOrPausedSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, models.StatusActive, active.Status)
}

func TestCore_MutationsSeeOtherProcessWrites(t *testing.T) {
	c := &clock{now: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)}
	blobs, err := blob.NewFile(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	open := func() *Core {
		store := db.New(blobs, db.WithScratchDir(t.TempDir()), db.WithClock(c.Now))
		core := New(store, tracker.New(store, tracker.WithClock(c.Now)), nil, nil, Options{Clock: c.Now})
		require.NoError(t, core.Start(ctx))
		t.Cleanup(func() { core.Close() })
		return core
	}
	timer, cli := open(), open()

	_, err = cli.TimeIn(ctx)
	require.NoError(t, err)

	c.Advance(time.Hour)
	done, err := timer.TimeOut(ctx, "from the timer", nil)
	require.NoError(t, err)
	require.NotNil(t, done, "timer process completes the session started elsewhere")

	sessions, err := cli.ListSessions(ctx, "", true)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "from the timer", models.StringValue(sessions[0].Notes))
}

func TestTimeOut_MinGapSpansProcesses(t *testing.T) {
	c := &clock{now: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)}
	blobs := blob.NewMemory()
	ctx := context.Background()
	syncer := &fakeSyncer{}

	run := func(d time.Duration) {
		store := db.New(blobs, db.WithScratchDir(t.TempDir()), db.WithClock(c.Now))
		core := New(store, tracker.New(store, tracker.WithClock(c.Now)), syncer, nil, Options{
			SyncMinGap: time.Hour,
			Clock:      c.Now,
		})
		require.NoError(t, core.Start(ctx))
		_, err := core.TimeIn(ctx)
		require.NoError(t, err)
		c.Advance(d)
		_, err = core.TimeOut(ctx, "", nil)
		require.NoError(t, err)
		require.NoError(t, core.Close())
	}

	run(10 * time.Minute)
	assert.Equal(t, 1, syncer.Calls())

	c.Advance(time.Minute)
	run(10 * time.Minute)
	assert.Equal(t, 1, syncer.Calls(), "a fresh process honors the last recorded sync")

	c.Advance(time.Hour)
	run(10 * time.Minute)
	assert.Equal(t, 2, syncer.Calls())
}
