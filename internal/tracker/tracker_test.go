package tracker

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balkashynov/dtr/internal/apperr"
	"github.com/balkashynov/dtr/internal/blob"
	"github.com/balkashynov/dtr/internal/db"
	"github.com/balkashynov/dtr/internal/evidence"
	"github.com/balkashynov/dtr/internal/location"
	"github.com/balkashynov/dtr/internal/models"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestTracker(t *testing.T, opts ...Option) (*Tracker, *db.Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)}

	store := db.New(blob.NewMemory(), db.WithScratchDir(t.TempDir()), db.WithClock(clock.Now))
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { store.Close() })

	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return New(store, opts...), store, clock
}

func photo(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 40, 30))))
	return buf.Bytes()
}

func TestElapsed(t *testing.T) {
	start := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	iso := models.FormatISO(start)

	tests := []struct {
		name     string
		now      time.Time
		isoStart string
		pausedMs int64
		pausedAt *string
		want     time.Duration
	}{
		{"running", start.Add(2 * time.Hour), iso, 0, nil, 2 * time.Hour},
		{"past pauses subtracted", start.Add(2 * time.Hour), iso, 600000, nil, 110 * time.Minute},
		{"open pause frozen", start.Add(2 * time.Hour), iso, 0, models.Ptr(models.FormatISO(start.Add(90 * time.Minute))), 90 * time.Minute},
		{"never negative", start.Add(time.Minute), iso, 3600000, nil, 0},
		{"unparseable start counts as now", start, "not a time", 0, nil, 0},
		{"unparseable pause ignored", start.Add(time.Hour), iso, 0, models.Ptr("garbage"), time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Elapsed(tt.now, tt.isoStart, tt.pausedMs, tt.pausedAt))
		})
	}

	assert.InDelta(t, 1.8333, Hours(start.Add(2*time.Hour), iso, 600000, nil), 0.0001)
}

func TestSessionElapsed(t *testing.T) {
	now := time.Date(2024, 1, 10, 11, 0, 0, 0, time.UTC)
	assert.Zero(t, SessionElapsed(now, nil))

	completed := &models.Session{Status: models.StatusCompleted, Duration: models.Ptr(1.5)}
	assert.Equal(t, 90*time.Minute, SessionElapsed(now, completed))

	// a stale paused_at on an active row is ignored
	active := &models.Session{
		Status:   models.StatusActive,
		IsoStart: "2024-01-10T10:00:00.000Z",
		PausedAt: models.Ptr("2024-01-10T10:30:00.000Z"),
	}
	assert.Equal(t, time.Hour, SessionElapsed(now, active))
}

// Scenario: time in, pause 10 minutes, time out two hours after start
func TestTracker_PauseResumeTimeOut(t *testing.T) {
	tr, _, clock := newTestTracker(t)
	ctx := context.Background()

	session, err := tr.TimeIn(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-10", session.Date)
	assert.Equal(t, "09:00 AM", session.TimeIn)

	state, err := tr.State(ctx)
	require.NoError(t, err)
	require.False(t, state.Idle())
	assert.Equal(t, models.StatusActive, state.Session.Status)
	assert.Zero(t, state.Session.TotalPausedMs)

	clock.Advance(30 * time.Minute)
	paused, err := tr.Pause(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaused, paused.Status)
	require.NotNil(t, paused.PausedAt)

	clock.Advance(10 * time.Minute)
	state, err = tr.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, state.Elapsed, "timer frozen while paused")

	resumed, err := tr.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, resumed.Status)
	assert.Equal(t, int64(600000), resumed.TotalPausedMs)
	assert.Nil(t, resumed.PausedAt)

	clock.Advance(80 * time.Minute)
	done, err := tr.TimeOut(ctx, "finished the report", nil)
	require.NoError(t, err)
	require.NotNil(t, done)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.Equal(t, "11:00 AM", models.StringValue(done.TimeOut))
	assert.InDelta(t, 110.0/60.0, done.Hours(), 0.0001)
	assert.Equal(t, models.ApprovalPending, done.Approval())
	assert.Equal(t, "finished the report", models.StringValue(done.Notes))

	state, err = tr.State(ctx)
	require.NoError(t, err)
	assert.True(t, state.Idle())
}

func TestTracker_TimeOutWhilePaused(t *testing.T) {
	tr, _, clock := newTestTracker(t)
	ctx := context.Background()

	_, err := tr.TimeIn(ctx)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, err = tr.Pause(ctx)
	require.NoError(t, err)

	clock.Advance(45 * time.Minute)
	done, err := tr.TimeOut(ctx, "", nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, done.Hours(), 0.0001)
	assert.Equal(t, int64(45*60*1000), done.TotalPausedMs)
	assert.Nil(t, done.PausedAt)
	assert.Nil(t, done.Notes)
}

func TestTracker_Preconditions(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	done, err := tr.TimeOut(ctx, "", nil)
	require.NoError(t, err, "time out with nothing in flight is a no-op")
	assert.Nil(t, done)

	_, err = tr.Pause(ctx)
	assert.ErrorIs(t, err, apperr.ErrSessionNotActive)

	_, err = tr.Resume(ctx)
	assert.ErrorIs(t, err, apperr.ErrSessionNotPaused)

	_, err = tr.TimeIn(ctx)
	require.NoError(t, err)

	_, err = tr.TimeIn(ctx)
	assert.ErrorIs(t, err, apperr.ErrSessionActive)

	_, err = tr.Resume(ctx)
	assert.ErrorIs(t, err, apperr.ErrSessionNotPaused)

	_, err = tr.Pause(ctx)
	require.NoError(t, err)

	_, err = tr.Pause(ctx)
	assert.ErrorIs(t, err, apperr.ErrSessionNotActive)

	_, err = tr.TimeIn(ctx)
	assert.ErrorIs(t, err, apperr.ErrSessionActive)
}

func TestTracker_SameMinuteTimeInKeepsKeysDistinct(t *testing.T) {
	tr, store, clock := newTestTracker(t)
	ctx := context.Background()

	clock.Advance(5 * time.Second)
	first, err := tr.TimeIn(ctx)
	require.NoError(t, err)

	clock.Advance(20 * time.Second)
	_, err = tr.TimeOut(ctx, "", nil)
	require.NoError(t, err)

	clock.Advance(20 * time.Second)
	_, err = tr.TimeIn(ctx)
	assert.ErrorIs(t, err, apperr.ErrDuplicateStart)

	clock.Advance(time.Minute)
	second, err := tr.TimeIn(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.Key(), second.Key())

	_, err = tr.TimeOut(ctx, "", nil)
	require.NoError(t, err)
	sessions, err := store.GetSessions(ctx, "2024-01", true)
	require.NoError(t, err)
	keys := map[string]bool{}
	for _, s := range sessions {
		keys[s.Key()] = true
	}
	assert.Len(t, keys, len(sessions))
}

func TestTracker_AtMostOneInFlight(t *testing.T) {
	tr, store, clock := newTestTracker(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	ops := []func(context.Context) error{
		func(ctx context.Context) error { _, err := tr.TimeIn(ctx); return err },
		func(ctx context.Context) error { _, err := tr.Pause(ctx); return err },
		func(ctx context.Context) error { _, err := tr.Resume(ctx); return err },
		func(ctx context.Context) error { _, err := tr.TimeOut(ctx, "", nil); return err },
	}

	for i := 0; i < 80; i++ {
		clock.Advance(time.Duration(rng.Intn(90)+1) * time.Minute)
		_ = ops[rng.Intn(len(ops))](ctx)

		completed, err := store.GetSessions(ctx, "", true)
		require.NoError(t, err)
		for _, s := range completed {
			assert.Equal(t, models.StatusCompleted, s.Status)
		}

		active, err := store.GetActiveOrPausedSession(ctx)
		require.NoError(t, err)
		if active != nil {
			assert.True(t, active.Status.InFlight())
		}
	}
}

func TestTracker_PauseAccountingSums(t *testing.T) {
	tr, _, clock := newTestTracker(t)
	ctx := context.Background()

	_, err := tr.TimeIn(ctx)
	require.NoError(t, err)

	pauses := []time.Duration{3 * time.Minute, 17 * time.Second, 45 * time.Minute, 1500 * time.Millisecond}
	var want time.Duration
	for _, p := range pauses {
		clock.Advance(7 * time.Minute)
		_, err := tr.Pause(ctx)
		require.NoError(t, err)

		clock.Advance(p)
		want += p
		resumed, err := tr.Resume(ctx)
		require.NoError(t, err)
		assert.Equal(t, want.Milliseconds(), resumed.TotalPausedMs)
	}
}

func TestTracker_Location(t *testing.T) {
	tr, _, _ := newTestTracker(t, WithLocation(location.Static("14.599500,120.984200")))
	ctx := context.Background()

	in, err := tr.TimeIn(ctx)
	require.NoError(t, err)
	assert.Equal(t, "14.599500,120.984200", models.StringValue(in.LocationIn))

	out, err := tr.TimeOut(ctx, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "14.599500,120.984200", models.StringValue(out.LocationOut))
}

func TestTracker_LocationFailureDegrades(t *testing.T) {
	tr, _, _ := newTestTracker(t, WithLocation(location.Static("")))
	ctx := context.Background()

	in, err := tr.TimeIn(ctx)
	require.NoError(t, err)
	assert.Nil(t, in.LocationIn)

	out, err := tr.TimeOut(ctx, "", nil)
	require.NoError(t, err)
	assert.Nil(t, out.LocationOut)
}

func TestTracker_PhotoQueuedUnderSyncKey(t *testing.T) {
	outbox := evidence.NewOutbox(blob.NewMemory())
	tr, _, clock := newTestTracker(t, WithEvidence(evidence.NewEncoder(0, 0), outbox))
	ctx := context.Background()

	in, err := tr.TimeIn(ctx)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	out, err := tr.TimeOut(ctx, "", photo(t))
	require.NoError(t, err)
	assert.Nil(t, out.PhotoURL, "url is set once the upload succeeds")

	keys, err := outbox.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{in.Key()}, keys)

	p, err := outbox.Get(ctx, in.Key())
	require.NoError(t, err)
	assert.Equal(t, evidence.ContentTypeJPEG, p.ContentType)
}

func TestTracker_EvidenceRequired(t *testing.T) {
	outbox := evidence.NewOutbox(blob.NewMemory())
	tr, _, _ := newTestTracker(t, WithEvidence(evidence.NewEncoder(0, 0), outbox), RequireEvidence(true))
	ctx := context.Background()

	_, err := tr.TimeIn(ctx)
	require.NoError(t, err)

	_, err = tr.TimeOut(ctx, "", nil)
	assert.ErrorIs(t, err, apperr.ErrEvidenceRequired)

	_, err = tr.TimeOut(ctx, "", []byte("not a photo"))
	assert.ErrorIs(t, err, apperr.ErrEvidenceUnavailable)

	state, err := tr.State(ctx)
	require.NoError(t, err)
	assert.False(t, state.Idle(), "session stays in flight")

	done, err := tr.TimeOut(ctx, "", photo(t))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
}

func TestTracker_BadPhotoDroppedWhenOptional(t *testing.T) {
	outbox := evidence.NewOutbox(blob.NewMemory())
	tr, _, _ := newTestTracker(t, WithEvidence(evidence.NewEncoder(0, 0), outbox))
	ctx := context.Background()

	_, err := tr.TimeIn(ctx)
	require.NoError(t, err)

	done, err := tr.TimeOut(ctx, "", []byte("not a photo"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)

	keys, err := outbox.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}
