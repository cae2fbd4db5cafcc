package timer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"casetimer/internal/domain"
	"casetimer/internal/ports"
)

// State is the lifecycle state of a StageTimer.
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateIdle
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	}
	return "unknown"
}

// ErrNotLoaded is reported on save when Stop gave up waiting for the stored total.
var ErrNotLoaded = errors.New("timer: stored total not loaded")

// Op identifies the remote call that failed when an error handler is invoked.
type Op string

const (
	OpLoad Op = "load"
	OpSave Op = "save"
)

// Option configures a StageTimer.
type Option func(*StageTimer)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *StageTimer) { t.now = now }
}

// WithTickInterval sets how often the running elapsed time is recomputed. Default 1s.
func WithTickInterval(d time.Duration) Option {
	return func(t *StageTimer) {
		if d > 0 {
			t.tick = d
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(t *StageTimer) { t.log = log }
}

// WithActor attributes persisted sessions to a named person (sent as inspector id/name).
func WithActor(id, name string) Option {
	return func(t *StageTimer) { t.actorID, t.actorName = id, name }
}

// WithErrorHandler is called after a load or save failure has been logged.
// Failures are never returned to the caller of Bind or Stop.
func WithErrorHandler(fn func(op Op, err error)) Option {
	return func(t *StageTimer) { t.onError = fn }
}

// WithTickHandler is called with the recomputed elapsed time on every tick while running.
func WithTickHandler(fn func(elapsed time.Duration)) Option {
	return func(t *StageTimer) { t.onTick = fn }
}

// StageTimer is a resumable stopwatch for one (case, stage) pair. Accumulated
// time is read from the store when the timer is bound and written back on Stop.
// Without a case id or stage it runs as a plain local stopwatch.
//
// A StageTimer is safe for concurrent use. Two timers bound to the same pair are
// not coordinated: the last Stop overwrites the other's total.
type StageTimer struct {
	store     ports.TimeTrackingStore
	now       func() time.Time
	tick      time.Duration
	log       *slog.Logger
	actorID   string
	actorName string
	onError   func(Op, error)
	onTick    func(time.Duration)

	mu        sync.Mutex
	bound     bool
	caseID    string
	stage     domain.Stage
	state     State
	startTime *time.Time
	savedTime time.Duration // last total known from the store
	carried   time.Duration // local time folded in by a restart, not yet persisted
	elapsed   time.Duration
	snapshot  *domain.TimeTrackingRecord

	gen        uint64
	loaded     chan struct{}
	cancelLoad context.CancelFunc
	tickStop   chan struct{}
}

// New returns an unbound timer. Call Bind to attach it to a case and stage.
func New(store ports.TimeTrackingStore, opts ...Option) *StageTimer {
	t := &StageTimer{
		store:  store,
		now:    time.Now,
		tick:   time.Second,
		log:    slog.Default(),
		state:  StateUnloaded,
		loaded: closedChan(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Bind attaches the timer to caseID and stage. Binding to a different pair
// discards local state and loads the stage's accumulated time in the
// background; rebinding the same pair does nothing. An empty caseID or stage
// puts the timer in local-only mode. ctx bounds the background load.
func (t *StageTimer) Bind(ctx context.Context, caseID string, stage domain.Stage) {
	t.mu.Lock()
	if t.bound && t.caseID == caseID && t.stage == stage {
		t.mu.Unlock()
		return
	}
	t.abortLoadLocked()
	t.stopTickLocked()
	t.bound = true
	t.caseID, t.stage = caseID, stage
	t.startTime = nil
	t.savedTime, t.carried, t.elapsed = 0, 0, 0
	t.snapshot = nil

	if !t.persistentLocked() {
		t.state = StateIdle
		t.loaded = closedChan()
		t.mu.Unlock()
		return
	}

	t.state = StateLoading
	lctx, cancel := context.WithCancel(ctx)
	t.cancelLoad = cancel
	done := make(chan struct{})
	t.loaded = done
	gen := t.gen
	t.mu.Unlock()

	go t.load(lctx, gen, caseID, stage, done)
}

// Loaded is closed once the load started by the latest Bind has finished,
// successfully or not.
func (t *StageTimer) Loaded() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loaded
}

func (t *StageTimer) load(ctx context.Context, gen uint64, caseID string, stage domain.Stage, done chan struct{}) {
	defer close(done)
	rec, err := t.store.FetchTimeTracking(ctx, caseID)

	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.cancelLoad = nil
	if err != nil {
		if t.state == StateLoading {
			t.state = StateIdle
		}
		t.mu.Unlock()
		t.fail(OpLoad, caseID, stage, err)
		return
	}
	t.snapshot = &rec
	t.applyLocked(rec, stage)
	t.mu.Unlock()
	t.log.Debug("stage time loaded",
		slog.String("case", caseID),
		slog.String("stage", stage.String()),
		slog.Duration("saved", t.SavedTime()),
	)
}

// applyLocked primes the clock from a freshly fetched record.
func (t *StageTimer) applyLocked(rec domain.TimeTrackingRecord, stage domain.Stage) {
	st, ok := rec.Stage(stage)
	if !ok || st.TotalTime <= 0 {
		if t.startTime == nil {
			t.state = StateIdle
		}
		return
	}
	now := t.now()
	t.savedTime = st.TotalTime
	switch {
	case t.startTime != nil:
		// Started locally while loading: keep the local session on top of the
		// baseline, and charge an interrupted session up to the local start.
		if st.Running() {
			t.carried += since(*t.startTime, *st.StartTime)
		}
		t.elapsed = t.savedTime + t.carried + since(now, *t.startTime)
	case st.Running():
		// The previous session was never stopped; charge it all wall-clock time since it began.
		start := *st.StartTime
		t.startTime = &start
		t.elapsed = st.TotalTime + since(now, start)
		t.state = StateRunning
		t.startTickLocked()
	default:
		t.elapsed = st.TotalTime
		t.state = StateIdle
	}
}

// Start begins a session and returns its start time. Starting an already
// running timer keeps the time accumulated so far.
func (t *StageTimer) Start() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if t.startTime != nil {
		t.carried += since(now, *t.startTime)
	}
	t.startTime = &now
	t.elapsed = t.savedTime + t.carried
	t.state = StateRunning
	t.startTickLocked()
	return now
}

// Stop ends the session and, when bound, persists the new cumulative total.
// If the bind-time load is still in flight, Stop waits for it (bounded by ctx)
// so the total builds on the stored one. When the load does not finish in
// time nothing is persisted and the error handler gets ErrNotLoaded.
// A failed save is logged and reported to the error handler only; the
// returned timing is always the locally computed one.
func (t *StageTimer) Stop(ctx context.Context) domain.StageTiming {
	t.mu.Lock()
	end := t.now()
	synced := true
	if t.cancelLoad != nil {
		// The saved baseline is still unknown. Wait for it rather than
		// persisting a total that would replace the stored one.
		done, gen := t.loaded, t.gen
		t.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		t.mu.Lock()
		switch {
		case t.gen != gen:
			// Closed or rebound while waiting.
			synced = false
		case t.cancelLoad != nil:
			t.abortLoadLocked()
			synced = false
		}
	}
	t.stopTickLocked()
	if t.startTime != nil {
		t.elapsed = t.savedTime + t.carried + since(end, *t.startTime)
	}

	origin := end
	if t.startTime != nil {
		origin = *t.startTime
	}
	if st, ok := t.snapshotStageLocked(); ok && st.StartTime != nil {
		origin = *st.StartTime
	}

	timing := domain.StageTiming{
		StartTime: origin,
		EndTime:   end,
		TotalTime: t.elapsed,
		SavedTime: t.savedTime,
		NewTime:   t.elapsed - t.savedTime,
	}

	t.savedTime = t.elapsed
	t.carried = 0
	t.startTime = nil
	t.state = StateIdle

	persist := t.persistentLocked()
	caseID, stage := t.caseID, t.stage
	if persist && synced {
		t.rememberLocked(origin, end, timing.TotalTime)
	}
	t.mu.Unlock()

	if !persist {
		return timing
	}
	if !synced {
		t.fail(OpSave, caseID, stage, ErrNotLoaded)
		return timing
	}

	total, saved, fresh := timing.TotalTime, timing.SavedTime, timing.NewTime
	update := domain.StageUpdate{
		CaseID:    caseID,
		Stage:     stage,
		StartTime: origin,
		EndTime:   end,
		Meta: domain.StageMeta{
			TotalTime:     &total,
			SavedTime:     &saved,
			NewTime:       &fresh,
			InspectorID:   t.actorID,
			InspectorName: t.actorName,
		},
	}
	if err := t.store.UpdateStageTime(ctx, update); err != nil {
		t.fail(OpSave, caseID, stage, err)
		return timing
	}
	t.log.Info("stage time saved",
		slog.String("case", caseID),
		slog.String("stage", stage.String()),
		slog.Duration("total", timing.TotalTime),
		slog.Duration("session", timing.NewTime),
	)
	return timing
}

// Reset stops the running session without saving and returns to the saved baseline.
func (t *StageTimer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopTickLocked()
	t.startTime = nil
	t.carried = 0
	t.elapsed = t.savedTime
	t.idleLocked()
}

// ResetAll discards all accumulated time, including the saved baseline. Nothing is persisted.
func (t *StageTimer) ResetAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopTickLocked()
	t.startTime = nil
	t.savedTime, t.carried, t.elapsed = 0, 0, 0
	t.idleLocked()
}

// Close stops ticking and abandons any pending load. A running session is
// not saved; it is resumed the next time a timer loads the stage.
func (t *StageTimer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.abortLoadLocked()
	t.stopTickLocked()
}

func (t *StageTimer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *StageTimer) Running() bool {
	return t.State() == StateRunning
}

// Elapsed is the accumulated time including the current session.
func (t *StageTimer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refreshLocked()
}

// SavedTime is the total last known from the store.
func (t *StageTimer) SavedTime() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.savedTime
}

// SessionTime is the time not yet persisted: Elapsed minus SavedTime.
func (t *StageTimer) SessionTime() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refreshLocked() - t.savedTime
}

// StartTime returns the local start of the running session.
func (t *StageTimer) StartTime() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startTime == nil {
		return time.Time{}, false
	}
	return *t.startTime, true
}

func (t *StageTimer) ElapsedSeconds() int64 {
	return int64(t.Elapsed() / time.Second)
}

func (t *StageTimer) FormattedElapsed() string { return FormatDuration(t.Elapsed()) }
func (t *StageTimer) FormattedSaved() string   { return FormatDuration(t.SavedTime()) }
func (t *StageTimer) FormattedSession() string { return FormatDuration(t.SessionTime()) }

// StageRecord returns the bound stage's entry from the last fetched record,
// e.g. for its actor fields.
func (t *StageTimer) StageRecord() (domain.StageTimeRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotStageLocked()
}

func (t *StageTimer) refreshLocked() time.Duration {
	if t.startTime != nil {
		t.elapsed = t.savedTime + t.carried + since(t.now(), *t.startTime)
	}
	return t.elapsed
}

func (t *StageTimer) persistentLocked() bool {
	return t.store != nil && t.caseID != "" && t.stage != ""
}

func (t *StageTimer) idleLocked() {
	if t.state != StateUnloaded && t.state != StateLoading {
		t.state = StateIdle
	}
}

func (t *StageTimer) snapshotStageLocked() (domain.StageTimeRecord, bool) {
	if t.snapshot == nil {
		return domain.StageTimeRecord{}, false
	}
	return t.snapshot.Stage(t.stage)
}

// rememberLocked mirrors a stop into the local snapshot so later sessions
// keep the original start time.
func (t *StageTimer) rememberLocked(start, end time.Time, total time.Duration) {
	if t.snapshot == nil {
		t.snapshot = &domain.TimeTrackingRecord{CaseID: t.caseID}
	}
	stages := make(map[domain.Stage]domain.StageTimeRecord, len(t.snapshot.StageTimes)+1)
	for k, v := range t.snapshot.StageTimes {
		stages[k] = v
	}
	prev := stages[t.stage]
	rec := domain.StageTimeRecord{
		StartTime: &start,
		EndTime:   &end,
		TotalTime: total,
		ActorID:   prev.ActorID,
		ActorName: prev.ActorName,
	}
	if t.actorID != "" || t.actorName != "" {
		rec.ActorID, rec.ActorName = t.actorID, t.actorName
	}
	stages[t.stage] = rec
	snap := *t.snapshot
	snap.StageTimes = stages
	snap.TotalTime = snap.SumStages()
	snap.LastUpdated = end
	t.snapshot = &snap
}

func (t *StageTimer) abortLoadLocked() {
	if t.cancelLoad != nil {
		t.cancelLoad()
		t.cancelLoad = nil
	}
	// Invalidate any in-flight load so its result is dropped.
	t.gen++
	if t.state == StateLoading {
		t.state = StateIdle
	}
}

func (t *StageTimer) startTickLocked() {
	if t.tickStop != nil {
		return
	}
	stop := make(chan struct{})
	t.tickStop = stop
	go t.run(stop)
}

func (t *StageTimer) stopTickLocked() {
	if t.tickStop != nil {
		close(t.tickStop)
		t.tickStop = nil
	}
}

func (t *StageTimer) run(stop <-chan struct{}) {
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.mu.Lock()
			select {
			case <-stop:
				t.mu.Unlock()
				return
			default:
			}
			elapsed := t.refreshLocked()
			t.mu.Unlock()
			if t.onTick != nil {
				t.onTick(elapsed)
			}
		}
	}
}

func (t *StageTimer) fail(op Op, caseID string, stage domain.Stage, err error) {
	t.log.Error("stage timer "+string(op)+" failed",
		slog.String("case", caseID),
		slog.String("stage", stage.String()),
		slog.String("error", err.Error()),
	)
	if t.onError != nil {
		t.onError(op, err)
	}
}

func since(now, start time.Time) time.Duration {
	if d := now.Sub(start); d > 0 {
		return d
	}
	return 0
}

func closedChan() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}
