package dashmetrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sheltrhq/sheltr/internal/app/system/clock"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ErrUnauthenticated is reported when no current user identity is available.
var ErrUnauthenticated = errors.New("unauthenticated")

// Status is the aggregator's lifecycle state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// Mode selects how a full computation is performed.
type Mode string

const (
	// ModeSnapshot reads the precomputed rollup and falls back to ModeLive
	// when none is usable.
	ModeSnapshot Mode = "snapshot"
	// ModeLive aggregates raw rows directly.
	ModeLive Mode = "live"
)

// Snapshot is a precomputed rollup as returned by a SnapshotReader.
type Snapshot struct {
	Metrics    Metrics
	MonthStart time.Time
	ComputedAt time.Time
	// NextDueAt is when the earliest pending task falls due after
	// ComputedAt. OverdueTasks is stale from then on. Nil means never.
	NextDueAt *time.Time
	// WriteSeq is the write version the rollup was computed from.
	WriteSeq int64
}

// Usable reports whether the rollup still describes now: it covers now's
// month and no pending task has fallen due since it was computed.
func (s Snapshot) Usable(now time.Time) bool {
	if !s.MonthStart.Equal(MonthStart(now)) {
		return false
	}
	return s.NextDueAt == nil || now.Before(*s.NextDueAt)
}

// IdentityProvider resolves the current user. ok=false means unauthenticated.
type IdentityProvider interface {
	CurrentUserID() (userID primitive.ObjectID, ok bool)
}

// IdentityFunc adapts a function to IdentityProvider.
type IdentityFunc func() (primitive.ObjectID, bool)

func (f IdentityFunc) CurrentUserID() (primitive.ObjectID, bool) { return f() }

// SnapshotReader looks up a user's precomputed rollup. found=false when no
// usable row exists.
type SnapshotReader interface {
	Lookup(ctx context.Context, userID primitive.ObjectID) (snap Snapshot, found bool, err error)
}

// SnapshotWriter stores a freshly computed rollup.
type SnapshotWriter interface {
	Save(ctx context.Context, userID primitive.ObjectID, snap Snapshot) error
}

// RawReader performs the three owner-scoped reads used in live mode.
type RawReader interface {
	FetchRaw(ctx context.Context, userID primitive.ObjectID, monthStart time.Time) (RawRows, error)
}

// Subscriber opens a per-user stream of change events.
type Subscriber interface {
	Subscribe(ctx context.Context, userID primitive.ObjectID) (Subscription, error)
}

// Subscription is a live change stream. Events is closed when the stream ends.
type Subscription interface {
	Events() <-chan ChangeEvent
	Close() error
}

// State is what a renderer consumes.
type State struct {
	Status           Status     `json:"status"`
	Loading          bool       `json:"loading"`
	Error            string     `json:"error,omitempty"`
	Metrics          *Metrics   `json:"metrics"`
	Source           Mode       `json:"source,omitempty"`
	FreshnessSeconds int64      `json:"freshness_seconds"`
	ComputedAt       *time.Time `json:"computed_at,omitempty"`
	LastRefreshed    *time.Time `json:"last_refreshed,omitempty"`
}

// Config wires an Aggregator to its collaborators. Writer and Subscriber are
// optional.
type Config struct {
	Identity   IdentityProvider
	Snapshots  SnapshotReader
	Writer     SnapshotWriter
	Raw        RawReader
	Subscriber Subscriber
	Clock      clock.Clock
	Logger     *zap.Logger
}

// Aggregator owns one user's Metrics for the lifetime of a dashboard view.
//
// It is mounted on construction. Close unmounts it: change events stop
// being applied and results of fetches still in flight are discarded.
type Aggregator struct {
	cfg Config

	mu            sync.Mutex
	closed        bool
	gen           uint64
	userID        primitive.ObjectID
	status        Status
	err           string
	metrics       *Metrics
	source        Mode
	computedAt    time.Time
	lastRefreshed time.Time
	sub           Subscription
	cancel        context.CancelFunc
	watchers      map[int]chan State
	nextWatcher   int

	wg sync.WaitGroup
}

// New returns a mounted Aggregator in the idle state.
func New(cfg Config) *Aggregator {
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Aggregator{
		cfg:      cfg,
		status:   StatusIdle,
		watchers: make(map[int]chan State),
	}
}

// Start subscribes to change events for the current user and performs the
// initial snapshot-mode refresh. The subscription is opened first so that
// changes racing the initial fetch are not lost; a subscription failure is
// logged and the view simply gets no live deltas.
func (a *Aggregator) Start(ctx context.Context) State {
	if a.cfg.Subscriber != nil {
		if userID, ok := a.cfg.Identity.CurrentUserID(); ok {
			a.subscribe(userID)
		}
	}
	return a.Refresh(ctx)
}

// subscribe opens the change stream on a context owned by the aggregator so
// it outlives the request that mounted the view.
func (a *Aggregator) subscribe(userID primitive.ObjectID) {
	subCtx, cancel := context.WithCancel(context.Background())
	sub, err := a.cfg.Subscriber.Subscribe(subCtx, userID)
	if err != nil {
		cancel()
		a.cfg.Logger.Warn("change subscription failed; live deltas disabled",
			zap.String("user_id", userID.Hex()), zap.Error(err))
		return
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		cancel()
		_ = sub.Close()
		return
	}
	a.sub = sub
	a.cancel = cancel
	a.wg.Add(1)
	a.mu.Unlock()

	go a.consume(subCtx, sub)
}

func (a *Aggregator) consume(ctx context.Context, sub Subscription) {
	defer a.wg.Done()
	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.Apply(ev)
		}
	}
}

// Apply applies one change event to the in-memory metrics. Events that
// arrive before the first full computation, or after Close, are dropped.
func (a *Aggregator) Apply(ev ChangeEvent) {
	a.mu.Lock()
	if a.closed || a.metrics == nil {
		a.mu.Unlock()
		return
	}
	next := ApplyDelta(*a.metrics, ev, a.cfg.Clock.Now())
	a.metrics = &next
	a.broadcastLocked(a.stateLocked())
	a.mu.Unlock()
}

// Refresh recomputes metrics in snapshot mode.
func (a *Aggregator) Refresh(ctx context.Context) State {
	return a.load(ctx, ModeSnapshot)
}

// RefreshLive recomputes metrics from raw rows once. Later refreshes go
// back to snapshot mode.
func (a *Aggregator) RefreshLive(ctx context.Context) State {
	return a.load(ctx, ModeLive)
}

func (a *Aggregator) load(ctx context.Context, mode Mode) State {
	a.mu.Lock()
	if a.closed {
		st := a.stateLocked()
		a.mu.Unlock()
		return st
	}
	a.gen++
	gen := a.gen
	a.status = StatusLoading
	a.broadcastLocked(a.stateLocked())
	a.mu.Unlock()

	userID, ok := a.cfg.Identity.CurrentUserID()
	if !ok {
		return a.finish(gen, func() {
			a.metrics = nil
			a.userID = primitive.NilObjectID
			a.status = StatusError
			a.err = ErrUnauthenticated.Error()
		})
	}

	snap, source, err := a.compute(ctx, userID, mode)
	if err != nil {
		a.cfg.Logger.Warn("dashboard metrics fetch failed",
			zap.String("user_id", userID.Hex()),
			zap.String("mode", string(mode)),
			zap.Error(err))
		return a.finish(gen, func() {
			if a.userID != userID {
				a.metrics = nil
			}
			a.status = StatusError
			a.err = err.Error()
		})
	}

	now := a.cfg.Clock.Now()
	return a.finish(gen, func() {
		m := snap.Metrics
		a.userID = userID
		a.metrics = &m
		a.source = source
		a.computedAt = snap.ComputedAt
		a.lastRefreshed = now
		a.status = StatusReady
		a.err = ""
	})
}

// finish applies a fetch outcome unless the view was unmounted or a newer
// refresh has started since.
func (a *Aggregator) finish(gen uint64, apply func()) State {
	a.mu.Lock()
	if a.closed || gen != a.gen {
		st := a.stateLocked()
		a.mu.Unlock()
		return st
	}
	apply()
	st := a.stateLocked()
	a.broadcastLocked(st)
	a.mu.Unlock()
	return st
}

func (a *Aggregator) compute(ctx context.Context, userID primitive.ObjectID, mode Mode) (Snapshot, Mode, error) {
	now := a.cfg.Clock.Now()
	monthStart := MonthStart(now)

	if mode == ModeSnapshot && a.cfg.Snapshots != nil {
		snap, found, err := a.cfg.Snapshots.Lookup(ctx, userID)
		if err != nil {
			return Snapshot{}, mode, err
		}
		// A rollup from an earlier month totals the wrong expenses, and one
		// past its next due date undercounts overdue tasks.
		if found && snap.Usable(now) {
			return snap, ModeSnapshot, nil
		}
	}

	rows, err := a.cfg.Raw.FetchRaw(ctx, userID, monthStart)
	if err != nil {
		return Snapshot{}, ModeLive, err
	}
	snap := Snapshot{
		Metrics:    ComputeFromRaw(rows, now),
		MonthStart: monthStart,
		ComputedAt: now,
		NextDueAt:  NextDue(rows, now),
		WriteSeq:   rows.WriteSeq,
	}

	if a.cfg.Writer != nil {
		if err := a.cfg.Writer.Save(ctx, userID, snap); err != nil {
			a.cfg.Logger.Warn("dashboard snapshot write-back failed",
				zap.String("user_id", userID.Hex()), zap.Error(err))
		}
	}
	return snap, ModeLive, nil
}

// State returns the current view state.
func (a *Aggregator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked()
}

func (a *Aggregator) stateLocked() State {
	st := State{
		Status:  a.status,
		Loading: a.status == StatusLoading,
		Error:   a.err,
		Source:  a.source,
	}
	if a.metrics != nil {
		m := *a.metrics
		st.Metrics = &m
	}
	if !a.computedAt.IsZero() {
		t := a.computedAt
		st.ComputedAt = &t
		age := a.cfg.Clock.Now().Sub(t)
		if age > 0 {
			st.FreshnessSeconds = int64(age / time.Second)
		}
	}
	if !a.lastRefreshed.IsZero() {
		t := a.lastRefreshed
		st.LastRefreshed = &t
	}
	return st
}

// Watch returns a channel that receives the latest state after every
// change. Slow readers see only the most recent state. The returned func
// stops the watch; the channel is closed on stop or Close.
func (a *Aggregator) Watch() (<-chan State, func()) {
	ch := make(chan State, 1)

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := a.nextWatcher
	a.nextWatcher++
	a.watchers[id] = ch
	a.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.mu.Lock()
			if w, ok := a.watchers[id]; ok {
				delete(a.watchers, id)
				close(w)
			}
			a.mu.Unlock()
		})
	}
}

// broadcastLocked replaces each watcher's pending state with st. It runs
// under a.mu, in the same critical section that produced st, so watchers
// never see states out of order. Sends do not block.
func (a *Aggregator) broadcastLocked(st State) {
	for _, ch := range a.watchers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}

// Close unmounts the aggregator: it tears down the change subscription,
// waits for the consumer goroutine, and closes all watch channels.
// It is safe to call more than once.
func (a *Aggregator) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	sub, cancel := a.sub, a.cancel
	for id, ch := range a.watchers {
		delete(a.watchers, id)
		close(ch)
	}
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if sub != nil {
		err = sub.Close()
	}
	a.wg.Wait()
	return err
}
