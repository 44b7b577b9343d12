package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Unlimited disables a window's limit entirely.
const Unlimited int64 = -1

// Kind identifies a rolling window granularity.
type Kind string

const (
	KindSecond Kind = "second"
	KindDay    Kind = "day"
	KindMonth  Kind = "month"
)

// Kinds lists the window kinds in evaluation order. The tightest
// granularity is checked first so a denial reports the window that will
// clear soonest.
var Kinds = []Kind{KindSecond, KindDay, KindMonth}

// windowStart returns the boundary of the window containing t. Resets
// always advance to this boundary, never to an arbitrary past time.
func (k Kind) windowStart(t time.Time) time.Time {
	t = t.UTC()
	switch k {
	case KindSecond:
		return t.Truncate(time.Second)
	case KindDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case KindMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}

func (k Kind) next(start time.Time) time.Time {
	switch k {
	case KindSecond:
		return start.Add(time.Second)
	case KindDay:
		return start.AddDate(0, 0, 1)
	case KindMonth:
		return start.AddDate(0, 1, 0)
	}
	return start
}

// Limits holds a tenant's plan limits per window kind.
type Limits struct {
	PerSecond int64
	PerDay    int64
	PerMonth  int64
}

func (l Limits) For(k Kind) int64 {
	switch k {
	case KindSecond:
		return l.PerSecond
	case KindDay:
		return l.PerDay
	case KindMonth:
		return l.PerMonth
	}
	return Unlimited
}

// Decision is the outcome of TryConsume. A denial is an expected result,
// not an error; infrastructure faults are returned separately.
type Decision struct {
	Allowed    bool      `json:"allowed"`
	DeniedKind Kind      `json:"denied_kind,omitempty"`
	RetryAt    time.Time `json:"retry_at,omitempty"`
}

// ResourceSnapshot is the pollable usage view for one window kind.
type ResourceSnapshot struct {
	Kind       Kind    `json:"kind"`
	Used       int64   `json:"used"`
	Limit      int64   `json:"limit"`
	Percentage float64 `json:"percentage"`
	Warning    bool    `json:"warning"`
}

// Window is one persisted counter.
type Window struct {
	Kind  Kind
	Count int64
	Start time.Time
}

// Store persists window counters. The ledger is the sole mutator.
type Store interface {
	Load(tenantID string) ([]Window, error)
	Save(tenantID string, w Window) error
	Reset(tenantID string) error
}

// LimitsProvider resolves the current plan limits for a tenant.
type LimitsProvider interface {
	Limits(tenantID string) (Limits, error)
}

// Publisher receives quota snapshots after committed usage changes.
type Publisher interface {
	PublishQuota(tenantID string, snapshots []ResourceSnapshot)
}

// SecondGuard is an optional distributed admission check for the second
// window, shared across instances. Refund undoes an admission that never
// produced an upstream call.
type SecondGuard interface {
	Allow(ctx context.Context, tenantID string, limit int64) (bool, error)
	Refund(ctx context.Context, tenantID string) error
}

type tenantWindows struct {
	mu      sync.Mutex
	loaded  bool
	windows map[Kind]*Window
}

// Ledger enforces per-tenant usage windows against shared upstream
// capacity. Check-then-increment is serialized per tenant; there is no
// global lock around the hot path.
type Ledger struct {
	store       Store
	limits      LimitsProvider
	publisher   Publisher
	guard       SecondGuard
	log         *zap.Logger
	warnPercent int
	now         func() time.Time

	mu      sync.Mutex
	tenants map[string]*tenantWindows
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithWarnPercent(p int) Option {
	return func(l *Ledger) { l.warnPercent = p }
}

func WithPublisher(p Publisher) Option {
	return func(l *Ledger) { l.publisher = p }
}

func WithSecondGuard(g SecondGuard) Option {
	return func(l *Ledger) { l.guard = g }
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.log = logger }
}

func NewLedger(store Store, limits LimitsProvider, opts ...Option) *Ledger {
	l := &Ledger{
		store:       store,
		limits:      limits,
		log:         zap.NewNop(),
		warnPercent: 80,
		now:         time.Now,
		tenants:     make(map[string]*tenantWindows),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// tenant returns the per-tenant state, creating it on first access.
// Entries are never removed; the map is bounded by the tenant count.
func (l *Ledger) tenant(tenantID string) *tenantWindows {
	l.mu.Lock()
	defer l.mu.Unlock()
	tw, ok := l.tenants[tenantID]
	if !ok {
		tw = &tenantWindows{windows: make(map[Kind]*Window)}
		l.tenants[tenantID] = tw
	}
	return tw
}

// load hydrates counters from the store on first access. Caller holds tw.mu.
func (l *Ledger) load(tenantID string, tw *tenantWindows) error {
	if tw.loaded {
		return nil
	}
	stored, err := l.store.Load(tenantID)
	if err != nil {
		return fmt.Errorf("load quota windows: %w", err)
	}
	for _, w := range stored {
		w := w
		tw.windows[w.Kind] = &w
	}
	tw.loaded = true
	return nil
}

// roll resets a window whose boundary has passed. Caller holds tw.mu.
func (l *Ledger) roll(k Kind, w *Window, now time.Time) {
	if w.Start.IsZero() || !now.Before(k.next(k.windowStart(w.Start))) {
		w.Count = 0
		w.Start = k.windowStart(now)
	}
}

// TryConsume atomically checks every finite window and reserves one unit
// across all of them. Nothing is incremented on denial. A store fault
// denies the send (fail closed) and is returned as an error distinct from
// a quota denial.
func (l *Ledger) TryConsume(ctx context.Context, tenantID string) (Decision, error) {
	limits, err := l.limits.Limits(tenantID)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve limits: %w", err)
	}

	tw := l.tenant(tenantID)
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := l.load(tenantID, tw); err != nil {
		return Decision{}, err
	}

	now := l.now()
	for _, k := range Kinds {
		limit := limits.For(k)
		if limit == Unlimited {
			continue
		}
		w, ok := tw.windows[k]
		if !ok {
			w = &Window{Kind: k, Start: k.windowStart(now)}
			tw.windows[k] = w
		}
		l.roll(k, w, now)
		if w.Count >= limit {
			l.log.Info("quota denied",
				zap.String("tenant_id", tenantID),
				zap.String("kind", string(k)),
				zap.Int64("limit", limit))
			return Decision{DeniedKind: k, RetryAt: k.next(w.Start)}, nil
		}
	}

	if l.guard != nil && limits.PerSecond != Unlimited {
		allowed, err := l.guard.Allow(ctx, tenantID, limits.PerSecond)
		if err != nil {
			return Decision{}, fmt.Errorf("second-window guard: %w", err)
		}
		if !allowed {
			return Decision{DeniedKind: KindSecond, RetryAt: KindSecond.next(KindSecond.windowStart(now))}, nil
		}
	}

	var changed []Window
	for _, k := range Kinds {
		if limits.For(k) == Unlimited {
			continue
		}
		w := tw.windows[k]
		w.Count++
		changed = append(changed, *w)
	}

	for _, w := range changed {
		if err := l.store.Save(tenantID, w); err != nil {
			// Undo in-memory reservations so a retry does not double-count.
			for _, k := range Kinds {
				if limits.For(k) == Unlimited {
					continue
				}
				tw.windows[k].Count--
			}
			if l.guard != nil && limits.PerSecond != Unlimited {
				if rerr := l.guard.Refund(ctx, tenantID); rerr != nil {
					l.log.Warn("second-window refund failed",
						zap.String("tenant_id", tenantID), zap.Error(rerr))
				}
			}
			return Decision{}, fmt.Errorf("persist quota window: %w", err)
		}
	}

	return Decision{Allowed: true}, nil
}

// Release refunds a reservation after a failed upstream send so failed
// sends never consume quota. The distributed second-window guard is left
// untouched: by the time Release runs the upstream call was usually
// dispatched inside that second, so the burst capacity was spent. A
// pre-dispatch cancellation can over-count the guard by one for the
// remainder of that single second.
func (l *Ledger) Release(tenantID string) {
	limits, err := l.limits.Limits(tenantID)
	if err != nil {
		l.log.Warn("quota release skipped", zap.String("tenant_id", tenantID), zap.Error(err))
		return
	}

	tw := l.tenant(tenantID)
	tw.mu.Lock()
	defer tw.mu.Unlock()

	for _, k := range Kinds {
		if limits.For(k) == Unlimited {
			continue
		}
		w, ok := tw.windows[k]
		if !ok || w.Count == 0 {
			continue
		}
		w.Count--
		if err := l.store.Save(tenantID, *w); err != nil {
			l.log.Warn("quota release not persisted",
				zap.String("tenant_id", tenantID),
				zap.String("kind", string(k)),
				zap.Error(err))
		}
	}
}

// RecordUsage commits a reservation after a confirmed successful send and
// publishes the updated snapshot. Counters were already reserved by
// TryConsume; this is the observability commit, never called speculatively.
func (l *Ledger) RecordUsage(tenantID string) {
	if l.publisher == nil {
		return
	}
	snaps, err := l.Snapshot(tenantID)
	if err != nil {
		l.log.Warn("quota snapshot after send failed", zap.String("tenant_id", tenantID), zap.Error(err))
		return
	}
	l.publisher.PublishQuota(tenantID, snaps)
}

// Snapshot returns the current usage view per window kind. Warning is
// informational only and never blocks a send.
func (l *Ledger) Snapshot(tenantID string) ([]ResourceSnapshot, error) {
	limits, err := l.limits.Limits(tenantID)
	if err != nil {
		return nil, fmt.Errorf("resolve limits: %w", err)
	}

	tw := l.tenant(tenantID)
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := l.load(tenantID, tw); err != nil {
		return nil, err
	}

	now := l.now()
	snaps := make([]ResourceSnapshot, 0, len(Kinds))
	for _, k := range Kinds {
		limit := limits.For(k)
		snap := ResourceSnapshot{Kind: k, Limit: limit}
		if w, ok := tw.windows[k]; ok {
			l.roll(k, w, now)
			snap.Used = w.Count
		}
		if limit > 0 {
			snap.Percentage = float64(snap.Used) / float64(limit) * 100
			snap.Warning = snap.Percentage >= float64(l.warnPercent)
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// ForceReset is the administrative override that zeroes every window for a
// tenant. Counters are never manually decremented through any other path.
func (l *Ledger) ForceReset(tenantID string) error {
	tw := l.tenant(tenantID)
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := l.store.Reset(tenantID); err != nil {
		return fmt.Errorf("reset quota windows: %w", err)
	}

	now := l.now()
	for k, w := range tw.windows {
		w.Count = 0
		w.Start = k.windowStart(now)
	}
	tw.loaded = true

	l.log.Info("quota force reset", zap.String("tenant_id", tenantID))
	return nil
}
