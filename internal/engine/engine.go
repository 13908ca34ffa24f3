package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"github.com/lazypower/factgraph/internal/store"
)

const (
	DefaultDecaySchedule = "0 3 * * *"
	DefaultPruneSchedule = "30 3 * * *"

	tickInterval = 30 * time.Second
)

// Options configures the maintenance engine. An empty schedule disables its
// job; pruning is also disabled without a workspace.
type Options struct {
	DecaySchedule string
	PruneSchedule string
	Workspace     string
	PreviewLimit  int
	Logger        *zap.Logger
}

type job struct {
	name string
	expr string
	run  func(ctx context.Context) error
	next time.Time
}

// Engine runs store maintenance on cron schedules: the daily decay step and
// the daily log pruning pass. Each job runs at most once per matching tick,
// which is what keeps decay to once a day.
type Engine struct {
	DB     *store.DB
	Logger *zap.Logger
	Now    func() time.Time

	workspace    string
	previewLimit int

	mu     sync.Mutex
	jobs   []*job
	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates an Engine. Invalid cron expressions are rejected.
func New(db *store.DB, opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		DB:           db,
		Logger:       logger,
		Now:          time.Now,
		workspace:    opts.Workspace,
		previewLimit: opts.PreviewLimit,
	}

	gx := gronx.New()
	add := func(name, expr string, run func(ctx context.Context) error) error {
		if expr == "" {
			return nil
		}
		if !gx.IsValid(expr) {
			return fmt.Errorf("invalid %s schedule: %q", name, expr)
		}
		e.jobs = append(e.jobs, &job{name: name, expr: expr, run: run})
		return nil
	}

	if err := add("decay", opts.DecaySchedule, func(ctx context.Context) error {
		_, err := e.RunDecay(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	if opts.Workspace != "" {
		if err := add("prune", opts.PruneSchedule, func(ctx context.Context) error {
			_, err := e.RunPrune()
			return err
		}); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Jobs lists the names of the scheduled jobs.
func (e *Engine) Jobs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, len(e.jobs))
	for i, j := range e.jobs {
		names[i] = j.name
	}
	return names
}

// NextRun reports when the named job fires next. The schedule is computed
// lazily, so before Start or Tick this is the next tick after now.
func (e *Engine) NextRun(name string) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, j := range e.jobs {
		if j.name != name {
			continue
		}
		if j.next.IsZero() {
			next, err := gronx.NextTickAfter(j.expr, e.Now(), false)
			if err != nil {
				return time.Time{}, false
			}
			return next, true
		}
		return j.next, true
	}
	return time.Time{}, false
}

// Start schedules every job and checks for due work until Stop is called
// or ctx is done.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.stopCh != nil {
		e.mu.Unlock()
		return
	}
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	stopCh, doneCh := e.stopCh, e.doneCh
	e.mu.Unlock()

	e.Tick(ctx)
	for _, name := range e.Jobs() {
		if next, ok := e.NextRun(name); ok {
			e.Logger.Info("scheduled job", zap.String("job", name), zap.Time("next_run", next))
		}
	}

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				e.Tick(ctx)
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop shuts down the scheduling goroutine and waits for it to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	stopCh, doneCh := e.stopCh, e.doneCh
	e.stopCh = nil
	e.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
}

// Tick runs every job whose scheduled time has passed, then schedules its
// next run. A job seen for the first time is only scheduled.
func (e *Engine) Tick(ctx context.Context) {
	now := e.Now()

	e.mu.Lock()
	var due []*job
	for _, j := range e.jobs {
		if j.next.IsZero() {
			e.schedule(j, now)
			continue
		}
		if !now.Before(j.next) {
			due = append(due, j)
			e.schedule(j, now)
		}
	}
	e.mu.Unlock()

	for _, j := range due {
		if err := j.run(ctx); err != nil {
			e.Logger.Error("job failed", zap.String("job", j.name), zap.Error(err))
		}
	}
}

// schedule must be called with e.mu held.
func (e *Engine) schedule(j *job, now time.Time) {
	next, err := gronx.NextTickAfter(j.expr, now, false)
	if err != nil {
		e.Logger.Error("compute next run", zap.String("job", j.name), zap.Error(err))
		return
	}
	j.next = next
}
