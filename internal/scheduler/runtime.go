package scheduler

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Status is the operator view of the scheduler runtime.
type Status struct {
	Running     bool      `json:"running"`
	Initialized bool      `json:"initialized"`
	Schedule    string    `json:"schedule"`
	NextRunAt   time.Time `json:"next_run_at"`
}

// Runtime owns the cron cadence driving the DueScheduler: one instance per
// process, constructed at startup, no package-level handles.
type Runtime struct {
	mu sync.Mutex

	parser      cron.Parser
	spec        string
	schedule    cron.Schedule
	tick        func()
	c           *cron.Cron
	initialized bool
}

func NewRuntime(spec string, tick func()) (*Runtime, error) {
	// Standard five-field cron only; descriptors like @every are not part of
	// the operator surface.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	r := &Runtime{
		parser: parser,
		tick:   tick,
	}

	schedule, err := r.validate(spec)
	if err != nil {
		return nil, err
	}
	r.spec = spec
	r.schedule = schedule
	return r, nil
}

func (r *Runtime) validate(spec string) (cron.Schedule, error) {
	if fields := strings.Fields(spec); len(fields) != 5 {
		return nil, fmt.Errorf("schedule %q must have exactly 5 fields (minute hour day month weekday), got %d", spec, len(strings.Fields(spec)))
	}
	schedule, err := r.parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return schedule, nil
}

// Start is idempotent: starting a running scheduler is a no-op.
func (r *Runtime) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startLocked()
}

func (r *Runtime) startLocked() {
	if r.c != nil {
		return
	}
	r.c = cron.New(cron.WithParser(r.parser))
	r.c.Schedule(r.schedule, cron.FuncJob(r.tick))
	r.c.Start()
	r.initialized = true
	slog.Info("scheduler started", "schedule", r.spec)
}

// Stop prevents new ticks from firing. Work already dispatched to the
// publish workers is not aborted.
func (r *Runtime) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *Runtime) stopLocked() {
	if r.c == nil {
		return
	}
	<-r.c.Stop().Done()
	r.c = nil
	slog.Info("scheduler stopped")
}

func (r *Runtime) Restart() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
	r.startLocked()
}

// UpdateSchedule swaps the cadence. An invalid expression is rejected without
// touching the running schedule.
func (r *Runtime) UpdateSchedule(spec string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	schedule, err := r.validate(spec)
	if err != nil {
		return err
	}

	r.spec = spec
	r.schedule = schedule
	if r.c != nil {
		r.stopLocked()
		r.startLocked()
	}
	slog.Info("schedule updated", "schedule", spec)
	return nil
}

func (r *Runtime) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		Running:     r.c != nil,
		Initialized: r.initialized,
		Schedule:    r.spec,
		NextRunAt:   r.schedule.Next(time.Now()),
	}
}
