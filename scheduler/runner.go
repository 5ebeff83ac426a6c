// Package scheduler runs the periodic screener jobs (refreshes, alert checks, position
// sync, signal scans) on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Entry describes a registered job.
type Entry struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev"`
}

// Runner wraps a seconds-aware cron and skips a job run while the previous one is still busy.
type Runner struct {
	cron    *cron.Cron
	log     *zap.Logger
	baseCtx context.Context

	mu    sync.Mutex
	names map[cron.EntryID]string
	specs map[cron.EntryID]string
}

// New creates a runner whose jobs receive baseCtx.
func New(log *zap.Logger, baseCtx context.Context) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cronLogger{log}), cron.SkipIfStillRunning(cronLogger{log})),
		),
		log:     log,
		baseCtx: baseCtx,
		names:   make(map[cron.EntryID]string),
		specs:   make(map[cron.EntryID]string),
	}
}

// Add registers job under spec. An empty spec disables the job and returns (0, nil).
func (r *Runner) Add(name, spec string, job Job) (cron.EntryID, error) {
	if spec == "" {
		r.log.Info("⏸️ Job disabled", zap.String("job", name))
		return 0, nil
	}
	id, err := r.cron.AddFunc(spec, r.wrap(name, job))
	if err != nil {
		return 0, fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	r.mu.Lock()
	r.names[id] = name
	r.specs[id] = spec
	r.mu.Unlock()
	return id, nil
}

func (r *Runner) wrap(name string, job Job) func() {
	return func() {
		if r.baseCtx.Err() != nil {
			return
		}
		start := time.Now()
		if err := job(r.baseCtx); err != nil {
			r.log.Error("❌ Job failed", zap.String("job", name), zap.Duration("took", time.Since(start)), zap.Error(err))
			return
		}
		r.log.Debug("✅ Job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
	}
}

// Entries lists the registered jobs ordered by their next run.
func (r *Runner) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Entry
	for _, e := range r.cron.Entries() {
		out = append(out, Entry{Name: r.names[e.ID], Spec: r.specs[e.ID], Next: e.Next, Prev: e.Prev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Next.Before(out[j].Next) })
	return out
}

// Start starts the scheduler in its own goroutine.
func (r *Runner) Start() {
	r.log.Info("⏰ Scheduler started", zap.Int("jobs", len(r.cron.Entries())))
	r.cron.Start()
}

// Stop stops the scheduler and waits for running jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.log.Info("🛑 Scheduler stopped")
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
