package cronrunner

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Parser accepts an optional leading seconds field and @every descriptors.
var Parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context

	mu    sync.Mutex
	names map[cron.EntryID]string
}

// zapAdapter lets robfig's chain wrappers log through zap.
type zapAdapter struct{ l *zap.Logger }

func (a zapAdapter) Info(msg string, kv ...any) {
	a.l.Sugar().Debugw(msg, kv...)
}

func (a zapAdapter) Error(err error, msg string, kv ...any) {
	a.l.Sugar().Warnw(msg, append(kv, "error", err)...)
}

func New(logger *zap.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	adapter := zapAdapter{l: logger}
	return &Runner{
		cron: cron.New(
			cron.WithParser(Parser),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		logger:  logger,
		baseCtx: baseCtx,
		names:   map[cron.EntryID]string{},
	}
}

// Add schedules job under name. A run still in progress makes the next tick a no-op.
func (r *Runner) Add(name, spec string, job func(context.Context) error) (cron.EntryID, error) {
	id, err := r.cron.AddFunc(strings.TrimSpace(spec), func() {
		start := time.Now()
		err := job(r.baseCtx)
		if err != nil {
			r.logger.Warn("cron job failed", zap.String("job", name), zap.Duration("took", time.Since(start)), zap.Error(err))
			return
		}
		r.logger.Debug("cron job ok", zap.String("job", name), zap.Duration("took", time.Since(start)))
	})
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	r.names[id] = name
	r.mu.Unlock()
	return id, nil
}

// JobStatus is one scheduled job as shown on the status API.
type JobStatus struct {
	Name string    `json:"name"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev"`
}

func (r *Runner) Jobs() []JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []JobStatus
	for _, e := range r.cron.Entries() {
		out = append(out, JobStatus{Name: r.names[e.ID], Next: e.Next, Prev: e.Prev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Runner) Start() {
	r.logger.Info("cron started", zap.Int("jobs", len(r.cron.Entries())))
	r.cron.Start()
}

func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron stopped")
}
