package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/glorpus-work/querykit/internal/logger"
	"github.com/glorpus-work/querykit/pkg/errors"
	"github.com/robfig/cron/v3"
)

// Refresher runs RefreshAll on a cron schedule.
type Refresher struct {
	registry *Registry
	schedule cron.Schedule
	cron     *cron.Cron

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewRefresher parses spec (standard cron syntax or a descriptor such as
// "@every 24h") and prepares a refresher for r.
func NewRefresher(r *Registry, spec string) (*Refresher, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, errors.ErrInvalidScheduleWithDetails(spec, err)
	}
	cl := cronLogger{}
	return &Refresher{
		registry: r,
		schedule: schedule,
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
	}, nil
}

// Start schedules the refresh job. Runs are bound to ctx.
func (f *Refresher) Start(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		return
	}
	ctx, f.cancel = context.WithCancel(ctx)
	f.cron.Schedule(f.schedule, cron.FuncJob(func() {
		report := f.registry.RefreshAll(ctx)
		if err := report.Err(); err != nil {
			logger.Debug("Scheduled refresh had failures", logger.Fields{"error": err})
		}
	}))
	f.cron.Start()
	logger.Info("Refresh scheduler started", logger.Fields{"next": f.schedule.Next(time.Now()).Format(time.RFC3339)})
}

// Stop cancels a running refresh and waits for it to return.
func (f *Refresher) Stop() {
	f.mu.Lock()
	cancel := f.cancel
	f.cancel = nil
	f.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-f.cron.Stop().Done()
}

// cronLogger routes cron's logging through the daemon logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("cron: "+msg, pairs(keysAndValues))
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := pairs(keysAndValues)
	fields["error"] = err
	logger.Error("cron: "+msg, fields)
}

func pairs(kv []interface{}) logger.Fields {
	fields := make(logger.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
