package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/me/hibernate/internal/cloud"
	"github.com/me/hibernate/internal/store"
	"github.com/me/hibernate/pkg/model"
)

// Config holds engine configuration.
type Config struct {
	// TickInterval is the fixed interval between evaluations.
	TickInterval time.Duration

	// CallTimeout bounds each external cloud call within a tick.
	CallTimeout time.Duration

	// Location is the single time zone schedule times are evaluated in.
	Location *time.Location
}

// DefaultConfig returns the design-value defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval: time.Minute,
		CallTimeout:  10 * time.Second,
		Location:     time.Local,
	}
}

// Loop implements the Engine interface with a fixed-interval evaluation
// loop.
//
// Matching is by exact string equality on the zero-padded "HH:MM" of the
// tick timestamp: an action fires in the single minute it names, and a tick
// delayed past that minute silently misses the day. There is deliberately
// no catch-up watermark; the interval samples each minute exactly once
// under normal operation.
type Loop struct {
	store     store.Store
	broker    cloud.CredentialBroker
	instances cloud.InstanceClient
	config    Config
	logger    *slog.Logger

	tickMu   sync.Mutex // at most one evaluation in flight
	stopOnce sync.Once
	running  atomic.Bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewLoop creates a new engine loop.
func NewLoop(st store.Store, broker cloud.CredentialBroker, instances cloud.InstanceClient, cfg Config, logger *slog.Logger) *Loop {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Minute
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Loop{
		store:     st,
		broker:    broker,
		instances: instances,
		config:    cfg,
		logger:    logger.With("component", "engine"),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the evaluation loop. Blocks until ctx is cancelled or Stop is
// called. Per-schedule failures never reach this level; only store-level
// tick errors are logged here, and they too never stop the loop.
func (l *Loop) Start(ctx context.Context) error {
	l.running.Store(true)
	l.logger.Info("engine started",
		"tick_interval", l.config.TickInterval,
		"timezone", l.config.Location.String(),
	)
	ticker := time.NewTicker(l.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("engine stopping (context cancelled)")
			close(l.doneCh)
			return ctx.Err()
		case <-l.stopCh:
			l.logger.Info("engine stopping (stop called)")
			close(l.doneCh)
			return nil
		case now := <-ticker.C:
			if err := l.Tick(ctx, now); err != nil {
				l.logger.Error("tick error", "error", err)
			}
		}
	}
}

// Stop gracefully shuts down the engine and waits for the current tick to
// finish. Safe to call more than once, and before Start.
func (l *Loop) Stop() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	if !l.running.Load() {
		return nil
	}
	<-l.doneCh
	return nil
}

// Tick runs a single evaluation at the given timestamp. If another tick is
// already in flight the call returns immediately without evaluating, so
// overlapping timers can never act on the same schedule set twice.
func (l *Loop) Tick(ctx context.Context, now time.Time) error {
	if !l.tickMu.TryLock() {
		l.logger.Warn("tick skipped (previous tick still running)")
		return nil
	}
	defer l.tickMu.Unlock()

	local := now.In(l.config.Location)
	weekday := local.Weekday()
	clock := model.FormatClock(local)

	schedules, err := l.store.ListActiveSchedules(ctx)
	if err != nil {
		return fmt.Errorf("list active schedules: %w", err)
	}

	for _, sch := range schedules {
		l.evaluate(ctx, sch, weekday, clock)
	}
	return nil
}

// evaluate decides and executes the action for one schedule. All failures
// are contained here: one user's misconfiguration never blocks another's
// schedules.
func (l *Loop) evaluate(ctx context.Context, sch *model.Schedule, weekday time.Weekday, clock string) {
	if !sch.AppliesOn(weekday) {
		return
	}

	binding, err := l.store.GetActiveRoleBinding(ctx, sch.UserID)
	if err != nil {
		l.logger.Error("load role binding",
			"user_id", sch.UserID, "schedule_id", sch.ID, "error", err)
		return
	}
	if binding == nil {
		l.logger.Debug("no active role binding, skipping",
			"user_id", sch.UserID, "schedule_id", sch.ID)
		return
	}

	// Exact-minute match; the start branch is checked first, so a schedule
	// with start_time == stop_time fires start, never both.
	var action model.Action
	switch {
	case clock == sch.StartTime:
		action = model.ActionStart
	case clock == sch.StopTime:
		action = model.ActionStop
	default:
		return
	}

	if err := l.act(ctx, sch, binding, action); err != nil {
		l.logger.Error("schedule action failed",
			"user_id", sch.UserID,
			"schedule_id", sch.ID,
			"instance_id", sch.InstanceID,
			"action", action,
			"provider_code", cloud.ProviderErrorCode(err),
			"error", err,
		)
		return
	}

	l.logger.Info("schedule action",
		"user_id", sch.UserID,
		"schedule_id", sch.ID,
		"instance_id", sch.InstanceID,
		"action", action,
		"region", binding.Region,
	)
}

// act assumes the user's role and issues the command, bounding each external
// call separately so a stalled call cannot starve the rest of the tick.
func (l *Loop) act(ctx context.Context, sch *model.Schedule, binding *model.RoleBinding, action model.Action) error {
	assumeCtx, cancel := context.WithTimeout(ctx, l.config.CallTimeout)
	creds, err := l.broker.Assume(assumeCtx, binding.RoleARN, binding.Region)
	cancel()
	if err != nil {
		return err
	}

	actCtx, cancel := context.WithTimeout(ctx, l.config.CallTimeout)
	defer cancel()
	return l.instances.SetInstanceState(actCtx, creds, sch.InstanceID, action, binding.Region)
}
