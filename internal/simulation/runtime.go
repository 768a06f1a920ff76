// Package simulation runs the political engine on a single actor so every
// mutation happens on one logical thread.
package simulation

import (
	"context"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/mroshb/statecraft/internal/handlers"
	"github.com/mroshb/statecraft/internal/models"
	"github.com/mroshb/statecraft/pkg/errors"
	"github.com/mroshb/statecraft/pkg/logger"
)

const defaultAskTimeout = 5 * time.Second

type (
	dailyTick     struct{}
	dedupSweep    struct{}
	revenue       struct{ evt models.RevenueEvent }
	entityDeleted struct{ ref models.EntityRef }
	deferred      struct{ fn func() }
	request       struct {
		fn func(*handlers.Manager) (any, error)
	}
	reply struct {
		value any
		err   error
	}
)

type simulationActor struct {
	mgr *handlers.Manager
	ctx context.Context
}

func (a *simulationActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		logger.Info("Simulation actor started", "pid", ctx.Self().String())
	case *actor.Stopping:
		if err := a.mgr.Engine.Flush(a.ctx); err != nil {
			logger.Warn("Final flush failed", "error", err)
		}
	case dailyTick:
		a.mgr.RunDailyTick(a.ctx)
	case dedupSweep:
		if removed := a.mgr.Dedup.Sweep(); removed > 0 {
			logger.Debug("Tribute dedup entries swept", "removed", removed)
		}
	case revenue:
		a.mgr.OnRevenue(a.ctx, msg.evt)
	case entityDeleted:
		a.mgr.OnEntityDeleted(a.ctx, msg.ref)
	case deferred:
		msg.fn()
	case *request:
		value, err := msg.fn(a.mgr)
		ctx.Respond(&reply{value: value, err: err})
	}
}

// Runtime owns the actor system. Construct it first, hand it to the handler
// manager as the Scheduler, then Start it with that manager.
type Runtime struct {
	system  *actor.ActorSystem
	root    *actor.RootContext
	pid     *actor.PID
	timeout time.Duration
}

func New(askTimeout time.Duration) *Runtime {
	if askTimeout <= 0 {
		askTimeout = defaultAskTimeout
	}
	system := actor.NewActorSystem()
	return &Runtime{
		system:  system,
		root:    system.Root,
		timeout: askTimeout,
	}
}

func (r *Runtime) Start(ctx context.Context, mgr *handlers.Manager) {
	base := context.WithoutCancel(ctx)
	props := actor.PropsFromProducer(func() actor.Actor {
		return &simulationActor{mgr: mgr, ctx: base}
	})
	r.pid = r.root.Spawn(props)
}

// RunAfter queues fn onto the simulation actor once d has elapsed.
func (r *Runtime) RunAfter(d time.Duration, fn func()) {
	time.AfterFunc(d, func() {
		r.send(deferred{fn: fn})
	})
}

// Publish hands a treasury revenue event to the tribute handler.
func (r *Runtime) Publish(evt models.RevenueEvent) {
	r.send(revenue{evt: evt})
}

func (r *Runtime) NotifyDeleted(ref models.EntityRef) {
	r.send(entityDeleted{ref: ref})
}

func (r *Runtime) TriggerDailyTick() {
	r.send(dailyTick{})
}

// Ask runs fn on the simulation actor and returns its result.
func (r *Runtime) Ask(ctx context.Context, fn func(*handlers.Manager) (any, error)) (any, error) {
	if r.pid == nil {
		return nil, errors.New(errors.ErrCodeInternalError, "simulation runtime not started")
	}

	res, err := r.root.RequestFuture(r.pid, &request{fn: fn}, r.timeoutFromContext(ctx)).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "simulation request failed")
	}
	out, ok := res.(*reply)
	if !ok {
		return nil, errors.New(errors.ErrCodeInternalError, "unexpected simulation reply")
	}
	return out.value, out.err
}

// Do is Ask for callers that only need the error.
func (r *Runtime) Do(ctx context.Context, fn func(*handlers.Manager) error) error {
	_, err := r.Ask(ctx, func(m *handlers.Manager) (any, error) {
		return nil, fn(m)
	})
	return err
}

// StartTickers sends a daily tick every dayLength and a dedup sweep every
// sweepEvery until ctx is done.
func (r *Runtime) StartTickers(ctx context.Context, dayLength, sweepEvery time.Duration) error {
	day := time.NewTicker(dayLength)
	defer day.Stop()
	sweep := time.NewTicker(sweepEvery)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-day.C:
			r.send(dailyTick{})
		case <-sweep.C:
			r.send(dedupSweep{})
		}
	}
}

func (r *Runtime) Shutdown() {
	if r.pid != nil {
		if err := r.root.StopFuture(r.pid).Wait(); err != nil {
			logger.Warn("Simulation actor did not stop cleanly", "error", err)
		}
	}
	r.system.Shutdown()
}

func (r *Runtime) send(msg any) {
	if r.pid == nil {
		logger.Warn("Simulation runtime not started, message dropped")
		return
	}
	r.root.Send(r.pid, msg)
}

func (r *Runtime) timeoutFromContext(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return r.timeout
	}
	remain := time.Until(deadline)
	if remain <= 0 {
		return time.Millisecond
	}
	if remain < r.timeout {
		return remain
	}
	return r.timeout
}
