package handlers

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mroshb/statecraft/internal/config"
	"github.com/mroshb/statecraft/internal/models"
	"github.com/mroshb/statecraft/internal/repositories/sqlitestore"
	"github.com/mroshb/statecraft/internal/services"
	"github.com/mroshb/statecraft/internal/world"
)

type task struct {
	delay time.Duration
	fn    func()
}

// manualScheduler holds deferred work until the test runs it.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []task
}

func (s *manualScheduler) RunAfter(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task{delay: d, fn: fn})
}

func (s *manualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// RunAll runs queued tasks, including any they queue, until none are left.
func (s *manualScheduler) RunAll() int {
	ran := 0
	for {
		s.mu.Lock()
		tasks := s.tasks
		s.tasks = nil
		s.mu.Unlock()
		if len(tasks) == 0 {
			return ran
		}
		for _, t := range tasks {
			t.fn()
			ran++
		}
	}
}

type testEnv struct {
	ctx       context.Context
	now       time.Time
	world     *world.Memory
	scheduler *manualScheduler
	engine    *services.Engine
	mgr       *Manager
}

func newTestEnv(t *testing.T, rules *config.Rules) *testEnv {
	t.Helper()
	if rules == nil {
		rules = config.DefaultRules()
	}
	return newTestEnvWithSource(t, config.StaticRules(rules))
}

// swappableRules publishes a new snapshot the way a rules file reload does.
type swappableRules struct {
	current atomic.Pointer[config.Rules]
}

func (s *swappableRules) Current() *config.Rules {
	return s.current.Load()
}

func newTestEnvWithSource(t *testing.T, source config.RulesSource) *testEnv {
	t.Helper()
	store, err := sqlitestore.Open(":memory:")
	if err != nil {
		t.Fatalf("sqlitestore.Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	env := &testEnv{
		ctx:       context.Background(),
		now:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		world:     world.NewMemory(),
		scheduler: &manualScheduler{},
	}
	clock := func() time.Time { return env.now }

	env.engine = services.NewEngine(services.Stores{Entities: store, Policies: store, Vassalage: store}, env.world, source, clock)
	if err := env.engine.Load(env.ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	env.mgr = NewManager(env.engine, env.world, env.scheduler, source, clock)

	env.world.OnRevenue(func(evt models.RevenueEvent) { env.mgr.OnRevenue(env.ctx, evt) })
	env.world.OnDeleted(func(ref models.EntityRef) { env.mgr.OnEntityDeleted(env.ctx, ref) })
	return env
}

// pair creates a suzerain and a vassal paying rate.
func (e *testEnv) pair(t *testing.T, rate float64) (suzerain, vassal models.EntityRef) {
	t.Helper()
	suzerain = e.world.AddRealm("Aldmoor", 0)
	vassal = e.world.AddRealm("Vessaria", 0)
	if err := e.engine.Ledger.SetAuthority(e.ctx, suzerain, 100); err != nil {
		t.Fatalf("SetAuthority() error = %v", err)
	}
	offer, err := e.engine.Vassalage.CreateOffer(e.ctx, suzerain.ID, vassal.ID, rate)
	if err != nil {
		t.Fatalf("CreateOffer() error = %v", err)
	}
	if _, err := e.engine.Vassalage.AcceptOffer(e.ctx, offer.ID, vassal.ID); err != nil {
		t.Fatalf("AcceptOffer() error = %v", err)
	}
	return suzerain, vassal
}

func (e *testEnv) balance(t *testing.T, ref models.EntityRef) float64 {
	t.Helper()
	b, err := e.world.Balance(e.ctx, ref)
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	return b
}
