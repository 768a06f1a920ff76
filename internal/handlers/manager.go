package handlers

import (
	"context"
	"time"

	"github.com/mroshb/statecraft/internal/config"
	"github.com/mroshb/statecraft/internal/middleware"
	"github.com/mroshb/statecraft/internal/models"
	"github.com/mroshb/statecraft/internal/services"
)

// Scheduler runs fn once after d has elapsed, on the simulation thread.
type Scheduler interface {
	RunAfter(d time.Duration, fn func())
}

// Manager routes host events into the engine.
type Manager struct {
	Engine   *services.Engine
	Tribute  *TributeHandler
	Deletion *DeletionHandler
	Dedup    *middleware.TransactionDeduper
}

func NewManager(
	engine *services.Engine,
	treasury services.Treasury,
	scheduler Scheduler,
	rules config.RulesSource,
	now services.Clock,
) *Manager {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	dedup := middleware.NewLiveTransactionDeduper(func() time.Duration {
		return rules.Current().Tribute.DedupWindow
	}, now)

	return &Manager{
		Engine:   engine,
		Tribute:  NewTributeHandler(engine.Vassalage, engine.Directory(), treasury, dedup, scheduler, rules, now),
		Deletion: NewDeletionHandler(engine),
		Dedup:    dedup,
	}
}

func (m *Manager) RunDailyTick(ctx context.Context) services.TickReport {
	return m.Engine.Tick.Run(ctx)
}

func (m *Manager) OnRevenue(ctx context.Context, evt models.RevenueEvent) bool {
	return m.Tribute.OnPreTransaction(ctx, evt)
}

func (m *Manager) OnEntityDeleted(ctx context.Context, ref models.EntityRef) {
	m.Deletion.OnEntityDeleted(ctx, ref)
}
