package handlers

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mroshb/statecraft/internal/config"
	"github.com/mroshb/statecraft/internal/models"
	"github.com/mroshb/statecraft/internal/world"
	"github.com/mroshb/statecraft/pkg/errors"
)

func TestTribute_CollectedAfterDeposit(t *testing.T) {
	env := newTestEnv(t, nil)
	suzerain, vassal := env.pair(t, 0.1)

	if err := env.world.Deposit(env.ctx, vassal, 100, models.TxTypeRevenue, "market day"); err != nil {
		t.Fatalf("Deposit() error = %v", err)
	}
	if got := env.scheduler.Pending(); got != 1 {
		t.Fatalf("scheduled collections = %d, want 1", got)
	}
	if got := env.scheduler.tasks[0].delay; got != config.DefaultRules().Tribute.CollectDelay {
		t.Errorf("collect delay = %v, want %v", got, config.DefaultRules().Tribute.CollectDelay)
	}
	if got := env.balance(t, vassal); got != 100 {
		t.Errorf("vassal balance before collection = %v, want 100", got)
	}

	env.scheduler.RunAll()

	if got := env.balance(t, vassal); math.Abs(got-90) > 1e-9 {
		t.Errorf("vassal balance = %v, want 90", got)
	}
	if got := env.balance(t, suzerain); math.Abs(got-10) > 1e-9 {
		t.Errorf("suzerain balance = %v, want 10", got)
	}
	rel, ok := env.engine.Vassalage.Relationship(suzerain.ID, vassal.ID)
	if !ok || rel.LastTributeAt == nil || !rel.LastTributeAt.Equal(env.now) {
		t.Errorf("LastTributeAt = %v, want %v", rel.LastTributeAt, env.now)
	}
}

func TestTribute_Ignored(t *testing.T) {
	disabled := config.DefaultRules()
	disabled.Tribute.Enabled = false

	tests := []struct {
		name  string
		rules *config.Rules
		evt   func(suzerain, vassal models.EntityRef, free models.EntityRef, town models.EntityRef) models.RevenueEvent
	}{
		{
			name:  "Disabled",
			rules: disabled,
			evt: func(_, v, _, _ models.EntityRef) models.RevenueEvent {
				return models.RevenueEvent{Account: v.AccountName(), Kind: models.TransactionDeposit, Amount: 100}
			},
		},
		{
			name: "Withdrawal",
			evt: func(_, v, _, _ models.EntityRef) models.RevenueEvent {
				return models.RevenueEvent{Account: v.AccountName(), Kind: models.TransactionWithdraw, Amount: 100}
			},
		},
		{
			name: "Settlement account",
			evt: func(_, _, _, town models.EntityRef) models.RevenueEvent {
				return models.RevenueEvent{Account: town.AccountName(), Kind: models.TransactionDeposit, Amount: 100}
			},
		},
		{
			name: "Below minimum",
			evt: func(_, v, _, _ models.EntityRef) models.RevenueEvent {
				return models.RevenueEvent{Account: v.AccountName(), Kind: models.TransactionDeposit, Amount: 0.005}
			},
		},
		{
			name: "Tribute too small",
			evt: func(_, v, _, _ models.EntityRef) models.RevenueEvent {
				return models.RevenueEvent{Account: v.AccountName(), Kind: models.TransactionDeposit, Amount: 0.05}
			},
		},
		{
			name: "Realm without suzerain",
			evt: func(_, _, free, _ models.EntityRef) models.RevenueEvent {
				return models.RevenueEvent{Account: free.AccountName(), Kind: models.TransactionDeposit, Amount: 100}
			},
		},
		{
			name: "Tribute flow",
			evt: func(_, v, _, _ models.EntityRef) models.RevenueEvent {
				return models.RevenueEvent{Account: v.AccountName(), Kind: models.TransactionDeposit, Amount: 100, Reason: models.TxTypeTributeRefund}
			},
		},
		{
			name: "Unknown realm",
			evt: func(_, _, _, _ models.EntityRef) models.RevenueEvent {
				return models.RevenueEvent{Account: models.RealmRef(uuid.New()).AccountName(), Kind: models.TransactionDeposit, Amount: 100}
			},
		},
		{
			name: "Not an account",
			evt: func(_, _, _, _ models.EntityRef) models.RevenueEvent {
				return models.RevenueEvent{Account: "server", Kind: models.TransactionDeposit, Amount: 100}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.rules)
			suzerain, vassal := env.pair(t, 0.1)
			free := env.world.AddRealm("Corwyn", 0)
			town := env.world.AddSettlement("Redford", vassal.ID, 2, 0)

			if env.mgr.OnRevenue(env.ctx, tt.evt(suzerain, vassal, free, town)) {
				t.Error("OnRevenue() = true, want false")
			}
			if got := env.scheduler.Pending(); got != 0 {
				t.Errorf("scheduled collections = %d, want 0", got)
			}
		})
	}
}

func TestTribute_ResolvesAccountByName(t *testing.T) {
	env := newTestEnv(t, nil)
	env.pair(t, 0.1)

	evt := models.RevenueEvent{Account: "realm-Vessaria", Kind: models.TransactionDeposit, Amount: 40}
	if !env.mgr.OnRevenue(env.ctx, evt) {
		t.Fatal("OnRevenue() = false, want true")
	}
	if got := env.scheduler.Pending(); got != 1 {
		t.Errorf("scheduled collections = %d, want 1", got)
	}
}

func TestTribute_DuplicateEventInsideWindow(t *testing.T) {
	env := newTestEnv(t, nil)
	_, vassal := env.pair(t, 0.1)
	evt := models.RevenueEvent{Account: vassal.AccountName(), Kind: models.TransactionDeposit, Amount: 100}

	if !env.mgr.OnRevenue(env.ctx, evt) {
		t.Fatal("first OnRevenue() = false, want true")
	}
	if env.mgr.OnRevenue(env.ctx, evt) {
		t.Error("duplicate OnRevenue() = true, want false")
	}

	other := evt
	other.Amount = 101
	if !env.mgr.OnRevenue(env.ctx, other) {
		t.Error("OnRevenue() with a different amount = false, want true")
	}
}

func TestTribute_SkippedWhenUnaffordable(t *testing.T) {
	env := newTestEnv(t, nil)
	suzerain, vassal := env.pair(t, 0.1)

	if err := env.world.Deposit(env.ctx, vassal, 100, models.TxTypeRevenue, ""); err != nil {
		t.Fatalf("Deposit() error = %v", err)
	}
	if err := env.world.Withdraw(env.ctx, vassal, 95, models.TxTypeUpkeep, "walls"); err != nil {
		t.Fatalf("Withdraw() error = %v", err)
	}

	env.scheduler.RunAll()

	if got := env.balance(t, vassal); got != 5 {
		t.Errorf("vassal balance = %v, want 5", got)
	}
	if got := env.balance(t, suzerain); got != 0 {
		t.Errorf("suzerain balance = %v, want 0", got)
	}
	if rel, _ := env.engine.Vassalage.Relationship(suzerain.ID, vassal.ID); rel.LastTributeAt != nil {
		t.Error("LastTributeAt set although nothing was paid")
	}
}

func TestTribute_SkippedWhenRelationshipEnds(t *testing.T) {
	env := newTestEnv(t, nil)
	suzerain, vassal := env.pair(t, 0.1)

	if err := env.world.Deposit(env.ctx, vassal, 100, models.TxTypeRevenue, ""); err != nil {
		t.Fatalf("Deposit() error = %v", err)
	}
	if err := env.engine.Vassalage.Release(env.ctx, suzerain.ID, vassal.ID); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	env.scheduler.RunAll()

	if got := env.balance(t, vassal); got != 100 {
		t.Errorf("vassal balance = %v, want 100", got)
	}
}

// failingTreasury refuses deposits into one account.
type failingTreasury struct {
	*world.Memory
	failFor uuid.UUID
}

func (f *failingTreasury) Deposit(ctx context.Context, ref models.EntityRef, amount float64, txType, memo string) error {
	if ref.ID == f.failFor {
		return errors.New(errors.ErrCodeInternalError, "treasury offline")
	}
	return f.Memory.Deposit(ctx, ref, amount, txType, memo)
}

func TestTribute_RefundWhenSuzerainDepositFails(t *testing.T) {
	env := newTestEnv(t, nil)
	suzerain, vassal := env.pair(t, 0.1)
	if err := env.world.Deposit(env.ctx, vassal, 100, models.TxTypeAdmin, "seed"); err != nil {
		t.Fatalf("Deposit() error = %v", err)
	}
	env.scheduler.RunAll()
	vassalStart := env.balance(t, vassal)
	env.now = env.now.Add(time.Hour)

	treasury := &failingTreasury{Memory: env.world, failFor: suzerain.ID}
	rules := config.StaticRules(config.DefaultRules())
	handler := NewTributeHandler(env.engine.Vassalage, env.world, treasury, env.mgr.Dedup, env.scheduler, rules, func() time.Time { return env.now })

	evt := models.RevenueEvent{Account: vassal.AccountName(), Kind: models.TransactionDeposit, Amount: 30}
	if !handler.OnPreTransaction(env.ctx, evt) {
		t.Fatal("OnPreTransaction() = false, want true")
	}
	env.scheduler.RunAll()

	if got := env.balance(t, vassal); math.Abs(got-vassalStart) > 1e-9 {
		t.Errorf("vassal balance after refund = %v, want %v", got, vassalStart)
	}
	if got := env.scheduler.Pending(); got != 0 {
		t.Errorf("refund scheduled %d collections, want 0", got)
	}
	if rel, _ := env.engine.Vassalage.Relationship(suzerain.ID, vassal.ID); rel.LastTributeAt == nil || rel.LastTributeAt.Equal(env.now) {
		t.Errorf("LastTributeAt = %v, want the earlier successful payment", rel.LastTributeAt)
	}
}

func TestTribute_ExactlyOnceUnderConcurrentSweep(t *testing.T) {
	env := newTestEnv(t, nil)
	suzerain, vassal := env.pair(t, 0.1)
	if err := env.world.Deposit(env.ctx, vassal, 100, models.TxTypeAdmin, "seed"); err != nil {
		t.Fatalf("Deposit() error = %v", err)
	}
	env.scheduler.RunAll()
	start := env.balance(t, suzerain)

	evt := models.RevenueEvent{Account: vassal.AccountName(), Kind: models.TransactionDeposit, Amount: 50}
	var scheduled atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if env.mgr.OnRevenue(env.ctx, evt) {
				scheduled.Add(1)
			}
		}()
		go func() {
			defer wg.Done()
			env.mgr.Dedup.Sweep()
		}()
	}
	wg.Wait()

	if got := scheduled.Load(); got != 1 {
		t.Fatalf("scheduled collections = %d, want 1", got)
	}
	env.scheduler.RunAll()
	if got := env.balance(t, suzerain) - start; math.Abs(got-5) > 1e-9 {
		t.Errorf("suzerain received %v, want 5", got)
	}
}

func TestTribute_DedupWindowFollowsReload(t *testing.T) {
	source := &swappableRules{}
	source.current.Store(config.DefaultRules())
	env := newTestEnvWithSource(t, source)
	_, vassal := env.pair(t, 0.1)

	evt := models.RevenueEvent{Account: vassal.AccountName(), Kind: models.TransactionDeposit, Amount: 40}
	if !env.mgr.OnRevenue(env.ctx, evt) {
		t.Fatal("first OnRevenue() = false, want true")
	}

	env.now = env.now.Add(2 * time.Second)
	if env.mgr.OnRevenue(env.ctx, evt) {
		t.Error("OnRevenue() inside the 5s window = true, want false")
	}

	reloaded := *config.DefaultRules()
	reloaded.Tribute.DedupWindow = time.Second
	source.current.Store(&reloaded)

	if !env.mgr.OnRevenue(env.ctx, evt) {
		t.Error("OnRevenue() after the window shrank to 1s = false, want true")
	}
	if got := env.scheduler.Pending(); got != 2 {
		t.Errorf("scheduled collections = %d, want 2", got)
	}
}
