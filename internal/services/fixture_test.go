package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/mroshb/statecraft/internal/config"
	"github.com/mroshb/statecraft/internal/models"
	"github.com/mroshb/statecraft/internal/repositories/sqlitestore"
	"github.com/mroshb/statecraft/internal/services"
	"github.com/mroshb/statecraft/internal/world"
)

type fixture struct {
	ctx    context.Context
	now    time.Time
	world  *world.Memory
	store  *sqlitestore.Store
	rules  config.RulesSource
	engine *services.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := sqlitestore.Open(":memory:")
	if err != nil {
		t.Fatalf("sqlitestore.Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		ctx:   context.Background(),
		now:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		world: world.NewMemory(),
		store: store,
		rules: config.StaticRules(config.DefaultRules()),
	}
	f.engine = f.newEngine(t)
	return f
}

// newEngine builds an engine over the fixture's store and world, as a restart would.
func (f *fixture) newEngine(t *testing.T) *services.Engine {
	t.Helper()
	engine := services.NewEngine(services.Stores{
		Entities:  f.store,
		Policies:  f.store,
		Vassalage: f.store,
	}, f.world, f.rules, f.clock)
	if err := engine.Policies.SetCatalogue(testPolicies()); err != nil {
		t.Fatalf("SetCatalogue() error = %v", err)
	}
	if err := engine.Load(f.ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return engine
}

func (f *fixture) clock() time.Time {
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) setAuthority(t *testing.T, ref models.EntityRef, amount float64) {
	t.Helper()
	if err := f.engine.Ledger.SetAuthority(f.ctx, ref, amount); err != nil {
		t.Fatalf("SetAuthority() error = %v", err)
	}
}

func (f *fixture) setDecadence(t *testing.T, ref models.EntityRef, amount float64) {
	t.Helper()
	if err := f.engine.Ledger.SetDecadence(f.ctx, ref, amount); err != nil {
		t.Fatalf("SetDecadence() error = %v", err)
	}
}

// vassalize forms a relationship through an accepted offer.
func (f *fixture) vassalize(t *testing.T, suzerain, vassal models.EntityRef, rate float64) *models.VassalageRelationship {
	t.Helper()
	offer, err := f.engine.Vassalage.CreateOffer(f.ctx, suzerain.ID, vassal.ID, rate)
	if err != nil {
		t.Fatalf("CreateOffer() error = %v", err)
	}
	rel, err := f.engine.Vassalage.AcceptOffer(f.ctx, offer.ID, vassal.ID)
	if err != nil {
		t.Fatalf("AcceptOffer() error = %v", err)
	}
	return rel
}

func testPolicies() []models.Policy {
	return []models.Policy{
		{
			ID:           "royal_levy",
			Name:         "Royal Levy",
			Cost:         20,
			DurationDays: 7,
			MinAuthority: 10,
			MaxDecadence: 80,
			Effects:      models.NewEffects(func(e *models.PolicyEffects) { e.Tax, e.DecadenceGain = 1.2, 1.1 }),
		},
		{
			ID:           "war_chest",
			Name:         "War Chest",
			Cost:         10,
			DurationDays: 3,
			MaxDecadence: 100,
			Effects:      models.NewEffects(func(e *models.PolicyEffects) { e.AuthorityGain, e.Tax = 1.5, 1.1 }),
		},
		{
			ID:                 "divine_mandate",
			Name:               "Divine Mandate",
			Cost:               30,
			DurationDays:       models.PermanentDuration,
			MaxDecadence:       100,
			AllowedGovernments: []models.GovernmentMode{models.GovernmentTheocracy},
		},
		{
			ID:                 "village_moot",
			Name:               "Village Moot",
			Cost:               5,
			DurationDays:       models.PermanentDuration,
			MaxDecadence:       100,
			AllowedGovernments: []models.GovernmentMode{models.GovernmentTribal},
			SettlementOnly:     true,
			Effects:            models.NewEffects(func(e *models.PolicyEffects) { e.DecadenceGain = 0.5 }),
		},
	}
}
