package services

import (
	"context"
	"time"

	"github.com/mroshb/statecraft/internal/config"
	"github.com/mroshb/statecraft/internal/models"
	"github.com/mroshb/statecraft/pkg/errors"
)

// Stores groups the persistence backends of the political state.
type Stores struct {
	Entities  EntityStore
	Policies  PolicyStore
	Vassalage VassalageStore
}

// Engine wires the simulation services together. It is not safe for
// concurrent use; callers serialise access.
type Engine struct {
	Ledger      *Ledger
	Growth      *Growth
	Governments *GovernmentRegistry
	Government  *GovernmentService
	Policies    *PolicyService
	Vassalage   *VassalageService
	Taxation    *TaxationService
	Tick        *DailyTick

	dir   Directory
	store EntityStore
}

func NewEngine(stores Stores, dir Directory, rules config.RulesSource, now Clock) *Engine {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	ledger := NewLedger(stores.Entities, rules)
	governments := NewGovernmentRegistry(stores.Entities)
	policies := NewPolicyService(stores.Policies, ledger, governments, rules, now)
	vassalage := NewVassalageService(stores.Vassalage, ledger, governments, dir, rules, now)
	growth := NewGrowth(ledger, governments, policies, dir, rules)

	return &Engine{
		Ledger:      ledger,
		Growth:      growth,
		Governments: governments,
		Government:  NewGovernmentService(governments, rules, now, vassalage),
		Policies:    policies,
		Vassalage:   vassalage,
		Taxation:    NewTaxationService(ledger, dir),
		Tick:        NewDailyTick(ledger, growth, policies, vassalage, dir, stores.Entities),
		dir:         dir,
		store:       stores.Entities,
	}
}

// Load reads all persisted state. The policy catalogue must be set first.
func (e *Engine) Load(ctx context.Context) error {
	if err := e.Ledger.Load(ctx); err != nil {
		return err
	}
	if err := e.Governments.Load(ctx); err != nil {
		return err
	}
	if err := e.Policies.Load(ctx); err != nil {
		return err
	}
	return e.Vassalage.Load(ctx)
}

// Flush asks the entity store to write anything it buffers.
func (e *Engine) Flush(ctx context.Context) error {
	if err := e.store.SaveAll(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to flush entity store")
	}
	return nil
}

func (e *Engine) Directory() Directory {
	return e.dir
}

// Status is a read-only snapshot of one entity.
type Status struct {
	Entity              Entity
	Authority           float64
	MaxAuthority        float64
	DailyAuthorityGain  float64
	Decadence           float64
	DailyDecadenceGain  float64
	DecadenceLevel      models.DecadenceLevel
	DecadenceEffects    models.DecadenceEffects
	Government          models.GovernmentMode
	GovernmentChangedAt time.Time
	GovernmentCooldown  time.Duration
	PolicyCooldown      time.Duration
	Policies            []models.ActivePolicy
	Effects             models.PolicyEffects
	Suzerain            *models.VassalageRelationship
	Vassals             []models.VassalageRelationship
	OffersReceived      []models.VassalageOffer
	OffersMade          []models.VassalageOffer
}

// Status gathers everything known about an entity.
func (e *Engine) Status(ctx context.Context, ref models.EntityRef) (*Status, error) {
	if err := ref.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "invalid entity")
	}
	entity, ok := e.dir.Lookup(ctx, ref)
	if !ok {
		return nil, errors.Newf(errors.ErrCodeUnknownEntity, "%s does not exist", ref)
	}

	government := e.Governments.State(ref)
	status := &Status{
		Entity:              entity,
		Authority:           e.Ledger.Authority(ref),
		MaxAuthority:        e.Ledger.MaxAuthority(ref.Kind),
		DailyAuthorityGain:  e.Growth.DailyAuthorityGain(ctx, ref),
		Decadence:           e.Ledger.Decadence(ref),
		DailyDecadenceGain:  e.Growth.DailyDecadenceGain(ctx, ref),
		DecadenceLevel:      e.Ledger.DecadenceLevel(ref),
		DecadenceEffects:    e.Ledger.DecadenceEffects(ref),
		Government:          government.Mode,
		GovernmentChangedAt: government.ChangedAt,
		GovernmentCooldown:  e.Government.CooldownRemaining(ref),
		PolicyCooldown:      e.Policies.CooldownRemaining(ref),
		Policies:            e.Policies.ActivePolicies(ref),
		Effects:             e.Policies.CombinedEffects(ref),
	}

	if ref.IsRealm() {
		if rel, ok := e.Vassalage.Suzerain(ref.ID); ok {
			status.Suzerain = &rel
		}
		status.Vassals = e.Vassalage.Vassals(ref.ID)
		status.OffersReceived = e.Vassalage.OffersTo(ref.ID)
		status.OffersMade = e.Vassalage.OffersFrom(ref.ID)
	}
	return status, nil
}
