package services

import (
	"context"
	"math"

	"github.com/mroshb/statecraft/internal/config"
	"github.com/mroshb/statecraft/internal/models"
	"github.com/mroshb/statecraft/pkg/errors"
	"github.com/mroshb/statecraft/pkg/logger"
)

// Ledger owns the Authority and Decadence of every entity. The in-memory maps
// are authoritative; every mutation is written through to the store and a
// failed write is logged, never rolled back.
type Ledger struct {
	store     EntityStore
	rules     config.RulesSource
	authority map[models.EntityRef]float64
	decadence map[models.EntityRef]float64
}

func NewLedger(store EntityStore, rules config.RulesSource) *Ledger {
	return &Ledger{
		store:     store,
		rules:     rules,
		authority: make(map[models.EntityRef]float64),
		decadence: make(map[models.EntityRef]float64),
	}
}

// Load replaces the cached values with the stored ones.
func (l *Ledger) Load(ctx context.Context) error {
	authority := make(map[models.EntityRef]float64)
	decadence := make(map[models.EntityRef]float64)

	for _, kind := range []models.EntityKind{models.EntityKindSettlement, models.EntityKindRealm} {
		amounts, err := l.store.LoadAllAuthority(ctx, kind)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternalError, "failed to load authority")
		}
		for id, amount := range amounts {
			ref := models.EntityRef{ID: id, Kind: kind}
			authority[ref] = clamp(amount, 0, l.MaxAuthority(kind))
		}

		amounts, err = l.store.LoadAllDecadence(ctx, kind)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternalError, "failed to load decadence")
		}
		for id, amount := range amounts {
			decadence[models.EntityRef{ID: id, Kind: kind}] = clamp(amount, 0, models.MaxDecadence)
		}
	}

	l.authority = authority
	l.decadence = decadence
	logger.Info("Ledger loaded", "authority_entries", len(authority), "decadence_entries", len(decadence))
	return nil
}

// MaxAuthority is the Authority ceiling of the entity kind.
func (l *Ledger) MaxAuthority(kind models.EntityKind) float64 {
	return l.rules.Current().Authority.Curve(kind).Max
}

func (l *Ledger) Authority(ref models.EntityRef) float64 {
	return l.authority[ref]
}

// SetAuthority clamps amount to [0, max] and persists it.
func (l *Ledger) SetAuthority(ctx context.Context, ref models.EntityRef, amount float64) error {
	if err := validateAmount(ref, amount); err != nil {
		return err
	}
	value := clamp(amount, 0, l.MaxAuthority(ref.Kind))
	l.authority[ref] = value
	if err := l.store.SaveAuthority(ctx, ref, value); err != nil {
		logger.Warn("Failed to persist authority", "entity", ref.String(), "amount", value, "error", err)
	}
	return nil
}

func (l *Ledger) AddAuthority(ctx context.Context, ref models.EntityRef, amount float64) error {
	return l.SetAuthority(ctx, ref, l.Authority(ref)+amount)
}

// RemoveAuthority debits amount. It returns false and changes nothing when the
// entity holds less than amount.
func (l *Ledger) RemoveAuthority(ctx context.Context, ref models.EntityRef, amount float64) bool {
	if validateAmount(ref, amount) != nil || amount < 0 {
		return false
	}
	current := l.Authority(ref)
	if current < amount {
		return false
	}
	return l.SetAuthority(ctx, ref, current-amount) == nil
}

func (l *Ledger) Decadence(ref models.EntityRef) float64 {
	return l.decadence[ref]
}

// SetDecadence clamps amount to [0, 100] and persists it.
func (l *Ledger) SetDecadence(ctx context.Context, ref models.EntityRef, amount float64) error {
	if err := validateAmount(ref, amount); err != nil {
		return err
	}
	value := clamp(amount, 0, models.MaxDecadence)
	l.decadence[ref] = value
	if err := l.store.SaveDecadence(ctx, ref, value); err != nil {
		logger.Warn("Failed to persist decadence", "entity", ref.String(), "amount", value, "error", err)
	}
	return nil
}

func (l *Ledger) AddDecadence(ctx context.Context, ref models.EntityRef, amount float64) error {
	return l.SetDecadence(ctx, ref, l.Decadence(ref)+amount)
}

func (l *Ledger) ReduceDecadence(ctx context.Context, ref models.EntityRef, amount float64) error {
	return l.SetDecadence(ctx, ref, l.Decadence(ref)-amount)
}

func (l *Ledger) DecadenceLevel(ref models.EntityRef) models.DecadenceLevel {
	return l.rules.Current().Decadence.Thresholds.Level(l.Decadence(ref))
}

func (l *Ledger) DecadenceEffects(ref models.EntityRef) models.DecadenceEffects {
	return models.DecadenceEffectsFor(l.DecadenceLevel(ref))
}

// DecadenceReductionCost is the Authority needed to remove amount of Decadence.
func (l *Ledger) DecadenceReductionCost(amount float64) float64 {
	return amount * l.rules.Current().Decadence.AuthorityCostRate
}

// ReduceDecadenceWithAuthority buys down Decadence. Only the Decadence actually
// present is charged for.
func (l *Ledger) ReduceDecadenceWithAuthority(ctx context.Context, ref models.EntityRef, amount float64) error {
	if err := validateAmount(ref, amount); err != nil {
		return err
	}
	if amount <= 0 {
		return errors.New(errors.ErrCodeValidation, "reduction must be positive")
	}
	amount = math.Min(amount, l.Decadence(ref))
	if amount == 0 {
		return errors.New(errors.ErrCodeValidationFailed, "entity has no decadence to reduce")
	}

	cost := l.DecadenceReductionCost(amount)
	if !l.RemoveAuthority(ctx, ref, cost) {
		return errors.Newf(errors.ErrCodeInsufficientAuthority, "reducing decadence by %.1f costs %.1f authority, have %.1f", amount, cost, l.Authority(ref))
	}
	if err := l.ReduceDecadence(ctx, ref, amount); err != nil {
		return err
	}

	logger.Info("Decadence reduced with authority", "entity", ref.String(), "amount", amount, "cost", cost)
	return nil
}

func validateAmount(ref models.EntityRef, amount float64) error {
	if err := ref.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrCodeValidation, "invalid entity")
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return errors.New(errors.ErrCodeValidation, "amount must be a finite number")
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
