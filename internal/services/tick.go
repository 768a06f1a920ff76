package services

import (
	"context"
	"time"

	"github.com/mroshb/statecraft/internal/models"
	"github.com/mroshb/statecraft/pkg/logger"
)

type TickReport struct {
	Entities        int
	Penalised       int
	ExpiredPolicies int
	ReleasedVassals int
	ExpiredOffers   int
	Duration        time.Duration
}

// DailyTick advances the simulation by one day. Phases run across all
// entities in order: Authority, Decadence, policy expiry, vassalage.
type DailyTick struct {
	ledger    *Ledger
	growth    *Growth
	policies  *PolicyService
	vassalage *VassalageService
	dir       Directory
	store     EntityStore
}

func NewDailyTick(ledger *Ledger, growth *Growth, policies *PolicyService, vassalage *VassalageService, dir Directory, store EntityStore) *DailyTick {
	return &DailyTick{
		ledger:    ledger,
		growth:    growth,
		policies:  policies,
		vassalage: vassalage,
		dir:       dir,
		store:     store,
	}
}

func (t *DailyTick) Run(ctx context.Context) TickReport {
	started := time.Now()

	var entities []models.EntityRef
	for _, e := range t.dir.Settlements(ctx) {
		entities = append(entities, e.Ref)
	}
	for _, e := range t.dir.Realms(ctx) {
		entities = append(entities, e.Ref)
	}
	report := TickReport{Entities: len(entities)}

	// Decadence penalties are a share of the Authority held when the day began.
	opening := make(map[models.EntityRef]float64, len(entities))
	for _, ref := range entities {
		opening[ref] = t.ledger.Authority(ref)
	}

	for _, ref := range entities {
		if gain := t.growth.DailyAuthorityGain(ctx, ref); gain > 0 {
			_ = t.ledger.AddAuthority(ctx, ref, gain)
		}
	}

	for _, ref := range entities {
		before := t.ledger.DecadenceLevel(ref)
		if gain := t.growth.DailyDecadenceGain(ctx, ref); gain > 0 {
			_ = t.ledger.AddDecadence(ctx, ref, gain)
		}
		after := t.ledger.DecadenceLevel(ref)
		if after <= before && after < models.DecadenceHigh {
			continue
		}
		penalty := opening[ref] * models.DecadenceEffectsFor(after).AuthorityPenalty
		if penalty > 0 && t.ledger.RemoveAuthority(ctx, ref, penalty) {
			report.Penalised++
			logger.Info("Decadence penalty applied", "entity", ref.String(), "level", after.String(), "penalty", penalty)
		}
	}

	report.ExpiredPolicies = t.policies.SweepExpired(ctx)
	report.ReleasedVassals = t.vassalage.ProcessMaintenance(ctx)
	report.ExpiredOffers = t.vassalage.SweepExpiredOffers(ctx)

	if err := t.store.SaveAll(ctx); err != nil {
		logger.Warn("Failed to flush entity store", "error", err)
	}

	report.Duration = time.Since(started)
	logger.Info("Daily tick completed",
		"entities", report.Entities,
		"penalised", report.Penalised,
		"expired_policies", report.ExpiredPolicies,
		"released_vassals", report.ReleasedVassals,
		"expired_offers", report.ExpiredOffers,
		"duration", report.Duration)
	return report
}
