package services

import (
	"context"
	"math"

	"github.com/mroshb/statecraft/internal/config"
	"github.com/mroshb/statecraft/internal/models"
	"github.com/mroshb/statecraft/pkg/logger"
)

// Growth computes the daily Authority and Decadence deltas of an entity.
type Growth struct {
	ledger      *Ledger
	governments *GovernmentRegistry
	policies    *PolicyService
	dir         Directory
	rules       config.RulesSource
}

func NewGrowth(ledger *Ledger, governments *GovernmentRegistry, policies *PolicyService, dir Directory, rules config.RulesSource) *Growth {
	return &Growth{
		ledger:      ledger,
		governments: governments,
		policies:    policies,
		dir:         dir,
		rules:       rules,
	}
}

// PopulationCurve scales base by resident count: linear in small settlements,
// logarithmic past ten residents.
func PopulationCurve(residents int, base, maxGain float64) float64 {
	n := float64(residents)
	switch {
	case residents <= 0:
		return 0
	case residents == 1:
		return base
	case residents <= 5:
		return base + (n-1)*0.125*base
	case residents <= 10:
		return 1.5*base + (n-5)*0.1*base
	default:
		return math.Min(maxGain, 2*base+math.Log10(n/10)*2*base)
	}
}

// DailyAuthorityGain is the Authority an entity earns on the next tick.
// Unknown entities earn nothing.
func (g *Growth) DailyAuthorityGain(ctx context.Context, ref models.EntityRef) float64 {
	entity, ok := g.dir.Lookup(ctx, ref)
	if !ok {
		logger.Debug("Authority gain skipped for unknown entity", "entity", ref.String())
		return 0
	}

	rules := g.rules.Current()
	curve := rules.Authority.Curve(ref.Kind)

	gain := PopulationCurve(entity.Residents, curve.BaseGain, curve.MaxDailyGain)
	gain *= g.governments.Mode(ref).Traits().AuthorityModifier
	gain *= g.ledger.DecadenceEffects(ref).AuthorityGain
	gain *= g.policies.CombinedEffects(ref).AuthorityGain
	if ref.Kind == models.EntityKindSettlement && entity.HasRealm() {
		gain *= 1 + rules.Authority.RealmBonus
	}

	return clamp(gain, curve.MinDailyGain, curve.MaxDailyGain)
}

// DailyDecadenceGain is the Decadence an entity accrues on the next tick.
func (g *Growth) DailyDecadenceGain(ctx context.Context, ref models.EntityRef) float64 {
	if _, ok := g.dir.Lookup(ctx, ref); !ok {
		logger.Debug("Decadence gain skipped for unknown entity", "entity", ref.String())
		return 0
	}

	gain := g.rules.Current().Decadence.BaseGain(ref.Kind)
	gain *= g.governments.Mode(ref).Traits().DecadenceModifier
	gain *= g.policies.CombinedEffects(ref).DecadenceGain
	return math.Max(0, gain)
}
