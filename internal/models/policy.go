package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PermanentDuration marks a policy that never expires.
const PermanentDuration = -1

// PolicyEffects is a bundle of independent multipliers. 1.0 is neutral.
type PolicyEffects struct {
	Tax              float64 `mapstructure:"tax" yaml:"tax"`
	Trade            float64 `mapstructure:"trade" yaml:"trade"`
	Economy          float64 `mapstructure:"economy" yaml:"economy"`
	AuthorityGain    float64 `mapstructure:"authority_gain" yaml:"authority_gain"`
	DecadenceGain    float64 `mapstructure:"decadence_gain" yaml:"decadence_gain"`
	ResourceOutput   float64 `mapstructure:"resource_output" yaml:"resource_output"`
	Spending         float64 `mapstructure:"spending" yaml:"spending"`
	Upkeep           float64 `mapstructure:"upkeep" yaml:"upkeep"`
	PlotCost         float64 `mapstructure:"plot_cost" yaml:"plot_cost"`
	PlotTax          float64 `mapstructure:"plot_tax" yaml:"plot_tax"`
	TownBlockCost    float64 `mapstructure:"town_block_cost" yaml:"town_block_cost"`
	TownBlockBonus   float64 `mapstructure:"town_block_bonus" yaml:"town_block_bonus"`
	ResidentCapacity float64 `mapstructure:"resident_capacity" yaml:"resident_capacity"`
}

func NeutralEffects() PolicyEffects {
	return PolicyEffects{
		Tax: 1, Trade: 1, Economy: 1, AuthorityGain: 1, DecadenceGain: 1,
		ResourceOutput: 1, Spending: 1, Upkeep: 1, PlotCost: 1, PlotTax: 1,
		TownBlockCost: 1, TownBlockBonus: 1, ResidentCapacity: 1,
	}
}

// Combine multiplies every field of e by the matching field of o.
func (e PolicyEffects) Combine(o PolicyEffects) PolicyEffects {
	return PolicyEffects{
		Tax:              e.Tax * o.Tax,
		Trade:            e.Trade * o.Trade,
		Economy:          e.Economy * o.Economy,
		AuthorityGain:    e.AuthorityGain * o.AuthorityGain,
		DecadenceGain:    e.DecadenceGain * o.DecadenceGain,
		ResourceOutput:   e.ResourceOutput * o.ResourceOutput,
		Spending:         e.Spending * o.Spending,
		Upkeep:           e.Upkeep * o.Upkeep,
		PlotCost:         e.PlotCost * o.PlotCost,
		PlotTax:          e.PlotTax * o.PlotTax,
		TownBlockCost:    e.TownBlockCost * o.TownBlockCost,
		TownBlockBonus:   e.TownBlockBonus * o.TownBlockBonus,
		ResidentCapacity: e.ResidentCapacity * o.ResidentCapacity,
	}
}

// NewEffects starts from neutral and applies set, so callers only name the
// multipliers they change.
func NewEffects(set func(e *PolicyEffects)) PolicyEffects {
	e := NeutralEffects()
	if set != nil {
		set(&e)
	}
	return e
}

// OrNeutral treats an all-zero bundle as "no effects". A bundle with any
// field set is kept as is, so 0 stays a real multiplier.
func (e PolicyEffects) OrNeutral() PolicyEffects {
	if e == (PolicyEffects{}) {
		return NeutralEffects()
	}
	return e
}

func (e PolicyEffects) values() []float64 {
	return []float64{
		e.Tax, e.Trade, e.Economy, e.AuthorityGain, e.DecadenceGain,
		e.ResourceOutput, e.Spending, e.Upkeep, e.PlotCost, e.PlotTax,
		e.TownBlockCost, e.TownBlockBonus, e.ResidentCapacity,
	}
}

// Policy is an immutable catalogue entry.
type Policy struct {
	ID                 string           `mapstructure:"id" yaml:"id"`
	Name               string           `mapstructure:"name" yaml:"name"`
	Description        string           `mapstructure:"description" yaml:"description"`
	Cost               float64          `mapstructure:"cost" yaml:"cost"`
	DurationDays       int              `mapstructure:"duration_days" yaml:"duration_days"`
	MinAuthority       float64          `mapstructure:"min_authority" yaml:"min_authority"`
	MaxDecadence       float64          `mapstructure:"max_decadence" yaml:"max_decadence"`
	AllowedGovernments []GovernmentMode `mapstructure:"allowed_governments" yaml:"allowed_governments"`
	SettlementOnly     bool             `mapstructure:"settlement_only" yaml:"settlement_only"`
	Effects            PolicyEffects    `mapstructure:"effects" yaml:"effects"`
}

func (p Policy) IsPermanent() bool {
	return p.DurationDays == PermanentDuration
}

// AllowsGovernment reports whether mode may enact the policy. An empty list allows all modes.
func (p Policy) AllowsGovernment(mode GovernmentMode) bool {
	if len(p.AllowedGovernments) == 0 {
		return true
	}
	for _, allowed := range p.AllowedGovernments {
		if allowed == mode {
			return true
		}
	}
	return false
}

// AvailableTo reports whether the entity kind matches the catalogue the policy belongs to.
func (p Policy) AvailableTo(kind EntityKind) bool {
	if p.SettlementOnly {
		return kind == EntityKindSettlement
	}
	return kind == EntityKindRealm
}

func (p Policy) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("policy id is required")
	}
	if p.Cost < 0 {
		return fmt.Errorf("policy %s: cost cannot be negative", p.ID)
	}
	if p.DurationDays == 0 || p.DurationDays < PermanentDuration {
		return fmt.Errorf("policy %s: duration_days must be positive or %d", p.ID, PermanentDuration)
	}
	if p.MaxDecadence < 0 || p.MaxDecadence > MaxDecadence {
		return fmt.Errorf("policy %s: max_decadence must be within [0, %v]", p.ID, MaxDecadence)
	}
	for _, v := range p.Effects.values() {
		if v < 0 {
			return fmt.Errorf("policy %s: effect multipliers cannot be negative", p.ID)
		}
	}
	for _, mode := range p.AllowedGovernments {
		if !mode.Valid() {
			return fmt.Errorf("policy %s: unknown government mode %q", p.ID, mode)
		}
	}
	return nil
}

// ActivePolicy is an enacted policy. A nil ExpiresAt means permanent.
type ActivePolicy struct {
	ID        uuid.UUID  `gorm:"type:varchar(36);primaryKey"`
	PolicyID  string     `gorm:"type:varchar(100);not null;index"`
	EntityID  uuid.UUID  `gorm:"type:varchar(36);not null;index:idx_active_policy_entity"`
	IsRealm   bool       `gorm:"not null;index:idx_active_policy_entity"`
	EnactedAt time.Time  `gorm:"not null"`
	ExpiresAt *time.Time `gorm:"index"`
}

func (ActivePolicy) TableName() string {
	return "active_policies"
}

// NewActivePolicy stamps the expiry from the policy duration.
func NewActivePolicy(policy Policy, entity EntityRef, now time.Time) *ActivePolicy {
	active := &ActivePolicy{
		ID:        uuid.New(),
		PolicyID:  policy.ID,
		EntityID:  entity.ID,
		IsRealm:   entity.IsRealm(),
		EnactedAt: now,
	}
	if !policy.IsPermanent() {
		expires := now.AddDate(0, 0, policy.DurationDays)
		active.ExpiresAt = &expires
	}
	return active
}

func (a *ActivePolicy) Entity() EntityRef {
	if a.IsRealm {
		return RealmRef(a.EntityID)
	}
	return SettlementRef(a.EntityID)
}

func (a *ActivePolicy) IsPermanent() bool {
	return a.ExpiresAt == nil
}

func (a *ActivePolicy) IsExpired(now time.Time) bool {
	return a.ExpiresAt != nil && !now.Before(*a.ExpiresAt)
}

// Remaining is the time left before expiry, or -1 for permanent policies.
func (a *ActivePolicy) Remaining(now time.Time) time.Duration {
	if a.ExpiresAt == nil {
		return -1
	}
	if d := a.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
