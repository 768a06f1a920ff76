package services

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mroshb/statecraft/internal/config"
	"github.com/mroshb/statecraft/internal/models"
	"github.com/mroshb/statecraft/pkg/errors"
	"github.com/mroshb/statecraft/pkg/logger"
)

// PolicyService owns the policy catalogue and the policies each entity has in force.
type PolicyService struct {
	store       PolicyStore
	ledger      *Ledger
	governments *GovernmentRegistry
	rules       config.RulesSource
	now         Clock

	catalogue  map[string]models.Policy
	order      []string
	active     map[models.EntityRef]map[uuid.UUID]*models.ActivePolicy
	lastChange map[models.EntityRef]time.Time
}

func NewPolicyService(store PolicyStore, ledger *Ledger, governments *GovernmentRegistry, rules config.RulesSource, now Clock) *PolicyService {
	return &PolicyService{
		store:       store,
		ledger:      ledger,
		governments: governments,
		rules:       rules,
		now:         now,
		catalogue:   make(map[string]models.Policy),
		active:      make(map[models.EntityRef]map[uuid.UUID]*models.ActivePolicy),
		lastChange:  make(map[models.EntityRef]time.Time),
	}
}

// SetCatalogue replaces the catalogue. Active policies whose definition
// disappears stay in force with neutral effects until they expire.
func (s *PolicyService) SetCatalogue(policies []models.Policy) error {
	normalized, err := config.NormalizePolicies(policies)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeValidation, "invalid policy catalogue")
	}
	catalogue := make(map[string]models.Policy, len(normalized))
	order := make([]string, 0, len(normalized))
	for _, p := range normalized {
		catalogue[p.ID] = p
		order = append(order, p.ID)
	}
	s.catalogue = catalogue
	s.order = order
	return nil
}

// Load reads active policies, dropping the ones that already expired. The
// policy-change cooldown resumes from each entity's latest recorded change or
// enactment, whichever is later.
func (s *PolicyService) Load(ctx context.Context) error {
	policies, err := s.store.LoadActivePolicies(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to load active policies")
	}
	changes, err := s.store.LoadPolicyChanges(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to load policy changes")
	}

	s.active = make(map[models.EntityRef]map[uuid.UUID]*models.ActivePolicy)
	s.lastChange = changes
	now := s.now()
	for i := range policies {
		p := policies[i]
		ref := p.Entity()
		if p.EnactedAt.After(s.lastChange[ref]) {
			s.lastChange[ref] = p.EnactedAt
		}
		if p.IsExpired(now) {
			s.removeStored(ctx, p.ID)
			continue
		}
		s.put(&p)
	}
	return nil
}

func (s *PolicyService) Catalogue(kind models.EntityKind) []models.Policy {
	var out []models.Policy
	for _, id := range s.order {
		if p := s.catalogue[id]; p.AvailableTo(kind) {
			out = append(out, p)
		}
	}
	return out
}

func (s *PolicyService) Definition(policyID string) (models.Policy, bool) {
	p, ok := s.catalogue[policyID]
	return p, ok
}

// ActivePolicies lists the unexpired policies of the entity, oldest first.
func (s *PolicyService) ActivePolicies(ref models.EntityRef) []models.ActivePolicy {
	now := s.now()
	var out []models.ActivePolicy
	for _, p := range s.active[ref] {
		if !p.IsExpired(now) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EnactedAt.Equal(out[j].EnactedAt) {
			return out[i].PolicyID < out[j].PolicyID
		}
		return out[i].EnactedAt.Before(out[j].EnactedAt)
	})
	return out
}

// CombinedEffects multiplies the effects of every unexpired policy of the entity.
func (s *PolicyService) CombinedEffects(ref models.EntityRef) models.PolicyEffects {
	effects := models.NeutralEffects()
	now := s.now()
	for _, p := range s.active[ref] {
		if p.IsExpired(now) {
			continue
		}
		def, ok := s.catalogue[p.PolicyID]
		if !ok {
			continue
		}
		effects = effects.Combine(def.Effects)
	}
	return effects
}

func (s *PolicyService) IsOnCooldown(ref models.EntityRef) bool {
	return s.CooldownRemaining(ref) > 0
}

func (s *PolicyService) CooldownRemaining(ref models.EntityRef) time.Duration {
	last, ok := s.lastChange[ref]
	if !ok {
		return 0
	}
	remaining := s.rules.Current().Policies.Cooldown - s.now().Sub(last)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// PolicyCost is what the entity would pay for the policy under its current government.
func (s *PolicyService) PolicyCost(ref models.EntityRef, policy models.Policy) float64 {
	return policy.Cost * s.governments.Mode(ref).Traits().PolicyCostModifier
}

// Enact puts a catalogue policy in force for the entity and debits its cost.
func (s *PolicyService) Enact(ctx context.Context, ref models.EntityRef, policyID string) (*models.ActivePolicy, error) {
	if err := ref.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "invalid entity")
	}
	policy, ok := s.catalogue[policyID]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeNotFound, "unknown policy %q", policyID)
	}
	if !policy.AvailableTo(ref.Kind) {
		return nil, errors.Newf(errors.ErrCodeIneligibleEntity, "%s is not available to a %s", policy.Name, ref.Kind)
	}
	if s.IsOnCooldown(ref) {
		return nil, errors.Newf(errors.ErrCodeCooldownActive, "policies can change again in %s", FormatCooldown(s.CooldownRemaining(ref)))
	}
	if authority := s.ledger.Authority(ref); authority < policy.MinAuthority {
		return nil, errors.Newf(errors.ErrCodeInsufficientAuthority, "%s needs %.0f authority, have %.1f", policy.Name, policy.MinAuthority, authority)
	}
	if decadence := s.ledger.Decadence(ref); decadence > policy.MaxDecadence {
		return nil, errors.Newf(errors.ErrCodeDecadenceTooHigh, "%s allows at most %.0f decadence, have %.1f", policy.Name, policy.MaxDecadence, decadence)
	}
	mode := s.governments.Mode(ref)
	if !policy.AllowsGovernment(mode) {
		return nil, errors.Newf(errors.ErrCodeIncompatibleGovernment, "%s cannot be enacted under %s", policy.Name, mode)
	}
	for _, p := range s.ActivePolicies(ref) {
		if p.PolicyID == policyID {
			return nil, errors.Newf(errors.ErrCodeAlreadyExists, "%s is already in force", policy.Name)
		}
	}

	cost := s.PolicyCost(ref, policy)
	if !s.ledger.RemoveAuthority(ctx, ref, cost) {
		return nil, errors.Newf(errors.ErrCodeInsufficientAuthority, "%s costs %.1f authority, have %.1f", policy.Name, cost, s.ledger.Authority(ref))
	}

	now := s.now()
	active := models.NewActivePolicy(policy, ref, now)
	s.put(active)
	s.markChanged(ctx, ref, now)
	if err := s.store.SaveActivePolicy(ctx, active); err != nil {
		logger.Warn("Failed to persist active policy", "entity", ref.String(), "policy", policyID, "error", err)
	}

	logger.Info("Policy enacted", "entity", ref.String(), "policy", policyID, "cost", cost, "permanent", active.IsPermanent())
	copied := *active
	return &copied, nil
}

// Revoke ends an active policy early. There is no refund.
func (s *PolicyService) Revoke(ctx context.Context, ref models.EntityRef, activeID uuid.UUID) error {
	if err := ref.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrCodeValidation, "invalid entity")
	}
	active, ok := s.active[ref][activeID]
	if !ok || active.IsExpired(s.now()) {
		return errors.New(errors.ErrCodePolicyNotActive, "policy is not active for this entity")
	}
	if s.IsOnCooldown(ref) {
		return errors.Newf(errors.ErrCodeCooldownActive, "policies can change again in %s", FormatCooldown(s.CooldownRemaining(ref)))
	}

	s.remove(ctx, ref, activeID)
	s.markChanged(ctx, ref, s.now())
	logger.Info("Policy revoked", "entity", ref.String(), "policy", active.PolicyID)
	return nil
}

// SweepExpired removes every policy past its expiry and returns how many went.
func (s *PolicyService) SweepExpired(ctx context.Context) int {
	now := s.now()
	removed := 0
	for ref, policies := range s.active {
		for id, p := range policies {
			if p.IsExpired(now) {
				s.remove(ctx, ref, id)
				logger.Info("Policy expired", "entity", ref.String(), "policy", p.PolicyID)
				removed++
			}
		}
	}
	return removed
}

// RemoveAllForEntity drops every policy of a deleted entity.
func (s *PolicyService) RemoveAllForEntity(ctx context.Context, ref models.EntityRef) int {
	policies := s.active[ref]
	for id := range policies {
		s.removeStored(ctx, id)
	}
	delete(s.active, ref)
	delete(s.lastChange, ref)
	if err := s.store.RemovePolicyChange(ctx, ref); err != nil {
		logger.Warn("Failed to remove stored policy change", "entity", ref.String(), "error", err)
	}
	return len(policies)
}

func (s *PolicyService) markChanged(ctx context.Context, ref models.EntityRef, at time.Time) {
	s.lastChange[ref] = at
	if err := s.store.SavePolicyChange(ctx, ref, at); err != nil {
		logger.Warn("Failed to persist policy change", "entity", ref.String(), "error", err)
	}
}

func (s *PolicyService) put(p *models.ActivePolicy) {
	ref := p.Entity()
	if s.active[ref] == nil {
		s.active[ref] = make(map[uuid.UUID]*models.ActivePolicy)
	}
	s.active[ref][p.ID] = p
}

func (s *PolicyService) remove(ctx context.Context, ref models.EntityRef, id uuid.UUID) {
	delete(s.active[ref], id)
	if len(s.active[ref]) == 0 {
		delete(s.active, ref)
	}
	s.removeStored(ctx, id)
}

func (s *PolicyService) removeStored(ctx context.Context, id uuid.UUID) {
	if err := s.store.RemoveActivePolicy(ctx, id); err != nil {
		logger.Warn("Failed to remove stored policy", "id", id, "error", err)
	}
}
