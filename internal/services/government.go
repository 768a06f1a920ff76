package services

import (
	"context"
	"fmt"
	"time"

	"github.com/mroshb/statecraft/internal/config"
	"github.com/mroshb/statecraft/internal/models"
	"github.com/mroshb/statecraft/pkg/errors"
	"github.com/mroshb/statecraft/pkg/logger"
)

// GovernmentRegistry holds the current government of every entity. Entities
// that were never recorded have the default mode of their kind.
type GovernmentRegistry struct {
	store  EntityStore
	states map[models.EntityRef]models.GovernmentState
}

func NewGovernmentRegistry(store EntityStore) *GovernmentRegistry {
	return &GovernmentRegistry{
		store:  store,
		states: make(map[models.EntityRef]models.GovernmentState),
	}
}

func (r *GovernmentRegistry) Load(ctx context.Context) error {
	states := make(map[models.EntityRef]models.GovernmentState)
	for _, kind := range []models.EntityKind{models.EntityKindSettlement, models.EntityKindRealm} {
		loaded, err := r.store.LoadAllGovernments(ctx, kind)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternalError, "failed to load governments")
		}
		for id, state := range loaded {
			ref := models.EntityRef{ID: id, Kind: kind}
			if !state.Mode.AllowedFor(kind) {
				logger.Warn("Stored government not allowed for entity, using default", "entity", ref.String(), "mode", state.Mode)
				state.Mode = models.DefaultGovernment(kind)
			}
			states[ref] = state
		}
	}
	r.states = states
	return nil
}

func (r *GovernmentRegistry) State(ref models.EntityRef) models.GovernmentState {
	if state, ok := r.states[ref]; ok {
		return state
	}
	return models.GovernmentState{Mode: models.DefaultGovernment(ref.Kind)}
}

func (r *GovernmentRegistry) Mode(ref models.EntityRef) models.GovernmentMode {
	return r.State(ref).Mode
}

func (r *GovernmentRegistry) record(ctx context.Context, ref models.EntityRef, state models.GovernmentState) {
	r.states[ref] = state
	if err := r.store.SaveGovernment(ctx, ref, state); err != nil {
		logger.Warn("Failed to persist government", "entity", ref.String(), "mode", state.Mode, "error", err)
	}
}

// VassalageNotifiable reacts to government changes that may end vassal ties.
type VassalageNotifiable interface {
	OnGovernmentModeChange(ctx context.Context, ref models.EntityRef, oldMode, newMode models.GovernmentMode)
}

// GovernmentService applies mode transitions under the change cooldown.
type GovernmentService struct {
	registry  *GovernmentRegistry
	rules     config.RulesSource
	now       Clock
	vassalage VassalageNotifiable
}

func NewGovernmentService(registry *GovernmentRegistry, rules config.RulesSource, now Clock, vassalage VassalageNotifiable) *GovernmentService {
	return &GovernmentService{
		registry:  registry,
		rules:     rules,
		now:       now,
		vassalage: vassalage,
	}
}

func (s *GovernmentService) Mode(ref models.EntityRef) models.GovernmentMode {
	return s.registry.Mode(ref)
}

func (s *GovernmentService) State(ref models.EntityRef) models.GovernmentState {
	return s.registry.State(ref)
}

// SetMode switches the entity to mode. Without bypass the change is refused
// during the cooldown and, after a first change, during the settling window.
func (s *GovernmentService) SetMode(ctx context.Context, ref models.EntityRef, mode models.GovernmentMode, bypassCooldown bool) error {
	if err := ref.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrCodeValidation, "invalid entity")
	}
	if !mode.Valid() {
		return errors.Newf(errors.ErrCodeValidation, "unknown government mode %q", mode)
	}

	state := s.registry.State(ref)
	now := s.now()

	if !bypassCooldown {
		if s.IsOnCooldown(ref) {
			return errors.Newf(errors.ErrCodeCooldownActive, "government can change again in %s", FormatCooldown(s.CooldownRemaining(ref)))
		}
		settling := s.rules.Current().Government.SwitchTime
		if state.HasChanged() && now.Sub(state.ChangedAt) < settling {
			return errors.Newf(errors.ErrCodeCooldownActive, "government is still settling for %s", FormatCooldown(settling-now.Sub(state.ChangedAt)))
		}
	}

	if !mode.AllowedFor(ref.Kind) {
		return errors.Newf(errors.ErrCodeIneligibleEntity, "%s is not available to a %s", mode, ref.Kind)
	}

	s.registry.record(ctx, ref, models.GovernmentState{Mode: mode, ChangedAt: now})
	logger.Info("Government changed", "entity", ref.String(), "from", state.Mode, "to", mode, "bypass", bypassCooldown)

	if state.Mode != mode && s.vassalage != nil {
		s.vassalage.OnGovernmentModeChange(ctx, ref, state.Mode, mode)
	}
	return nil
}

// IsOnCooldown reports whether the entity changed mode less than the cooldown ago.
// An entity that never changed is not on cooldown.
func (s *GovernmentService) IsOnCooldown(ref models.EntityRef) bool {
	return s.CooldownRemaining(ref) > 0
}

func (s *GovernmentService) CooldownRemaining(ref models.EntityRef) time.Duration {
	state := s.registry.State(ref)
	if !state.HasChanged() {
		return 0
	}
	remaining := s.rules.Current().Government.Cooldown(ref.Kind) - s.now().Sub(state.ChangedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// FormatCooldown renders a remaining duration as "2d 5h", "3h 10m" or "45m".
func FormatCooldown(d time.Duration) string {
	if d <= 0 {
		return "0m"
	}
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	minutes := int(d % time.Hour / time.Minute)

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm", minutes)
	default:
		return "<1m"
	}
}
