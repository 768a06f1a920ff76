package models

import (
	"fmt"
	"strings"
	"time"
)

type GovernmentMode string

const (
	GovernmentTribal           GovernmentMode = "tribal"
	GovernmentFeudal           GovernmentMode = "feudal"
	GovernmentAbsoluteMonarchy GovernmentMode = "absolute_monarchy"
	GovernmentTheocracy        GovernmentMode = "theocracy"
	GovernmentAutocracy        GovernmentMode = "autocracy"
)

// GovernmentTraits are the fixed modifiers and eligibility flags of a mode.
type GovernmentTraits struct {
	DisplayName        string
	Description        string
	AuthorityModifier  float64
	DecadenceModifier  float64
	PolicyCostModifier float64
	RealmOnly          bool
	SettlementOnly     bool
}

var governmentModes = []GovernmentMode{
	GovernmentTribal,
	GovernmentFeudal,
	GovernmentAbsoluteMonarchy,
	GovernmentTheocracy,
	GovernmentAutocracy,
}

var governmentTraits = map[GovernmentMode]GovernmentTraits{
	GovernmentTribal: {
		DisplayName:        "Tribal",
		Description:        "Loose kinship rule with low decay and no room for overlords.",
		AuthorityModifier:  1.0,
		DecadenceModifier:  0.8,
		PolicyCostModifier: 1.0,
		SettlementOnly:     true,
	},
	GovernmentFeudal: {
		DisplayName:        "Feudal",
		Description:        "Land held in exchange for loyalty. Strong authority, faster decay.",
		AuthorityModifier:  1.2,
		DecadenceModifier:  1.1,
		PolicyCostModifier: 1.0,
	},
	GovernmentAbsoluteMonarchy: {
		DisplayName:        "Absolute Monarchy",
		Description:        "A crown answerable to no one. Cheap policies, high decadence.",
		AuthorityModifier:  1.15,
		DecadenceModifier:  1.15,
		PolicyCostModifier: 0.7,
		RealmOnly:          true,
	},
	GovernmentTheocracy: {
		DisplayName:        "Theocracy",
		Description:        "Rule by the clergy. Very stable and unwilling to bow.",
		AuthorityModifier:  1.20,
		DecadenceModifier:  0.75,
		PolicyCostModifier: 0.9,
		RealmOnly:          true,
	},
	GovernmentAutocracy: {
		DisplayName:        "Autocracy",
		Description:        "Power concentrated in a single ruler.",
		AuthorityModifier:  1.10,
		DecadenceModifier:  0.95,
		PolicyCostModifier: 1.0,
	},
}

// GovernmentModes lists every mode in display order.
func GovernmentModes() []GovernmentMode {
	out := make([]GovernmentMode, len(governmentModes))
	copy(out, governmentModes)
	return out
}

// GovernmentModesFor lists the modes an entity of the given kind may adopt.
func GovernmentModesFor(kind EntityKind) []GovernmentMode {
	var out []GovernmentMode
	for _, mode := range governmentModes {
		if mode.AllowedFor(kind) {
			out = append(out, mode)
		}
	}
	return out
}

// DefaultGovernment is the mode an entity starts with.
func DefaultGovernment(kind EntityKind) GovernmentMode {
	if kind == EntityKindRealm {
		return GovernmentAutocracy
	}
	return GovernmentTribal
}

// ParseGovernmentMode accepts the stored name or the display name, case-insensitively.
func ParseGovernmentMode(name string) (GovernmentMode, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)
	mode := GovernmentMode(normalized)
	if _, ok := governmentTraits[mode]; !ok {
		return "", fmt.Errorf("unknown government mode: %q", name)
	}
	return mode, nil
}

func (m GovernmentMode) Valid() bool {
	_, ok := governmentTraits[m]
	return ok
}

// Traits returns the modifiers of the mode. Unknown modes get neutral modifiers.
func (m GovernmentMode) Traits() GovernmentTraits {
	if traits, ok := governmentTraits[m]; ok {
		return traits
	}
	return GovernmentTraits{
		DisplayName:        string(m),
		AuthorityModifier:  1.0,
		DecadenceModifier:  1.0,
		PolicyCostModifier: 1.0,
	}
}

// AllowedFor reports whether the eligibility flags admit the entity kind.
func (m GovernmentMode) AllowedFor(kind EntityKind) bool {
	traits, ok := governmentTraits[m]
	if !ok {
		return false
	}
	switch kind {
	case EntityKindRealm:
		return !traits.SettlementOnly
	case EntityKindSettlement:
		return !traits.RealmOnly
	}
	return false
}

func (m GovernmentMode) String() string {
	return m.Traits().DisplayName
}

// GovernmentState is the current mode of an entity and when it was last changed.
// A zero ChangedAt means the entity has never changed mode.
type GovernmentState struct {
	Mode      GovernmentMode
	ChangedAt time.Time
}

func (s GovernmentState) HasChanged() bool {
	return !s.ChangedAt.IsZero()
}
