package models

const MaxDecadence = 100.0

type DecadenceLevel int

const (
	DecadenceMinimal DecadenceLevel = iota
	DecadenceLow
	DecadenceMedium
	DecadenceHigh
	DecadenceCritical
)

var decadenceLevelNames = [...]string{"Minimal", "Low", "Medium", "High", "Critical"}

func (l DecadenceLevel) String() string {
	if l < DecadenceMinimal || l > DecadenceCritical {
		return "Unknown"
	}
	return decadenceLevelNames[l]
}

// DecadenceThresholds are the lower bounds of levels 1 through 4.
type DecadenceThresholds struct {
	Low      float64 `mapstructure:"low"`
	Medium   float64 `mapstructure:"medium"`
	High     float64 `mapstructure:"high"`
	Critical float64 `mapstructure:"critical"`
}

func DefaultDecadenceThresholds() DecadenceThresholds {
	return DecadenceThresholds{Low: 25, Medium: 50, High: 75, Critical: 90}
}

// Level buckets a decadence value. Each cutoff belongs to the level it opens.
func (t DecadenceThresholds) Level(decadence float64) DecadenceLevel {
	switch {
	case decadence >= t.Critical:
		return DecadenceCritical
	case decadence >= t.High:
		return DecadenceHigh
	case decadence >= t.Medium:
		return DecadenceMedium
	case decadence >= t.Low:
		return DecadenceLow
	default:
		return DecadenceMinimal
	}
}

// Ordered reports whether the cutoffs are strictly increasing and inside [0, 100].
func (t DecadenceThresholds) Ordered() bool {
	return t.Low > 0 && t.Low < t.Medium && t.Medium < t.High && t.High < t.Critical && t.Critical <= MaxDecadence
}

// DecadenceEffects are the modifiers a decadence level applies elsewhere.
// TaxationMax rises with decadence; the rest are punitive.
type DecadenceEffects struct {
	TaxationMax      float64
	AuthorityGain    float64
	ResourceOutput   float64
	Spending         float64
	AuthorityPenalty float64 // share of banked Authority removed on a penalised tick
	TaxPenalty       float64 // share of collected taxes lost
}

var decadenceEffects = [...]DecadenceEffects{
	DecadenceMinimal:  {TaxationMax: 1.0, AuthorityGain: 1.0, ResourceOutput: 1.0, Spending: 1.0},
	DecadenceLow:      {TaxationMax: 1.05, AuthorityGain: 1.0, ResourceOutput: 0.95, Spending: 1.10, TaxPenalty: 0.05},
	DecadenceMedium:   {TaxationMax: 1.10, AuthorityGain: 0.90, ResourceOutput: 0.85, Spending: 1.20, TaxPenalty: 0.15},
	DecadenceHigh:     {TaxationMax: 1.15, AuthorityGain: 0.75, ResourceOutput: 0.75, Spending: 1.30, AuthorityPenalty: 0.025, TaxPenalty: 0.25},
	DecadenceCritical: {TaxationMax: 1.20, AuthorityGain: 0.50, ResourceOutput: 0.60, Spending: 1.50, AuthorityPenalty: 0.05, TaxPenalty: 0.5},
}

func DecadenceEffectsFor(level DecadenceLevel) DecadenceEffects {
	if level < DecadenceMinimal {
		level = DecadenceMinimal
	}
	if level > DecadenceCritical {
		level = DecadenceCritical
	}
	return decadenceEffects[level]
}
