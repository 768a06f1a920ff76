package config

import (
	"fmt"
	"math"
	"os"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/mroshb/statecraft/internal/models"
	"github.com/mroshb/statecraft/pkg/logger"
)

// GainCurve holds the constants of the daily Authority gain curve for one entity kind.
type GainCurve struct {
	BaseGain     float64 `mapstructure:"base_gain"`
	MinDailyGain float64 `mapstructure:"min_daily_gain"`
	MaxDailyGain float64 `mapstructure:"max_daily_gain"`
	Max          float64 `mapstructure:"max"`
}

type AuthorityRules struct {
	Realm      GainCurve `mapstructure:"realm"`
	Settlement GainCurve `mapstructure:"settlement"`
	// RealmBonus is added to a settlement's gain multiplier when it belongs to a realm.
	RealmBonus float64 `mapstructure:"realm_bonus"`
}

// Curve returns the gain curve of the entity kind.
func (a AuthorityRules) Curve(kind models.EntityKind) GainCurve {
	if kind == models.EntityKindRealm {
		return a.Realm
	}
	return a.Settlement
}

type DecadenceRules struct {
	RealmBaseGain      float64                    `mapstructure:"realm_base_gain"`
	SettlementBaseGain float64                    `mapstructure:"settlement_base_gain"`
	Thresholds         models.DecadenceThresholds `mapstructure:"thresholds"`
	AuthorityCostRate  float64                    `mapstructure:"authority_cost_rate"`
}

func (d DecadenceRules) BaseGain(kind models.EntityKind) float64 {
	if kind == models.EntityKindRealm {
		return d.RealmBaseGain
	}
	return d.SettlementBaseGain
}

type GovernmentRules struct {
	ChangeCooldown           time.Duration `mapstructure:"change_cooldown"`
	SettlementChangeCooldown time.Duration `mapstructure:"settlement_change_cooldown"`
	SwitchTime               time.Duration `mapstructure:"switch_time"`
}

func (g GovernmentRules) Cooldown(kind models.EntityKind) time.Duration {
	if kind == models.EntityKindSettlement {
		return g.SettlementChangeCooldown
	}
	return g.ChangeCooldown
}

type PolicyRules struct {
	Cooldown time.Duration `mapstructure:"cooldown"`
}

type VassalageRules struct {
	MinSuzerainAuthority float64                 `mapstructure:"min_suzerain_authority"`
	MaintenancePerVassal float64                 `mapstructure:"maintenance_per_vassal"`
	BreakCost            float64                 `mapstructure:"break_cost"`
	OfferExpiry          time.Duration           `mapstructure:"offer_expiry"`
	MaxTributeRate       float64                 `mapstructure:"max_tribute_rate"`
	IncompatibleModes    []models.GovernmentMode `mapstructure:"incompatible_modes"`
}

// IsIncompatible reports whether an entity in mode may take part in vassalage.
func (v VassalageRules) IsIncompatible(mode models.GovernmentMode) bool {
	for _, m := range v.IncompatibleModes {
		if m == mode {
			return true
		}
	}
	return false
}

// ClampTributeRate bounds rate to [0, MaxTributeRate].
func (v VassalageRules) ClampTributeRate(rate float64) float64 {
	if rate < 0 || math.IsNaN(rate) {
		return 0
	}
	if rate > v.MaxTributeRate {
		return v.MaxTributeRate
	}
	return rate
}

type TributeRules struct {
	Enabled              bool          `mapstructure:"enabled"`
	MinTransactionAmount float64       `mapstructure:"min_transaction_amount"`
	DedupWindow          time.Duration `mapstructure:"dedup_window"`
	CollectDelay         time.Duration `mapstructure:"collect_delay"`
	SweepInterval        time.Duration `mapstructure:"sweep_interval"`
	LogPayments          bool          `mapstructure:"log_payments"`
}

// Rules are the gameplay constants. A snapshot is immutable once published.
type Rules struct {
	Authority  AuthorityRules  `mapstructure:"authority"`
	Decadence  DecadenceRules  `mapstructure:"decadence"`
	Government GovernmentRules `mapstructure:"government"`
	Policies   PolicyRules     `mapstructure:"policies"`
	Vassalage  VassalageRules  `mapstructure:"vassalage"`
	Tribute    TributeRules    `mapstructure:"tribute"`
}

var ruleDefaults = map[string]interface{}{
	"authority.realm.base_gain":             1.0,
	"authority.realm.min_daily_gain":        1.0,
	"authority.realm.max_daily_gain":        5.0,
	"authority.realm.max":                   1000.0,
	"authority.settlement.base_gain":        0.5,
	"authority.settlement.min_daily_gain":   0.5,
	"authority.settlement.max_daily_gain":   3.0,
	"authority.settlement.max":              500.0,
	"authority.realm_bonus":                 0.1,
	"decadence.realm_base_gain":             0.5,
	"decadence.settlement_base_gain":        0.4,
	"decadence.thresholds.low":              25.0,
	"decadence.thresholds.medium":           50.0,
	"decadence.thresholds.high":             75.0,
	"decadence.thresholds.critical":         90.0,
	"decadence.authority_cost_rate":         2.0,
	"government.change_cooldown":            "720h",
	"government.settlement_change_cooldown": "360h",
	"government.switch_time":                "168h",
	"policies.cooldown":                     "72h",
	"vassalage.min_suzerain_authority":      50.0,
	"vassalage.maintenance_per_vassal":      2.0,
	"vassalage.break_cost":                  25.0,
	"vassalage.offer_expiry":                "24h",
	"vassalage.max_tribute_rate":            0.10,
	"vassalage.incompatible_modes":          []string{string(models.GovernmentTribal), string(models.GovernmentTheocracy)},
	"tribute.enabled":                       true,
	"tribute.min_transaction_amount":        0.01,
	"tribute.dedup_window":                  "5s",
	"tribute.collect_delay":                 "50ms",
	"tribute.sweep_interval":                "5m",
	"tribute.log_payments":                  true,
}

// DefaultRules returns the built-in rule set.
func DefaultRules() *Rules {
	v := newRulesViper()
	rules, err := decodeRules(v)
	if err != nil {
		panic(fmt.Sprintf("config: invalid rule defaults: %v", err))
	}
	return rules
}

func (r *Rules) Validate() error {
	for _, kind := range []models.EntityKind{models.EntityKindRealm, models.EntityKindSettlement} {
		curve := r.Authority.Curve(kind)
		if curve.BaseGain < 0 || curve.MinDailyGain < 0 {
			return fmt.Errorf("authority.%s: gains cannot be negative", kind)
		}
		if curve.MinDailyGain > curve.MaxDailyGain {
			return fmt.Errorf("authority.%s: min_daily_gain exceeds max_daily_gain", kind)
		}
		if curve.Max <= 0 {
			return fmt.Errorf("authority.%s: max must be positive", kind)
		}
	}
	if !r.Decadence.Thresholds.Ordered() {
		return fmt.Errorf("decadence.thresholds must be increasing and within (0, %v]", models.MaxDecadence)
	}
	if r.Decadence.AuthorityCostRate < 0 {
		return fmt.Errorf("decadence.authority_cost_rate cannot be negative")
	}
	if r.Government.ChangeCooldown < 0 || r.Government.SettlementChangeCooldown < 0 || r.Government.SwitchTime < 0 {
		return fmt.Errorf("government durations cannot be negative")
	}
	if r.Vassalage.MaxTributeRate < 0 || r.Vassalage.MaxTributeRate > 1 {
		return fmt.Errorf("vassalage.max_tribute_rate must be within [0, 1]")
	}
	if r.Vassalage.OfferExpiry <= 0 {
		return fmt.Errorf("vassalage.offer_expiry must be positive")
	}
	for _, mode := range r.Vassalage.IncompatibleModes {
		if !mode.Valid() {
			return fmt.Errorf("vassalage.incompatible_modes: unknown mode %q", mode)
		}
	}
	if r.Tribute.DedupWindow <= 0 || r.Tribute.SweepInterval <= 0 {
		return fmt.Errorf("tribute.dedup_window and tribute.sweep_interval must be positive")
	}
	return nil
}

// RulesSource hands out the current rule snapshot.
type RulesSource interface {
	Current() *Rules
}

type staticRules struct {
	rules *Rules
}

func (s staticRules) Current() *Rules {
	return s.rules
}

// StaticRules serves a fixed snapshot.
func StaticRules(rules *Rules) RulesSource {
	return staticRules{rules: rules}
}

// RulesStore loads rules from a YAML file and republishes them when the file changes.
type RulesStore struct {
	v       *viper.Viper
	path    string
	current atomic.Pointer[Rules]
}

// LoadRules reads path over the built-in defaults. An empty path or a missing file
// yields the defaults.
func LoadRules(path string) (*RulesStore, error) {
	v := newRulesViper()
	store := &RulesStore{v: v, path: path}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read rules %s: %w", path, err)
			}
		} else {
			logger.Warn("Rules file not found, using defaults", "path", path)
			store.path = ""
		}
	}

	rules, err := decodeRules(v)
	if err != nil {
		return nil, err
	}
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	store.current.Store(rules)
	return store, nil
}

func (s *RulesStore) Current() *Rules {
	return s.current.Load()
}

// Watch reloads the file on change. Invalid edits are logged and the previous
// snapshot stays in effect.
func (s *RulesStore) Watch() {
	if s.path == "" {
		return
	}
	s.v.OnConfigChange(func(e fsnotify.Event) {
		rules, err := decodeRules(s.v)
		if err == nil {
			err = rules.Validate()
		}
		if err != nil {
			logger.Error("Rejected rules reload", "file", e.Name, "error", err)
			return
		}
		s.current.Store(rules)
		logger.Info("Rules reloaded", "file", e.Name, "op", e.Op.String())
	})
	s.v.WatchConfig()
}

func newRulesViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	for key, value := range ruleDefaults {
		v.SetDefault(key, value)
	}
	return v
}

func decodeRules(v *viper.Viper) (*Rules, error) {
	var rules Rules
	if err := v.Unmarshal(&rules, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	return &rules, nil
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.DecodeHookFuncType(governmentModeHook),
	)
}

// governmentModeHook accepts display names ("Absolute Monarchy") for modes.
func governmentModeHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(models.GovernmentMode("")) {
		return data, nil
	}
	return models.ParseGovernmentMode(reflect.ValueOf(data).String())
}
