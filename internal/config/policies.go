package config

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/mroshb/statecraft/internal/models"
)

// LoadPolicyCatalogue reads the "policies" list of a YAML file. Effect fields
// left out of an entry are neutral.
func LoadPolicyCatalogue(path string) ([]models.Policy, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read policy catalogue %s: %w", path, err)
	}

	raw, ok := v.Get("policies").([]interface{})
	if !ok && v.IsSet("policies") {
		return nil, fmt.Errorf("policy catalogue %s: policies must be a list", path)
	}

	policies := make([]models.Policy, 0, len(raw))
	for i, entry := range raw {
		// Decode over neutral effects so omitted multipliers stay 1 and an
		// explicit 0 survives.
		p := models.Policy{Effects: models.NeutralEffects()}
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			DecodeHook:       decodeHook(),
			WeaklyTypedInput: true,
			Result:           &p,
		})
		if err != nil {
			return nil, err
		}
		if err := decoder.Decode(entry); err != nil {
			return nil, fmt.Errorf("decode policy %d: %w", i+1, err)
		}
		policies = append(policies, p)
	}
	return NormalizePolicies(policies)
}

// NormalizePolicies gives policies without effects a neutral bundle, validates
// entries and rejects duplicate ids.
func NormalizePolicies(policies []models.Policy) ([]models.Policy, error) {
	seen := make(map[string]bool, len(policies))
	out := make([]models.Policy, 0, len(policies))
	for _, p := range policies {
		p.Effects = p.Effects.OrNeutral()
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate policy id: %s", p.ID)
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out, nil
}

// WritePolicyCatalogue writes policies in the format LoadPolicyCatalogue reads.
func WritePolicyCatalogue(path string, policies []models.Policy) error {
	entries := make([]map[string]interface{}, 0, len(policies))
	for _, p := range policies {
		modes := make([]string, 0, len(p.AllowedGovernments))
		for _, m := range p.AllowedGovernments {
			modes = append(modes, string(m))
		}
		entries = append(entries, map[string]interface{}{
			"id":                  p.ID,
			"name":                p.Name,
			"description":         p.Description,
			"cost":                p.Cost,
			"duration_days":       p.DurationDays,
			"min_authority":       p.MinAuthority,
			"max_decadence":       p.MaxDecadence,
			"allowed_governments": modes,
			"settlement_only":     p.SettlementOnly,
			"effects":             effectsMap(p.Effects),
		})
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("policies", entries)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write policy catalogue %s: %w", path, err)
	}
	return nil
}

// effectsMap keeps only the multipliers that differ from neutral.
func effectsMap(e models.PolicyEffects) map[string]interface{} {
	all := map[string]float64{
		"tax":               e.Tax,
		"trade":             e.Trade,
		"economy":           e.Economy,
		"authority_gain":    e.AuthorityGain,
		"decadence_gain":    e.DecadenceGain,
		"resource_output":   e.ResourceOutput,
		"spending":          e.Spending,
		"upkeep":            e.Upkeep,
		"plot_cost":         e.PlotCost,
		"plot_tax":          e.PlotTax,
		"town_block_cost":   e.TownBlockCost,
		"town_block_bonus":  e.TownBlockBonus,
		"resident_capacity": e.ResidentCapacity,
	}
	out := make(map[string]interface{})
	for k, v := range all {
		if v != 0 && v != 1 {
			out[k] = v
		}
	}
	return out
}
