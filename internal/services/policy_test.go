package services_test

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mroshb/statecraft/internal/models"
	"github.com/mroshb/statecraft/pkg/errors"
)

func TestPolicy_EnactAndExpire(t *testing.T) {
	f := newFixture(t)
	realm := f.world.AddRealm("Aldmoor", 0)
	f.setAuthority(t, realm, 100)

	levy, err := f.engine.Policies.Enact(f.ctx, realm, "royal_levy")
	if err != nil {
		t.Fatalf("Enact(royal_levy) error = %v", err)
	}
	if got := f.engine.Ledger.Authority(realm); got != 80 {
		t.Errorf("Authority() = %v, want 80", got)
	}
	if !levy.ExpiresAt.Equal(f.now.Add(7 * 24 * time.Hour)) {
		t.Errorf("ExpiresAt = %v, want 7 days out", levy.ExpiresAt)
	}
	if got := f.engine.Policies.CombinedEffects(realm).Tax; got != 1.2 {
		t.Errorf("CombinedEffects().Tax = %v, want 1.2", got)
	}

	if _, err := f.engine.Policies.Enact(f.ctx, realm, "war_chest"); !errors.HasCode(err, errors.ErrCodeCooldownActive) {
		t.Fatalf("Enact() during cooldown error = %v, want %s", err, errors.ErrCodeCooldownActive)
	}

	f.advance(4 * 24 * time.Hour)
	if _, err := f.engine.Policies.Enact(f.ctx, realm, "royal_levy"); !errors.HasCode(err, errors.ErrCodeAlreadyExists) {
		t.Errorf("Enact() of an active policy error = %v, want %s", err, errors.ErrCodeAlreadyExists)
	}
	if _, err := f.engine.Policies.Enact(f.ctx, realm, "war_chest"); err != nil {
		t.Fatalf("Enact(war_chest) error = %v", err)
	}

	effects := f.engine.Policies.CombinedEffects(realm)
	if math.Abs(effects.Tax-1.32) > 1e-9 {
		t.Errorf("CombinedEffects().Tax = %v, want 1.32", effects.Tax)
	}
	if effects.AuthorityGain != 1.5 {
		t.Errorf("CombinedEffects().AuthorityGain = %v, want 1.5", effects.AuthorityGain)
	}
	if effects.Upkeep != 1 {
		t.Errorf("CombinedEffects().Upkeep = %v, want neutral 1", effects.Upkeep)
	}
	if got := len(f.engine.Policies.ActivePolicies(realm)); got != 2 {
		t.Errorf("ActivePolicies() = %d, want 2", got)
	}

	f.advance(4 * 24 * time.Hour)
	if got := len(f.engine.Policies.ActivePolicies(realm)); got != 0 {
		t.Errorf("ActivePolicies() after expiry = %d, want 0", got)
	}
	if removed := f.engine.Policies.SweepExpired(f.ctx); removed != 2 {
		t.Errorf("SweepExpired() = %d, want 2", removed)
	}
	if got := f.engine.Policies.CombinedEffects(realm); got != models.NeutralEffects() {
		t.Errorf("CombinedEffects() = %+v, want neutral", got)
	}
}

func TestPolicy_EnactRejections(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name      string
		settle    bool
		authority float64
		decadence float64
		policy    string
		code      string
	}{
		{name: "Realm policy for settlement", settle: true, authority: 100, policy: "royal_levy", code: errors.ErrCodeIneligibleEntity},
		{name: "Settlement policy for realm", authority: 100, policy: "village_moot", code: errors.ErrCodeIneligibleEntity},
		{name: "Wrong government", authority: 100, policy: "divine_mandate", code: errors.ErrCodeIncompatibleGovernment},
		{name: "Unknown policy", authority: 100, policy: "bread_and_circuses", code: errors.ErrCodeNotFound},
		{name: "Too decadent", authority: 100, decadence: 90, policy: "royal_levy", code: errors.ErrCodeDecadenceTooHigh},
		{name: "Below minimum authority", authority: 5, policy: "royal_levy", code: errors.ErrCodeInsufficientAuthority},
		{name: "Cannot afford", authority: 5, policy: "war_chest", code: errors.ErrCodeInsufficientAuthority},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := f.world.AddRealm(tt.name, 0)
			if tt.settle {
				ref = f.world.AddSettlement(tt.name, uuid.Nil, 1, 0)
			}
			f.setAuthority(t, ref, tt.authority)
			f.setDecadence(t, ref, tt.decadence)

			_, err := f.engine.Policies.Enact(f.ctx, ref, tt.policy)
			if !errors.HasCode(err, tt.code) {
				t.Errorf("Enact() error = %v, want %s", err, tt.code)
			}
			if got := f.engine.Ledger.Authority(ref); got != tt.authority {
				t.Errorf("Authority() after refusal = %v, want %v", got, tt.authority)
			}
		})
	}
}

func TestPolicy_Revoke(t *testing.T) {
	f := newFixture(t)
	realm := f.world.AddRealm("Aldmoor", 0)
	f.setAuthority(t, realm, 100)

	active, err := f.engine.Policies.Enact(f.ctx, realm, "royal_levy")
	if err != nil {
		t.Fatalf("Enact() error = %v", err)
	}
	if err := f.engine.Policies.Revoke(f.ctx, realm, active.ID); !errors.HasCode(err, errors.ErrCodeCooldownActive) {
		t.Errorf("Revoke() during cooldown error = %v, want %s", err, errors.ErrCodeCooldownActive)
	}

	f.advance(4 * 24 * time.Hour)
	if err := f.engine.Policies.Revoke(f.ctx, realm, uuid.New()); !errors.HasCode(err, errors.ErrCodePolicyNotActive) {
		t.Errorf("Revoke() of unknown id error = %v, want %s", err, errors.ErrCodePolicyNotActive)
	}
	if err := f.engine.Policies.Revoke(f.ctx, realm, active.ID); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if got := len(f.engine.Policies.ActivePolicies(realm)); got != 0 {
		t.Errorf("ActivePolicies() = %d, want 0", got)
	}
	if got := f.engine.Ledger.Authority(realm); got != 80 {
		t.Errorf("Authority() = %v, want 80 (no refund)", got)
	}
	if !f.engine.Policies.IsOnCooldown(realm) {
		t.Error("IsOnCooldown() after revoke = false, want true")
	}
}

func TestPolicy_RevokeCooldownSurvivesRestart(t *testing.T) {
	f := newFixture(t)
	realm := f.world.AddRealm("Aldmoor", 0)
	removed := f.world.AddRealm("Vessaria", 0)
	f.setAuthority(t, realm, 100)
	f.setAuthority(t, removed, 100)

	active, err := f.engine.Policies.Enact(f.ctx, realm, "royal_levy")
	if err != nil {
		t.Fatalf("Enact() error = %v", err)
	}
	if _, err := f.engine.Policies.Enact(f.ctx, removed, "war_chest"); err != nil {
		t.Fatalf("Enact() error = %v", err)
	}
	f.advance(4 * 24 * time.Hour)
	if err := f.engine.Policies.Revoke(f.ctx, realm, active.ID); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	f.engine.Policies.RemoveAllForEntity(f.ctx, removed)

	f.advance(time.Hour)
	f.engine = f.newEngine(t)

	if !f.engine.Policies.IsOnCooldown(realm) {
		t.Error("IsOnCooldown() after restart = false, want true")
	}
	if _, err := f.engine.Policies.Enact(f.ctx, realm, "war_chest"); !errors.HasCode(err, errors.ErrCodeCooldownActive) {
		t.Errorf("Enact() after restart error = %v, want %s", err, errors.ErrCodeCooldownActive)
	}
	if f.engine.Policies.IsOnCooldown(removed) {
		t.Error("IsOnCooldown() of removed entity after restart = true, want false")
	}
}

func TestPolicy_PermanentSurvivesReload(t *testing.T) {
	f := newFixture(t)
	realm := f.world.AddRealm("Sanctum", 0)
	f.setAuthority(t, realm, 100)
	if err := f.engine.Government.SetMode(f.ctx, realm, models.GovernmentTheocracy, false); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}

	active, err := f.engine.Policies.Enact(f.ctx, realm, "divine_mandate")
	if err != nil {
		t.Fatalf("Enact() error = %v", err)
	}
	if got := f.engine.Ledger.Authority(realm); math.Abs(got-73) > 1e-9 {
		t.Errorf("Authority() = %v, want 73 (theocracy discount)", got)
	}

	f.advance(365 * 24 * time.Hour)
	reloaded := f.newEngine(t)

	policies := reloaded.Policies.ActivePolicies(realm)
	if len(policies) != 1 || policies[0].ID != active.ID {
		t.Fatalf("ActivePolicies() after reload = %+v", policies)
	}
	if !policies[0].IsPermanent() {
		t.Error("IsPermanent() = false, want true")
	}
	if reloaded.Policies.IsOnCooldown(realm) {
		t.Error("IsOnCooldown() a year later = true, want false")
	}
}

func TestPolicy_Catalogue(t *testing.T) {
	f := newFixture(t)

	realmIDs := policyIDs(f.engine.Policies.Catalogue(models.EntityKindRealm))
	if want := []string{"royal_levy", "war_chest", "divine_mandate"}; !equalStrings(realmIDs, want) {
		t.Errorf("Catalogue(realm) = %v, want %v", realmIDs, want)
	}
	settlementIDs := policyIDs(f.engine.Policies.Catalogue(models.EntityKindSettlement))
	if want := []string{"village_moot"}; !equalStrings(settlementIDs, want) {
		t.Errorf("Catalogue(settlement) = %v, want %v", settlementIDs, want)
	}

	def, ok := f.engine.Policies.Definition("royal_levy")
	if !ok {
		t.Fatal("Definition(royal_levy) not found")
	}
	if def.Effects.Trade != 1 {
		t.Errorf("unset effect = %v, want neutral 1", def.Effects.Trade)
	}
}

func policyIDs(policies []models.Policy) []string {
	ids := make([]string, 0, len(policies))
	for _, p := range policies {
		ids = append(ids, p.ID)
	}
	return ids
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
