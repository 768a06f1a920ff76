package services_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mroshb/statecraft/internal/models"
	"github.com/mroshb/statecraft/pkg/errors"
)

func TestVassalage_OfferRateIsClamped(t *testing.T) {
	f := newFixture(t)
	suzerain := f.world.AddRealm("Aldmoor", 0)
	target := f.world.AddRealm("Vessaria", 0)
	f.setAuthority(t, suzerain, 60)

	offer, err := f.engine.Vassalage.CreateOffer(f.ctx, suzerain.ID, target.ID, 0.5)
	if err != nil {
		t.Fatalf("CreateOffer() error = %v", err)
	}
	if offer.ProposedTributeRate != 0.10 {
		t.Errorf("ProposedTributeRate = %v, want 0.10", offer.ProposedTributeRate)
	}
	if !offer.ExpiresAt.Equal(f.now.Add(24 * time.Hour)) {
		t.Errorf("ExpiresAt = %v, want %v", offer.ExpiresAt, f.now.Add(24*time.Hour))
	}

	stored, err := f.store.LoadOffers(f.ctx)
	if err != nil {
		t.Fatalf("LoadOffers() error = %v", err)
	}
	if len(stored) != 1 || stored[0].ProposedTributeRate != 0.10 {
		t.Errorf("stored offers = %+v, want one at rate 0.10", stored)
	}
}

func TestVassalage_FormationRules(t *testing.T) {
	f := newFixture(t)
	strong := f.world.AddRealm("Aldmoor", 0)
	weak := f.world.AddRealm("Vessaria", 0)
	holy := f.world.AddRealm("Sanctum", 0)
	f.setAuthority(t, strong, 60)
	f.setAuthority(t, weak, 10)
	f.setAuthority(t, holy, 80)
	if err := f.engine.Government.SetMode(f.ctx, holy, models.GovernmentTheocracy, true); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}

	tests := []struct {
		name     string
		suzerain models.EntityRef
		target   models.EntityRef
		code     string
	}{
		{name: "Self", suzerain: strong, target: strong, code: errors.ErrCodeVassalageNotAllowed},
		{name: "Weak suzerain", suzerain: weak, target: strong, code: errors.ErrCodeInsufficientAuthority},
		{name: "Incompatible suzerain", suzerain: holy, target: weak, code: errors.ErrCodeIncompatibleGovernment},
		{name: "Incompatible target", suzerain: strong, target: holy, code: errors.ErrCodeIncompatibleGovernment},
		{name: "Unknown target", suzerain: strong, target: models.RealmRef(uuid.New()), code: errors.ErrCodeUnknownEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Vassalage.CreateOffer(f.ctx, tt.suzerain.ID, tt.target.ID, 0.05)
			if !errors.HasCode(err, tt.code) {
				t.Errorf("CreateOffer() error = %v, want %s", err, tt.code)
			}
			if !errors.IsRuleViolation(err) {
				t.Errorf("IsRuleViolation(%v) = false, want true", err)
			}
		})
	}

	if !f.engine.Vassalage.CanForm(strong.ID, weak.ID) {
		t.Error("CanForm(strong, weak) = false, want true")
	}
}

func TestVassalage_NoChains(t *testing.T) {
	f := newFixture(t)
	a := f.world.AddRealm("Aldmoor", 0)
	b := f.world.AddRealm("Brenholt", 0)
	c := f.world.AddRealm("Corwyn", 0)
	for _, ref := range []models.EntityRef{a, b, c} {
		f.setAuthority(t, ref, 100)
	}
	f.vassalize(t, b, a, 0.05)

	if f.engine.Vassalage.CanForm(a.ID, c.ID) {
		t.Error("CanForm(vassal, c) = true, want false")
	}
	if f.engine.Vassalage.CanForm(c.ID, a.ID) {
		t.Error("CanForm(c, vassal) = true, want false")
	}
	if f.engine.Vassalage.CanForm(c.ID, b.ID) {
		t.Error("CanForm(c, suzerain) = true, want false")
	}
	if !f.engine.Vassalage.CanForm(b.ID, c.ID) {
		t.Error("CanForm(suzerain, c) = false, want true")
	}
}

func TestVassalage_AcceptClearsOffersBetweenPair(t *testing.T) {
	f := newFixture(t)
	s := f.world.AddRealm("Aldmoor", 0)
	v := f.world.AddRealm("Vessaria", 0)
	x := f.world.AddRealm("Corwyn", 0)
	for _, ref := range []models.EntityRef{s, v, x} {
		f.setAuthority(t, ref, 100)
	}

	fromS, err := f.engine.Vassalage.CreateOffer(f.ctx, s.ID, v.ID, 0.05)
	if err != nil {
		t.Fatalf("CreateOffer(s, v) error = %v", err)
	}
	if _, err := f.engine.Vassalage.CreateOffer(f.ctx, v.ID, s.ID, 0.08); err != nil {
		t.Fatalf("CreateOffer(v, s) error = %v", err)
	}
	fromX, err := f.engine.Vassalage.CreateOffer(f.ctx, x.ID, v.ID, 0.02)
	if err != nil {
		t.Fatalf("CreateOffer(x, v) error = %v", err)
	}

	if _, err := f.engine.Vassalage.AcceptOffer(f.ctx, fromS.ID, s.ID); !errors.HasCode(err, errors.ErrCodeOfferMismatch) {
		t.Errorf("AcceptOffer() by the wrong realm error = %v, want %s", err, errors.ErrCodeOfferMismatch)
	}

	rel, err := f.engine.Vassalage.AcceptOffer(f.ctx, fromS.ID, v.ID)
	if err != nil {
		t.Fatalf("AcceptOffer() error = %v", err)
	}
	if rel.SuzerainID != s.ID || rel.VassalID != v.ID || rel.TributeRate != 0.05 {
		t.Errorf("relationship = %+v", rel)
	}

	for _, offer := range append(f.engine.Vassalage.OffersTo(v.ID), f.engine.Vassalage.OffersTo(s.ID)...) {
		if offer.Between(s.ID, v.ID) {
			t.Errorf("offer %s between the pair survived acceptance", offer.ID)
		}
	}

	if _, err := f.engine.Vassalage.AcceptOffer(f.ctx, fromX.ID, v.ID); !errors.HasCode(err, errors.ErrCodeVassalageNotAllowed) {
		t.Errorf("AcceptOffer() of a second suzerain error = %v, want %s", err, errors.ErrCodeVassalageNotAllowed)
	}
	if got, ok := f.engine.Vassalage.Suzerain(v.ID); !ok || got.SuzerainID != s.ID {
		t.Errorf("Suzerain(v) = %+v, %v", got, ok)
	}
}

func TestVassalage_ExpiredOfferCannotBeAccepted(t *testing.T) {
	f := newFixture(t)
	s := f.world.AddRealm("Aldmoor", 0)
	v := f.world.AddRealm("Vessaria", 0)
	f.setAuthority(t, s, 100)

	offer, err := f.engine.Vassalage.CreateOffer(f.ctx, s.ID, v.ID, 0.05)
	if err != nil {
		t.Fatalf("CreateOffer() error = %v", err)
	}
	f.advance(25 * time.Hour)

	if _, err := f.engine.Vassalage.AcceptOffer(f.ctx, offer.ID, v.ID); !errors.HasCode(err, errors.ErrCodeOfferExpired) {
		t.Errorf("AcceptOffer() error = %v, want %s", err, errors.ErrCodeOfferExpired)
	}
	if _, ok := f.engine.Vassalage.Offer(offer.ID); ok {
		t.Error("expired offer still retrievable")
	}
}

func TestVassalage_UnpaidMaintenanceReleasesAll(t *testing.T) {
	f := newFixture(t)
	s := f.world.AddRealm("Aldmoor", 0)
	v1 := f.world.AddRealm("Brenholt", 0)
	v2 := f.world.AddRealm("Corwyn", 0)
	f.setAuthority(t, s, 60)
	f.vassalize(t, s, v1, 0.05)
	f.vassalize(t, s, v2, 0.05)

	f.setAuthority(t, s, 3)
	if got := f.engine.Vassalage.MaintenanceCost(s.ID); got != 4 {
		t.Fatalf("MaintenanceCost() = %v, want 4", got)
	}

	if released := f.engine.Vassalage.ProcessMaintenance(f.ctx); released != 2 {
		t.Errorf("ProcessMaintenance() released %d, want 2", released)
	}
	if f.engine.Vassalage.IsSuzerain(s.ID) {
		t.Error("IsSuzerain() = true after unpaid maintenance")
	}
	if got := f.engine.Ledger.Authority(s); got != 3 {
		t.Errorf("Authority() = %v, want unchanged 3", got)
	}

	stored, err := f.store.LoadRelationships(f.ctx)
	if err != nil {
		t.Fatalf("LoadRelationships() error = %v", err)
	}
	if len(stored) != 0 {
		t.Errorf("stored relationships = %d, want 0", len(stored))
	}
}

func TestVassalage_PaidMaintenance(t *testing.T) {
	f := newFixture(t)
	s := f.world.AddRealm("Aldmoor", 0)
	v := f.world.AddRealm("Brenholt", 0)
	f.setAuthority(t, s, 60)
	f.vassalize(t, s, v, 0.05)

	if released := f.engine.Vassalage.ProcessMaintenance(f.ctx); released != 0 {
		t.Errorf("ProcessMaintenance() released %d, want 0", released)
	}
	if got := f.engine.Ledger.Authority(s); got != 58 {
		t.Errorf("Authority() = %v, want 58", got)
	}
}

func TestVassalage_BreakReleaseAndRate(t *testing.T) {
	f := newFixture(t)
	s := f.world.AddRealm("Aldmoor", 0)
	v := f.world.AddRealm("Vessaria", 0)
	f.setAuthority(t, s, 100)
	f.setAuthority(t, v, 10)
	f.vassalize(t, s, v, 0.05)

	if err := f.engine.Vassalage.SetTributeRate(f.ctx, s.ID, v.ID, 0.9); err != nil {
		t.Fatalf("SetTributeRate() error = %v", err)
	}
	if rel, _ := f.engine.Vassalage.Relationship(s.ID, v.ID); rel.TributeRate != 0.10 {
		t.Errorf("TributeRate = %v, want clamped 0.10", rel.TributeRate)
	}

	if err := f.engine.Vassalage.Break(f.ctx, v.ID); !errors.HasCode(err, errors.ErrCodeInsufficientAuthority) {
		t.Errorf("Break() without authority error = %v, want %s", err, errors.ErrCodeInsufficientAuthority)
	}
	f.setAuthority(t, v, 30)
	if err := f.engine.Vassalage.Break(f.ctx, v.ID); err != nil {
		t.Fatalf("Break() error = %v", err)
	}
	if got := f.engine.Ledger.Authority(v); got != 5 {
		t.Errorf("Authority(vassal) after break = %v, want 5", got)
	}
	if f.engine.Vassalage.IsVassal(v.ID) {
		t.Error("IsVassal() = true after break")
	}

	f.vassalize(t, s, v, 0.05)
	if err := f.engine.Vassalage.Release(f.ctx, v.ID, s.ID); !errors.HasCode(err, errors.ErrCodeNoRelationship) {
		t.Errorf("Release() by the vassal error = %v, want %s", err, errors.ErrCodeNoRelationship)
	}
	if err := f.engine.Vassalage.Release(f.ctx, s.ID, v.ID); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if f.engine.Vassalage.IsVassal(v.ID) {
		t.Error("IsVassal() = true after release")
	}
}

func TestVassalage_GovernmentChangeDissolves(t *testing.T) {
	f := newFixture(t)
	s := f.world.AddRealm("Aldmoor", 0)
	v := f.world.AddRealm("Vessaria", 0)
	f.setAuthority(t, s, 100)
	f.vassalize(t, s, v, 0.05)

	if !f.engine.Vassalage.WouldBreakOnModeChange(s.ID, models.GovernmentTheocracy) {
		t.Error("WouldBreakOnModeChange(theocracy) = false, want true")
	}
	if f.engine.Vassalage.WouldBreakOnModeChange(s.ID, models.GovernmentFeudal) {
		t.Error("WouldBreakOnModeChange(feudal) = true, want false")
	}
	isSuzerain, count, isVassal := f.engine.Vassalage.BreakImpact(s.ID)
	if !isSuzerain || count != 1 || isVassal {
		t.Errorf("BreakImpact() = %v, %d, %v", isSuzerain, count, isVassal)
	}

	if err := f.engine.Government.SetMode(f.ctx, s, models.GovernmentTheocracy, false); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}
	if f.engine.Vassalage.IsVassal(v.ID) {
		t.Error("relationship survived a switch to theocracy")
	}
	if got := f.engine.Ledger.Authority(s); got != 100 {
		t.Errorf("Authority() = %v, want 100 (no charge)", got)
	}
}

func TestVassalage_CanDeclareEnemy(t *testing.T) {
	f := newFixture(t)
	s := f.world.AddRealm("Aldmoor", 0)
	v := f.world.AddRealm("Vessaria", 0)
	enemy := f.world.AddRealm("Corwyn", 0)
	bystander := f.world.AddRealm("Dunmere", 0)
	f.setAuthority(t, s, 100)
	f.vassalize(t, s, v, 0.05)

	atWar := func(a, b uuid.UUID) bool {
		return (a == enemy.ID && b == s.ID) || (a == s.ID && b == enemy.ID)
	}

	tests := []struct {
		name     string
		attacker uuid.UUID
		target   uuid.UUID
		want     bool
	}{
		{name: "Suzerain may", attacker: s.ID, target: v.ID, want: true},
		{name: "Realm at war with suzerain may", attacker: enemy.ID, target: v.ID, want: true},
		{name: "Bystander may not", attacker: bystander.ID, target: v.ID, want: false},
		{name: "Free realm is fair game", attacker: bystander.ID, target: enemy.ID, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.engine.Vassalage.CanDeclareEnemy(tt.attacker, tt.target, atWar); got != tt.want {
				t.Errorf("CanDeclareEnemy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVassalage_RemoveAllForEntityAndReload(t *testing.T) {
	f := newFixture(t)
	s := f.world.AddRealm("Aldmoor", 0)
	v := f.world.AddRealm("Vessaria", 0)
	other := f.world.AddRealm("Corwyn", 0)
	f.setAuthority(t, s, 100)
	f.vassalize(t, s, v, 0.05)
	if _, err := f.engine.Vassalage.CreateOffer(f.ctx, s.ID, other.ID, 0.05); err != nil {
		t.Fatalf("CreateOffer() error = %v", err)
	}

	reloaded := f.newEngine(t)
	if rel, ok := reloaded.Vassalage.Relationship(s.ID, v.ID); !ok || rel.TributeRate != 0.05 {
		t.Fatalf("Relationship() after reload = %+v, %v", rel, ok)
	}
	if got := len(reloaded.Vassalage.OffersTo(other.ID)); got != 1 {
		t.Fatalf("OffersTo() after reload = %d, want 1", got)
	}

	if removed := reloaded.Vassalage.RemoveAllForEntity(f.ctx, s.ID); removed != 1 {
		t.Errorf("RemoveAllForEntity() = %d, want 1", removed)
	}
	if got := len(reloaded.Vassalage.OffersTo(other.ID)); got != 0 {
		t.Errorf("OffersTo() = %d, want 0", got)
	}
	if got := len(reloaded.Vassalage.Relationships()); got != 0 {
		t.Errorf("Relationships() = %d, want 0", got)
	}
}

func TestVassalage_WithdrawOffer(t *testing.T) {
	f := newFixture(t)
	s := f.world.AddRealm("Aldmoor", 0)
	other := f.world.AddRealm("Brenholt", 0)
	v := f.world.AddRealm("Vessaria", 0)
	f.setAuthority(t, s, 100)

	offer, err := f.engine.Vassalage.CreateOffer(f.ctx, s.ID, v.ID, 0.05)
	if err != nil {
		t.Fatalf("CreateOffer() error = %v", err)
	}

	tests := []struct {
		name      string
		suzerain  uuid.UUID
		offerID   uuid.UUID
		wantCode  string
		wantOffer bool
	}{
		{name: "Another realm's offer", suzerain: other.ID, offerID: offer.ID, wantCode: errors.ErrCodeOfferMismatch, wantOffer: true},
		{name: "Unknown offer", suzerain: s.ID, offerID: uuid.New(), wantCode: errors.ErrCodeNotFound, wantOffer: true},
		{name: "Own offer", suzerain: s.ID, offerID: offer.ID, wantOffer: false},
		{name: "Already withdrawn", suzerain: s.ID, offerID: offer.ID, wantCode: errors.ErrCodeNotFound, wantOffer: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.engine.Vassalage.WithdrawOffer(f.ctx, tt.suzerain, tt.offerID)
			if tt.wantCode == "" && err != nil {
				t.Fatalf("WithdrawOffer() error = %v", err)
			}
			if tt.wantCode != "" && !errors.HasCode(err, tt.wantCode) {
				t.Fatalf("WithdrawOffer() error = %v, want %s", err, tt.wantCode)
			}
			if _, ok := f.engine.Vassalage.Offer(offer.ID); ok != tt.wantOffer {
				t.Errorf("Offer() found = %v, want %v", ok, tt.wantOffer)
			}
		})
	}

	stored, err := f.store.LoadOffers(f.ctx)
	if err != nil {
		t.Fatalf("LoadOffers() error = %v", err)
	}
	if len(stored) != 0 {
		t.Errorf("stored offers = %d, want 0", len(stored))
	}
	if _, err := f.engine.Vassalage.AcceptOffer(f.ctx, offer.ID, v.ID); !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Errorf("AcceptOffer() of a withdrawn offer error = %v, want %s", err, errors.ErrCodeNotFound)
	}
}
