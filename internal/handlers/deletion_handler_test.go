package handlers

import (
	"testing"

	"github.com/mroshb/statecraft/internal/models"
)

func TestDeletion_RealmRemovesVassalageAndPolicies(t *testing.T) {
	env := newTestEnv(t, nil)
	err := env.engine.Policies.SetCatalogue([]models.Policy{
		{ID: "war_chest", Name: "War Chest", Cost: 10, DurationDays: 3, MaxDecadence: 100},
	})
	if err != nil {
		t.Fatalf("SetCatalogue() error = %v", err)
	}
	suzerain, vassal := env.pair(t, 0.1)
	if _, err := env.engine.Policies.Enact(env.ctx, suzerain, "war_chest"); err != nil {
		t.Fatalf("Enact() error = %v", err)
	}

	if !env.world.Delete(suzerain) {
		t.Fatal("Delete() = false, want true")
	}

	if env.engine.Vassalage.IsVassal(vassal.ID) {
		t.Error("vassal still bound to a deleted suzerain")
	}
	if got := len(env.engine.Policies.ActivePolicies(suzerain)); got != 0 {
		t.Errorf("ActivePolicies() = %d, want 0", got)
	}
}

func TestDeletion_SettlementKeepsRealmTies(t *testing.T) {
	env := newTestEnv(t, nil)
	suzerain, vassal := env.pair(t, 0.1)
	town := env.world.AddSettlement("Redford", vassal.ID, 3, 0)

	env.world.Delete(town)

	if _, ok := env.engine.Vassalage.Relationship(suzerain.ID, vassal.ID); !ok {
		t.Error("deleting a settlement dissolved its realm's vassalage")
	}
}
