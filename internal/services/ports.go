package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mroshb/statecraft/internal/models"
)

// Clock returns the current time. Tests pass a fixed one.
type Clock func() time.Time

// EntityStore persists per-entity Authority, Decadence and government state.
// One implementation serves both entity kinds.
type EntityStore interface {
	LoadAllAuthority(ctx context.Context, kind models.EntityKind) (map[uuid.UUID]float64, error)
	SaveAuthority(ctx context.Context, ref models.EntityRef, amount float64) error
	LoadAllDecadence(ctx context.Context, kind models.EntityKind) (map[uuid.UUID]float64, error)
	SaveDecadence(ctx context.Context, ref models.EntityRef, amount float64) error
	LoadAllGovernments(ctx context.Context, kind models.EntityKind) (map[uuid.UUID]models.GovernmentState, error)
	SaveGovernment(ctx context.Context, ref models.EntityRef, state models.GovernmentState) error
	SaveAll(ctx context.Context) error
}

type PolicyStore interface {
	LoadActivePolicies(ctx context.Context) ([]models.ActivePolicy, error)
	SaveActivePolicy(ctx context.Context, policy *models.ActivePolicy) error
	RemoveActivePolicy(ctx context.Context, id uuid.UUID) error

	// Policy changes hold the start of each entity's policy cooldown, which
	// outlives the policies themselves once one is revoked.
	LoadPolicyChanges(ctx context.Context) (map[models.EntityRef]time.Time, error)
	SavePolicyChange(ctx context.Context, ref models.EntityRef, at time.Time) error
	RemovePolicyChange(ctx context.Context, ref models.EntityRef) error
}

type VassalageStore interface {
	LoadRelationships(ctx context.Context) ([]models.VassalageRelationship, error)
	SaveRelationship(ctx context.Context, rel *models.VassalageRelationship) error
	RemoveRelationship(ctx context.Context, suzerainID, vassalID uuid.UUID) error
	LoadOffers(ctx context.Context) ([]models.VassalageOffer, error)
	SaveOffer(ctx context.Context, offer *models.VassalageOffer) error
	RemoveOffer(ctx context.Context, id uuid.UUID) error
	RemoveExpiredOffers(ctx context.Context, now time.Time) (int64, error)
}

// Entity is what the host world knows about a settlement or realm.
type Entity struct {
	Ref       models.EntityRef
	Name      string
	Residents int
	RealmID   uuid.UUID // owning realm of a settlement, uuid.Nil if none
}

func (e Entity) HasRealm() bool {
	return e.RealmID != uuid.Nil
}

// Directory resolves entities in the host world. A false result means the
// entity no longer exists.
type Directory interface {
	Lookup(ctx context.Context, ref models.EntityRef) (Entity, bool)
	Realms(ctx context.Context) []Entity
	Settlements(ctx context.Context) []Entity
	ResolveAccount(ctx context.Context, account string) (Entity, bool)
}

// Treasury moves money between entity accounts.
type Treasury interface {
	Balance(ctx context.Context, ref models.EntityRef) (float64, error)
	CanPay(ctx context.Context, ref models.EntityRef, amount float64) bool
	Withdraw(ctx context.Context, ref models.EntityRef, amount float64, txType, memo string) error
	Deposit(ctx context.Context, ref models.EntityRef, amount float64, txType, memo string) error
}
