package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// EntityKind separates the two political levels. Settlements may belong to one realm.
type EntityKind string

const (
	EntityKindSettlement EntityKind = "settlement"
	EntityKindRealm      EntityKind = "realm"
)

func (k EntityKind) Valid() bool {
	return k == EntityKindSettlement || k == EntityKindRealm
}

// EntityRef identifies a settlement or a realm. The zero value refers to nothing.
type EntityRef struct {
	ID   uuid.UUID
	Kind EntityKind
}

func RealmRef(id uuid.UUID) EntityRef {
	return EntityRef{ID: id, Kind: EntityKindRealm}
}

func SettlementRef(id uuid.UUID) EntityRef {
	return EntityRef{ID: id, Kind: EntityKindSettlement}
}

func (r EntityRef) IsZero() bool {
	return r.ID == uuid.Nil
}

func (r EntityRef) IsRealm() bool {
	return r.Kind == EntityKindRealm
}

// Validate rejects references that cannot name an entity.
func (r EntityRef) Validate() error {
	if r.ID == uuid.Nil {
		return fmt.Errorf("entity id is required")
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("invalid entity kind: %q", r.Kind)
	}
	return nil
}

func (r EntityRef) String() string {
	return string(r.Kind) + ":" + r.ID.String()
}

// AccountName is the treasury account identifier of the entity, e.g. "realm-<uuid>".
func (r EntityRef) AccountName() string {
	return string(r.Kind) + "-" + r.ID.String()
}

// ParseAccountName splits a treasury account identifier into its kind and the
// remainder, which is either a uuid or an entity name.
func ParseAccountName(account string) (EntityKind, string, bool) {
	for _, kind := range []EntityKind{EntityKindRealm, EntityKindSettlement} {
		prefix := string(kind) + "-"
		if strings.HasPrefix(account, prefix) && len(account) > len(prefix) {
			return kind, account[len(prefix):], true
		}
	}
	return "", "", false
}
