package models

import (
	"time"

	"github.com/google/uuid"
)

// AuthorityRecord is the persisted Authority of one entity.
type AuthorityRecord struct {
	EntityID   uuid.UUID  `gorm:"type:varchar(36);primaryKey"`
	EntityKind EntityKind `gorm:"type:varchar(16);primaryKey"`
	Amount     float64    `gorm:"not null;default:0"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime"`
}

func (AuthorityRecord) TableName() string {
	return "authority"
}

type DecadenceRecord struct {
	EntityID   uuid.UUID  `gorm:"type:varchar(36);primaryKey"`
	EntityKind EntityKind `gorm:"type:varchar(16);primaryKey"`
	Amount     float64    `gorm:"not null;default:0"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime"`
}

func (DecadenceRecord) TableName() string {
	return "decadence"
}

type GovernmentRecord struct {
	EntityID       uuid.UUID      `gorm:"type:varchar(36);primaryKey"`
	EntityKind     EntityKind     `gorm:"type:varchar(16);primaryKey"`
	Mode           GovernmentMode `gorm:"type:varchar(32);not null"`
	LastChangeTime *time.Time
}

func (GovernmentRecord) TableName() string {
	return "government"
}

func (r *GovernmentRecord) State() GovernmentState {
	state := GovernmentState{Mode: r.Mode}
	if r.LastChangeTime != nil {
		state.ChangedAt = *r.LastChangeTime
	}
	return state
}

// PolicyChangeRecord is when an entity last enacted or revoked a policy.
type PolicyChangeRecord struct {
	EntityID   uuid.UUID  `gorm:"type:varchar(36);primaryKey"`
	EntityKind EntityKind `gorm:"type:varchar(16);primaryKey"`
	ChangedAt  time.Time  `gorm:"not null"`
}

func (PolicyChangeRecord) TableName() string {
	return "policy_changes"
}

func (r *PolicyChangeRecord) Ref() EntityRef {
	return EntityRef{ID: r.EntityID, Kind: r.EntityKind}
}
