package models

import (
	"time"

	"github.com/google/uuid"
)

type VassalageRelationship struct {
	SuzerainID    uuid.UUID `gorm:"type:varchar(36);primaryKey;index"`
	VassalID      uuid.UUID `gorm:"type:varchar(36);primaryKey;uniqueIndex"`
	TributeRate   float64   `gorm:"not null;default:0"`
	EstablishedAt time.Time `gorm:"not null"`
	LastTributeAt *time.Time
}

func (VassalageRelationship) TableName() string {
	return "vassalage_relationships"
}

// Involves reports whether id is either end of the relationship.
func (r *VassalageRelationship) Involves(id uuid.UUID) bool {
	return r.SuzerainID == id || r.VassalID == id
}

type VassalageOffer struct {
	ID                  uuid.UUID `gorm:"type:varchar(36);primaryKey"`
	SuzerainID          uuid.UUID `gorm:"type:varchar(36);not null;index"`
	TargetID            uuid.UUID `gorm:"type:varchar(36);not null;index"`
	ProposedTributeRate float64   `gorm:"not null;default:0"`
	OfferedAt           time.Time `gorm:"not null"`
	ExpiresAt           time.Time `gorm:"not null;index"`
}

func (VassalageOffer) TableName() string {
	return "vassalage_offers"
}

func NewVassalageOffer(suzerain, target uuid.UUID, rate float64, now time.Time, ttl time.Duration) *VassalageOffer {
	return &VassalageOffer{
		ID:                  uuid.New(),
		SuzerainID:          suzerain,
		TargetID:            target,
		ProposedTributeRate: rate,
		OfferedAt:           now,
		ExpiresAt:           now.Add(ttl),
	}
}

func (o *VassalageOffer) IsExpired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// Between reports whether the offer links a and b in either direction.
func (o *VassalageOffer) Between(a, b uuid.UUID) bool {
	return (o.SuzerainID == a && o.TargetID == b) || (o.SuzerainID == b && o.TargetID == a)
}

func (o *VassalageOffer) Involves(id uuid.UUID) bool {
	return o.SuzerainID == id || o.TargetID == id
}
