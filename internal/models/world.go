package models

import (
	"time"

	"github.com/google/uuid"
)

// Realm and Settlement rows are owned by the host world. This service only reads
// them, apart from treasury balances.
type Realm struct {
	ID        uuid.UUID `gorm:"type:varchar(36);primaryKey"`
	Name      string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	Balance   float64   `gorm:"default:0;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

type Settlement struct {
	ID            uuid.UUID  `gorm:"type:varchar(36);primaryKey"`
	Name          string     `gorm:"type:varchar(255);uniqueIndex;not null"`
	RealmID       *uuid.UUID `gorm:"type:varchar(36);index"`
	ResidentCount int        `gorm:"default:0;not null"`
	Balance       float64    `gorm:"default:0;not null"`
	CreatedAt     time.Time  `gorm:"autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime"`
}

type SettlementResident struct {
	ID           uint      `gorm:"primaryKey"`
	SettlementID uuid.UUID `gorm:"type:varchar(36);not null;index:idx_settlement_resident"`
	ResidentName string    `gorm:"type:varchar(64);not null;index:idx_settlement_resident"`
	Role         string    `gorm:"type:varchar(20);default:'resident'"` // mayor, assistant, resident
	JoinedAt     time.Time `gorm:"autoCreateTime"`
}

const (
	ResidentRoleMayor     = "mayor"
	ResidentRoleAssistant = "assistant"
	ResidentRoleResident  = "resident"
)

func (Realm) TableName() string {
	return "realms"
}

func (Settlement) TableName() string {
	return "settlements"
}

func (SettlementResident) TableName() string {
	return "settlement_residents"
}
