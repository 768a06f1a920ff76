package models

import (
	"time"

	"github.com/google/uuid"
)

type TreasuryTransaction struct {
	ID              uint       `gorm:"primaryKey"`
	EntityID        uuid.UUID  `gorm:"type:varchar(36);not null;index"`
	EntityKind      EntityKind `gorm:"type:varchar(16);not null"`
	Amount          float64    `gorm:"not null"`
	TransactionType string     `gorm:"type:varchar(50);not null;index"`
	Description     string     `gorm:"type:text"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index"`
}

// Transaction type constants
const (
	TxTypeRevenue       = "revenue"
	TxTypeTax           = "tax"
	TxTypeUpkeep        = "upkeep"
	TxTypeTributePaid   = "tribute_paid"
	TxTypeTributeIncome = "tribute_income"
	TxTypeTributeRefund = "tribute_refund"
	TxTypeAdmin         = "admin_adjustment"
)

func (TreasuryTransaction) TableName() string {
	return "treasury_transactions"
}

// IsTributeFlow reports whether the transaction type was produced by tribute collection.
func IsTributeFlow(txType string) bool {
	return txType == TxTypeTributePaid || txType == TxTypeTributeIncome || txType == TxTypeTributeRefund
}

type TransactionKind string

const (
	TransactionDeposit  TransactionKind = "deposit"
	TransactionWithdraw TransactionKind = "withdraw"
)

// RevenueEvent is published before money lands in an entity treasury.
type RevenueEvent struct {
	Account string
	Kind    TransactionKind
	Amount  float64
	Reason  string
}
