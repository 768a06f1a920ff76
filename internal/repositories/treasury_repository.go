package repositories

import (
	"context"
	"fmt"
	"sync"

	"github.com/mroshb/statecraft/internal/models"
	"github.com/mroshb/statecraft/internal/services"
	"github.com/mroshb/statecraft/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RevenueListener receives every deposit before it is committed.
type RevenueListener func(evt models.RevenueEvent)

// TreasuryRepository keeps entity balances on the realms and settlements
// tables and logs every movement.
type TreasuryRepository struct {
	db *gorm.DB

	mu        sync.RWMutex
	listeners []RevenueListener
}

func NewTreasuryRepository(db *gorm.DB) *TreasuryRepository {
	return &TreasuryRepository{db: db}
}

var _ services.Treasury = (*TreasuryRepository)(nil)

func (r *TreasuryRepository) OnRevenue(listener RevenueListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, listener)
}

// Withdraw deducts amount from the entity's balance with transaction logging
func (r *TreasuryRepository) Withdraw(ctx context.Context, ref models.EntityRef, amount float64, txType, memo string) error {
	if amount <= 0 {
		return errors.New(errors.ErrCodeValidation, "withdraw amount must be positive")
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balance, err := lockBalance(tx, ref)
		if err != nil {
			return err
		}

		if balance < amount {
			return errors.New(errors.ErrCodeInsufficientFunds, fmt.Sprintf("insufficient funds: have %.2f, need %.2f", balance, amount))
		}

		if err := tx.Table(balanceTable(ref.Kind)).Where("id = ?", ref.ID).Update("balance", balance-amount).Error; err != nil {
			return errors.Wrap(err, errors.ErrCodeInternalError, "failed to update balance")
		}

		return logTransaction(tx, ref, -amount, txType, memo)
	})
}

// Deposit adds amount to the entity's balance. Listeners see the deposit
// before it commits and may schedule follow-up work; a deposit to a missing
// account is rejected before anyone hears of it.
func (r *TreasuryRepository) Deposit(ctx context.Context, ref models.EntityRef, amount float64, txType, memo string) error {
	if amount <= 0 {
		return errors.New(errors.ErrCodeValidation, "deposit amount must be positive")
	}
	if _, err := r.Balance(ctx, ref); err != nil {
		return err
	}

	r.publish(models.RevenueEvent{
		Account: ref.AccountName(),
		Kind:    models.TransactionDeposit,
		Amount:  amount,
		Reason:  txType,
	})

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balance, err := lockBalance(tx, ref)
		if err != nil {
			return err
		}

		if err := tx.Table(balanceTable(ref.Kind)).Where("id = ?", ref.ID).Update("balance", balance+amount).Error; err != nil {
			return errors.Wrap(err, errors.ErrCodeInternalError, "failed to update balance")
		}

		return logTransaction(tx, ref, amount, txType, memo)
	})
}

func (r *TreasuryRepository) Balance(ctx context.Context, ref models.EntityRef) (float64, error) {
	var row struct{ Balance float64 }
	result := r.db.WithContext(ctx).Table(balanceTable(ref.Kind)).Select("balance").Where("id = ?", ref.ID).Take(&row)

	if result.Error == gorm.ErrRecordNotFound {
		return 0, errors.New(errors.ErrCodeNotFound, "treasury account not found")
	}
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to get balance")
	}

	return row.Balance, nil
}

func (r *TreasuryRepository) CanPay(ctx context.Context, ref models.EntityRef, amount float64) bool {
	balance, err := r.Balance(ctx, ref)
	if err != nil {
		return false
	}
	return balance >= amount
}

// History returns the most recent transactions of an entity, newest first.
func (r *TreasuryRepository) History(ctx context.Context, ref models.EntityRef, limit int) ([]models.TreasuryTransaction, error) {
	var transactions []models.TreasuryTransaction
	result := r.db.WithContext(ctx).
		Where("entity_id = ? AND entity_kind = ?", ref.ID, ref.Kind).
		Order("created_at DESC").
		Limit(limit).
		Find(&transactions)

	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to get transaction history")
	}

	return transactions, nil
}

func (r *TreasuryRepository) publish(evt models.RevenueEvent) {
	r.mu.RLock()
	listeners := append([]RevenueListener(nil), r.listeners...)
	r.mu.RUnlock()

	for _, l := range listeners {
		l(evt)
	}
}

func balanceTable(kind models.EntityKind) string {
	if kind == models.EntityKindRealm {
		return models.Realm{}.TableName()
	}
	return models.Settlement{}.TableName()
}

func lockBalance(tx *gorm.DB, ref models.EntityRef) (float64, error) {
	var row struct{ Balance float64 }
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Table(balanceTable(ref.Kind)).
		Select("balance").
		Where("id = ?", ref.ID).
		Take(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, errors.New(errors.ErrCodeNotFound, "treasury account not found")
		}
		return 0, errors.Wrap(err, errors.ErrCodeInternalError, "failed to get balance")
	}
	return row.Balance, nil
}

func logTransaction(tx *gorm.DB, ref models.EntityRef, amount float64, txType, memo string) error {
	transaction := &models.TreasuryTransaction{
		EntityID:        ref.ID,
		EntityKind:      ref.Kind,
		Amount:          amount,
		TransactionType: txType,
		Description:     memo,
	}
	if err := tx.Create(transaction).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to create transaction")
	}
	return nil
}
