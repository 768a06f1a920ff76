// Package world holds an in-process world directory and treasury used by
// tests and local simulations that run without a database.
package world

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mroshb/statecraft/internal/models"
	"github.com/mroshb/statecraft/internal/services"
	"github.com/mroshb/statecraft/pkg/errors"
	"github.com/mroshb/statecraft/pkg/utils"
)

type account struct {
	name      string
	realmID   uuid.UUID
	residents int
	balance   float64
}

// Memory implements services.Directory and services.Treasury in memory.
type Memory struct {
	mu          sync.RWMutex
	realms      map[uuid.UUID]*account
	settlements map[uuid.UUID]*account

	revenue []func(models.RevenueEvent)
	deleted []func(models.EntityRef)
}

var (
	_ services.Directory = (*Memory)(nil)
	_ services.Treasury  = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		realms:      make(map[uuid.UUID]*account),
		settlements: make(map[uuid.UUID]*account),
	}
}

func (m *Memory) AddRealm(name string, balance float64) models.EntityRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.realms[id] = &account{name: utils.NormalizeName(name), balance: balance}
	return models.RealmRef(id)
}

// AddSettlement registers a settlement. Pass uuid.Nil for an independent one.
func (m *Memory) AddSettlement(name string, realm uuid.UUID, residents int, balance float64) models.EntityRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.settlements[id] = &account{name: utils.NormalizeName(name), realmID: realm, residents: residents, balance: balance}
	return models.SettlementRef(id)
}

func (m *Memory) SetResidents(settlement uuid.UUID, residents int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.settlements[settlement]; ok {
		s.residents = residents
	}
}

func (m *Memory) OnRevenue(fn func(models.RevenueEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revenue = append(m.revenue, fn)
}

func (m *Memory) OnDeleted(fn func(models.EntityRef)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, fn)
}

// Delete removes an entity and notifies deletion listeners. Settlements of a
// deleted realm become independent.
func (m *Memory) Delete(ref models.EntityRef) bool {
	m.mu.Lock()
	var found bool
	if ref.IsRealm() {
		if _, found = m.realms[ref.ID]; found {
			delete(m.realms, ref.ID)
			for _, s := range m.settlements {
				if s.realmID == ref.ID {
					s.realmID = uuid.Nil
				}
			}
		}
	} else if _, found = m.settlements[ref.ID]; found {
		delete(m.settlements, ref.ID)
	}
	listeners := slices.Clone(m.deleted)
	m.mu.Unlock()

	if found {
		for _, fn := range listeners {
			fn(ref)
		}
	}
	return found
}

func (m *Memory) Lookup(ctx context.Context, ref models.EntityRef) (services.Entity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lookup(ref)
}

func (m *Memory) Realms(ctx context.Context) []services.Entity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entities := make([]services.Entity, 0, len(m.realms))
	for id := range m.realms {
		e, _ := m.lookup(models.RealmRef(id))
		entities = append(entities, e)
	}
	sortEntities(entities)
	return entities
}

func (m *Memory) Settlements(ctx context.Context) []services.Entity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entities := make([]services.Entity, 0, len(m.settlements))
	for id := range m.settlements {
		e, _ := m.lookup(models.SettlementRef(id))
		entities = append(entities, e)
	}
	sortEntities(entities)
	return entities
}

func (m *Memory) ResolveAccount(ctx context.Context, name string) (services.Entity, bool) {
	kind, rest, ok := models.ParseAccountName(name)
	if !ok {
		return services.Entity{}, false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, err := uuid.Parse(rest); err == nil {
		return m.lookup(models.EntityRef{ID: id, Kind: kind})
	}

	accounts := m.settlements
	if kind == models.EntityKindRealm {
		accounts = m.realms
	}
	want := utils.NormalizeName(rest)
	for id, a := range accounts {
		if strings.EqualFold(a.name, want) {
			return m.lookup(models.EntityRef{ID: id, Kind: kind})
		}
	}
	return services.Entity{}, false
}

func (m *Memory) Balance(ctx context.Context, ref models.EntityRef) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.account(ref)
	if !ok {
		return 0, errors.New(errors.ErrCodeNotFound, "treasury account not found")
	}
	return a.balance, nil
}

func (m *Memory) CanPay(ctx context.Context, ref models.EntityRef, amount float64) bool {
	balance, err := m.Balance(ctx, ref)
	return err == nil && balance >= amount
}

func (m *Memory) Withdraw(ctx context.Context, ref models.EntityRef, amount float64, txType, memo string) error {
	if amount <= 0 {
		return errors.New(errors.ErrCodeValidation, "withdraw amount must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.account(ref)
	if !ok {
		return errors.New(errors.ErrCodeNotFound, "treasury account not found")
	}
	if a.balance < amount {
		return errors.New(errors.ErrCodeInsufficientFunds, fmt.Sprintf("insufficient funds: have %.2f, need %.2f", a.balance, amount))
	}
	a.balance -= amount
	return nil
}

// Deposit publishes the revenue event to listeners, then credits the account.
func (m *Memory) Deposit(ctx context.Context, ref models.EntityRef, amount float64, txType, memo string) error {
	if amount <= 0 {
		return errors.New(errors.ErrCodeValidation, "deposit amount must be positive")
	}

	m.mu.RLock()
	_, ok := m.account(ref)
	listeners := slices.Clone(m.revenue)
	m.mu.RUnlock()
	if !ok {
		return errors.New(errors.ErrCodeNotFound, "treasury account not found")
	}

	evt := models.RevenueEvent{Account: ref.AccountName(), Kind: models.TransactionDeposit, Amount: amount, Reason: txType}
	for _, fn := range listeners {
		fn(evt)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.account(ref); ok {
		a.balance += amount
	}
	return nil
}

func (m *Memory) account(ref models.EntityRef) (*account, bool) {
	if ref.IsRealm() {
		a, ok := m.realms[ref.ID]
		return a, ok
	}
	a, ok := m.settlements[ref.ID]
	return a, ok
}

func (m *Memory) lookup(ref models.EntityRef) (services.Entity, bool) {
	a, ok := m.account(ref)
	if !ok {
		return services.Entity{}, false
	}
	entity := services.Entity{Ref: ref, Name: a.name, Residents: a.residents, RealmID: a.realmID}
	if ref.IsRealm() {
		entity.RealmID = uuid.Nil
		for _, s := range m.settlements {
			if s.realmID == ref.ID {
				entity.Residents += s.residents
			}
		}
	}
	return entity, true
}

func sortEntities(entities []services.Entity) {
	sort.Slice(entities, func(i, j int) bool {
		if entities[i].Name != entities[j].Name {
			return entities[i].Name < entities[j].Name
		}
		return entities[i].Ref.ID.String() < entities[j].Ref.ID.String()
	})
}
