package repositories

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/mroshb/statecraft/internal/models"
	"github.com/mroshb/statecraft/internal/services"
	"github.com/mroshb/statecraft/pkg/errors"
	"github.com/mroshb/statecraft/pkg/logger"
	"github.com/mroshb/statecraft/pkg/utils"
	"gorm.io/gorm"
)

// DeletionListener is told about realms and settlements removed from the world.
type DeletionListener func(ref models.EntityRef)

// WorldRepository reads realms and settlements owned by the host world.
type WorldRepository struct {
	db *gorm.DB

	mu        sync.RWMutex
	listeners []DeletionListener
}

func NewWorldRepository(db *gorm.DB) *WorldRepository {
	return &WorldRepository{db: db}
}

var _ services.Directory = (*WorldRepository)(nil)

func (r *WorldRepository) OnDeleted(listener DeletionListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, listener)
}

func (r *WorldRepository) Lookup(ctx context.Context, ref models.EntityRef) (services.Entity, bool) {
	switch ref.Kind {
	case models.EntityKindRealm:
		var realm models.Realm
		if err := r.db.WithContext(ctx).First(&realm, "id = ?", ref.ID).Error; err != nil {
			r.logLookupError(err, ref)
			return services.Entity{}, false
		}
		return r.realmEntity(ctx, realm), true
	case models.EntityKindSettlement:
		var settlement models.Settlement
		if err := r.db.WithContext(ctx).First(&settlement, "id = ?", ref.ID).Error; err != nil {
			r.logLookupError(err, ref)
			return services.Entity{}, false
		}
		return settlementEntity(settlement), true
	}
	return services.Entity{}, false
}

func (r *WorldRepository) Realms(ctx context.Context) []services.Entity {
	var realms []models.Realm
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&realms).Error; err != nil {
		logger.Warn("Failed to list realms", "error", err)
		return nil
	}

	var counts []struct {
		RealmID   uuid.UUID
		Residents int
	}
	err := r.db.WithContext(ctx).Model(&models.Settlement{}).
		Select("realm_id, SUM(resident_count) AS residents").
		Where("realm_id IS NOT NULL").
		Group("realm_id").
		Scan(&counts).Error
	if err != nil {
		logger.Warn("Failed to count realm residents", "error", err)
	}
	residents := make(map[uuid.UUID]int, len(counts))
	for _, c := range counts {
		residents[c.RealmID] = c.Residents
	}

	entities := make([]services.Entity, 0, len(realms))
	for _, realm := range realms {
		entities = append(entities, services.Entity{
			Ref:       models.RealmRef(realm.ID),
			Name:      realm.Name,
			Residents: residents[realm.ID],
		})
	}
	return entities
}

func (r *WorldRepository) Settlements(ctx context.Context) []services.Entity {
	var settlements []models.Settlement
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&settlements).Error; err != nil {
		logger.Warn("Failed to list settlements", "error", err)
		return nil
	}

	entities := make([]services.Entity, 0, len(settlements))
	for _, s := range settlements {
		entities = append(entities, settlementEntity(s))
	}
	return entities
}

// ResolveAccount maps "realm-<uuid>" or "realm-<name>" (and the settlement
// equivalents) to an entity.
func (r *WorldRepository) ResolveAccount(ctx context.Context, account string) (services.Entity, bool) {
	kind, rest, ok := models.ParseAccountName(account)
	if !ok {
		return services.Entity{}, false
	}
	if id, err := uuid.Parse(rest); err == nil {
		return r.Lookup(ctx, models.EntityRef{ID: id, Kind: kind})
	}

	name := utils.NormalizeName(rest)
	if kind == models.EntityKindRealm {
		var realm models.Realm
		if err := r.db.WithContext(ctx).Where("name = ?", name).First(&realm).Error; err != nil {
			return services.Entity{}, false
		}
		return r.realmEntity(ctx, realm), true
	}

	var settlement models.Settlement
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&settlement).Error; err != nil {
		return services.Entity{}, false
	}
	return settlementEntity(settlement), true
}

// AddResident records a new resident and bumps the settlement's count.
func (r *WorldRepository) AddResident(ctx context.Context, settlementID uuid.UUID, name, role string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resident := &models.SettlementResident{
			SettlementID: settlementID,
			ResidentName: utils.NormalizeName(name),
			Role:         role,
		}
		if err := tx.Create(resident).Error; err != nil {
			return errors.Wrap(err, errors.ErrCodeInternalError, "failed to add resident")
		}

		result := tx.Model(&models.Settlement{}).Where("id = ?", settlementID).Update("resident_count", gorm.Expr("resident_count + 1"))
		if result.Error != nil {
			return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to update resident count")
		}
		if result.RowsAffected == 0 {
			return errors.New(errors.ErrCodeNotFound, "settlement not found")
		}
		return nil
	})
}

func (r *WorldRepository) RemoveResident(ctx context.Context, settlementID uuid.UUID, name string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("settlement_id = ? AND resident_name = ?", settlementID, utils.NormalizeName(name)).Delete(&models.SettlementResident{})
		if result.Error != nil {
			return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to remove resident")
		}
		if result.RowsAffected == 0 {
			return errors.New(errors.ErrCodeNotFound, "resident not found")
		}

		if err := tx.Model(&models.Settlement{}).Where("id = ? AND resident_count > 0", settlementID).Update("resident_count", gorm.Expr("resident_count - 1")).Error; err != nil {
			return errors.Wrap(err, errors.ErrCodeInternalError, "failed to update resident count")
		}
		return nil
	})
}

// Delete removes a realm or settlement from the world and tells listeners
// once the rows are gone. Settlements of a deleted realm become independent.
func (r *WorldRepository) Delete(ctx context.Context, ref models.EntityRef) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var result *gorm.DB
		switch ref.Kind {
		case models.EntityKindRealm:
			if err := tx.Model(&models.Settlement{}).Where("realm_id = ?", ref.ID).Update("realm_id", nil).Error; err != nil {
				return errors.Wrap(err, errors.ErrCodeInternalError, "failed to detach settlements")
			}
			result = tx.Where("id = ?", ref.ID).Delete(&models.Realm{})
		case models.EntityKindSettlement:
			if err := tx.Where("settlement_id = ?", ref.ID).Delete(&models.SettlementResident{}).Error; err != nil {
				return errors.Wrap(err, errors.ErrCodeInternalError, "failed to remove residents")
			}
			result = tx.Where("id = ?", ref.ID).Delete(&models.Settlement{})
		default:
			return errors.New(errors.ErrCodeValidation, "unknown entity kind")
		}
		if result.Error != nil {
			return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to delete entity")
		}
		if result.RowsAffected == 0 {
			return errors.New(errors.ErrCodeNotFound, "entity not found")
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.mu.RLock()
	listeners := append([]DeletionListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, l := range listeners {
		l(ref)
	}
	return nil
}

func (r *WorldRepository) realmEntity(ctx context.Context, realm models.Realm) services.Entity {
	var residents int64
	err := r.db.WithContext(ctx).Model(&models.Settlement{}).
		Select("COALESCE(SUM(resident_count), 0)").
		Where("realm_id = ?", realm.ID).
		Scan(&residents).Error
	if err != nil {
		logger.Warn("Failed to count realm residents", "realm", realm.ID, "error", err)
	}
	return services.Entity{
		Ref:       models.RealmRef(realm.ID),
		Name:      realm.Name,
		Residents: int(residents),
	}
}

func (r *WorldRepository) logLookupError(err error, ref models.EntityRef) {
	if err == gorm.ErrRecordNotFound {
		logger.Debug("Entity not found in world", "entity", ref.String())
		return
	}
	logger.Warn("Failed to look up entity", "entity", ref.String(), "error", err)
}

func settlementEntity(s models.Settlement) services.Entity {
	entity := services.Entity{
		Ref:       models.SettlementRef(s.ID),
		Name:      s.Name,
		Residents: s.ResidentCount,
	}
	if s.RealmID != nil {
		entity.RealmID = *s.RealmID
	}
	return entity
}
