package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mroshb/statecraft/internal/models"
	"github.com/mroshb/statecraft/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var entityKey = []clause.Column{{Name: "entity_id"}, {Name: "entity_kind"}}

// EntityRepository stores Authority, Decadence and government rows for both
// entity kinds.
type EntityRepository struct {
	db *gorm.DB
}

func NewEntityRepository(db *gorm.DB) *EntityRepository {
	return &EntityRepository{db: db}
}

func (r *EntityRepository) LoadAllAuthority(ctx context.Context, kind models.EntityKind) (map[uuid.UUID]float64, error) {
	var records []models.AuthorityRecord
	if err := r.db.WithContext(ctx).Where("entity_kind = ?", kind).Find(&records).Error; err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to load authority")
	}

	amounts := make(map[uuid.UUID]float64, len(records))
	for _, rec := range records {
		amounts[rec.EntityID] = rec.Amount
	}
	return amounts, nil
}

func (r *EntityRepository) SaveAuthority(ctx context.Context, ref models.EntityRef, amount float64) error {
	rec := &models.AuthorityRecord{EntityID: ref.ID, EntityKind: ref.Kind, Amount: amount}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   entityKey,
		DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
	}).Create(rec).Error
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to save authority")
	}
	return nil
}

func (r *EntityRepository) LoadAllDecadence(ctx context.Context, kind models.EntityKind) (map[uuid.UUID]float64, error) {
	var records []models.DecadenceRecord
	if err := r.db.WithContext(ctx).Where("entity_kind = ?", kind).Find(&records).Error; err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to load decadence")
	}

	amounts := make(map[uuid.UUID]float64, len(records))
	for _, rec := range records {
		amounts[rec.EntityID] = rec.Amount
	}
	return amounts, nil
}

func (r *EntityRepository) SaveDecadence(ctx context.Context, ref models.EntityRef, amount float64) error {
	rec := &models.DecadenceRecord{EntityID: ref.ID, EntityKind: ref.Kind, Amount: amount}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   entityKey,
		DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
	}).Create(rec).Error
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to save decadence")
	}
	return nil
}

func (r *EntityRepository) LoadAllGovernments(ctx context.Context, kind models.EntityKind) (map[uuid.UUID]models.GovernmentState, error) {
	var records []models.GovernmentRecord
	if err := r.db.WithContext(ctx).Where("entity_kind = ?", kind).Find(&records).Error; err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to load governments")
	}

	states := make(map[uuid.UUID]models.GovernmentState, len(records))
	for i := range records {
		states[records[i].EntityID] = records[i].State()
	}
	return states, nil
}

func (r *EntityRepository) SaveGovernment(ctx context.Context, ref models.EntityRef, state models.GovernmentState) error {
	rec := &models.GovernmentRecord{EntityID: ref.ID, EntityKind: ref.Kind, Mode: state.Mode}
	if state.HasChanged() {
		changed := state.ChangedAt.UTC()
		rec.LastChangeTime = &changed
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   entityKey,
		DoUpdates: clause.AssignmentColumns([]string{"mode", "last_change_time"}),
	}).Create(rec).Error
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to save government")
	}
	return nil
}

// SaveAll is a no-op: every mutation is written through.
func (r *EntityRepository) SaveAll(ctx context.Context) error {
	return nil
}

// PolicyRepository stores active policy instances.
type PolicyRepository struct {
	db *gorm.DB
}

func NewPolicyRepository(db *gorm.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

func (r *PolicyRepository) LoadActivePolicies(ctx context.Context) ([]models.ActivePolicy, error) {
	var policies []models.ActivePolicy
	if err := r.db.WithContext(ctx).Order("enacted_at ASC").Find(&policies).Error; err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to load active policies")
	}
	return policies, nil
}

func (r *PolicyRepository) SaveActivePolicy(ctx context.Context, policy *models.ActivePolicy) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"expires_at"}),
	}).Create(policy).Error
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to save active policy")
	}
	return nil
}

func (r *PolicyRepository) RemoveActivePolicy(ctx context.Context, id uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ActivePolicy{}).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to remove active policy")
	}
	return nil
}

func (r *PolicyRepository) LoadPolicyChanges(ctx context.Context) (map[models.EntityRef]time.Time, error) {
	var records []models.PolicyChangeRecord
	if err := r.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to load policy changes")
	}

	changes := make(map[models.EntityRef]time.Time, len(records))
	for i := range records {
		changes[records[i].Ref()] = records[i].ChangedAt.UTC()
	}
	return changes, nil
}

func (r *PolicyRepository) SavePolicyChange(ctx context.Context, ref models.EntityRef, at time.Time) error {
	rec := &models.PolicyChangeRecord{EntityID: ref.ID, EntityKind: ref.Kind, ChangedAt: at.UTC()}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   entityKey,
		DoUpdates: clause.AssignmentColumns([]string{"changed_at"}),
	}).Create(rec).Error
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to save policy change")
	}
	return nil
}

func (r *PolicyRepository) RemovePolicyChange(ctx context.Context, ref models.EntityRef) error {
	err := r.db.WithContext(ctx).
		Where("entity_id = ? AND entity_kind = ?", ref.ID, ref.Kind).
		Delete(&models.PolicyChangeRecord{}).Error
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to remove policy change")
	}
	return nil
}

// VassalageRepository stores relationships and pending offers.
type VassalageRepository struct {
	db *gorm.DB
}

func NewVassalageRepository(db *gorm.DB) *VassalageRepository {
	return &VassalageRepository{db: db}
}

func (r *VassalageRepository) LoadRelationships(ctx context.Context) ([]models.VassalageRelationship, error) {
	var rels []models.VassalageRelationship
	if err := r.db.WithContext(ctx).Order("established_at ASC").Find(&rels).Error; err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to load vassalage relationships")
	}
	return rels, nil
}

func (r *VassalageRepository) SaveRelationship(ctx context.Context, rel *models.VassalageRelationship) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "suzerain_id"}, {Name: "vassal_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"tribute_rate", "last_tribute_at"}),
	}).Create(rel).Error
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to save vassalage relationship")
	}
	return nil
}

func (r *VassalageRepository) RemoveRelationship(ctx context.Context, suzerainID, vassalID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Where("suzerain_id = ? AND vassal_id = ?", suzerainID, vassalID).
		Delete(&models.VassalageRelationship{}).Error
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to remove vassalage relationship")
	}
	return nil
}

func (r *VassalageRepository) LoadOffers(ctx context.Context) ([]models.VassalageOffer, error) {
	var offers []models.VassalageOffer
	if err := r.db.WithContext(ctx).Order("offered_at ASC").Find(&offers).Error; err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to load vassalage offers")
	}
	return offers, nil
}

func (r *VassalageRepository) SaveOffer(ctx context.Context, offer *models.VassalageOffer) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"proposed_tribute_rate", "expires_at"}),
	}).Create(offer).Error
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to save vassalage offer")
	}
	return nil
}

func (r *VassalageRepository) RemoveOffer(ctx context.Context, id uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.VassalageOffer{}).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to remove vassalage offer")
	}
	return nil
}

func (r *VassalageRepository) RemoveExpiredOffers(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&models.VassalageOffer{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to remove expired offers")
	}
	return result.RowsAffected, nil
}
