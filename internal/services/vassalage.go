package services

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mroshb/statecraft/internal/config"
	"github.com/mroshb/statecraft/internal/models"
	"github.com/mroshb/statecraft/pkg/errors"
	"github.com/mroshb/statecraft/pkg/logger"
)

// VassalageService owns the suzerain/vassal graph between realms and the
// pending offers. A realm has at most one suzerain, and a vassal cannot take
// vassals of its own.
type VassalageService struct {
	store       VassalageStore
	ledger      *Ledger
	governments *GovernmentRegistry
	dir         Directory
	rules       config.RulesSource
	now         Clock

	bySuzerain map[uuid.UUID]map[uuid.UUID]*models.VassalageRelationship
	byVassal   map[uuid.UUID]*models.VassalageRelationship
	offers     map[uuid.UUID]*models.VassalageOffer
}

func NewVassalageService(store VassalageStore, ledger *Ledger, governments *GovernmentRegistry, dir Directory, rules config.RulesSource, now Clock) *VassalageService {
	return &VassalageService{
		store:       store,
		ledger:      ledger,
		governments: governments,
		dir:         dir,
		rules:       rules,
		now:         now,
		bySuzerain:  make(map[uuid.UUID]map[uuid.UUID]*models.VassalageRelationship),
		byVassal:    make(map[uuid.UUID]*models.VassalageRelationship),
		offers:      make(map[uuid.UUID]*models.VassalageOffer),
	}
}

// Load reads relationships and offers, then sweeps expired offers.
func (s *VassalageService) Load(ctx context.Context) error {
	relationships, err := s.store.LoadRelationships(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to load vassalage relationships")
	}
	offers, err := s.store.LoadOffers(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to load vassalage offers")
	}

	s.bySuzerain = make(map[uuid.UUID]map[uuid.UUID]*models.VassalageRelationship)
	s.byVassal = make(map[uuid.UUID]*models.VassalageRelationship)
	s.offers = make(map[uuid.UUID]*models.VassalageOffer)

	for i := range relationships {
		rel := relationships[i]
		if existing, ok := s.byVassal[rel.VassalID]; ok {
			logger.Warn("Vassal has more than one stored suzerain, keeping the first",
				"vassal", rel.VassalID, "kept", existing.SuzerainID, "ignored", rel.SuzerainID)
			continue
		}
		s.index(&rel)
	}
	for i := range offers {
		offer := offers[i]
		s.offers[offer.ID] = &offer
	}

	swept := s.SweepExpiredOffers(ctx)
	logger.Info("Vassalage loaded", "relationships", len(s.byVassal), "offers", len(s.offers), "expired_offers", swept)
	return nil
}

// CanForm reports whether suzerain could take target as a vassal right now.
func (s *VassalageService) CanForm(suzerain, target uuid.UUID) bool {
	return s.checkFormation(suzerain, target) == nil
}

func (s *VassalageService) checkFormation(suzerain, target uuid.UUID) error {
	if suzerain == target {
		return errors.New(errors.ErrCodeVassalageNotAllowed, "a realm cannot be its own vassal")
	}
	if s.IsVassal(target) || s.IsSuzerain(target) {
		return errors.New(errors.ErrCodeVassalageNotAllowed, "target is already part of a vassalage")
	}
	if s.IsVassal(suzerain) {
		return errors.New(errors.ErrCodeVassalageNotAllowed, "a vassal cannot take vassals")
	}

	rules := s.rules.Current().Vassalage
	if authority := s.ledger.Authority(models.RealmRef(suzerain)); authority < rules.MinSuzerainAuthority {
		return errors.Newf(errors.ErrCodeInsufficientAuthority, "a suzerain needs %.0f authority, have %.1f", rules.MinSuzerainAuthority, authority)
	}
	for _, id := range []uuid.UUID{suzerain, target} {
		if mode := s.governments.Mode(models.RealmRef(id)); rules.IsIncompatible(mode) {
			return errors.Newf(errors.ErrCodeIncompatibleGovernment, "%s governments cannot take part in vassalage", mode)
		}
	}
	return nil
}

// CreateOffer proposes vassalage to target. The rate is clamped to the
// configured maximum and replaces any earlier offer from suzerain to target.
func (s *VassalageService) CreateOffer(ctx context.Context, suzerain, target uuid.UUID, tributeRate float64) (*models.VassalageOffer, error) {
	if suzerain == uuid.Nil || target == uuid.Nil {
		return nil, errors.New(errors.ErrCodeValidation, "suzerain and target are required")
	}
	for _, id := range []uuid.UUID{suzerain, target} {
		if _, ok := s.dir.Lookup(ctx, models.RealmRef(id)); !ok {
			return nil, errors.Newf(errors.ErrCodeUnknownEntity, "realm %s does not exist", id)
		}
	}
	if err := s.checkFormation(suzerain, target); err != nil {
		return nil, err
	}

	for id, existing := range s.offers {
		if existing.SuzerainID == suzerain && existing.TargetID == target {
			s.removeOffer(ctx, id)
		}
	}

	rules := s.rules.Current().Vassalage
	offer := models.NewVassalageOffer(suzerain, target, rules.ClampTributeRate(tributeRate), s.now(), rules.OfferExpiry)
	s.offers[offer.ID] = offer
	if err := s.store.SaveOffer(ctx, offer); err != nil {
		logger.Warn("Failed to persist vassalage offer", "offer", offer.ID, "error", err)
	}

	logger.Info("Vassalage offered", "suzerain", suzerain, "target", target, "rate", offer.ProposedTributeRate)
	copied := *offer
	return &copied, nil
}

// WithdrawOffer cancels a pending offer made by suzerain.
func (s *VassalageService) WithdrawOffer(ctx context.Context, suzerain, offerID uuid.UUID) error {
	offer, ok := s.offers[offerID]
	if !ok {
		return errors.New(errors.ErrCodeNotFound, "offer not found")
	}
	if offer.SuzerainID != suzerain {
		return errors.New(errors.ErrCodeOfferMismatch, "offer was made by another realm")
	}
	s.removeOffer(ctx, offerID)
	return nil
}

// AcceptOffer turns an offer into a relationship once the formation rules
// still hold. All other offers between the two realms are dropped.
func (s *VassalageService) AcceptOffer(ctx context.Context, offerID, accepting uuid.UUID) (*models.VassalageRelationship, error) {
	offer, ok := s.offers[offerID]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "offer not found")
	}
	now := s.now()
	if offer.IsExpired(now) {
		s.removeOffer(ctx, offerID)
		return nil, errors.New(errors.ErrCodeOfferExpired, "offer has expired")
	}
	if offer.TargetID != accepting {
		return nil, errors.New(errors.ErrCodeOfferMismatch, "offer was made to another realm")
	}
	if _, ok := s.dir.Lookup(ctx, models.RealmRef(offer.SuzerainID)); !ok {
		logger.Debug("Offer from vanished suzerain dropped", "offer", offerID, "suzerain", offer.SuzerainID)
		s.removeOffer(ctx, offerID)
		return nil, errors.New(errors.ErrCodeUnknownEntity, "the offering realm no longer exists")
	}
	if err := s.checkFormation(offer.SuzerainID, accepting); err != nil {
		return nil, err
	}

	rel := &models.VassalageRelationship{
		SuzerainID:    offer.SuzerainID,
		VassalID:      accepting,
		TributeRate:   s.rules.Current().Vassalage.ClampTributeRate(offer.ProposedTributeRate),
		EstablishedAt: now,
	}
	s.index(rel)
	if err := s.store.SaveRelationship(ctx, rel); err != nil {
		logger.Warn("Failed to persist vassalage relationship", "suzerain", rel.SuzerainID, "vassal", rel.VassalID, "error", err)
	}

	for id, other := range s.offers {
		if other.Between(rel.SuzerainID, rel.VassalID) {
			s.removeOffer(ctx, id)
		}
	}

	logger.Info("Vassalage formed", "suzerain", rel.SuzerainID, "vassal", rel.VassalID, "rate", rel.TributeRate)
	copied := *rel
	return &copied, nil
}

// Release frees a vassal at its suzerain's request.
func (s *VassalageService) Release(ctx context.Context, suzerain, vassal uuid.UUID) error {
	rel, ok := s.byVassal[vassal]
	if !ok || rel.SuzerainID != suzerain {
		return errors.New(errors.ErrCodeNoRelationship, "realm is not your vassal")
	}
	s.dissolve(ctx, rel, "released")
	return nil
}

// Break lets a vassal buy its freedom for the configured Authority cost.
func (s *VassalageService) Break(ctx context.Context, vassal uuid.UUID) error {
	rel, ok := s.byVassal[vassal]
	if !ok {
		return errors.New(errors.ErrCodeNoRelationship, "realm has no suzerain")
	}
	cost := s.rules.Current().Vassalage.BreakCost
	if !s.ledger.RemoveAuthority(ctx, models.RealmRef(vassal), cost) {
		return errors.Newf(errors.ErrCodeInsufficientAuthority, "breaking vassalage costs %.0f authority", cost)
	}
	s.dissolve(ctx, rel, "broken")
	return nil
}

// SetTributeRate changes the rate of an existing relationship, clamped to the maximum.
func (s *VassalageService) SetTributeRate(ctx context.Context, suzerain, vassal uuid.UUID, rate float64) error {
	rel, ok := s.byVassal[vassal]
	if !ok || rel.SuzerainID != suzerain {
		return errors.New(errors.ErrCodeNoRelationship, "realm is not your vassal")
	}
	rel.TributeRate = s.rules.Current().Vassalage.ClampTributeRate(rate)
	if err := s.store.SaveRelationship(ctx, rel); err != nil {
		logger.Warn("Failed to persist tribute rate", "suzerain", suzerain, "vassal", vassal, "error", err)
	}
	logger.Info("Tribute rate changed", "suzerain", suzerain, "vassal", vassal, "rate", rel.TributeRate)
	return nil
}

// OnGovernmentModeChange dissolves every tie of a realm that adopts a mode
// incompatible with vassalage. No Authority is charged.
func (s *VassalageService) OnGovernmentModeChange(ctx context.Context, ref models.EntityRef, oldMode, newMode models.GovernmentMode) {
	if !ref.IsRealm() || !s.rules.Current().Vassalage.IsIncompatible(newMode) {
		return
	}
	for _, rel := range s.vassalsOf(ref.ID) {
		s.dissolve(ctx, rel, "government_change")
	}
	if rel, ok := s.byVassal[ref.ID]; ok {
		s.dissolve(ctx, rel, "government_change")
	}
	logger.Debug("Vassalage checked after government change", "realm", ref.ID, "from", oldMode, "to", newMode)
}

// WouldBreakOnModeChange reports whether adopting mode would dissolve any of the realm's ties.
func (s *VassalageService) WouldBreakOnModeChange(realm uuid.UUID, mode models.GovernmentMode) bool {
	if !s.rules.Current().Vassalage.IsIncompatible(mode) {
		return false
	}
	return s.IsSuzerain(realm) || s.IsVassal(realm)
}

// BreakImpact describes the ties a realm holds, for warnings before a switch.
func (s *VassalageService) BreakImpact(realm uuid.UUID) (isSuzerain bool, vassalCount int, isVassal bool) {
	vassalCount = len(s.bySuzerain[realm])
	return vassalCount > 0, vassalCount, s.IsVassal(realm)
}

// CanDeclareEnemy reports whether attacker may declare target an enemy. A
// vassal is protected unless the attacker is its suzerain or already at war
// with that suzerain.
func (s *VassalageService) CanDeclareEnemy(attacker, target uuid.UUID, atWar func(a, b uuid.UUID) bool) bool {
	rel, ok := s.byVassal[target]
	if !ok {
		return true
	}
	if rel.SuzerainID == attacker {
		return true
	}
	return atWar != nil && atWar(attacker, rel.SuzerainID)
}

func (s *VassalageService) MaintenanceCost(suzerain uuid.UUID) float64 {
	return float64(len(s.bySuzerain[suzerain])) * s.rules.Current().Vassalage.MaintenancePerVassal
}

// ProcessMaintenance charges every suzerain for its vassals. A suzerain that
// cannot pay in full loses all of them. Returns the number of released vassals.
func (s *VassalageService) ProcessMaintenance(ctx context.Context) int {
	released := 0
	for _, suzerain := range s.suzerainIDs() {
		ref := models.RealmRef(suzerain)
		if _, ok := s.dir.Lookup(ctx, ref); !ok {
			logger.Debug("Suzerain no longer exists, removing its vassalage", "suzerain", suzerain)
			released += s.RemoveAllForEntity(ctx, suzerain)
			continue
		}

		cost := s.MaintenanceCost(suzerain)
		if s.ledger.RemoveAuthority(ctx, ref, cost) {
			continue
		}

		vassals := s.vassalsOf(suzerain)
		for _, rel := range vassals {
			s.dissolve(ctx, rel, "maintenance_unpaid")
		}
		released += len(vassals)
		logger.Info("Suzerain could not pay maintenance, vassals released",
			"suzerain", suzerain, "cost", cost, "authority", s.ledger.Authority(ref), "released", len(vassals))
	}
	return released
}

// SweepExpiredOffers removes offers past their expiry from memory and storage.
func (s *VassalageService) SweepExpiredOffers(ctx context.Context) int {
	now := s.now()
	removed := 0
	for id, offer := range s.offers {
		if offer.IsExpired(now) {
			delete(s.offers, id)
			removed++
		}
	}
	if _, err := s.store.RemoveExpiredOffers(ctx, now); err != nil {
		logger.Warn("Failed to remove expired offers from storage", "error", err)
	}
	return removed
}

// RemoveAllForEntity purges every relationship and offer that references a
// deleted realm. Returns the number of relationships removed.
func (s *VassalageService) RemoveAllForEntity(ctx context.Context, realm uuid.UUID) int {
	removed := 0
	for _, rel := range s.vassalsOf(realm) {
		s.dissolve(ctx, rel, "entity_deleted")
		removed++
	}
	if rel, ok := s.byVassal[realm]; ok {
		s.dissolve(ctx, rel, "entity_deleted")
		removed++
	}
	for id, offer := range s.offers {
		if offer.Involves(realm) {
			s.removeOffer(ctx, id)
		}
	}
	return removed
}

// RecordTribute stamps the last tribute time of a relationship that still exists.
func (s *VassalageService) RecordTribute(ctx context.Context, suzerain, vassal uuid.UUID, at time.Time) bool {
	rel, ok := s.byVassal[vassal]
	if !ok || rel.SuzerainID != suzerain {
		return false
	}
	rel.LastTributeAt = &at
	if err := s.store.SaveRelationship(ctx, rel); err != nil {
		logger.Warn("Failed to persist tribute time", "suzerain", suzerain, "vassal", vassal, "error", err)
	}
	return true
}

func (s *VassalageService) IsSuzerain(realm uuid.UUID) bool {
	return len(s.bySuzerain[realm]) > 0
}

func (s *VassalageService) IsVassal(realm uuid.UUID) bool {
	_, ok := s.byVassal[realm]
	return ok
}

// Suzerain returns the relationship in which realm is the vassal.
func (s *VassalageService) Suzerain(realm uuid.UUID) (models.VassalageRelationship, bool) {
	rel, ok := s.byVassal[realm]
	if !ok {
		return models.VassalageRelationship{}, false
	}
	return *rel, true
}

func (s *VassalageService) Relationship(suzerain, vassal uuid.UUID) (models.VassalageRelationship, bool) {
	rel, ok := s.byVassal[vassal]
	if !ok || rel.SuzerainID != suzerain {
		return models.VassalageRelationship{}, false
	}
	return *rel, true
}

// Vassals lists the vassals of suzerain, oldest first.
func (s *VassalageService) Vassals(suzerain uuid.UUID) []models.VassalageRelationship {
	rels := s.vassalsOf(suzerain)
	out := make([]models.VassalageRelationship, 0, len(rels))
	for _, rel := range rels {
		out = append(out, *rel)
	}
	return out
}

// Relationships lists every relationship, grouped by suzerain.
func (s *VassalageService) Relationships() []models.VassalageRelationship {
	var out []models.VassalageRelationship
	for _, suzerain := range s.suzerainIDs() {
		out = append(out, s.Vassals(suzerain)...)
	}
	return out
}

// Offer returns a pending offer. Expired offers are treated as gone.
func (s *VassalageService) Offer(id uuid.UUID) (models.VassalageOffer, bool) {
	offer, ok := s.offers[id]
	if !ok || offer.IsExpired(s.now()) {
		return models.VassalageOffer{}, false
	}
	return *offer, true
}

func (s *VassalageService) OffersTo(target uuid.UUID) []models.VassalageOffer {
	return s.pendingOffers(func(o *models.VassalageOffer) bool { return o.TargetID == target })
}

func (s *VassalageService) OffersFrom(suzerain uuid.UUID) []models.VassalageOffer {
	return s.pendingOffers(func(o *models.VassalageOffer) bool { return o.SuzerainID == suzerain })
}

func (s *VassalageService) pendingOffers(match func(*models.VassalageOffer) bool) []models.VassalageOffer {
	now := s.now()
	var out []models.VassalageOffer
	for _, offer := range s.offers {
		if !offer.IsExpired(now) && match(offer) {
			out = append(out, *offer)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OfferedAt.Equal(out[j].OfferedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].OfferedAt.Before(out[j].OfferedAt)
	})
	return out
}

func (s *VassalageService) index(rel *models.VassalageRelationship) {
	if s.bySuzerain[rel.SuzerainID] == nil {
		s.bySuzerain[rel.SuzerainID] = make(map[uuid.UUID]*models.VassalageRelationship)
	}
	s.bySuzerain[rel.SuzerainID][rel.VassalID] = rel
	s.byVassal[rel.VassalID] = rel
}

func (s *VassalageService) dissolve(ctx context.Context, rel *models.VassalageRelationship, reason string) {
	delete(s.byVassal, rel.VassalID)
	if vassals := s.bySuzerain[rel.SuzerainID]; vassals != nil {
		delete(vassals, rel.VassalID)
		if len(vassals) == 0 {
			delete(s.bySuzerain, rel.SuzerainID)
		}
	}
	if err := s.store.RemoveRelationship(ctx, rel.SuzerainID, rel.VassalID); err != nil {
		logger.Warn("Failed to remove stored relationship", "suzerain", rel.SuzerainID, "vassal", rel.VassalID, "error", err)
	}
	logger.Info("Vassalage ended", "suzerain", rel.SuzerainID, "vassal", rel.VassalID, "reason", reason)
}

func (s *VassalageService) removeOffer(ctx context.Context, id uuid.UUID) {
	delete(s.offers, id)
	if err := s.store.RemoveOffer(ctx, id); err != nil {
		logger.Warn("Failed to remove stored offer", "offer", id, "error", err)
	}
}

func (s *VassalageService) vassalsOf(suzerain uuid.UUID) []*models.VassalageRelationship {
	rels := make([]*models.VassalageRelationship, 0, len(s.bySuzerain[suzerain]))
	for _, rel := range s.bySuzerain[suzerain] {
		rels = append(rels, rel)
	}
	sort.Slice(rels, func(i, j int) bool {
		if rels[i].EstablishedAt.Equal(rels[j].EstablishedAt) {
			return rels[i].VassalID.String() < rels[j].VassalID.String()
		}
		return rels[i].EstablishedAt.Before(rels[j].EstablishedAt)
	})
	return rels
}

func (s *VassalageService) suzerainIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s.bySuzerain))
	for id := range s.bySuzerain {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}
