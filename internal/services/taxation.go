package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/mroshb/statecraft/internal/models"
)

// TaxationService applies realm decadence to settlement tax limits and to collected taxes.
type TaxationService struct {
	ledger *Ledger
	dir    Directory
}

func NewTaxationService(ledger *Ledger, dir Directory) *TaxationService {
	return &TaxationService{ledger: ledger, dir: dir}
}

// ModifiedMaxTaxRate scales a settlement's tax ceiling by its realm's decadence.
// Settlements outside a realm keep the base ceiling.
func (s *TaxationService) ModifiedMaxTaxRate(ctx context.Context, settlement uuid.UUID, base float64) float64 {
	entity, ok := s.dir.Lookup(ctx, models.SettlementRef(settlement))
	if !ok || !entity.HasRealm() {
		return base
	}
	return base * s.ledger.DecadenceEffects(models.RealmRef(entity.RealmID)).TaxationMax
}

// TaxPenalty is the share of a realm's taxes lost to decadence.
func (s *TaxationService) TaxPenalty(realm uuid.UUID) float64 {
	return s.ledger.DecadenceEffects(models.RealmRef(realm)).TaxPenalty
}

// NetTax is what reaches the realm treasury out of collected.
func (s *TaxationService) NetTax(realm uuid.UUID, collected float64) float64 {
	return collected * (1 - s.TaxPenalty(realm))
}
