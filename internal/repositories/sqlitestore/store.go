// Package sqlitestore keeps the political state in an embedded SQLite file.
package sqlitestore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/mroshb/statecraft/internal/models"
	"github.com/mroshb/statecraft/pkg/logger"
)

// Store implements the entity, policy and vassalage stores on one SQLite database.
type Store struct {
	conn *sqlx.DB
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection keeps an in-memory database alive and serialises writers.
	conn.SetMaxOpenConns(1)

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS authority (
		entity_id TEXT NOT NULL,
		entity_kind TEXT NOT NULL,
		amount REAL NOT NULL,
		PRIMARY KEY (entity_id, entity_kind)
	);

	CREATE TABLE IF NOT EXISTS decadence (
		entity_id TEXT NOT NULL,
		entity_kind TEXT NOT NULL,
		amount REAL NOT NULL,
		PRIMARY KEY (entity_id, entity_kind)
	);

	CREATE TABLE IF NOT EXISTS government (
		entity_id TEXT NOT NULL,
		entity_kind TEXT NOT NULL,
		mode TEXT NOT NULL,
		last_change_time INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (entity_id, entity_kind)
	);

	CREATE TABLE IF NOT EXISTS active_policies (
		id TEXT PRIMARY KEY,
		policy_id TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		is_realm INTEGER NOT NULL,
		enacted_at INTEGER NOT NULL,
		expires_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS policy_changes (
		entity_id TEXT NOT NULL,
		entity_kind TEXT NOT NULL,
		changed_at INTEGER NOT NULL,
		PRIMARY KEY (entity_id, entity_kind)
	);

	CREATE TABLE IF NOT EXISTS vassalage_relationships (
		suzerain_id TEXT NOT NULL,
		vassal_id TEXT NOT NULL UNIQUE,
		tribute_rate REAL NOT NULL,
		established_at INTEGER NOT NULL,
		last_tribute_at INTEGER,
		PRIMARY KEY (suzerain_id, vassal_id)
	);

	CREATE TABLE IF NOT EXISTS vassalage_offers (
		offer_id TEXT PRIMARY KEY,
		suzerain_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		rate REAL NOT NULL,
		offer_time INTEGER NOT NULL,
		expiry_time INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_active_policies_entity ON active_policies(entity_id, is_realm);
	CREATE INDEX IF NOT EXISTS idx_offers_expiry ON vassalage_offers(expiry_time);
	`
	_, err := s.conn.Exec(schema)
	return err
}

type amountRow struct {
	EntityID string  `db:"entity_id"`
	Amount   float64 `db:"amount"`
}

func (s *Store) LoadAllAuthority(ctx context.Context, kind models.EntityKind) (map[uuid.UUID]float64, error) {
	return s.loadAmounts(ctx, "authority", kind)
}

func (s *Store) SaveAuthority(ctx context.Context, ref models.EntityRef, amount float64) error {
	return s.saveAmount(ctx, "authority", ref, amount)
}

func (s *Store) LoadAllDecadence(ctx context.Context, kind models.EntityKind) (map[uuid.UUID]float64, error) {
	return s.loadAmounts(ctx, "decadence", kind)
}

func (s *Store) SaveDecadence(ctx context.Context, ref models.EntityRef, amount float64) error {
	return s.saveAmount(ctx, "decadence", ref, amount)
}

// table is one of the two fixed names above, never user input.
func (s *Store) loadAmounts(ctx context.Context, table string, kind models.EntityKind) (map[uuid.UUID]float64, error) {
	var rows []amountRow
	query := "SELECT entity_id, amount FROM " + table + " WHERE entity_kind = ?"
	if err := s.conn.SelectContext(ctx, &rows, query, string(kind)); err != nil {
		return nil, fmt.Errorf("load %s: %w", table, err)
	}

	out := make(map[uuid.UUID]float64, len(rows))
	for _, row := range rows {
		id, err := uuid.Parse(row.EntityID)
		if err != nil {
			logger.Warn("Skipping row with malformed entity id", "table", table, "entity_id", row.EntityID)
			continue
		}
		out[id] = row.Amount
	}
	return out, nil
}

func (s *Store) saveAmount(ctx context.Context, table string, ref models.EntityRef, amount float64) error {
	query := "INSERT INTO " + table + ` (entity_id, entity_kind, amount) VALUES (?, ?, ?)
		ON CONFLICT(entity_id, entity_kind) DO UPDATE SET amount = excluded.amount`
	if _, err := s.conn.ExecContext(ctx, query, ref.ID.String(), string(ref.Kind), amount); err != nil {
		return fmt.Errorf("save %s: %w", table, err)
	}
	return nil
}

type governmentRow struct {
	EntityID       string `db:"entity_id"`
	Mode           string `db:"mode"`
	LastChangeTime int64  `db:"last_change_time"`
}

func (s *Store) LoadAllGovernments(ctx context.Context, kind models.EntityKind) (map[uuid.UUID]models.GovernmentState, error) {
	var rows []governmentRow
	err := s.conn.SelectContext(ctx, &rows,
		"SELECT entity_id, mode, last_change_time FROM government WHERE entity_kind = ?", string(kind))
	if err != nil {
		return nil, fmt.Errorf("load government: %w", err)
	}

	out := make(map[uuid.UUID]models.GovernmentState, len(rows))
	for _, row := range rows {
		id, err := uuid.Parse(row.EntityID)
		if err != nil {
			logger.Warn("Skipping row with malformed entity id", "table", "government", "entity_id", row.EntityID)
			continue
		}
		state := models.GovernmentState{Mode: models.GovernmentMode(row.Mode)}
		if row.LastChangeTime > 0 {
			state.ChangedAt = time.UnixMilli(row.LastChangeTime).UTC()
		}
		out[id] = state
	}
	return out, nil
}

func (s *Store) SaveGovernment(ctx context.Context, ref models.EntityRef, state models.GovernmentState) error {
	var changed int64
	if state.HasChanged() {
		changed = state.ChangedAt.UnixMilli()
	}
	_, err := s.conn.ExecContext(ctx, `INSERT INTO government (entity_id, entity_kind, mode, last_change_time)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entity_id, entity_kind) DO UPDATE SET mode = excluded.mode, last_change_time = excluded.last_change_time`,
		ref.ID.String(), string(ref.Kind), string(state.Mode), changed)
	if err != nil {
		return fmt.Errorf("save government: %w", err)
	}
	return nil
}

// SaveAll is a no-op: every save is written immediately.
func (s *Store) SaveAll(ctx context.Context) error {
	return nil
}

type activePolicyRow struct {
	ID        string `db:"id"`
	PolicyID  string `db:"policy_id"`
	EntityID  string `db:"entity_id"`
	IsRealm   bool   `db:"is_realm"`
	EnactedAt int64  `db:"enacted_at"`
	ExpiresAt *int64 `db:"expires_at"`
}

func (s *Store) LoadActivePolicies(ctx context.Context) ([]models.ActivePolicy, error) {
	var rows []activePolicyRow
	err := s.conn.SelectContext(ctx, &rows,
		"SELECT id, policy_id, entity_id, is_realm, enacted_at, expires_at FROM active_policies ORDER BY enacted_at")
	if err != nil {
		return nil, fmt.Errorf("load active policies: %w", err)
	}

	out := make([]models.ActivePolicy, 0, len(rows))
	for _, row := range rows {
		id, err1 := uuid.Parse(row.ID)
		entityID, err2 := uuid.Parse(row.EntityID)
		if err1 != nil || err2 != nil {
			logger.Warn("Skipping malformed active policy row", "id", row.ID, "entity_id", row.EntityID)
			continue
		}
		p := models.ActivePolicy{
			ID:        id,
			PolicyID:  row.PolicyID,
			EntityID:  entityID,
			IsRealm:   row.IsRealm,
			EnactedAt: time.UnixMilli(row.EnactedAt).UTC(),
		}
		if row.ExpiresAt != nil {
			expires := time.UnixMilli(*row.ExpiresAt).UTC()
			p.ExpiresAt = &expires
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) SaveActivePolicy(ctx context.Context, p *models.ActivePolicy) error {
	var expires *int64
	if p.ExpiresAt != nil {
		ms := p.ExpiresAt.UnixMilli()
		expires = &ms
	}
	_, err := s.conn.ExecContext(ctx, `INSERT INTO active_policies (id, policy_id, entity_id, is_realm, enacted_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET expires_at = excluded.expires_at`,
		p.ID.String(), p.PolicyID, p.EntityID.String(), p.IsRealm, p.EnactedAt.UnixMilli(), expires)
	if err != nil {
		return fmt.Errorf("save active policy: %w", err)
	}
	return nil
}

func (s *Store) RemoveActivePolicy(ctx context.Context, id uuid.UUID) error {
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM active_policies WHERE id = ?", id.String()); err != nil {
		return fmt.Errorf("remove active policy: %w", err)
	}
	return nil
}

type policyChangeRow struct {
	EntityID   string `db:"entity_id"`
	EntityKind string `db:"entity_kind"`
	ChangedAt  int64  `db:"changed_at"`
}

func (s *Store) LoadPolicyChanges(ctx context.Context) (map[models.EntityRef]time.Time, error) {
	var rows []policyChangeRow
	if err := s.conn.SelectContext(ctx, &rows, "SELECT entity_id, entity_kind, changed_at FROM policy_changes"); err != nil {
		return nil, fmt.Errorf("load policy changes: %w", err)
	}

	out := make(map[models.EntityRef]time.Time, len(rows))
	for _, row := range rows {
		id, err := uuid.Parse(row.EntityID)
		if err != nil {
			logger.Warn("Skipping row with malformed entity id", "table", "policy_changes", "entity_id", row.EntityID)
			continue
		}
		out[models.EntityRef{ID: id, Kind: models.EntityKind(row.EntityKind)}] = time.UnixMilli(row.ChangedAt).UTC()
	}
	return out, nil
}

func (s *Store) SavePolicyChange(ctx context.Context, ref models.EntityRef, at time.Time) error {
	_, err := s.conn.ExecContext(ctx, `INSERT INTO policy_changes (entity_id, entity_kind, changed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(entity_id, entity_kind) DO UPDATE SET changed_at = excluded.changed_at`,
		ref.ID.String(), string(ref.Kind), at.UnixMilli())
	if err != nil {
		return fmt.Errorf("save policy change: %w", err)
	}
	return nil
}

func (s *Store) RemovePolicyChange(ctx context.Context, ref models.EntityRef) error {
	_, err := s.conn.ExecContext(ctx, "DELETE FROM policy_changes WHERE entity_id = ? AND entity_kind = ?",
		ref.ID.String(), string(ref.Kind))
	if err != nil {
		return fmt.Errorf("remove policy change: %w", err)
	}
	return nil
}

type relationshipRow struct {
	SuzerainID    string  `db:"suzerain_id"`
	VassalID      string  `db:"vassal_id"`
	TributeRate   float64 `db:"tribute_rate"`
	EstablishedAt int64   `db:"established_at"`
	LastTributeAt *int64  `db:"last_tribute_at"`
}

func (s *Store) LoadRelationships(ctx context.Context) ([]models.VassalageRelationship, error) {
	var rows []relationshipRow
	err := s.conn.SelectContext(ctx, &rows,
		"SELECT suzerain_id, vassal_id, tribute_rate, established_at, last_tribute_at FROM vassalage_relationships ORDER BY established_at")
	if err != nil {
		return nil, fmt.Errorf("load relationships: %w", err)
	}

	out := make([]models.VassalageRelationship, 0, len(rows))
	for _, row := range rows {
		suzerain, err1 := uuid.Parse(row.SuzerainID)
		vassal, err2 := uuid.Parse(row.VassalID)
		if err1 != nil || err2 != nil {
			logger.Warn("Skipping malformed relationship row", "suzerain", row.SuzerainID, "vassal", row.VassalID)
			continue
		}
		rel := models.VassalageRelationship{
			SuzerainID:    suzerain,
			VassalID:      vassal,
			TributeRate:   row.TributeRate,
			EstablishedAt: time.UnixMilli(row.EstablishedAt).UTC(),
		}
		if row.LastTributeAt != nil {
			last := time.UnixMilli(*row.LastTributeAt).UTC()
			rel.LastTributeAt = &last
		}
		out = append(out, rel)
	}
	return out, nil
}

func (s *Store) SaveRelationship(ctx context.Context, rel *models.VassalageRelationship) error {
	var last *int64
	if rel.LastTributeAt != nil {
		ms := rel.LastTributeAt.UnixMilli()
		last = &ms
	}
	_, err := s.conn.ExecContext(ctx, `INSERT INTO vassalage_relationships
		(suzerain_id, vassal_id, tribute_rate, established_at, last_tribute_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(suzerain_id, vassal_id) DO UPDATE SET
			tribute_rate = excluded.tribute_rate,
			last_tribute_at = excluded.last_tribute_at`,
		rel.SuzerainID.String(), rel.VassalID.String(), rel.TributeRate, rel.EstablishedAt.UnixMilli(), last)
	if err != nil {
		return fmt.Errorf("save relationship: %w", err)
	}
	return nil
}

func (s *Store) RemoveRelationship(ctx context.Context, suzerainID, vassalID uuid.UUID) error {
	_, err := s.conn.ExecContext(ctx, "DELETE FROM vassalage_relationships WHERE suzerain_id = ? AND vassal_id = ?",
		suzerainID.String(), vassalID.String())
	if err != nil {
		return fmt.Errorf("remove relationship: %w", err)
	}
	return nil
}

type offerRow struct {
	OfferID    string  `db:"offer_id"`
	SuzerainID string  `db:"suzerain_id"`
	TargetID   string  `db:"target_id"`
	Rate       float64 `db:"rate"`
	OfferTime  int64   `db:"offer_time"`
	ExpiryTime int64   `db:"expiry_time"`
}

func (s *Store) LoadOffers(ctx context.Context) ([]models.VassalageOffer, error) {
	var rows []offerRow
	err := s.conn.SelectContext(ctx, &rows,
		"SELECT offer_id, suzerain_id, target_id, rate, offer_time, expiry_time FROM vassalage_offers ORDER BY offer_time")
	if err != nil {
		return nil, fmt.Errorf("load offers: %w", err)
	}

	out := make([]models.VassalageOffer, 0, len(rows))
	for _, row := range rows {
		id, err1 := uuid.Parse(row.OfferID)
		suzerain, err2 := uuid.Parse(row.SuzerainID)
		target, err3 := uuid.Parse(row.TargetID)
		if err1 != nil || err2 != nil || err3 != nil {
			logger.Warn("Skipping malformed offer row", "offer_id", row.OfferID)
			continue
		}
		out = append(out, models.VassalageOffer{
			ID:                  id,
			SuzerainID:          suzerain,
			TargetID:            target,
			ProposedTributeRate: row.Rate,
			OfferedAt:           time.UnixMilli(row.OfferTime).UTC(),
			ExpiresAt:           time.UnixMilli(row.ExpiryTime).UTC(),
		})
	}
	return out, nil
}

func (s *Store) SaveOffer(ctx context.Context, offer *models.VassalageOffer) error {
	_, err := s.conn.ExecContext(ctx, `INSERT INTO vassalage_offers
		(offer_id, suzerain_id, target_id, rate, offer_time, expiry_time)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(offer_id) DO UPDATE SET rate = excluded.rate, expiry_time = excluded.expiry_time`,
		offer.ID.String(), offer.SuzerainID.String(), offer.TargetID.String(), offer.ProposedTributeRate,
		offer.OfferedAt.UnixMilli(), offer.ExpiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save offer: %w", err)
	}
	return nil
}

func (s *Store) RemoveOffer(ctx context.Context, id uuid.UUID) error {
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM vassalage_offers WHERE offer_id = ?", id.String()); err != nil {
		return fmt.Errorf("remove offer: %w", err)
	}
	return nil
}

func (s *Store) RemoveExpiredOffers(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.conn.ExecContext(ctx, "DELETE FROM vassalage_offers WHERE expiry_time < ?", now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("remove expired offers: %w", err)
	}
	return res.RowsAffected()
}
