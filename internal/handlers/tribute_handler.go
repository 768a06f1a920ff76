package handlers

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mroshb/statecraft/internal/config"
	"github.com/mroshb/statecraft/internal/middleware"
	"github.com/mroshb/statecraft/internal/models"
	"github.com/mroshb/statecraft/internal/services"
	"github.com/mroshb/statecraft/pkg/errors"
	"github.com/mroshb/statecraft/pkg/logger"
)

// TributeHandler skims a share of every deposit into a vassal's treasury and
// pays it to the suzerain once the deposit has landed.
type TributeHandler struct {
	vassalage *services.VassalageService
	dir       services.Directory
	treasury  services.Treasury
	dedup     *middleware.TransactionDeduper
	scheduler Scheduler
	rules     config.RulesSource
	now       services.Clock
}

func NewTributeHandler(
	vassalage *services.VassalageService,
	dir services.Directory,
	treasury services.Treasury,
	dedup *middleware.TransactionDeduper,
	scheduler Scheduler,
	rules config.RulesSource,
	now services.Clock,
) *TributeHandler {
	return &TributeHandler{
		vassalage: vassalage,
		dir:       dir,
		treasury:  treasury,
		dedup:     dedup,
		scheduler: scheduler,
		rules:     rules,
		now:       now,
	}
}

// OnPreTransaction inspects a deposit before it commits and schedules the
// tribute collection. Reports whether a collection was scheduled.
func (h *TributeHandler) OnPreTransaction(ctx context.Context, evt models.RevenueEvent) bool {
	cfg := h.rules.Current().Tribute
	if !cfg.Enabled || evt.Kind != models.TransactionDeposit || models.IsTributeFlow(evt.Reason) {
		return false
	}
	if kind, _, ok := models.ParseAccountName(evt.Account); !ok || kind != models.EntityKindRealm {
		return false
	}
	if evt.Amount < cfg.MinTransactionAmount {
		return false
	}

	vassal, ok := h.dir.ResolveAccount(ctx, evt.Account)
	if !ok || !vassal.Ref.IsRealm() {
		logger.Debug("Revenue account does not resolve to a realm", "account", evt.Account)
		return false
	}
	rel, ok := h.vassalage.Suzerain(vassal.Ref.ID)
	if !ok {
		return false
	}
	if _, ok := h.dir.Lookup(ctx, models.RealmRef(rel.SuzerainID)); !ok {
		logger.Debug("Suzerain no longer exists, skipping tribute", "suzerain", rel.SuzerainID, "vassal", rel.VassalID)
		return false
	}
	if rel.TributeRate <= 0 {
		return false
	}

	tribute := evt.Amount * rel.TributeRate
	if tribute < cfg.MinTransactionAmount {
		return false
	}

	if !h.dedup.Claim(middleware.DedupKey(vassal.Ref.ID, evt.Amount)) {
		logger.Debug("Duplicate revenue event ignored", "vassal", vassal.Ref.ID, "amount", evt.Amount)
		return false
	}

	suzerainID, vassalID := rel.SuzerainID, rel.VassalID
	collectCtx := context.WithoutCancel(ctx)
	h.scheduler.RunAfter(cfg.CollectDelay, func() {
		h.collect(collectCtx, suzerainID, vassalID, tribute)
	})
	return true
}

// collect moves the tribute. The vassal may have spent the money since the
// event fired; in that case nothing is paid.
func (h *TributeHandler) collect(ctx context.Context, suzerainID, vassalID uuid.UUID, amount float64) {
	if _, ok := h.vassalage.Relationship(suzerainID, vassalID); !ok {
		logger.Debug("Vassalage ended before tribute was collected", "suzerain", suzerainID, "vassal", vassalID)
		return
	}

	vassalRef := models.RealmRef(vassalID)
	suzerainRef := models.RealmRef(suzerainID)
	if !h.treasury.CanPay(ctx, vassalRef, amount) {
		logger.Debug("Vassal cannot afford tribute, skipped", "vassal", vassalID, "amount", amount)
		return
	}

	memo := fmt.Sprintf("tribute to %s", suzerainID)
	if err := h.treasury.Withdraw(ctx, vassalRef, amount, models.TxTypeTributePaid, memo); err != nil {
		if errors.IsRuleViolation(err) {
			logger.Debug("Tribute withdrawal rejected", "vassal", vassalID, "error", err)
		} else {
			logger.Warn("Tribute withdrawal failed", "vassal", vassalID, "error", err)
		}
		return
	}

	if err := h.treasury.Deposit(ctx, suzerainRef, amount, models.TxTypeTributeIncome, fmt.Sprintf("tribute from %s", vassalID)); err != nil {
		logger.Warn("Tribute deposit failed, refunding vassal", "suzerain", suzerainID, "vassal", vassalID, "error", err)
		if err := h.treasury.Deposit(ctx, vassalRef, amount, models.TxTypeTributeRefund, memo); err != nil {
			logger.Error("Tribute refund failed", "vassal", vassalID, "amount", amount, "error", err)
		}
		return
	}

	h.vassalage.RecordTribute(ctx, suzerainID, vassalID, h.now())
	if h.rules.Current().Tribute.LogPayments {
		logger.Info("Tribute collected", "suzerain", suzerainID, "vassal", vassalID, "amount", amount)
	}
}
