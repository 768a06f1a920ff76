package handlers

import (
	"context"

	"github.com/mroshb/statecraft/internal/models"
	"github.com/mroshb/statecraft/internal/services"
	"github.com/mroshb/statecraft/pkg/logger"
)

// DeletionHandler cleans up political state when the host world deletes an entity.
type DeletionHandler struct {
	engine *services.Engine
}

func NewDeletionHandler(engine *services.Engine) *DeletionHandler {
	return &DeletionHandler{engine: engine}
}

func (h *DeletionHandler) OnEntityDeleted(ctx context.Context, ref models.EntityRef) {
	if ref.Validate() != nil {
		return
	}

	policies := h.engine.Policies.RemoveAllForEntity(ctx, ref)
	relationships := 0
	if ref.IsRealm() {
		relationships = h.engine.Vassalage.RemoveAllForEntity(ctx, ref.ID)
	}

	logger.Info("Entity deleted, political state removed",
		"entity", ref.String(), "policies", policies, "relationships", relationships)
}
