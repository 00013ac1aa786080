package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"docuvault/internal/repository"
	"docuvault/internal/transport/http/response"
)

type AuditHandler struct {
	logs *repository.AuditRepository
}

func NewAuditHandler(logs *repository.AuditRepository) *AuditHandler {
	return &AuditHandler{logs: logs}
}

// List returns the tenant's recent audit trail, newest first.
func (h *AuditHandler) List(c *gin.Context) {
	_, scope, ok := requestIdentity(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	entries, err := h.logs.ListByTenant(scope, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		items = append(items, gin.H{
			"id":            e.ID,
			"user_id":       e.UserID,
			"action":        e.Action,
			"resource_type": e.ResourceType,
			"resource_id":   e.ResourceID,
			"created_at":    e.CreatedAt,
		})
	}
	response.OK(c, gin.H{"entries": items})
}
