package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/faceauth/internal/storage"
	"github.com/your-org/faceauth/pkg/dto"
)

type EventHandler struct {
	db *storage.PostgresStore
}

func NewEventHandler(db *storage.PostgresStore) *EventHandler {
	return &EventHandler{db: db}
}

// List returns recent verification events, newest first.
func (h *EventHandler) List(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	events, err := h.db.ListVerifyEvents(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := make([]dto.VerifyEventResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, dto.VerifyEventResponse{
			ID:         ev.ID,
			AccountID:  ev.AccountID,
			Outcome:    ev.Outcome,
			IdentityID: ev.IdentityID,
			Distance:   ev.Distance,
			Confidence: ev.Confidence,
			CreatedAt:  ev.CreatedAt.Format(timeLayout),
		})
	}

	c.JSON(http.StatusOK, gin.H{"events": resp, "total": len(resp)})
}

func (h *EventHandler) Stats(c *gin.Context) {
	stats, err := h.db.GetStats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.StatsResponse{
		Identities: stats.Identities,
		Templates:  stats.Templates,
		Accounts:   stats.Accounts,
		Events:     stats.Events,
	})
}
