package handlers

import (
	"net/http"
	"strconv"

	"facegate/internal/db/repository"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// EventHandler serves the recorded access and administration history.
type EventHandler struct {
	repo repository.Repository
}

// NewEventHandler creates the event API handler.
func NewEventHandler(repo repository.Repository) *EventHandler {
	return &EventHandler{repo: repo}
}

// RegisterRoutes registers all event API routes.
func (h *EventHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.GET("/events/access", h.handleAccessEvents)
		api.GET("/events/admin", h.handleAdminEvents)
	}
}

// handleAccessEvents returns access grants newest first, paginated.
func (h *EventHandler) handleAccessEvents(c *gin.Context) {
	limit, offset := pagination(c)

	events, total, err := h.repo.GetAccessEvents(limit, offset)
	if err != nil {
		log.Errorf("Failed to load access events: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load access events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// handleAdminEvents returns administration actions newest first, paginated.
func (h *EventHandler) handleAdminEvents(c *gin.Context) {
	limit, offset := pagination(c)

	events, total, err := h.repo.GetAdminEvents(limit, offset)
	if err != nil {
		log.Errorf("Failed to load admin events: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load admin events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		limit = 50
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
