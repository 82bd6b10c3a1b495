package handlers

import (
	"net/http"

	"facegate/internal/core/identity"
	"facegate/internal/core/model"
	"facegate/internal/db/repository"
	"facegate/internal/utils"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// SystemHandler serves the status endpoint.
type SystemHandler struct {
	repo     repository.Repository
	store    *identity.Store
	modelMgr *model.Manager
	version  string
}

// NewSystemHandler creates the system API handler.
func NewSystemHandler(repo repository.Repository, store *identity.Store, modelMgr *model.Manager, version string) *SystemHandler {
	return &SystemHandler{repo: repo, store: store, modelMgr: modelMgr, version: version}
}

// RegisterRoutes registers the system API routes.
func (h *SystemHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.GET("/status", h.handleStatus)
	}
}

// handleStatus reports process health, model readiness and event totals.
func (h *SystemHandler) handleStatus(c *gin.Context) {
	stats, err := h.repo.GetStatistics()
	if err != nil {
		log.Warnf("Failed to load event statistics: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"version":     h.version,
		"model_ready": h.modelMgr.Ready(),
		"identities":  h.store.Len(),
		"events":      stats,
		"system":      utils.GetSystemStats(),
	})
}
