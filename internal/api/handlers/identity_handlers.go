package handlers

import (
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"mime/multipart"
	"net/http"
	"strconv"

	"facegate/internal/core/admin"
	"facegate/internal/core/corpus"
	"facegate/internal/core/identity"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// IdentityHandler exposes the administration workflows over HTTP.
type IdentityHandler struct {
	workflows *admin.Workflows
	store     *identity.Store
	corpus    *corpus.Manager
	maxPhotos int
}

// NewIdentityHandler creates the identity API handler.
func NewIdentityHandler(workflows *admin.Workflows, store *identity.Store, corpusMgr *corpus.Manager, maxPhotos int) *IdentityHandler {
	return &IdentityHandler{
		workflows: workflows,
		store:     store,
		corpus:    corpusMgr,
		maxPhotos: maxPhotos,
	}
}

// RegisterRoutes registers all identity API routes.
func (h *IdentityHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.GET("/identities", h.handleList)
		api.POST("/identities", h.handleEnroll)
		api.POST("/identities/:cpf/photos", h.handleAddPhotos)
		api.POST("/identities/:cpf/prune", h.handlePrune)
		api.DELETE("/identities/:cpf", h.handleDelete)
	}
}

// identitySummary is the list-endpoint row.
type identitySummary struct {
	NationalID  string `json:"cpf"`
	DisplayName string `json:"nome"`
	Tier        string `json:"nivel"`
	Status      string `json:"status"`
	PhotoCount  int    `json:"fotos"`
}

// handleList returns every enrolled identity with its tier and photo count.
func (h *IdentityHandler) handleList(c *gin.Context) {
	out := make([]identitySummary, 0, h.store.Len())
	for _, nationalID := range h.store.NationalIDs() {
		ident, ok := h.store.Get(nationalID)
		if !ok {
			continue
		}
		tier, status := h.store.LookupTier(nationalID)
		samples, err := h.corpus.ListSamples(ident.Token)
		if err != nil {
			log.Warnf("Failed to list photos for %s: %v", nationalID, err)
		}
		out = append(out, identitySummary{
			NationalID:  nationalID,
			DisplayName: ident.DisplayName,
			Tier:        tier,
			Status:      status,
			PhotoCount:  len(samples),
		})
	}
	c.JSON(http.StatusOK, gin.H{"identities": out, "count": len(out)})
}

// handleEnroll registers a new identity from a multipart form: nome, cpf,
// nivel plus one or more photo files under "fotos".
func (h *IdentityHandler) handleEnroll(c *gin.Context) {
	level, err := strconv.Atoi(c.PostForm("nivel"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nivel must be a number"})
		return
	}
	req := admin.EnrollRequest{
		DisplayName: c.PostForm("nome"),
		NationalID:  c.PostForm("cpf"),
		Level:       level,
	}

	files, err := formPhotos(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.workflows.Enroll(req, h.uploadSource(files))
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "identity enrolled", "token": token})
}

// handleAddPhotos ingests additional photos for an existing identity.
func (h *IdentityHandler) handleAddPhotos(c *gin.Context) {
	files, err := formPhotos(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	taken, err := h.workflows.AddPhotos(c.Param("cpf"), h.uploadSource(files))
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "photos added", "accepted": taken, "uploaded": len(files)})
}

// handlePrune keeps only the N most recent photos of an identity.
func (h *IdentityHandler) handlePrune(c *gin.Context) {
	var body struct {
		Keep int `json:"manter"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"manter\": N}"})
		return
	}

	removed, err := h.workflows.PrunePhotos(c.Param("cpf"), body.Keep)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "photos pruned", "removed": removed, "kept": body.Keep})
}

// handleDelete removes an identity and all its data.
func (h *IdentityHandler) handleDelete(c *gin.Context) {
	if err := h.workflows.Delete(c.Param("cpf")); err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "identity deleted"})
}

// uploadSource adapts uploaded files into the workflows' photo source. Each
// file runs through the same ingest pipeline as a camera capture; files
// without a detectable face or with bad quality are skipped, not fatal.
func (h *IdentityHandler) uploadSource(files []*multipart.FileHeader) admin.PhotoSource {
	return func(token string) (int, error) {
		accepted := 0
		for _, fh := range files {
			if accepted >= h.maxPhotos {
				break
			}
			frame, err := decodeUpload(fh)
			if err != nil {
				log.Warnf("Skipping undecodable upload %s: %v", fh.Filename, err)
				continue
			}
			reason, err := h.corpus.Ingest(token, frame)
			if err != nil {
				return accepted, err
			}
			if reason == corpus.RejectNone {
				accepted++
			} else {
				log.Infof("Upload %s rejected: %s", fh.Filename, reason)
			}
		}
		return accepted, nil
	}
}

func formPhotos(c *gin.Context) ([]*multipart.FileHeader, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, errors.New("multipart form with photo files under 'fotos' is required")
	}
	files := form.File["fotos"]
	if len(files) == 0 {
		return nil, errors.New("at least one photo file under 'fotos' is required")
	}
	return files, nil
}

func decodeUpload(fh *multipart.FileHeader) (image.Image, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

// writeWorkflowError maps workflow errors onto HTTP status codes.
func writeWorkflowError(c *gin.Context, err error) {
	var verr *admin.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
	case errors.Is(err, identity.ErrDuplicateIdentity):
		c.JSON(http.StatusConflict, gin.H{"error": "identity already enrolled"})
	case errors.Is(err, identity.ErrUnknownIdentity):
		c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
	default:
		log.Errorf("Workflow failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
