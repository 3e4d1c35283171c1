package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/faceauth/internal/enroll"
	"github.com/your-org/faceauth/internal/storage"
	"github.com/your-org/faceauth/internal/vision"
	"github.com/your-org/faceauth/pkg/dto"
)

type IdentityHandler struct {
	db       *storage.PostgresStore
	images   *storage.ImageStore
	enroller *enroll.Service
	provider vision.Provider
}

func NewIdentityHandler(db *storage.PostgresStore, images *storage.ImageStore, enroller *enroll.Service, provider vision.Provider) *IdentityHandler {
	return &IdentityHandler{db: db, images: images, enroller: enroller, provider: provider}
}

// readImageFile reads a multipart image upload. Writes the error
// response itself when the field is missing or unreadable.
func readImageFile(c *gin.Context, field string) ([]byte, string, bool) {
	file, header, err := c.Request.FormFile(field)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": field + " file required"})
		return nil, "", false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read " + field + " failed"})
		return nil, "", false
	}
	return data, header.Header.Get("Content-Type"), true
}

// Enroll accepts a multipart image upload plus a name (or identity_id),
// extracts an embedding, and commits it as a template.
func (h *IdentityHandler) Enroll(c *gin.Context) {
	account, ok := accountID(c)
	if !ok {
		return
	}

	var identityID *uuid.UUID
	if raw := c.PostForm("identity_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity_id"})
			return
		}
		identityID = &id
	}

	image, contentType, ok := readImageFile(c, "image")
	if !ok {
		return
	}

	embedding, err := h.provider.Embed(c.Request.Context(), image)
	if err != nil {
		writeError(c, err)
		return
	}

	identity, template, err := h.enroller.Enroll(c.Request.Context(), enroll.Request{
		AccountID:  account,
		Name:       c.PostForm("name"),
		IdentityID: identityID,
		Embedding:  embedding,
		Image:      image,
		ImageType:  contentType,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"identity": dto.IdentityResponse{
			ID:        identity.ID,
			Name:      identity.Name,
			CreatedAt: identity.CreatedAt.Format(timeLayout),
		},
		"template": dto.TemplateResponse{
			ID:         template.ID,
			IdentityID: template.IdentityID,
			SourceKey:  template.SourceKey,
			CapturedAt: template.CapturedAt.Format(timeLayout),
		},
	})
}

// AddTemplate enrolls an additional sample for an existing identity.
func (h *IdentityHandler) AddTemplate(c *gin.Context) {
	account, ok := accountID(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	image, contentType, ok := readImageFile(c, "image")
	if !ok {
		return
	}

	embedding, err := h.provider.Embed(c.Request.Context(), image)
	if err != nil {
		writeError(c, err)
		return
	}

	_, template, err := h.enroller.Enroll(c.Request.Context(), enroll.Request{
		AccountID:  account,
		IdentityID: &id,
		Embedding:  embedding,
		Image:      image,
		ImageType:  contentType,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.TemplateResponse{
		ID:         template.ID,
		IdentityID: template.IdentityID,
		SourceKey:  template.SourceKey,
		CapturedAt: template.CapturedAt.Format(timeLayout),
	})
}

func (h *IdentityHandler) List(c *gin.Context) {
	identities, err := h.db.ListIdentities(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	resp := make([]dto.IdentityResponse, 0, len(identities))
	for _, id := range identities {
		count, err := h.db.CountTemplates(c.Request.Context(), id.ID)
		if err != nil {
			// One broken count should not take the whole listing down.
			slog.Warn("count templates", "identity_id", id.ID, "error", err)
		}
		resp = append(resp, dto.IdentityResponse{
			ID:            id.ID,
			Name:          id.Name,
			TemplateCount: count,
			CreatedAt:     id.CreatedAt.Format(timeLayout),
		})
	}

	c.JSON(http.StatusOK, gin.H{"identities": resp, "total": len(resp)})
}

func (h *IdentityHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	identity, err := h.db.GetIdentity(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if identity == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
		return
	}

	count, err := h.db.CountTemplates(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.IdentityResponse{
		ID:            identity.ID,
		Name:          identity.Name,
		TemplateCount: count,
		CreatedAt:     identity.CreatedAt.Format(timeLayout),
	})
}

// Delete removes an identity with all its templates and archived source
// images.
func (h *IdentityHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	if err := h.db.DeleteIdentity(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	if h.images != nil {
		// Best effort; the row delete already removed the templates.
		_ = h.images.DeleteImages(c.Request.Context(), "enrolled/"+id.String()+"/")
	}

	c.Status(http.StatusNoContent)
}

func (h *IdentityHandler) ListTemplates(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	templates, err := h.db.ListTemplates(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := make([]dto.TemplateResponse, 0, len(templates))
	for _, t := range templates {
		resp = append(resp, dto.TemplateResponse{
			ID:         t.ID,
			IdentityID: t.IdentityID,
			SourceKey:  t.SourceKey,
			CapturedAt: t.CapturedAt.Format(timeLayout),
		})
	}

	c.JSON(http.StatusOK, gin.H{"templates": resp, "total": len(resp)})
}
