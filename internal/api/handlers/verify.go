package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/faceauth/internal/auth"
	"github.com/your-org/faceauth/internal/errs"
	"github.com/your-org/faceauth/internal/models"
	"github.com/your-org/faceauth/internal/verify"
	"github.com/your-org/faceauth/pkg/dto"
)

type VerifyHandler struct {
	verifier *verify.Service
}

func NewVerifyHandler(verifier *verify.Service) *VerifyHandler {
	return &VerifyHandler{verifier: verifier}
}

func accountID(c *gin.Context) (uuid.UUID, bool) {
	claims := auth.ClaimsFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return uuid.Nil, false
	}
	id, err := uuid.Parse(claims.AccountID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return uuid.Nil, false
	}
	return id, true
}

// Verify runs a single-image verification attempt from a multipart
// image upload.
func (h *VerifyHandler) Verify(c *gin.Context) {
	account, ok := accountID(c)
	if !ok {
		return
	}

	image, _, ok := readImageFile(c, "image")
	if !ok {
		return
	}

	result, err := h.verifier.VerifyImage(c.Request.Context(), account, image)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, matchResponse(&result))
}

// StartSession opens a live verification session, claiming the capture
// device.
func (h *VerifyHandler) StartSession(c *gin.Context) {
	account, ok := accountID(c)
	if !ok {
		return
	}

	info, err := h.verifier.StartSession(c.Request.Context(), account)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.SessionResponse{
		SessionID:        info.ID,
		LivenessDeadline: info.LivenessDeadline.UTC().Format(timeLayout),
		Deadline:         info.Deadline.UTC().Format(timeLayout),
	})
}

// SubmitFrame feeds one frame into a live session.
func (h *VerifyHandler) SubmitFrame(c *gin.Context) {
	account, ok := accountID(c)
	if !ok {
		return
	}

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	frame, _, ok := readImageFile(c, "frame")
	if !ok {
		return
	}

	result, err := h.verifier.SubmitFrame(c.Request.Context(), account, sessionID, frame)
	if err != nil {
		// Frames without a usable face return the session state with a
		// retake hint rather than failing the session.
		if result != nil && (errs.Is(err, errs.CodeNoFaceDetected) || errs.Is(err, errs.CodeMultipleFaces)) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"state": result.State.String(),
				"error": err.Error(),
				"code":  string(errs.CodeOf(err)),
			})
			return
		}
		writeError(c, err)
		return
	}

	resp := dto.FrameResponse{State: result.State.String(), Outcome: result.Outcome}
	if result.Match != nil {
		m := matchResponse(result.Match)
		resp.Match = &m
	}
	c.JSON(http.StatusOK, resp)
}

// CancelSession abandons a live session.
func (h *VerifyHandler) CancelSession(c *gin.Context) {
	account, ok := accountID(c)
	if !ok {
		return
	}

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	if err := h.verifier.CancelSession(account, sessionID); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func matchResponse(m *models.MatchResult) dto.VerifyResponse {
	resp := dto.VerifyResponse{
		Matched:    m.Matched,
		Ambiguous:  m.Ambiguous,
		Distance:   m.Distance,
		Confidence: m.Confidence(),
	}
	if m.Matched {
		resp.IdentityID = m.IdentityID
		resp.Name = m.IdentityName
	}
	return resp
}
