package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/faceauth/internal/auth"
	"github.com/your-org/faceauth/internal/errs"
	"github.com/your-org/faceauth/internal/models"
	"github.com/your-org/faceauth/internal/storage"
	"github.com/your-org/faceauth/pkg/dto"
)

type AuthHandler struct {
	db     *storage.PostgresStore
	tokens *auth.TokenService
}

func NewAuthHandler(db *storage.PostgresStore, tokens *auth.TokenService) *AuthHandler {
	return &AuthHandler{db: db, tokens: tokens}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	account, err := h.db.CreateAccount(c.Request.Context(), req.Email, req.Name, hash)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, accountResponse(account))
}

// Login verifies credentials and issues a token. A missing account and a
// wrong password produce the same response.
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := h.db.GetAccountByEmail(c.Request.Context(), req.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	if account == nil {
		writeError(c, errs.New(errs.CodeAuthUnknown, "invalid email or password"))
		return
	}

	if err := auth.VerifyPassword(req.Password, account.PasswordHash); err != nil {
		writeError(c, err)
		return
	}

	token, err := h.tokens.Issue(account.ID, account.Email, account.Name)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.TokenResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.tokens.TTL()).UTC().Format(timeLayout),
		Account:   accountResponse(account),
	})
}

// Me returns the account behind the presented token, confirming the
// subject still exists.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := auth.ClaimsFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	id, err := uuid.Parse(claims.AccountID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	account, err := h.db.GetAccountByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if account == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "account no longer exists"})
		return
	}

	c.JSON(http.StatusOK, accountResponse(account))
}

func accountResponse(a *models.Account) dto.AccountResponse {
	return dto.AccountResponse{
		ID:        a.ID,
		Email:     a.Email,
		Name:      a.Name,
		CreatedAt: a.CreatedAt.Format(timeLayout),
	}
}
