package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	domainerrors "github.com/surapp/backend/internal/domain/errors"
	"github.com/surapp/backend/internal/models"
	"github.com/surapp/backend/internal/store"
	"github.com/surapp/backend/pkg/response"
	"github.com/surapp/backend/pkg/utils"
)

// RegisterRequest is the body for POST /api/register/.
type RegisterRequest struct {
	Username string `json:"username" binding:"required,max=150"`
	Email    string `json:"email" binding:"omitempty,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// LoginRequest is the body for POST /api/login/.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token  string            `json:"access"`
	UserID int64             `json:"user_id"`
	User   models.UserPublic `json:"user"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	repo     *Repository
	jwt      *JWTService
	denylist Denylist
	logger   *zap.Logger
}

// NewHandler creates an auth handler. denylist must be the one the JWT
// middleware checks; with a nil denylist logout answers 503.
func NewHandler(repo *Repository, jwt *JWTService, denylist Denylist, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, jwt: jwt, denylist: denylist, logger: logger}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// Register handles POST /api/register/.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		response.ValidationFailed(c, "validation failed", []domainerrors.FieldError{{Field: "username", Message: "this field is required"}})
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if errors.Is(err, utils.ErrPasswordTooLong) {
		response.ValidationFailed(c, "validation failed", []domainerrors.FieldError{{Field: "password", Message: err.Error()}})
		return
	}
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}

	user, err := h.repo.Create(c.Request.Context(), req.Username, req.Email, hash)
	if errors.Is(err, store.ErrDuplicate) {
		response.ValidationFailed(c, "validation failed", []domainerrors.FieldError{{Field: "username", Message: "a user with that username already exists"}})
		return
	}
	if err != nil {
		h.logger.Error("create user", zap.Error(err))
		response.Internal(c, "failed to create user")
		return
	}

	token, err := h.jwt.Generate(user.ID, user.Username)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	response.Created(c, TokenResponse{Token: token, UserID: user.ID, User: user.ToPublic()})
}

// Login handles POST /api/login/.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.repo.GetByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if !errors.Is(err, domainerrors.ErrNotFound) {
			h.logger.Error("load user", zap.Error(err))
		}
		response.Unauthorized(c, "invalid username or password")
		return
	}
	if !utils.CheckPassword(req.Password, user.Password) {
		response.Unauthorized(c, "invalid username or password")
		return
	}

	token, err := h.jwt.Generate(user.ID, user.Username)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	response.OK(c, TokenResponse{Token: token, UserID: user.ID, User: user.ToPublic()})
}

// Logout handles POST /api/logout/. The presented token stops working.
func (h *Handler) Logout(c *gin.Context) {
	if h.denylist == nil {
		response.ServiceUnavailable(c, "logout is not available")
		return
	}
	claims, ok := h.claims(c)
	if !ok {
		return
	}
	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := h.denylist.Revoke(c.Request.Context(), claims.ID, expiresAt); err != nil {
		h.logger.Error("revoke token", zap.Error(err), zap.Int64("user_id", claims.UserID))
		response.Internal(c, "failed to revoke token")
		return
	}
	response.OK(c, gin.H{"message": "logged out"})
}

// ValidateToken handles GET /api/token/validate/.
func (h *Handler) ValidateToken(c *gin.Context) {
	claims, ok := h.claims(c)
	if !ok {
		return
	}
	response.OK(c, gin.H{"valid": true, "user_id": claims.UserID, "username": claims.Username})
}

func (h *Handler) claims(c *gin.Context) (*Claims, bool) {
	raw, ok := BearerToken(c.GetHeader("Authorization"))
	if !ok {
		response.Unauthorized(c, "missing authorization header")
		return nil, false
	}
	claims, err := h.jwt.Validate(raw)
	if err != nil {
		response.Unauthorized(c, "invalid or expired token")
		return nil, false
	}
	return claims, true
}
