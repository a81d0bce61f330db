package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskflow/backend/internal/i18n"
	"taskflow/backend/internal/identity/service"
	"taskflow/backend/internal/server/middleware"
)

// AuthService is the subset of *service.AuthService the HTTP handler calls.
type AuthService interface {
	Login(ctx context.Context, in service.LoginInput) (*service.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*service.AuthResult, error)
	Logout(ctx context.Context) error
	Register(ctx context.Context, in service.RegisterInput) (*service.RegisterResult, error)
	ResendEmailConfirmation(ctx context.Context, email string) error
	ConfirmEmail(ctx context.Context, email, code string) error
	ForgotPassword(ctx context.Context, email string) error
	VerifyResetPasswordCode(ctx context.Context, email, code string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
}

// AuthHandler serves the /api/v1/auth routes.
type AuthHandler struct {
	auth AuthService
	tr   *i18n.Translator
	log  *zap.Logger
}

// NewAuthHandler returns an AuthHandler. A nil translator answers with message keys.
func NewAuthHandler(auth AuthService, tr *i18n.Translator, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	useJSONFieldNames()
	return &AuthHandler{auth: auth, tr: tr, log: log}
}

// Mount registers the auth routes on rg. requireAuth guards logout.
func (h *AuthHandler) Mount(rg *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	rg.POST("/login", h.Login)
	rg.POST("/refresh-token", h.RefreshToken)
	rg.POST("/logout", requireAuth, h.Logout)
	rg.POST("/register", h.Register)
	rg.POST("/resend-email-confirmation/:email", h.ResendEmailConfirmation)
	rg.POST("/confirm-email", h.ConfirmEmail)
	rg.POST("/forgot-password/:email", h.ForgotPassword)
	rg.POST("/verify-reset-password-code", h.VerifyResetPasswordCode)
	rg.POST("/reset-password", h.ResetPassword)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,max=256"`
	Password string `json:"password" binding:"required,max=1024"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type registerRequest struct {
	Email       string `json:"email" binding:"required,max=256"`
	Password    string `json:"password" binding:"required,max=1024"`
	PhoneNumber string `json:"phone_number" binding:"omitempty,e164"`
}

type codeRequest struct {
	Email string `json:"email" binding:"required,max=256"`
	Code  string `json:"code" binding:"required,numeric,max=16"`
}

type resetPasswordRequest struct {
	Email       string `json:"email" binding:"required,max=256"`
	Code        string `json:"code" binding:"required,numeric,max=16"`
	NewPassword string `json:"new_password" binding:"required,max=1024"`
}

type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id"`
}

type registerResponse struct {
	UserID                    string `json:"user_id"`
	EmailConfirmationRequired bool   `json:"email_confirmation_required"`
}

func newTokenResponse(r *service.AuthResult) tokenResponse {
	return tokenResponse{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    "Bearer",
		ExpiresAt:    r.ExpiresAt,
		SessionID:    r.SessionID,
		UserID:       r.UserID,
	}
}

// Login handles POST /login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !h.bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	res, err := h.auth.Login(ctx, service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Client:   middleware.GetClient(ctx),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newTokenResponse(res))
}

// RefreshToken handles POST /refresh-token.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req refreshRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newTokenResponse(res))
}

// Logout handles POST /logout. The session comes from the access token.
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Register handles POST /register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, registerResponse{UserID: res.UserID, EmailConfirmationRequired: res.EmailConfirmationRequired})
}

// ResendEmailConfirmation handles POST /resend-email-confirmation/:email. Always 204 for a
// well-formed request so the response does not reveal whether the address is registered.
func (h *AuthHandler) ResendEmailConfirmation(c *gin.Context) {
	if err := h.auth.ResendEmailConfirmation(c.Request.Context(), c.Param("email")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ConfirmEmail handles POST /confirm-email.
func (h *AuthHandler) ConfirmEmail(c *gin.Context) {
	var req codeRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.auth.ConfirmEmail(c.Request.Context(), req.Email, req.Code); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ForgotPassword handles POST /forgot-password/:email.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	if err := h.auth.ForgotPassword(c.Request.Context(), c.Param("email")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// VerifyResetPasswordCode handles POST /verify-reset-password-code.
func (h *AuthHandler) VerifyResetPasswordCode(c *gin.Context) {
	var req codeRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.auth.VerifyResetPasswordCode(c.Request.Context(), req.Email, req.Code); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ResetPassword handles POST /reset-password.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.auth.ResetPassword(c.Request.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		if keys := fieldErrors(err); keys != nil {
			middleware.AbortWithError(c, h.tr, http.StatusBadRequest, i18n.KeyValidationFailed, keys...)
			return false
		}
		middleware.AbortWithError(c, h.tr, http.StatusBadRequest, i18n.KeyBadRequest)
		return false
	}
	return true
}

var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{service.ErrInvalidCredentials, http.StatusUnauthorized, i18n.KeyInvalidCredentials},
	{service.ErrInvalidRefreshToken, http.StatusUnauthorized, i18n.KeyInvalidRefreshToken},
	{service.ErrNotAuthenticated, http.StatusUnauthorized, i18n.KeyNotAuthenticated},
	{service.ErrAccountLocked, http.StatusForbidden, i18n.KeyAccountLocked},
	{service.ErrAccountInactive, http.StatusForbidden, i18n.KeyAccountInactive},
	{service.ErrEmailNotConfirmed, http.StatusForbidden, i18n.KeyEmailNotConfirmed},
	{service.ErrPhoneNotConfirmed, http.StatusForbidden, i18n.KeyPhoneNotConfirmed},
	{service.ErrEmailAlreadyRegistered, http.StatusConflict, i18n.KeyEmailAlreadyRegistered},
	{service.ErrInvalidCode, http.StatusBadRequest, i18n.KeyInvalidCode},
	{service.ErrInvalidEmail, http.StatusBadRequest, i18n.KeyInvalidEmail},
}

// fail maps a service error to its status and localized body. Unknown errors are logged and
// answered with 500.
func (h *AuthHandler) fail(c *gin.Context, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		middleware.AbortWithError(c, h.tr, http.StatusBadRequest, i18n.KeyValidationFailed, verr.Errors...)
		return
	}
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			middleware.AbortWithError(c, h.tr, e.status, e.code)
			return
		}
	}
	_ = c.Error(err)
	h.log.Error("auth: request failed",
		zap.String("path", c.FullPath()),
		zap.String("correlation_id", middleware.GetClient(c.Request.Context()).CorrelationID),
		zap.Error(err),
	)
	middleware.AbortWithError(c, h.tr, http.StatusInternalServerError, i18n.KeyInternal)
}
