package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/rentdesk/internal/middleware"
	"github.com/xxxsen/rentdesk/internal/pkg/response"
	"github.com/xxxsen/rentdesk/internal/service"
)

const (
	sessionCookieMaxAge = 7 * 24 * time.Hour
	deviceCookieMaxAge  = 90 * 24 * time.Hour
)

type AuthHandler struct {
	auth       *service.AuthService
	production bool
}

func NewAuthHandler(auth *service.AuthService, production bool) *AuthHandler {
	return &AuthHandler{auth: auth, production: production}
}

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type verifyRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

type resendRequest struct {
	Email   string `json:"email" binding:"required"`
	Purpose string `json:"purpose" binding:"required"`
}

func deviceInfo(c *gin.Context) service.DeviceInfo {
	return service.DeviceInfo{
		IP:          c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
		Fingerprint: c.GetHeader(middleware.FingerprintHeader),
	}
}

func deviceToken(c *gin.Context) string {
	token, _ := c.Cookie(middleware.DeviceCookieName)
	return token
}

func (h *AuthHandler) setCookie(c *gin.Context, name, value string, maxAge time.Duration) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, int(maxAge.Seconds()), "/", "", h.production, true)
}

func (h *AuthHandler) writeSession(c *gin.Context, session *service.Session) {
	h.setCookie(c, middleware.SessionCookieName, session.Token, sessionCookieMaxAge)
	if session.DeviceToken != "" {
		h.setCookie(c, middleware.DeviceCookieName, session.DeviceToken, deviceCookieMaxAge)
	}
	response.Success(c, gin.H{
		"token":      session.Token,
		"expires_in": int64(session.ExpiresIn.Seconds()),
		"device_id":  session.DeviceID,
		"identity":   session.Identity,
	})
}

func writeChallenge(c *gin.Context, challenge *service.Challenge) {
	response.Success(c, gin.H{
		"challenge_required": true,
		"challenge": gin.H{
			"purpose":   challenge.Purpose,
			"reason":    challenge.Reason,
			"email":     challenge.Email,
			"device_id": challenge.DeviceID,
		},
	})
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	challenge, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Device:   deviceInfo(c),
	})
	if err != nil {
		handleError(c, err)
		return
	}
	writeChallenge(c, challenge)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	result, err := h.auth.Login(c.Request.Context(), service.LoginInput{
		Email:       req.Email,
		Password:    req.Password,
		Device:      deviceInfo(c),
		DeviceToken: deviceToken(c),
	})
	if err != nil {
		handleError(c, err)
		return
	}
	if result.Challenge != nil {
		writeChallenge(c, result.Challenge)
		return
	}
	h.writeSession(c, result.Session)
}

func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	h.verify(c, h.auth.VerifyEmail)
}

func (h *AuthHandler) VerifyDevice(c *gin.Context) {
	h.verify(c, h.auth.VerifyDevice)
}

func (h *AuthHandler) verify(c *gin.Context, fn func(ctx context.Context, input service.VerifyInput) (*service.Session, error)) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	session, err := fn(c.Request.Context(), service.VerifyInput{
		Email:       req.Email,
		Code:        req.Code,
		Device:      deviceInfo(c),
		DeviceToken: deviceToken(c),
	})
	if err != nil {
		handleError(c, err)
		return
	}
	h.writeSession(c, session)
}

func (h *AuthHandler) ResendCode(c *gin.Context) {
	var req resendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	if err := h.auth.ResendCode(c.Request.Context(), req.Email, req.Purpose); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), middleware.ExtractToken(c), deviceToken(c)); err != nil {
		handleError(c, err)
		return
	}
	h.setCookie(c, middleware.SessionCookieName, "", -time.Second)
	h.setCookie(c, middleware.DeviceCookieName, "", -time.Second)
	response.Success(c, gin.H{"ok": true})
}
