package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/rentdesk/internal/middleware"
)

type RouterDeps struct {
	Auth            *AuthHandler
	OAuth           *OAuthHandler
	Identity        *IdentityHandler
	Properties      *PropertiesHandler
	Gate            *middleware.AuthGate
	ResendRateLimit time.Duration
}

// RegisterRoutes mounts the API under api, which the engine roots at /api/v1.
func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/properties", deps.Properties.Get)

	if deps.Properties.properties.EnableRegister {
		api.POST("/auth/register", deps.Auth.Register)
	}
	api.POST("/auth/login", deps.Auth.Login)
	api.POST("/auth/verify-email", deps.Auth.VerifyEmail)
	api.POST("/auth/verify-device", deps.Auth.VerifyDevice)
	api.POST("/auth/resend-code", middleware.RateLimit(deps.ResendRateLimit), deps.Auth.ResendCode)
	api.POST("/auth/logout", deps.Auth.Logout)

	if deps.OAuth != nil {
		api.GET("/auth/oauth/:provider/url", deps.OAuth.AuthURL)
		api.GET("/auth/oauth/:provider/callback", deps.OAuth.Callback)
		api.POST("/auth/oauth/:provider/callback", deps.OAuth.Callback)
	}

	gated := api.Group("")
	gated.Use(deps.Gate.Handler())
	gated.GET("/identity/me", deps.Identity.Me)
	gated.POST("/identity/profile/complete", deps.Identity.CompleteProfile)
	gated.PUT("/identity/profile", deps.Identity.UpdateProfile)
	gated.GET("/identity/devices", deps.Identity.ListDevices)
	gated.DELETE("/identity/devices/:id", deps.Identity.RevokeDevice)
	gated.GET("/properties/ping", deps.Properties.Ping)
}
