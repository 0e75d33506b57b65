package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/rentdesk/internal/config"
	"github.com/xxxsen/rentdesk/internal/middleware"
	"github.com/xxxsen/rentdesk/internal/pkg/response"
)

type PropertiesHandler struct {
	properties config.Properties
}

func NewPropertiesHandler(properties config.Properties) *PropertiesHandler {
	return &PropertiesHandler{properties: properties}
}

func (h *PropertiesHandler) Get(c *gin.Context) {
	response.Success(c, gin.H{"properties": h.properties})
}

// Ping is the gated entry point the property domain mounts behind; it echoes
// the identity the gate attached.
func (h *PropertiesHandler) Ping(c *gin.Context) {
	snapshot, _ := middleware.IdentityFromContext(c.Request.Context())
	response.Success(c, gin.H{"identity_id": snapshot.ID, "role": snapshot.Role})
}
