package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/rentdesk/internal/model"
	"github.com/xxxsen/rentdesk/internal/pkg/response"
	"github.com/xxxsen/rentdesk/internal/service"
)

type IdentityHandler struct {
	identities *service.IdentityService
	devices    *service.DeviceService
}

func NewIdentityHandler(identities *service.IdentityService, devices *service.DeviceService) *IdentityHandler {
	return &IdentityHandler{identities: identities, devices: devices}
}

type completeProfileRequest struct {
	FullName    string `json:"full_name" binding:"required"`
	Phone       string `json:"phone"`
	CompanyName string `json:"company_name"`
}

type updateProfileRequest struct {
	FullName    *string `json:"full_name"`
	Phone       *string `json:"phone"`
	CompanyName *string `json:"company_name"`
}

func (h *IdentityHandler) Me(c *gin.Context) {
	snapshot, err := h.identities.Me(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"identity":         snapshot,
		"profile_complete": snapshot.ProfileComplete(),
	})
}

func (h *IdentityHandler) CompleteProfile(c *gin.Context) {
	var req completeProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	snapshot, err := h.identities.CompleteProfile(c.Request.Context(), getUserID(c), service.ProfileInput{
		FullName:    req.FullName,
		Phone:       req.Phone,
		CompanyName: req.CompanyName,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"identity": snapshot})
}

func (h *IdentityHandler) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	snapshot, err := h.identities.UpdateProfile(c.Request.Context(), getUserID(c), model.IdentityPatch{
		FullName:    model.FromPtr(req.FullName),
		Phone:       model.FromPtr(req.Phone),
		CompanyName: model.FromPtr(req.CompanyName),
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"identity": snapshot})
}

func (h *IdentityHandler) ListDevices(c *gin.Context) {
	items, err := h.devices.ListDevices(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"devices": items})
}

func (h *IdentityHandler) RevokeDevice(c *gin.Context) {
	if err := h.devices.RevokeDevice(c.Request.Context(), getUserID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}
