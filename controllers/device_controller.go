package controllers

import (
	"net/http"

	"portaria-backend/services"

	"github.com/gin-gonic/gin"
)

type DeviceController struct {
	Gateway  *services.PushGateway
	Registry *services.TokenRegistry
}

func NewDeviceController(gw *services.PushGateway, reg *services.TokenRegistry) *DeviceController {
	return &DeviceController{Gateway: gw, Registry: reg}
}

type registerDeviceReq struct {
	Token       string `json:"token" binding:"required"`
	Platform    string `json:"platform" binding:"required,oneof=android ios"`
	TokenClass  string `json:"token_class" binding:"omitempty,oneof=standard call"`
	Environment string `json:"environment" binding:"omitempty,oneof=sandbox production"`
}

// Register is called on every token fetch from the push transport, including
// rotations; the registry upsert makes it idempotent. Failures are returned
// plainly so the client can retry with a fresh token on next foreground.
func (dc *DeviceController) Register(c *gin.Context) {
	uid := c.GetUint("userID")

	var req registerDeviceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TokenClass == "" {
		req.TokenClass = "standard"
	}
	if req.Environment == "" {
		req.Environment = "production"
	}

	arn, err := dc.Gateway.RegisterEndpoint(c.Request.Context(), req.Token, req.Platform, req.TokenClass, req.Environment)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dev, err := dc.Registry.Register(c.Request.Context(), uid, req.Token, req.Platform, req.TokenClass, req.Environment, arn)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"endpoint_arn": dev.EndpointARN})
}

type invalidateReq struct {
	Token string `json:"token" binding:"required"`
}

func (dc *DeviceController) Invalidate(c *gin.Context) {
	var req invalidateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := dc.Registry.Invalidate(c.Request.Context(), req.Token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "token invalidated"})
}

type toggleReq struct {
	Enabled bool `json:"enabled"`
}

func (dc *DeviceController) ToggleNotifications(c *gin.Context) {
	uid := c.GetUint("userID")

	var req toggleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	if err := dc.Registry.SetEnabled(c.Request.Context(), uid, req.Enabled); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "notifications updated",
		"enabled": req.Enabled,
	})
}
