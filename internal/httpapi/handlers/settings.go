package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/mindease/internal/common"
	"github.com/suPer8Hu/mindease/internal/settings"
	"go.uber.org/zap"
)

func (h *Handler) GetAISettings(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	p, err := h.Settings.Get(c.Request.Context(), uid)
	if err != nil {
		h.settingsError(c, uid, err)
		return
	}
	common.OK(c, gin.H{"aiSettings": p.Masked()})
}

type putSettingsReq struct {
	AISettings *settings.Update `json:"aiSettings"`
}

func (h *Handler) UpdateAISettings(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req putSettingsReq
	if err := c.ShouldBindJSON(&req); err != nil || req.AISettings == nil {
		common.Fail(c, http.StatusBadRequest, 10001, "aiSettings required")
		return
	}

	p, err := h.Settings.Update(c.Request.Context(), uid, *req.AISettings)
	if err != nil {
		h.settingsError(c, uid, err)
		return
	}
	common.OK(c, gin.H{"aiSettings": p.Masked()})
}

func (h *Handler) settingsError(c *gin.Context, uid uint64, err error) {
	switch {
	case errors.Is(err, settings.ErrInvalidProvider):
		common.Fail(c, http.StatusBadRequest, 10008, err.Error())
	case errors.Is(err, settings.ErrUserNotFound):
		common.Fail(c, http.StatusNotFound, 40401, "user not found")
	default:
		h.Log.Error("ai settings failed", zap.Uint64("user_id", uid), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50005, "failed to load ai settings")
	}
}

type testConnectionReq struct {
	Provider string `json:"provider"`
}

// TestAIConnection probes the caller's provider; a failed probe is still a 200
// with ok=false and remediation steps.
func (h *Handler) TestAIConnection(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req testConnectionReq
	_ = c.ShouldBindJSON(&req) // allow empty body

	res, err := h.ChatSvc.TestConnection(c.Request.Context(), uid, req.Provider)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10008, err.Error())
		return
	}
	common.OK(c, res)
}
