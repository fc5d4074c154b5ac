package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/mindease/internal/chat"
	"github.com/suPer8Hu/mindease/internal/common"
	"github.com/suPer8Hu/mindease/internal/settings"
	"go.uber.org/zap"
)

type createSessionReq struct {
	Provider string `json:"provider"`
}

func (h *Handler) CreateChatSession(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req createSessionReq
	_ = c.ShouldBindJSON(&req) // allow empty {}

	sess, err := h.ChatSvc.CreateSession(c.Request.Context(), uid, req.Provider)
	if errors.Is(err, settings.ErrInvalidProvider) {
		common.Fail(c, http.StatusBadRequest, 10008, err.Error())
		return
	}
	if err != nil {
		h.Log.Error("create session failed", zap.Uint64("user_id", uid), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to create session")
		return
	}

	common.OK(c, gin.H{"session_id": sess.SessionID})
}

type sendMessageReq struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	Provider  string `json:"provider"`
}

type sendMessageResp struct {
	Message         string   `json:"message"`
	SessionID       string   `json:"sessionId"`
	CrisisDetected  bool     `json:"crisisDetected"`
	CrisisLevel     string   `json:"crisisLevel,omitempty"`
	Actions         []string `json:"actions,omitempty"`
	Troubleshooting []string `json:"troubleshooting,omitempty"`
}

func (h *Handler) SendChatMessage(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	res, err := h.ChatSvc.HandleTurn(c.Request.Context(), chat.TurnInput{
		UserID:    uid,
		SessionID: req.SessionID,
		Text:      req.Message,
		Provider:  req.Provider,
	})
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			common.Fail(c, http.StatusBadRequest, 10002, "message required")
		case errors.Is(err, chat.ErrInvalidSessionID):
			common.Fail(c, http.StatusBadRequest, 10007, "invalid session id")
		case errors.Is(err, chat.ErrSessionNotFound):
			common.Fail(c, http.StatusNotFound, 40004, "session not found")
		case errors.Is(err, settings.ErrInvalidProvider):
			common.Fail(c, http.StatusBadRequest, 10008, err.Error())
		default:
			h.Log.Error("chat turn failed", zap.Uint64("user_id", uid), zap.Error(err))
			common.Fail(c, http.StatusInternalServerError, 50003, "failed to send message")
		}
		return
	}

	resp := sendMessageResp{
		Message:         res.Reply,
		SessionID:       res.SessionID,
		CrisisDetected:  res.CrisisDetected,
		CrisisLevel:     res.CrisisLevel,
		Actions:         res.Actions,
		Troubleshooting: res.Troubleshooting,
	}

	// Crisis replies always go out as success so the resources are shown.
	if res.ProviderErr != nil && !res.CrisisDetected {
		common.FailWithData(c, http.StatusBadGateway, 50201, "ai provider unavailable", resp)
		return
	}
	common.OK(c, resp)
}

func (h *Handler) ListChatMessages(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	sessionID := c.Param("session_id")

	limit, _ := strconv.Atoi(c.Query("limit"))
	beforeIDStr := c.Query("before_id")
	var beforeID uint64
	if beforeIDStr != "" {
		if n, err := strconv.ParseUint(beforeIDStr, 10, 64); err == nil {
			beforeID = n
		}
	}

	msgs, err := h.ChatSvc.ListMessages(c.Request.Context(), uid, sessionID, limit, beforeID)
	if err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			common.Fail(c, http.StatusNotFound, 40004, "session not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}

	var nextBeforeID uint64
	if len(msgs) > 0 {
		nextBeforeID = msgs[len(msgs)-1].ID
	}

	common.OK(c, gin.H{
		"messages":       msgs,
		"next_before_id": nextBeforeID,
	})
}

func (h *Handler) ListCrisisEvents(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	events, err := h.ChatSvc.ListCrisisEvents(c.Request.Context(), uid, limit)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to list crisis events")
		return
	}
	common.OK(c, gin.H{"events": events})
}
