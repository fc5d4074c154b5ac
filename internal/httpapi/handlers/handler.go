package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/mindease/internal/chat"
	"github.com/suPer8Hu/mindease/internal/config"
	"github.com/suPer8Hu/mindease/internal/httpapi/middleware"
	"github.com/suPer8Hu/mindease/internal/settings"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Handler struct {
	DB       *gorm.DB
	Cfg      config.Config
	ChatSvc  *chat.Service
	Settings *settings.Service
	Log      *zap.Logger
}

func NewHandler(db *gorm.DB, cfg config.Config, chatSvc *chat.Service, settingsSvc *settings.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{DB: db, Cfg: cfg, ChatSvc: chatSvc, Settings: settingsSvc, Log: log}
}

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}
