package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/hikeit-ble/internal/api/middleware"
)

// RegisterDeviceRoutes 注册设备控制与事件推送路由
func RegisterDeviceRoutes(r gin.IRouter, handler *DeviceHandler, hub *EventHub, authCfg middleware.AuthConfig, logger *zap.Logger) {
	if r == nil || handler == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	api := r.Group("/api/v1")
	api.Use(middleware.RequestTracing())
	if authCfg.Enabled {
		api.Use(middleware.APIKeyAuth(authCfg, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.APIKeys)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}

	api.GET("/labels", handler.GetLabels)
	api.GET("/frames", handler.ListFrames)
	api.GET("/sessions", handler.ListSessions)
	if hub != nil {
		api.GET("/events", hub.Handle)
	}

	dev := api.Group("/device")
	dev.GET("", handler.GetDevice)
	dev.GET("/scan", handler.Scan)
	dev.POST("/connect", handler.Connect)
	dev.POST("/disconnect", handler.Disconnect)
	dev.POST("/verify", handler.Verify)
	dev.PUT("/connect-allowed", handler.SetConnectAllowed)
	dev.PUT("/address", handler.SetAddress)
	dev.PUT("/pin", handler.SetPIN)
	dev.POST("/mode", handler.SetMode)
	dev.POST("/step", handler.SetStep)
	dev.POST("/lock", handler.SetLocked)
	dev.POST("/screen", handler.PressScreen)
	dev.POST("/auto", handler.PressAuto)
	dev.POST("/study", handler.StudyMode)

	logger.Info("device routes registered")
}
