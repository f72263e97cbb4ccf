package app

import (
	"net/http"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/hikeit-ble/internal/config"
	"github.com/taoyao-code/hikeit-ble/internal/httpserver"
)

// NewHTTPServer 根据配置创建 HTTP 服务器；未启用指标时不挂载指标路由
func NewHTTPServer(cfg *cfgpkg.Config, metricsHandler http.Handler, readyFn func() bool, logger *zap.Logger) *httpserver.Server {
	path := cfg.Metrics.Path
	if !cfg.Metrics.Enable {
		path, metricsHandler = "", nil
	}
	return httpserver.New(cfg.HTTP, path, metricsHandler, readyFn, logger)
}
