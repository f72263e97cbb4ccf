package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/taoyao-code/hikeit-ble/internal/config"
	appmetrics "github.com/taoyao-code/hikeit-ble/internal/metrics"
)

func serve(srv *Server, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestHealthzReadyzMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := cfgpkg.HTTPConfig{Addr: ":0", ReadTimeout: time.Second, WriteTimeout: time.Second}
	reg := appmetrics.NewRegistry()
	appmetrics.NewAppMetrics(reg)
	srv := New(cfg, "/metrics", appmetrics.Handler(reg), func() bool { return true }, nil)

	assert.Equal(t, http.StatusOK, serve(srv, "/healthz").Code)
	assert.Equal(t, http.StatusOK, serve(srv, "/readyz").Code)

	rr := serve(srv, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "hikeit_session_phase")
}

func TestReadyzNotReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := cfgpkg.HTTPConfig{Addr: ":0", ReadTimeout: time.Second, WriteTimeout: time.Second}
	srv := New(cfg, "", nil, func() bool { return false }, nil)
	assert.Equal(t, http.StatusServiceUnavailable, serve(srv, "/readyz").Code)
	assert.Equal(t, http.StatusNotFound, serve(srv, "/metrics").Code)
}

func TestEngineRoutesAndShutdown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := New(cfgpkg.HTTPConfig{Addr: "127.0.0.1:0"}, "", nil, nil, nil)
	srv.Engine().GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	rr := serve(srv, "/ping")
	assert.Equal(t, "pong", rr.Body.String())

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, srv.Shutdown(context.Background()))
	assert.NoError(t, <-errc)
}
