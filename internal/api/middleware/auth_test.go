package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newAuthRouter(cfg AuthConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestTracing(), APIKeyAuth(cfg, zap.NewNop()))
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })
	return r
}

func TestAPIKeyAuth(t *testing.T) {
	cfg := AuthConfig{Enabled: true, APIKeys: []string{"sk_test_0123456789"}}

	tests := []struct {
		name    string
		cfg     AuthConfig
		headers map[string]string
		code    int
	}{
		{"未启用直接放行", AuthConfig{}, nil, http.StatusOK},
		{"缺少Key", cfg, nil, http.StatusUnauthorized},
		{"X-API-Key有效", cfg, map[string]string{"X-API-Key": "sk_test_0123456789"}, http.StatusOK},
		{"Bearer有效", cfg, map[string]string{"Authorization": "Bearer sk_test_0123456789"}, http.StatusOK},
		{"无效Key", cfg, map[string]string{"X-API-Key": "sk_wrong"}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newAuthRouter(tt.cfg)
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)
			assert.Equal(t, tt.code, rr.Code)
			assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
		})
	}
}

func TestRequestTracing_KeepsClientID(t *testing.T) {
	r := newAuthRouter(AuthConfig{})
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, "req-42", rr.Body.String())
	assert.Equal(t, "req-42", rr.Header().Get("X-Request-ID"))
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "****", maskAPIKey("short"))
	assert.Equal(t, "sk_t****6789", maskAPIKey("sk_test_0123456789"))
}
