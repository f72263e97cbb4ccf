package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockChecker 模拟检查器
type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string {
	return m.name
}

func (m *mockChecker) Check(ctx context.Context) CheckResult {
	return CheckResult{
		Status:  m.status,
		Message: "mock",
		Latency: time.Millisecond,
	}
}

func TestAggregator(t *testing.T) {
	tests := []struct {
		name    string
		checks  []Checker
		overall Status
		ready   bool
	}{
		{"全部健康", []Checker{&mockChecker{CheckDatabase, StatusHealthy}, &mockChecker{CheckBLE, StatusHealthy}}, StatusHealthy, true},
		{"设备离线降级", []Checker{&mockChecker{CheckDatabase, StatusHealthy}, &mockChecker{CheckBLE, StatusDegraded}}, StatusDegraded, true},
		{"帧日志不可用只降级", []Checker{&mockChecker{CheckDatabase, StatusUnhealthy}, &mockChecker{CheckBLE, StatusHealthy}}, StatusDegraded, true},
		{"状态镜像不可用只降级", []Checker{&mockChecker{CheckRedis, StatusUnhealthy}, &mockChecker{CheckBLE, StatusDegraded}}, StatusDegraded, true},
		{"会话停止", []Checker{&mockChecker{CheckRedis, StatusHealthy}, &mockChecker{CheckBLE, StatusUnhealthy}}, StatusUnhealthy, false},
		{"无检查器", nil, StatusHealthy, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := NewAggregator(tt.checks...).Report(context.Background())
			assert.Equal(t, tt.overall, report.Status)
			assert.Equal(t, tt.ready, report.Ready)
			assert.Len(t, report.Checks, len(tt.checks))
		})
	}

	t.Run("动态添加检查器", func(t *testing.T) {
		agg := NewAggregator(&mockChecker{CheckBLE, StatusHealthy})
		agg.AddChecker(&mockChecker{CheckRedis, StatusHealthy})
		assert.Len(t, agg.CheckAll(context.Background()), 2)
	})
}

type fakeWriterStats struct{ dropped, failed uint64 }

func (f *fakeWriterStats) Dropped() uint64 { return f.dropped }
func (f *fakeWriterStats) Failed() uint64  { return f.failed }

func TestDatabaseChecker_WriterStatus(t *testing.T) {
	stats := &fakeWriterStats{}
	c := NewDatabaseChecker(nil, stats)
	assert.Equal(t, CheckDatabase, c.Name())

	steps := []struct {
		name            string
		dropped, failed uint64
		want            Status
		message         string
	}{
		{"无丢弃", 0, 0, StatusHealthy, "ok"},
		{"开始丢弃", 3, 0, StatusDegraded, "frame log dropping records"},
		{"丢弃停止后恢复", 3, 0, StatusHealthy, "ok"},
		{"写失败优先", 5, 1, StatusDegraded, "frame log writes failing"},
		{"写失败停止后恢复", 5, 1, StatusHealthy, "ok"},
	}
	for _, st := range steps {
		stats.dropped, stats.failed = st.dropped, st.failed
		details := map[string]interface{}{}
		status, message := c.writerStatus(details)
		assert.Equal(t, st.want, status, st.name)
		assert.Equal(t, st.message, message, st.name)
		assert.Equal(t, st.dropped, details["frame_log_dropped"], st.name)
	}
}

func TestCounterWatch(t *testing.T) {
	var w counterWatch
	assert.False(t, w.grew("a", 0))
	assert.True(t, w.grew("b", 2), "首次读数非零视为增长")
	assert.False(t, w.grew("b", 2))
	assert.True(t, w.grew("b", 3))
}

func TestHTTPRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		status     Status
		healthCode int
		readyCode  int
	}{
		{"健康", StatusHealthy, http.StatusOK, http.StatusOK},
		{"降级仍可服务", StatusDegraded, http.StatusOK, http.StatusOK},
		{"不健康", StatusUnhealthy, http.StatusServiceUnavailable, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			RegisterHTTPRoutes(r, NewAggregator(&mockChecker{"ble", tt.status}))

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.healthCode, rr.Code)
			var report HealthReport
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
			assert.Equal(t, tt.status, report.Status)
			assert.Contains(t, report.Checks, "ble")

			rr = httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			assert.Equal(t, tt.readyCode, rr.Code)

			rr = httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
			assert.Equal(t, http.StatusOK, rr.Code)
		})
	}
}

func TestReadiness(t *testing.T) {
	r := New()
	assert.False(t, r.Ready())
	r.SetSessionReady(true)
	assert.False(t, r.Ready())
	r.SetStorageReady(true)
	assert.True(t, r.Ready())
}
