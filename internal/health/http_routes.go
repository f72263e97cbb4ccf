package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterHTTPRoutes /health 详细报告，/health/ready 与 /health/live 探针
func RegisterHTTPRoutes(r gin.IRoutes, aggregator *Aggregator) {
	r.GET("/health", func(c *gin.Context) {
		report := aggregator.Report(c.Request.Context())
		c.JSON(reportCode(report), report)
	})
	r.GET("/health/ready", func(c *gin.Context) {
		report := aggregator.Report(c.Request.Context())
		c.JSON(reportCode(report), gin.H{"status": report.Status, "ready": report.Ready})
	})
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"alive": true})
	})
}

// reportCode 设备离线等降级状态仍返回 200，控制接口本身可用
func reportCode(report HealthReport) int {
	if report.Ready {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}
