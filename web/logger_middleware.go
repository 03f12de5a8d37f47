package web

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"quantlab/logger"
	"quantlab/metrics"
)

// GinLoggerMiddleware 访问日志中间件
// logAll 返回 true 时全量输出；否则仅记录错误请求 (状态码 >= 400)。
// 配置热更新后下一次请求即生效。
func GinLoggerMiddleware(logAll func() bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		statusCode := c.Writer.Status()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.GetPrometheusMetrics().RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(statusCode))

		if statusCode < 400 && (logAll == nil || !logAll()) {
			return
		}

		if raw != "" {
			path = path + "?" + raw
		}

		logMessage := fmt.Sprintf("[GIN] %d | %v | %s | %-7s %s | %s",
			statusCode,
			time.Since(start),
			c.ClientIP(),
			c.Request.Method,
			path,
			c.GetString(requestIDKey),
		)
		if errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String(); errorMessage != "" {
			logMessage += " | Error: " + errorMessage
		}

		logger.WriteWebLog(logMessage)
	}
}

const requestIDKey = "RequestID"

// RequestIDMiddleware 为每个请求分配 ID，客户端传入 X-Request-ID 时沿用
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)
		c.Next()
	}
}
