package server

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"wikivault/pkg/core"
	"wikivault/pkg/metrics"
	"wikivault/pkg/wiki"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID   = "X-Request-Id"
	HeaderRemoteUser  = "X-Remote-User"
	HeaderRemoteEmail = "X-Remote-Email"
)

// =============================================================================
// 1. Logging (结构化日志 + 延迟指标)
// =============================================================================

// RequestLogger 记录每个请求；5xx 记 Error，4xx 记 Warn
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(duration.Seconds())

		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}

		logger.Log(c.Request.Context(), level, "HTTP Request",
			slog.String("id", id),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Duration("dur", duration),
			slog.String("err", c.Errors.String()),
		)
	}
}

// =============================================================================
// 2. Recovery (防弹衣)
// =============================================================================

// Recovery 捕获 Panic，返回 500 而不是断开连接
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("🔥 PANIC RECOVERED",
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}

// =============================================================================
// 3. Identity (认证由前置代理完成)
// =============================================================================

// RemoteUser 把前置代理传来的用户放进请求 ctx
func RemoteUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if name := c.GetHeader(HeaderRemoteUser); name != "" {
			sig := core.Signature{Name: name, Email: c.GetHeader(HeaderRemoteEmail)}
			c.Request = c.Request.WithContext(wiki.WithAuthor(c.Request.Context(), sig))
		}
		c.Next()
	}
}
