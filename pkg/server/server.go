// Package server 是 wiki 服务的 JSON HTTP 外壳
package server

import (
	"log/slog"

	"wikivault/pkg/wiki"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// New 注册路由与中间件
func New(svc *wiki.Service, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{svc: svc}

	router := gin.New()
	router.Use(RequestLogger(logger), Recovery(logger), RemoteUser())

	router.GET("/health", h.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/wiki/*title", h.readArticle)
		api.GET("/article_info/*title", h.articleInfo)
		api.GET("/history/*title", h.history)
		api.GET("/search", h.search)
		api.GET("/recent", h.recent)
		api.POST("/edit", h.submitEdit)
		api.POST("/preview", h.preview)
	}
	return router
}
