package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"wikivault/pkg/repository"
	"wikivault/pkg/search"
	"wikivault/pkg/types"
	"wikivault/pkg/wiki"

	"github.com/gin-gonic/gin"
)

const maxPreviewBytes = 1 << 20

type handlers struct {
	svc *wiki.Service
}

// titleParam 取出通配路由中的标题，空标题指向首页
func (h *handlers) titleParam(c *gin.Context) types.Title {
	t := strings.Trim(c.Param("title"), "/")
	if t == "" {
		return h.svc.HomePage()
	}
	return types.Title(t)
}

func intQuery(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// fail 把内部错误映射成 HTTP 状态码
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrInvalidTitle),
		errors.Is(err, search.ErrInvalidQuery),
		errors.Is(err, repository.ErrEncoding),
		errors.Is(err, repository.ErrInvalidHash):
		status = http.StatusBadRequest
	case errors.Is(err, wiki.ErrAnonymous):
		status = http.StatusUnauthorized
	case errors.Is(err, repository.ErrUnknownRevision):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	_ = c.Error(err)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GET /api/wiki/*title?rev=
func (h *handlers) readArticle(c *gin.Context) {
	title := h.titleParam(c)
	art, ok, err := h.svc.ReadArticle(c.Request.Context(), title, types.Hash(c.Query("rev")))
	if err != nil {
		fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "article not found", "title": title})
		return
	}
	c.JSON(http.StatusOK, art)
}

// GET /api/article_info/*title
func (h *handlers) articleInfo(c *gin.Context) {
	info, err := h.svc.ArticleInfo(c.Request.Context(), h.titleParam(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// GET /api/history/*title
func (h *handlers) history(c *gin.Context) {
	hist, err := h.svc.History(c.Request.Context(), h.titleParam(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, hist)
}

// POST /api/edit
func (h *handlers) submitEdit(c *gin.Context) {
	var req wiki.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.svc.SubmitEdit(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /api/preview (body 是 markdown 原文)
func (h *handlers) preview(c *gin.Context) {
	src, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPreviewBytes))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"html": h.svc.Preview(string(src))})
}

// GET /api/search?q=&limit=
func (h *handlers) search(c *gin.Context) {
	results, err := h.svc.Search(c.Request.Context(), c.Query("q"), intQuery(c, "limit", 10))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// GET /api/recent?limit=
func (h *handlers) recent(c *gin.Context) {
	changes, err := h.svc.RecentChanges(c.Request.Context(), intQuery(c, "limit", 0))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, changes)
}
