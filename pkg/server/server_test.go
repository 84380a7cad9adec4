package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"wikivault/pkg/repository"
	"wikivault/pkg/search"
	"wikivault/pkg/wiki"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	repo, err := repository.Open(ctx, repository.Options{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close(context.Background()) })

	snap, err := repo.Read(ctx)
	require.NoError(t, err)
	index, err := search.OpenMem(ctx, snap, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	// 没有回退身份：匿名请求不能编辑
	svc := wiki.NewService(repo, index, wiki.ContextIdentity{}, nil)
	return New(svc, nil)
}

func do(t *testing.T, r http.Handler, method, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func editBody(t *testing.T, req wiki.SubmitRequest) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(req))
	return buf.String()
}

var alice = map[string]string{HeaderRemoteUser: "alice", HeaderRemoteEmail: "alice@example.com"}

func TestServer_EditFlow(t *testing.T) {
	r := setupRouter(t)

	// 1. 编辑器拿到文章信息
	w := do(t, r, http.MethodGet, "/api/article_info/guides/intro", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	info := decode[wiki.ArticleInfo](t, w)
	assert.Empty(t, info.Hash)
	assert.NotEmpty(t, info.Revision)

	// 2. 提交
	body := editBody(t, wiki.SubmitRequest{Title: "guides/intro", Markdown: "# Intro\n\nquokka\n", BaseRevision: info.Revision})
	w = do(t, r, http.MethodPost, "/api/edit", body, alice)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[map[string]any](t, w)
	assert.Equal(t, "no_conflict", res["type"])
	assert.NotEmpty(t, res["new_rev"])
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))

	// 3. 读取与搜索
	w = do(t, r, http.MethodGet, "/api/wiki/guides/intro", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	art := decode[wiki.Article](t, w)
	assert.Contains(t, art.HTML, "<h1>Intro</h1>")

	w = do(t, r, http.MethodGet, "/api/search?q=quokka", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]search.Result](t, w), 1)

	// 4. 历史记录里是代理传来的用户
	w = do(t, r, http.MethodGet, "/api/history/guides/intro", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	hist := decode[[]map[string]any](t, w)
	require.Len(t, hist, 1)
	user := hist[0]["user"].(map[string]any)
	assert.Equal(t, "alice", user["name"])

	w = do(t, r, http.MethodGet, "/api/recent?limit=5", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]wiki.Change](t, w), 2)
}

func TestServer_HomePageDefault(t *testing.T) {
	r := setupRouter(t)
	w := do(t, r, http.MethodGet, "/api/wiki/", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Home", decode[wiki.Article](t, w).Title.String())
}

func TestServer_Errors(t *testing.T) {
	r := setupRouter(t)

	tests := []struct {
		name    string
		method  string
		path    string
		body    string
		headers map[string]string
		want    int
	}{
		{"missing article", http.MethodGet, "/api/wiki/nope", "", nil, http.StatusNotFound},
		{"bad query", http.MethodGet, "/api/search?q=%22open", "", nil, http.StatusBadRequest},
		{"anonymous edit", http.MethodPost, "/api/edit", `{"title":"X","markdown":"x"}`, nil, http.StatusUnauthorized},
		{"escaping title", http.MethodPost, "/api/edit", `{"title":"../x","markdown":"x"}`, alice, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/api/edit", `{`, alice, http.StatusBadRequest},
		{"escaping base", http.MethodPost, "/api/edit", `{"title":"X","markdown":"x","base_rev":"../../outside.txt"}`, alice, http.StatusBadRequest},
		{"malformed ancestor", http.MethodPost, "/api/edit", `{"title":"X","markdown":"x","ancestor_oid":"zz"}`, alice, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, tt.method, tt.path, tt.body, tt.headers)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestServer_PreviewAndMetrics(t *testing.T) {
	r := setupRouter(t)

	w := do(t, r, http.MethodPost, "/api/preview", "*hi*", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[map[string]string](t, w)["html"], "<em>hi</em>")

	w = do(t, r, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "wikivault_http_request_duration_seconds")

	w = do(t, r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
