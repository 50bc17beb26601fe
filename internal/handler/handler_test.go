package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xxxsen/common/webapi"

	"github.com/maibvn/pal/internal/ai"
	"github.com/maibvn/pal/internal/handler"
	"github.com/maibvn/pal/internal/index"
	"github.com/maibvn/pal/internal/middleware"
	"github.com/maibvn/pal/internal/pkg/errcode"
	"github.com/maibvn/pal/internal/repo"
	"github.com/maibvn/pal/internal/service"
	"github.com/maibvn/pal/internal/testutil"
	"github.com/maibvn/pal/internal/worker"
)

type stubGenerator struct {
	err error
}

func (s *stubGenerator) Reply(ctx context.Context, history []ai.Message, references []string) (*ai.Completion, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &ai.Completion{Content: "Sure thing!", Model: "stub", Provider: "stub", Usage: ai.Usage{TotalTokens: 5}}, nil
}

func (s *stubGenerator) ProviderName() string { return "stub" }

type testServer struct {
	router http.Handler
	runner *worker.Runner
	gen    *stubGenerator
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func setupServer(t *testing.T, production bool) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	d := testutil.OpenTestDB(t)
	store := testutil.OpenTestStore(t)

	docRepo := repo.NewDocumentRepo(d)
	chunkRepo := repo.NewChunkRepo(d)
	runner := worker.NewRunner(2)
	t.Cleanup(func() { runner.Close(0) })
	idx := index.New(chunkRepo, ai.NewHashEmbedder())
	manager := ai.NewManager(nil, nil, ai.ManagerConfig{})
	pipeline := service.NewPipeline(docRepo, chunkRepo, store, idx, manager, ai.NewChunker(1000, 200))
	documents := service.NewDocumentService(docRepo, chunkRepo, store, idx, pipeline, runner, 1<<20)
	gen := &stubGenerator{}
	retrieval := service.NewRetrievalService(idx, nil, service.DefaultRetrievalConfig())
	chat := service.NewChatService(repo.NewChatSessionRepo(d), repo.NewChatMessageRepo(d), retrieval, gen)

	deps := handler.RouterDeps{
		Documents:       handler.NewDocumentHandler(documents, 1<<20),
		Chat:            handler.NewChatHandler(chat),
		Health:          handler.NewHealthHandler("test", "test"),
		ShowErrorDetail: !production,
		RateLimitWindow: time.Minute,
		RateLimitMax:    1000,
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		"",
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(nil),
		),
	)
	require.NoError(t, err)
	return &testServer{router: engine, runner: runner, gen: gen}
}

func (s *testServer) do(t *testing.T, req *http.Request) envelope {
	t.Helper()
	resp := httptest.NewRecorder()
	s.router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	var out envelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	return out
}

func (s *testServer) doJSON(t *testing.T, method, path, body string) envelope {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return s.do(t, req)
}

func uploadRequest(t *testing.T, field, filename, contentType, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestHealth(t *testing.T) {
	s := setupServer(t, false)
	res := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Zero(t, res.Code)
	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(res.Data, &data))
	assert.Equal(t, "ok", data["status"])
	assert.Contains(t, data, "uptime")
	assert.Contains(t, data, "timestamp")
}

func TestDocumentUploadLifecycle(t *testing.T) {
	s := setupServer(t, false)
	content := strings.Repeat("Solar panels convert sunlight into electricity for the grid. ", 5)
	res := s.do(t, uploadRequest(t, "document", "solar.txt", "text/plain", content))
	require.Zero(t, res.Code, res.Msg)
	var uploaded struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &uploaded))
	assert.Equal(t, "processing", uploaded.Status)
	s.runner.Wait()

	res = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+uploaded.ID, nil))
	require.Zero(t, res.Code)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(res.Data, &doc))
	assert.Equal(t, "completed", doc["status"])
	assert.Equal(t, "solar.txt", doc["originalName"])

	res = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents/stats/summary", nil))
	require.Zero(t, res.Code)
	var stats service.DocumentStats
	require.NoError(t, json.Unmarshal(res.Data, &stats))
	assert.Equal(t, 1, stats.TotalDocuments)
	assert.Equal(t, 1, stats.VectorStore.TotalChunks)

	resp := httptest.NewRecorder()
	s.router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+uploaded.ID+"/file", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, content, resp.Body.String())

	res = s.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/documents/"+uploaded.ID, nil))
	require.Zero(t, res.Code)
	res = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+uploaded.ID, nil))
	assert.Equal(t, errcode.ErrNotFound, res.Code)
}

func TestDocumentUploadRejects(t *testing.T) {
	s := setupServer(t, false)
	res := s.do(t, uploadRequest(t, "document", "photo.png", "image/png", "not text"))
	assert.Equal(t, errcode.ErrUnsupportedFile, res.Code)

	res = s.do(t, uploadRequest(t, "file", "notes.txt", "text/plain", "wrong field"))
	assert.Equal(t, errcode.ErrInvalidFile, res.Code)

	res = s.do(t, uploadRequest(t, "document", "big.txt", "text/plain", strings.Repeat("a", (1<<20)+10)))
	assert.Equal(t, errcode.ErrFileTooLarge, res.Code)
	assert.Equal(t, "File too large. Maximum size is 1MB", res.Msg)
}

func TestChatFlow(t *testing.T) {
	s := setupServer(t, false)
	res := s.doJSON(t, http.MethodPost, "/api/v1/chat", `{"message":"hi there"}`)
	require.Zero(t, res.Code, res.Msg)
	var result service.ChatResult
	require.NoError(t, json.Unmarshal(res.Data, &result))
	assert.Equal(t, "Sure thing!", result.Message.Content)
	assert.Equal(t, 0, result.Context.DocumentsUsed)
	assert.False(t, result.Context.WebSearchUsed)

	res = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/chat/sessions", nil))
	require.Zero(t, res.Code)
	var sessions []map[string]interface{}
	require.NoError(t, json.Unmarshal(res.Data, &sessions))
	require.Len(t, sessions, 1)
	assert.EqualValues(t, 2, sessions[0]["messageCount"])

	res = s.doJSON(t, http.MethodPut, "/api/v1/chat/sessions/"+result.SessionID, `{"title":"Renamed"}`)
	require.Zero(t, res.Code)
	res = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/chat/sessions/"+result.SessionID, nil))
	require.Zero(t, res.Code)
	var detail service.SessionDetail
	require.NoError(t, json.Unmarshal(res.Data, &detail))
	assert.Equal(t, "Renamed", detail.Title)
	assert.Len(t, detail.Messages, 2)

	res = s.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/chat/sessions/"+result.SessionID, nil))
	require.Zero(t, res.Code)
	res = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/chat/sessions/"+result.SessionID, nil))
	assert.Equal(t, errcode.ErrNotFound, res.Code)
}

func TestChatValidation(t *testing.T) {
	s := setupServer(t, false)
	res := s.doJSON(t, http.MethodPost, "/api/v1/chat", `{"message":"  "}`)
	assert.Equal(t, errcode.ErrInvalid, res.Code)
	res = s.doJSON(t, http.MethodPost, "/api/v1/chat", `{"message":"hello","sessionId":"nope"}`)
	assert.Equal(t, errcode.ErrNotFound, res.Code)
}

func TestChatGenerationErrorDetail(t *testing.T) {
	dev := setupServer(t, false)
	dev.gen.err = errors.New("quota exceeded")
	res := dev.doJSON(t, http.MethodPost, "/api/v1/chat", `{"message":"hello"}`)
	assert.Equal(t, errcode.ErrGeneration, res.Code)
	assert.True(t, strings.HasPrefix(res.Msg, "failed to generate response: "))
	assert.Contains(t, res.Msg, "quota exceeded")

	prod := setupServer(t, true)
	prod.gen.err = errors.New("quota exceeded")
	res = prod.doJSON(t, http.MethodPost, "/api/v1/chat", `{"message":"hello"}`)
	assert.Equal(t, errcode.ErrGeneration, res.Code)
	assert.Equal(t, "failed to generate response", res.Msg)
}

func TestMetricsEndpoint(t *testing.T) {
	s := setupServer(t, false)
	s.doJSON(t, http.MethodPost, "/api/v1/chat", `{"message":"hello"}`)
	resp := httptest.NewRecorder()
	s.router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "pal_chat_requests_total")
}
