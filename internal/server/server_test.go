package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"rolerag/config"
	"rolerag/internal/adapter/auth"
	"rolerag/internal/adapter/chunker"
	"rolerag/internal/adapter/embedding"
	"rolerag/internal/adapter/fs"
	"rolerag/internal/adapter/memstore"
	"rolerag/internal/logging"
	"rolerag/internal/usecase"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, trustBodyRole bool) *Server {
	t.Helper()
	logger := logging.Discard()

	root := t.TempDir()
	for rel, content := range map[string]string{
		"finance/q3.md":     "Q3 revenue rose 10%.",
		"general/office.md": "Office hours are 9-5.",
	} {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	embedder := embedding.NewHashEmbedder(384, true)
	index := memstore.NewMemoryIndex(embedder.ModelName(), embedder.Dimension())
	wc, err := chunker.NewWindowChunker(500, 50)
	require.NoError(t, err)
	loader := fs.NewLoader([]string{"**/*.md"}, nil, logger)
	_, err = usecase.NewIngestUseCase(loader, wc, embedder, index, 16, 2, logger).Ingest(context.Background(), root)
	require.NoError(t, err)

	store, err := auth.NewStore([]config.UserConfig{
		{Username: "Sam", Password: "financepass", Role: "finance"},
		{Username: "Bob", Password: "employeepass", Role: "employee"},
		{Username: "Alice", Password: "ceopass", Role: "c-levelexecutives"},
	}, bcrypt.MinCost, logger)
	require.NoError(t, err)

	retriever := usecase.NewRetriever(index, embedder, usecase.DefaultRetrieveOptions(), logger)
	chat := usecase.NewChatService(retriever, nil, logger)
	return New(Options{TrustBodyRole: trustBodyRole}, store, chat, index, logger)
}

func do(t *testing.T, s *Server, method, path string, body any, user, pass string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.SetBasicAuth(user, pass)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, true)

	rec := do(t, s, http.MethodGet, "/login", nil, "Sam", "financepass")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[loginResponse](t, rec)
	assert.Equal(t, "Welcome Sam!", resp.Message)
	assert.Equal(t, "finance", resp.Role)
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))

	rec = do(t, s, http.MethodGet, "/login", nil, "Sam", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", decode[errorResponse](t, rec).Detail)
	assert.Equal(t, "Basic", rec.Header().Get("WWW-Authenticate"))

	rec = do(t, s, http.MethodGet, "/login", nil, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTestEndpoint(t *testing.T) {
	s := newTestServer(t, true)

	rec := do(t, s, http.MethodGet, "/test", nil, "Alice", "ceopass")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[loginResponse](t, rec)
	assert.Equal(t, "Hello Alice! You can now chat.", resp.Message)
	assert.Equal(t, "executive", resp.Role)
}

func TestChat_BodyRole(t *testing.T) {
	s := newTestServer(t, true)

	rec := do(t, s, http.MethodPost, "/chat", chatRequest{
		User:    chatUser{Username: "Sam", Role: "finance"},
		Message: "revenue",
	}, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[chatResponse](t, rec)
	assert.Equal(t, "Based on your role in **Finance**, here's the relevant information:\n\nQ3 revenue rose 10%.", resp.Response)
	assert.Equal(t, "finance", resp.Role)
	assert.Equal(t, []string{"finance/q3.md"}, resp.Sources)
}

func TestChat_NoDataForEmployee(t *testing.T) {
	s := newTestServer(t, true)

	rec := do(t, s, http.MethodPost, "/chat", chatRequest{
		User:    chatUser{Username: "Bob", Role: "employee"},
		Message: "revenue",
	}, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[chatResponse](t, rec)
	assert.Equal(t, "No relevant data found for your role: Employee", resp.Response)
	assert.Equal(t, []string{}, resp.Sources)
}

func TestChat_AuthenticatedRoleWins(t *testing.T) {
	s := newTestServer(t, true)

	rec := do(t, s, http.MethodPost, "/chat", chatRequest{
		User:    chatUser{Username: "Bob", Role: "finance"},
		Message: "revenue",
	}, "Bob", "employeepass")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[chatResponse](t, rec)
	assert.Equal(t, "employee", resp.Role)
	assert.Contains(t, resp.Response, "No relevant data found")
}

func TestChat_BadCredentialsRejected(t *testing.T) {
	s := newTestServer(t, true)

	rec := do(t, s, http.MethodPost, "/chat", chatRequest{
		User:    chatUser{Username: "Sam", Role: "finance"},
		Message: "revenue",
	}, "Sam", "nope")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChat_CredentialsRequiredWhenBodyRoleUntrusted(t *testing.T) {
	s := newTestServer(t, false)
	body := chatRequest{User: chatUser{Username: "Sam", Role: "finance"}, Message: "revenue"}

	rec := do(t, s, http.MethodPost, "/chat", body, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, http.MethodPost, "/chat", body, "Sam", "financepass")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "finance", decode[chatResponse](t, rec).Role)
}

func TestChat_BadRequests(t *testing.T) {
	s := newTestServer(t, true)

	rec := do(t, s, http.MethodPost, "/chat", "{not json", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/chat", chatRequest{User: chatUser{Role: "hr"}, Message: "  "}, "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat_RetrievalErrorIsNot5xx(t *testing.T) {
	s := newTestServer(t, true)
	// An index of another dimension fails every search.
	s.chat = usecase.NewChatService(
		usecase.NewRetriever(memstore.NewMemoryIndex("x", 8), embedding.NewHashEmbedder(384, true), usecase.DefaultRetrieveOptions(), logging.Discard()),
		nil, logging.Discard())

	rec := do(t, s, http.MethodPost, "/chat", chatRequest{User: chatUser{Role: "hr"}, Message: "leave"}, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[chatResponse](t, rec).Response
	assert.Equal(t, "Error occurred: index unavailable", resp)
	assert.NotContains(t, resp, "dimension")
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, true)

	rec := do(t, s, http.MethodGet, "/healthz", nil, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[healthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Chunks)
}

func TestRequestIDPropagated(t *testing.T) {
	s := newTestServer(t, true)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(headerRequestID, "abc-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(headerRequestID))
}
