package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digiklausur/data-gateway/pkg/answers"
	"github.com/digiklausur/data-gateway/pkg/auth"
	"github.com/digiklausur/data-gateway/pkg/gateway"
	"github.com/digiklausur/data-gateway/pkg/observability"
	"github.com/digiklausur/data-gateway/pkg/rbac"
	"github.com/digiklausur/data-gateway/pkg/storage"
	"github.com/digiklausur/data-gateway/pkg/tenancy"
)

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	log := observability.NewLogger(observability.ErrorLevel, io.Discard)
	store := storage.NewStore(storage.NewMemoryBackend(), log)
	catalog := tenancy.NewCatalog(store, log)
	engine, err := rbac.NewEngine(rbac.DefaultPolicy(), log)
	require.NoError(t, err)

	creds := auth.NewCredentialManagerWithParams(1024, 8, 1, 16)
	resolver := auth.NewResolver(store, creds, catalog, engine.DefaultRole(), auth.LegacyAdopt, log)

	pipeline := gateway.NewPipeline(gateway.Dependencies{
		Store:      store,
		Catalog:    catalog,
		Binder:     tenancy.NewBinder(catalog, log),
		Resolver:   resolver,
		Engine:     engine,
		Aggregator: answers.NewAggregator(store, log),
		Logger:     log,
	}, gateway.Options{CourseScoping: true, AnswerAggregation: true})

	return NewServer(pipeline, opts, log)
}

func postJSON(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestPostSetAndGet(t *testing.T) {
	srv := newTestServer(t, Options{})

	rec := postJSON(t, srv, `{"token":"alice#s1","store":"quiz#course1","set":{"key":"alice","note":"hi"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var setResult map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &setResult))
	assert.Equal(t, map[string]interface{}{"key": "alice"}, setResult)

	rec = postJSON(t, srv, `{"token":"alice#s1","store":"quiz#course1","get":"alice"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var getResult map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &getResult))
	assert.Equal(t, "hi", getResult["note"])
}

func TestGetViaQueryParameters(t *testing.T) {
	srv := newTestServer(t, Options{})

	rec := postJSON(t, srv, `{"token":"alice#s1","store":"quiz#course1","set":{"key":"alice","note":"hi"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	params := url.Values{}
	params.Set("token", "alice#s1")
	params.Set("store", "quiz#course1")
	params.Set("get", "alice")
	req := httptest.NewRequest(http.MethodGet, "/?"+params.Encode(), nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "hi", result["note"])
}

func TestStructuredQueryOverGet(t *testing.T) {
	srv := newTestServer(t, Options{})

	rec := postJSON(t, srv, `{"token":"alice#s1","store":"quiz#course1","set":{"key":"alice","group":"a"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	params := url.Values{}
	params.Set("token", "alice#s1")
	params.Set("store", "quiz#course1")
	params.Set("get", `{"group":"a"}`)
	req := httptest.NewRequest(http.MethodGet, "/?"+params.Encode(), nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result, 1)
}

func TestOptionsPreflight(t *testing.T) {
	srv := newTestServer(t, Options{})

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestOversizedBody(t *testing.T) {
	srv := newTestServer(t, Options{MaxBodyBytes: 64})

	big := `{"token":"alice#s1","store":"quiz#course1","set":{"key":"alice","blob":"` +
		strings.Repeat("x", 256) + `"}}`
	rec := postJSON(t, srv, big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestBadJSONAndDenialsAreForbidden(t *testing.T) {
	srv := newTestServer(t, Options{})

	rec := postJSON(t, srv, `{not json`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Malformed store reference.
	rec = postJSON(t, srv, `{"token":"alice#s1","store":"noseparator","get":"alice"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Policy denial: bootstrap alice as admin, then bob reads her document.
	rec = postJSON(t, srv, `{"token":"alice#s1","store":"quiz#course1","set":{"key":"alice"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = postJSON(t, srv, `{"token":"bob#s2","store":"quiz#course1","get":"alice"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "forbidden", body["error"])
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, Options{Metrics: true})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInboundRequestIDIsKept(t *testing.T) {
	srv := newTestServer(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}
