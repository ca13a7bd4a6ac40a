//go:build e2e

// Package e2e exercises a running ingestion service over HTTP: upload, poll
// until the pipeline finishes, query, reprocess and delete.
//
// Prerequisites:
//   - the service running with configs/development.yaml (or equivalent)
//   - PostgreSQL reachable by the service
//
// Run with:
//
//	go test -v -tags=e2e -timeout=180s ./test/e2e/...
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type e2eConfig struct {
	BaseURL   string
	JWTSecret string
}

func loadE2EConfig() e2eConfig {
	return e2eConfig{
		BaseURL:   envOrDefault("E2E_INGESTION_URL", "http://localhost:8081"),
		JWTSecret: envOrDefault("E2E_JWT_SECRET", "local-development-secret"),
	}
}

type apiClient struct {
	t     *testing.T
	base  string
	token string
	http  *http.Client
}

func newClient(t *testing.T, userID string) *apiClient {
	t.Helper()
	cfg := loadE2EConfig()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(cfg.JWTSecret))
	require.NoError(t, err)

	c := &apiClient{t: t, base: cfg.BaseURL, token: token, http: &http.Client{Timeout: 10 * time.Second}}
	resp, err := c.http.Get(c.base + "/health/live")
	if err != nil {
		t.Skipf("ingestion service unavailable: %v", err)
	}
	resp.Body.Close()
	return c
}

func (c *apiClient) do(method, path, contentType string, body io.Reader) (int, map[string]any) {
	c.t.Helper()
	req, err := http.NewRequest(method, c.base+path, body)
	require.NoError(c.t, err)
	req.Header.Set("Authorization", "Bearer "+c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp.StatusCode, out
}

func (c *apiClient) upload(name, text string) (int, map[string]any) {
	c.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
	hdr.Set("Content-Type", "text/plain")
	part, err := mw.CreatePart(hdr)
	require.NoError(c.t, err)
	_, _ = part.Write([]byte(text))
	require.NoError(c.t, mw.Close())
	return c.do(http.MethodPost, "/api/v1/documents", mw.FormDataContentType(), &body)
}

// waitFor polls the document until it leaves processing.
func (c *apiClient) waitFor(id string) map[string]any {
	c.t.Helper()
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		status, doc := c.do(http.MethodGet, "/api/v1/documents/"+id, "", nil)
		require.Equal(c.t, http.StatusOK, status)
		if doc["status"] != "processing" && doc["status"] != "uploading" {
			return doc
		}
		time.Sleep(500 * time.Millisecond)
	}
	c.t.Fatalf("document %s still processing after 60s", id)
	return nil
}

func TestHealth(t *testing.T) {
	c := newClient(t, "e2e-health")
	for _, path := range []string{"/health/live", "/health/ready"} {
		resp, err := c.http.Get(c.base + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

// TestDocumentLifecycle uploads a document, waits for it to become ready,
// finds it through a query, reprocesses it and deletes it.
func TestDocumentLifecycle(t *testing.T) {
	user := fmt.Sprintf("e2e-%d", time.Now().UnixNano())
	c := newClient(t, user)

	unique := fmt.Sprintf("zephyrine%d", time.Now().UnixNano())
	text := strings.Repeat("Ingestion end-to-end check paragraph. ", 60) + "\n\nThe marker word is " + unique + "."

	status, doc := c.upload("lifecycle.txt", text)
	require.Equal(t, http.StatusAccepted, status, doc)
	id, _ := doc["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "processing", doc["status"])

	status, dup := c.upload("copy.txt", text)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, id, dup["existing_document_id"])

	doc = c.waitFor(id)
	require.Equal(t, "ready", doc["status"], doc["error_message"])
	assert.Greater(t, doc["chunk_count"], 1.0)

	status, res := c.do(http.MethodPost, "/api/v1/query", "application/json", strings.NewReader(`{"query":"`+unique+`"}`))
	require.Equal(t, http.StatusOK, status)
	t.Logf("query results: %v", res["results"])

	status, _ = c.do(http.MethodPost, "/api/v1/documents/"+id+"/reprocess", "", nil)
	require.Equal(t, http.StatusAccepted, status)
	doc = c.waitFor(id)
	assert.Equal(t, "ready", doc["status"])

	other := newClient(t, user+"-other")
	status, _ = other.do(http.MethodGet, "/api/v1/documents/"+id, "", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = c.do(http.MethodDelete, "/api/v1/documents/"+id, "", nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = c.do(http.MethodGet, "/api/v1/documents/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = c.do(http.MethodDelete, "/api/v1/documents/"+id, "", nil)
	assert.Equal(t, http.StatusNoContent, status, "delete is idempotent")
}

func TestUnsupportedMediaTypeRejected(t *testing.T) {
	c := newClient(t, "e2e-validation")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="image.png"`)
	hdr.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, _ = part.Write([]byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, mw.Close())

	status, res := c.do(http.MethodPost, "/api/v1/documents", mw.FormDataContentType(), &body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, res["fields"], "media_type")
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
