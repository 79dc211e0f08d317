package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streed/snap-notes/internal/config"
	"github.com/streed/snap-notes/internal/services"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.DataDirectory = t.TempDir()
	cfg.OCR.Enabled = false
	cfg.Peers = []config.PeerConfig{{Name: "excel", Enabled: false, Command: "excel-peer"}}

	svc, err := services.NewServices(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	srv := httptest.NewServer(NewAPIServer(svc).Handler())
	t.Cleanup(srv.Close)
	return srv
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decode(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	defer resp.Body.Close()
	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func upload(t *testing.T, srv *httptest.Server, fields map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "shot.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("\x89PNG data"))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/api/v1/captures", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/v1/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	env := decode(t, resp)
	assert.True(t, env.Success)
	assert.Contains(t, string(env.Data), `"entries":0`)
}

func TestCaptureThenSearch(t *testing.T) {
	srv := newTestServer(t)

	resp := upload(t, srv, map[string]string{
		"title":     "Quarterly Review",
		"tags":      "work, excel",
		"timestamp": "2025-08-04T14:25:12Z",
		"region":    "0,0,800,600",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	env := decode(t, resp)
	require.True(t, env.Success, env.Error)
	assert.Contains(t, string(env.Data), `"state":"indexed"`)

	search := `{"query":"quarterly","tags":"work","from":"2025-08-04T00:00:00Z","to":"2025-08-04T23:59:59Z"}`
	resp, err := http.Post(srv.URL+"/api/v1/notes/search", "application/json", strings.NewReader(search))
	require.NoError(t, err)
	env = decode(t, resp)
	require.True(t, env.Success, env.Error)

	var hits []struct {
		ID   string   `json:"id"`
		Tags []string `json:"tags"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, "20250804_142512", hits[0].ID)
	assert.Equal(t, []string{"excel", "work"}, hits[0].Tags)

	resp, err = http.Get(srv.URL + "/api/v1/notes/20250804_142512")
	require.NoError(t, err)
	env = decode(t, resp)
	require.True(t, env.Success)
	assert.Contains(t, string(env.Data), "# Quarterly Review")

	resp, err = http.Get(srv.URL + "/api/v1/notes/20250804_142512/image")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}

func TestCaptureRequiresImage(t *testing.T) {
	srv := newTestServer(t)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("title", "nothing"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/api/v1/captures", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, decode(t, resp).Success)
}

func TestGetUnknownNote(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/v1/notes/20250101_000000")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSearchRejectsBadDate(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/api/v1/notes/search", "application/json", strings.NewReader(`{"from":"yesterday"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRebuildAndStats(t *testing.T) {
	srv := newTestServer(t)
	upload(t, srv, map[string]string{"timestamp": "2025-08-04T14:25:12Z", "tags": "work"}).Body.Close()

	resp, err := http.Post(srv.URL+"/api/v1/index/rebuild", "application/json", nil)
	require.NoError(t, err)
	env := decode(t, resp)
	require.True(t, env.Success, env.Error)
	assert.Contains(t, string(env.Data), `"indexed":1`)

	resp, err = http.Get(srv.URL + "/api/v1/stats")
	require.NoError(t, err)
	env = decode(t, resp)
	assert.Contains(t, string(env.Data), `"entry_count":1`)
	assert.Contains(t, string(env.Data), `"work":1`)
}

func TestPeers(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/v1/peers")
	require.NoError(t, err)
	env := decode(t, resp)
	assert.Contains(t, string(env.Data), `"name":"excel"`)
	assert.Contains(t, string(env.Data), `"enabled":false`)

	resp, err = http.Post(srv.URL+"/api/v1/peers/missing/test", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSummariesValidateKind(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/api/v1/summaries", "application/json", strings.NewReader(`{"kind":"monthly"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/v1/summaries", "application/json", strings.NewReader(`{"kind":"daily","days":1}`))
	require.NoError(t, err)
	env := decode(t, resp)
	require.True(t, env.Success, env.Error)
	assert.Contains(t, string(env.Data), `"skipped":true`)
}
