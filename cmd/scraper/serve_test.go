package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-scrape-shows/config"
	"github.com/aluiziolira/go-scrape-shows/profile"
	"github.com/aluiziolira/go-scrape-shows/scraper"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func catalogPage(books int) string {
	var b strings.Builder
	b.WriteString("<html><body><ol>")
	for i := 1; i <= books; i++ {
		fmt.Fprintf(&b, `<li><article class="product_pod"><div class="image_container"><img src="media/%d.jpg"></div>`, i)
		b.WriteString(`<p class="star-rating Four"></p>`)
		fmt.Fprintf(&b, `<h3><a href="catalogue/book-%d/index.html" title="Book %d">Book %d</a></h3>`, i, i, i)
		fmt.Fprintf(&b, `<p class="price_color">£%d.50</p><p class="instock availability">In stock</p></article></li>`, i)
	}
	b.WriteString("</ol></body></html>")
	return b.String()
}

func newTestServer(t *testing.T, status int, body string) (*server, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.OutputDir = t.TempDir()
	cfg.MaxRetries = 0

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://books.toscrape.com/", httpmock.NewStringResponder(status, body))

	return newServer(cfg, profile.NewRegistry(), discardLogger(), scraper.WithTransport(transport)), cfg
}

func TestServeRunGreetsAndWritesRows(t *testing.T) {
	srv, cfg := newTestServer(t, http.StatusOK, catalogPage(5))
	e := srv.routes()

	req := httptest.NewRequest(http.MethodPost, "/run/books", strings.NewReader(`{"name":"Ada"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp runResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Hello Ada!", resp.Message)
	assert.Equal(t, "books", resp.Site)
	assert.Equal(t, int64(5), resp.Rows)
	assert.Equal(t, 5, resp.Shows)
	assert.NotEmpty(t, resp.RunID)
	assert.Empty(t, resp.Error)

	require.NotEmpty(t, resp.Output)
	assert.True(t, strings.HasPrefix(resp.Output, cfg.OutputDir))
	_, err := os.Stat(resp.Output)
	assert.NoError(t, err)

	metrics := httptest.NewRecorder()
	e.ServeHTTP(metrics, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "scraper_rows_emitted_total 5")
}

func TestServeRunNameFromQuery(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusNotFound, "")
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/run/books?name=Bob", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp runResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Hello Bob!", resp.Message)
	assert.NotEmpty(t, resp.Error)
	assert.Equal(t, []string{"https://books.toscrape.com/"}, resp.FailedURLs)
	assert.Empty(t, resp.Output, "a failed run writes no file")
}

func TestServeRoutes(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, catalogPage(1))
	e := srv.routes()

	tests := []struct {
		name     string
		method   string
		target   string
		busy     bool
		expected int
		body     string
	}{
		{name: "health", method: http.MethodGet, target: "/healthz", expected: http.StatusOK, body: "ok"},
		{name: "unknown site", method: http.MethodGet, target: "/run/nowhere", expected: http.StatusNotFound},
		{name: "busy", method: http.MethodPost, target: "/run/books", busy: true, expected: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv.busy.Store(tt.busy)
			defer srv.busy.Store(false)

			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))
			assert.Equal(t, tt.expected, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestServeRunDefaultsToWorld(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, catalogPage(1))
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/run/books", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp runResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Hello World!", resp.Message)
}

func TestServeRunRejectedWhileBusy(t *testing.T) {
	srv, cfg := newTestServer(t, http.StatusOK, catalogPage(3))
	srv.busy.Store(true)

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/run/books?name=Ada", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already in progress")
	assert.True(t, srv.busy.Load(), "the running scrape keeps the server busy")

	entries, err := os.ReadDir(cfg.OutputDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "a rejected request starts no scrape")
}
