package assetcache

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/wavecheck/wavecheck/internal/cache/rediscache"
)

type upstream struct {
	down bool
	hits int
	body string
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.hits++
	if u.down {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(u.body + " " + r.URL.Path))
}

func newTestHandler(t *testing.T) (*Handler, *upstream) {
	t.Helper()
	mr := miniredis.RunT(t)
	up := &upstream{body: "v1"}
	return NewHandler(up, rediscache.New(mr.Addr()), time.Hour), up
}

func get(h http.Handler, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

var htmlAccept = map[string]string{"Accept": "text/html,application/xhtml+xml"}

func TestHTMLNetworkFirst(t *testing.T) {
	h, up := newTestHandler(t)

	rec := get(h, "/board.html", htmlAccept)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "v1 /board.html", rec.Body.String())

	// Upstream stays authoritative while reachable.
	up.body = "v2"
	rec = get(h, "/board.html", htmlAccept)
	require.Equal(t, "v2 /board.html", rec.Body.String())

	// Outage: the last good copy is served.
	up.down = true
	rec = get(h, "/board.html", htmlAccept)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "v2 /board.html", rec.Body.String())
	require.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestHTMLFallsBackToShellDocument(t *testing.T) {
	h, up := newTestHandler(t)

	get(h, "/index.html", htmlAccept)
	up.down = true

	// A page never cached falls back to the shell.
	rec := get(h, "/never-seen.html", htmlAccept)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "v1 /index.html", rec.Body.String())
}

func TestHTMLOutageWithEmptyCache(t *testing.T) {
	h, up := newTestHandler(t)
	up.down = true

	rec := get(h, "/board.html", htmlAccept)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestFingerprintedAssetsCacheFirst(t *testing.T) {
	h, up := newTestHandler(t)

	rec := get(h, "/app.js?v=20250910", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, up.hits)

	// Second request never reaches the upstream.
	rec = get(h, "/app.js?v=20250910", nil)
	require.Equal(t, "v1 /app.js", rec.Body.String())
	require.Equal(t, 1, up.hits)

	// Hash-named files count as fingerprinted too.
	get(h, "/main.ab12cd34ef.css", nil)
	get(h, "/main.ab12cd34ef.css", nil)
	require.Equal(t, 2, up.hits)
}

func TestDefaultStaleFallback(t *testing.T) {
	h, up := newTestHandler(t)

	rec := get(h, "/logo.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	up.down = true
	rec = get(h, "/logo.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "v1 /logo.png", rec.Body.String())

	// Nothing cached and upstream down: 504.
	rec = get(h, "/other.png", nil)
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestErrorResponsesAreNotCached(t *testing.T) {
	h, up := newTestHandler(t)
	up.down = true

	get(h, "/logo.png", nil)
	up.down = false
	rec := get(h, "/logo.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "v1 /logo.png", rec.Body.String())
}

func TestNonGETPassesThrough(t *testing.T) {
	h, up := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/board.html", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, 1, up.hits)

	// Upstream down: no cache rescue for non-GET.
	up.down = true
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/board.html", nil))
	require.Equal(t, http.StatusBadGateway, rec.Code)
}
