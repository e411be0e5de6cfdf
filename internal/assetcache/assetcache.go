// Package assetcache keeps station terminals working through network
// blips: pages and assets served once keep being served from redis while
// the upstream is unreachable.
package assetcache

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/wavecheck/wavecheck/internal/cache"
)

// fingerprinted matches versioned asset URLs: an explicit ?v= query or a
// content-hash run in the filename. Those never change under one URL, so
// cache-first is safe.
var fingerprinted = regexp.MustCompile(`(?i)[?&]v=|\.[a-f0-9]{6,}\.`)

const (
	pagePrefix  = "page:"
	assetPrefix = "asset:"
)

// entry is the cached form of one upstream response.
type entry struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

// Handler wraps an upstream handler (a file server or reverse proxy) with
// the terminal cache strategies: network-first for HTML documents,
// cache-first for fingerprinted assets, network-with-stale-fallback for
// the rest. Only GET is intercepted; everything else passes through
// untouched.
type Handler struct {
	next  http.Handler
	cache cache.BytesCache
	ttl   time.Duration
}

func NewHandler(next http.Handler, c cache.BytesCache, ttl time.Duration) *Handler {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Handler{next: next, cache: c, ttl: ttl}
}

func cacheKey(r *http.Request, prefix string) string {
	key := prefix + r.URL.Path
	if r.URL.RawQuery != "" {
		key += "?" + r.URL.RawQuery
	}
	return key
}

func isHTMLRequest(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		return true
	}
	p := r.URL.Path
	return p == "/" || strings.HasSuffix(p, "/") || strings.HasSuffix(p, ".html")
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.next.ServeHTTP(w, r)
		return
	}

	switch {
	case isHTMLRequest(r):
		h.networkFirst(w, r, cacheKey(r, pagePrefix), pagePrefix+"/index.html")
	case fingerprinted.MatchString(r.URL.RequestURI()):
		h.cacheFirst(w, r, cacheKey(r, assetPrefix))
	default:
		h.staleFallback(w, r, cacheKey(r, assetPrefix))
	}
}

// fetch runs the upstream handler capturing its response.
func (h *Handler) fetch(r *http.Request) *entry {
	rec := &capture{status: http.StatusOK, header: http.Header{}}
	h.next.ServeHTTP(rec, r)
	return &entry{
		Status:      rec.status,
		ContentType: rec.header.Get("Content-Type"),
		Body:        rec.body,
	}
}

func upstreamFailed(e *entry) bool {
	return e.Status >= http.StatusInternalServerError
}

func (h *Handler) store(ctx context.Context, key string, e *entry) {
	if e.Status != http.StatusOK {
		return
	}
	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := h.cache.Set(ctx, key, b, h.ttl); err != nil {
		slog.Warn("asset cache store failed", "key", key, "err", err)
	}
}

func (h *Handler) lookup(ctx context.Context, key string) *entry {
	b, found, err := h.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("asset cache lookup failed", "key", key, "err", err)
		return nil
	}
	if !found {
		return nil
	}
	var e entry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil
	}
	return &e
}

func write(w http.ResponseWriter, e *entry) {
	if e.ContentType != "" {
		w.Header().Set("Content-Type", e.ContentType)
	}
	w.WriteHeader(e.Status)
	_, _ = w.Write(e.Body)
}

func (h *Handler) networkFirst(w http.ResponseWriter, r *http.Request, key, fallbackKey string) {
	fresh := h.fetch(r)
	if !upstreamFailed(fresh) {
		h.store(r.Context(), key, fresh)
		write(w, fresh)
		return
	}
	if cached := h.lookup(r.Context(), key); cached != nil {
		write(w, cached)
		return
	}
	// Last resort for navigations: the shell document.
	if cached := h.lookup(r.Context(), fallbackKey); cached != nil {
		write(w, cached)
		return
	}
	write(w, fresh)
}

func (h *Handler) cacheFirst(w http.ResponseWriter, r *http.Request, key string) {
	if cached := h.lookup(r.Context(), key); cached != nil {
		write(w, cached)
		return
	}
	fresh := h.fetch(r)
	h.store(r.Context(), key, fresh)
	write(w, fresh)
}

func (h *Handler) staleFallback(w http.ResponseWriter, r *http.Request, key string) {
	fresh := h.fetch(r)
	if !upstreamFailed(fresh) {
		h.store(r.Context(), key, fresh)
		write(w, fresh)
		return
	}
	if cached := h.lookup(r.Context(), key); cached != nil {
		write(w, cached)
		return
	}
	http.Error(w, http.StatusText(http.StatusGatewayTimeout), http.StatusGatewayTimeout)
}

// capture buffers an upstream response so it can be cached or discarded.
type capture struct {
	status int
	header http.Header
	body   []byte
}

func (c *capture) Header() http.Header { return c.header }

func (c *capture) WriteHeader(status int) { c.status = status }

func (c *capture) Write(b []byte) (int, error) {
	c.body = append(c.body, b...)
	return len(b), nil
}
