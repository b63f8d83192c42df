package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSConfig configures CORSMiddleware. Origins accepts "*", exact origins
// such as "https://app.mynews.example", and wildcard hosts such as
// "https://*.preview.mynews.example".
type CORSConfig struct {
	Origins []string
	Methods []string
	Headers []string
	MaxAge  time.Duration
}

var (
	defaultCORSMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	defaultCORSHeaders = []string{"Content-Type", "Authorization", "X-Trace-ID"}
)

// CORSMiddleware answers preflight requests and decorates responses for
// browser clients. It wraps the whole router because mux middleware does not
// run for unmatched OPTIONS requests.
type CORSMiddleware struct {
	exact    map[string]struct{}
	patterns [][2]string
	allowAll bool
	methods  string
	headers  string
	maxAge   string
}

// NewCORSMiddleware creates a CORS middleware.
func NewCORSMiddleware(cfg CORSConfig) *CORSMiddleware {
	if len(cfg.Methods) == 0 {
		cfg.Methods = defaultCORSMethods
	}
	if len(cfg.Headers) == 0 {
		cfg.Headers = defaultCORSHeaders
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = time.Hour
	}
	m := &CORSMiddleware{
		exact:   make(map[string]struct{}),
		methods: strings.Join(cfg.Methods, ", "),
		headers: strings.Join(cfg.Headers, ", "),
		maxAge:  strconv.Itoa(int(cfg.MaxAge.Seconds())),
	}
	for _, o := range cfg.Origins {
		o = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(o), "/"))
		switch {
		case o == "*":
			m.allowAll = true
		case strings.Contains(o, "*"):
			prefix, suffix, _ := strings.Cut(o, "*")
			m.patterns = append(m.patterns, [2]string{prefix, suffix})
		case o != "":
			m.exact[o] = struct{}{}
		}
	}
	return m
}

// Allowed reports whether origin may call the API.
func (m *CORSMiddleware) Allowed(origin string) bool {
	if m.allowAll {
		return true
	}
	origin = strings.ToLower(origin)
	if _, ok := m.exact[origin]; ok {
		return true
	}
	for _, p := range m.patterns {
		if len(origin) > len(p[0])+len(p[1]) && strings.HasPrefix(origin, p[0]) && strings.HasSuffix(origin, p[1]) {
			return true
		}
	}
	return false
}

// Handler wraps next.
func (m *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}
		h := w.Header()
		h.Add("Vary", "Origin")
		allowed := m.Allowed(origin)
		preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

		if preflight {
			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			if !allowed {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", m.methods)
			h.Set("Access-Control-Allow-Headers", m.headers)
			h.Set("Access-Control-Max-Age", m.maxAge)
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if allowed {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Expose-Headers", "X-Trace-ID")
		}
		next.ServeHTTP(w, r)
	})
}
