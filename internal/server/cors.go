package server

import (
	"net/http"
	"strings"
)

// cors answers preflight requests and sets the allow headers for permitted
// origins. An empty list or "*" allows every origin.
type cors struct {
	any     bool
	origins map[string]bool
}

func newCORS(origins []string) *cors {
	c := &cors{origins: make(map[string]bool, len(origins))}
	if len(origins) == 0 {
		c.any = true
	}
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			c.any = true
			continue
		}
		if o != "" {
			c.origins[o] = true
		}
	}
	return c
}

// allowed reports whether a request from origin may be served. Requests
// without an Origin header are always allowed.
func (c *cors) allowed(origin string) bool {
	return origin == "" || c.any || c.origins[origin]
}

// checkOrigin adapts allowed for websocket upgrades.
func (c *cors) checkOrigin(r *http.Request) bool {
	return c.allowed(r.Header.Get("Origin"))
}

func (c *cors) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && c.allowed(origin) {
			h := w.Header()
			if c.any {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Set("Access-Control-Max-Age", "600")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if !c.allowed(origin) {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
