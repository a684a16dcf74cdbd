package mw

import (
	"net/http"
	"slices"
	"strings"

	"github.com/vango-go/vlearn/pkg/core"
	"github.com/vango-go/vlearn/pkg/gateway/apierror"
	"github.com/vango-go/vlearn/pkg/gateway/config"
)

// corsRoutes lists the cross-origin methods per route. The live socket is not
// here: browsers do not preflight upgrades, so the live handler checks the
// Origin itself with OriginAllowed.
var corsRoutes = map[string][]string{
	"/v1/media":  {http.MethodGet, http.MethodPost, http.MethodDelete},
	"/v1/export": {http.MethodGet},
}

const (
	corsAllowHeaders  = "Authorization, Content-Type, X-Request-ID"
	corsExposeHeaders = "X-Request-ID, Content-Disposition, Retry-After"
)

// OriginAllowed reports whether origin is on the allowlist.
func OriginAllowed(cfg config.Config, origin string) bool {
	_, ok := cfg.CORSAllowedOrigins[strings.TrimSpace(origin)]
	return ok
}

// corsMethods returns the methods open to other origins on path, matching
// both the collection and its /{id} children.
func corsMethods(path string) []string {
	for prefix, methods := range corsRoutes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return methods
		}
	}
	return nil
}

// CORS answers preflights for the media and export routes and labels
// responses to allowlisted origins. With an empty allowlist every preflight is
// refused and no headers are added.
func CORS(cfg config.Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		allowed := origin != "" && OriginAllowed(cfg, origin)

		if want := strings.TrimSpace(r.Header.Get("Access-Control-Request-Method")); r.Method == http.MethodOptions && want != "" {
			methods := corsMethods(r.URL.Path)
			if !allowed || !slices.Contains(methods, strings.ToUpper(want)) {
				reqID, _ := RequestIDFrom(r.Context())
				apierror.WriteError(w, http.StatusForbidden, &core.Error{
					Type:      core.ErrPermissionDenied,
					Message:   "cross-origin " + strings.ToUpper(want) + " " + r.URL.Path + " is not allowed",
					Param:     "Origin",
					RequestID: reqID,
				})
				return
			}
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", strings.Join(append(slices.Clone(methods), http.MethodOptions), ", "))
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if allowed {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Vary", "Origin")
			h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
		}
		next.ServeHTTP(w, r)
	})
}
