package server

import (
	"net/http"
	"slices"
	"strings"
)

// allowedMethods is advertised on preflight; a requested method outside it
// is appended.
var allowedMethods = []string{"DELETE", "GET", "HEAD", "OPTIONS", "PATCH", "POST", "PUT"}

// CORS allows every origin, method and header. Because credentials are
// allowed, the request Origin is echoed instead of "*". Every OPTIONS
// request is answered here with 200.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		if origin := r.Header.Get("Origin"); origin != "" {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		} else {
			h.Set("Access-Control-Allow-Origin", "*")
		}
		h.Set("Access-Control-Allow-Credentials", "true")

		if r.Method != http.MethodOptions {
			h.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID")
			next.ServeHTTP(w, r)
			return
		}

		methods := allowedMethods
		if m := strings.ToUpper(strings.TrimSpace(r.Header.Get("Access-Control-Request-Method"))); m != "" && !slices.Contains(methods, m) {
			methods = append(slices.Clip(methods), m)
		}
		h.Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
		if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
			h.Set("Access-Control-Allow-Headers", reqHeaders)
		}
		h.Set("Access-Control-Max-Age", "600")
		h.Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}
