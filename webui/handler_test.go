package webui

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
)

func TestAssetHandler_ServeHTTP(t *testing.T) {
	testFS := fstest.MapFS{
		"index.html": {Data: []byte("<html>Ghiblifier</html>")},
		"style.css":  {Data: []byte("body { color: green; }")},
		"app.js":     {Data: []byte("console.log('ui');")},
		"img/a.png":  {Data: []byte("\x89PNG")},
	}
	handler := NewAssetHandlerWithFS(testFS, DefaultAssetConfig())

	tests := []struct {
		name            string
		method          string
		path            string
		wantStatus      int
		wantBody        string
		wantContentType string
	}{
		{"index at prefix", http.MethodGet, "/ui/", http.StatusOK, "Ghiblifier", "text/html"},
		{"index without slash", http.MethodGet, "/ui", http.StatusOK, "Ghiblifier", "text/html"},
		{"stylesheet", http.MethodGet, "/ui/style.css", http.StatusOK, "color: green", "text/css"},
		{"script", http.MethodGet, "/ui/app.js", http.StatusOK, "console.log", "text/javascript"},
		{"nested png", http.MethodGet, "/ui/img/a.png", http.StatusOK, "PNG", "image/png"},
		{"missing file", http.MethodGet, "/ui/nope.js", http.StatusNotFound, "", ""},
		{"directory", http.MethodGet, "/ui/img", http.StatusNotFound, "", ""},
		{"traversal", http.MethodGet, "/ui/../../etc/passwd", http.StatusNotFound, "", ""},
		{"post rejected", http.MethodPost, "/ui/", http.StatusMethodNotAllowed, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tt.wantBody)
			}
			if tt.wantContentType != "" && !strings.Contains(rec.Header().Get("Content-Type"), tt.wantContentType) {
				t.Errorf("Content-Type = %q, want %q", rec.Header().Get("Content-Type"), tt.wantContentType)
			}
		})
	}
}

func TestAssetHandler_CacheHeaders(t *testing.T) {
	testFS := fstest.MapFS{"index.html": {Data: []byte("x")}}

	cached := NewAssetHandlerWithFS(testFS, AssetConfig{CacheMaxAge: 60})
	rec := httptest.NewRecorder()
	cached.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ui/", nil))
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=60" {
		t.Errorf("Cache-Control = %q", got)
	}

	uncached := NewAssetHandlerWithFS(testFS, AssetConfig{})
	rec = httptest.NewRecorder()
	uncached.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ui/", nil))
	if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q", got)
	}
}

func TestAssetHandler_CustomNotFound(t *testing.T) {
	called := false
	h := NewAssetHandlerWithFS(fstest.MapFS{}, AssetConfig{
		NotFound: func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusTeapot)
		},
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ui/missing", nil))
	if !called || rec.Code != http.StatusTeapot {
		t.Errorf("custom NotFound not used: called=%v status=%d", called, rec.Code)
	}
}

func TestEmbeddedClient(t *testing.T) {
	h := NewAssetHandler(DefaultAssetConfig())
	for _, p := range []string{"/ui/", "/ui/app.js", "/ui/style.css"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", p, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ui/app.js", nil))
	for _, want := range []string{"/stall/status", "is_stall", "/ghiblification/"} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("app.js does not reference %s", want)
		}
	}
}
