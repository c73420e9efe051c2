// Package webui serves the embedded browser client: an upload page, a
// controller view that publishes to the stall slot and a display view that
// polls it.
package webui

import (
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"ghibli_backend/webui/static"
)

// DefaultPrefix is where the client is mounted.
const DefaultPrefix = "/ui"

// AssetConfig configures AssetHandler.
type AssetConfig struct {
	// Prefix is stripped from request paths (default: "/ui")
	Prefix string

	// IndexFile is served for the prefix itself (default: "index.html")
	IndexFile string

	// CacheMaxAge in seconds; zero disables caching
	CacheMaxAge int

	// NotFound writes the response for unknown files (default: http.NotFound)
	NotFound http.HandlerFunc
}

// DefaultAssetConfig returns the configuration used by the server.
func DefaultAssetConfig() AssetConfig {
	return AssetConfig{
		Prefix:      DefaultPrefix,
		IndexFile:   "index.html",
		CacheMaxAge: 300,
	}
}

// AssetHandler serves files from an fs.FS under a URL prefix.
type AssetHandler struct {
	fs     fs.FS
	config AssetConfig
}

// NewAssetHandler serves the embedded client.
func NewAssetHandler(config AssetConfig) *AssetHandler {
	return NewAssetHandlerWithFS(static.FS(), config)
}

// NewAssetHandlerWithFS serves fsys instead of the embedded client.
func NewAssetHandlerWithFS(fsys fs.FS, config AssetConfig) *AssetHandler {
	if config.Prefix == "" {
		config.Prefix = DefaultPrefix
	}
	config.Prefix = strings.TrimSuffix(config.Prefix, "/")
	if config.IndexFile == "" {
		config.IndexFile = "index.html"
	}
	if config.NotFound == nil {
		config.NotFound = http.NotFound
	}
	return &AssetHandler{fs: fsys, config: config}
}

// Prefix returns the mount point without a trailing slash.
func (h *AssetHandler) Prefix() string {
	return h.config.Prefix
}

func (h *AssetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, h.config.Prefix)
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if name == "" || name == "." {
		name = h.config.IndexFile
	}

	file, err := h.fs.Open(name)
	if err != nil {
		h.config.NotFound(w, r)
		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil || stat.IsDir() {
		h.config.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", contentType(name))
	if h.config.CacheMaxAge > 0 {
		w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(h.config.CacheMaxAge))
	} else {
		w.Header().Set("Cache-Control", "no-cache")
	}

	if rs, ok := file.(io.ReadSeeker); ok {
		http.ServeContent(w, r, stat.Name(), stat.ModTime(), rs)
		return
	}
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		io.Copy(w, file)
	}
}

func contentType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	switch ext {
	case ".html":
		return "text/html; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".js":
		return "text/javascript; charset=utf-8"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
