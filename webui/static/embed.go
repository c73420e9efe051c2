// Package static embeds the browser client.
package static

import (
	"embed"
	"io/fs"
)

//go:embed index.html app.js style.css
var files embed.FS

// FS returns the embedded client files.
func FS() fs.FS {
	return files
}
