// Package mimetype maps file extensions to Content-Type values.
package mimetype

import (
	"path/filepath"
	"strings"
)

// Default is returned for unknown or missing extensions.
const Default = "application/octet-stream"

var byExtension = map[string]string{
	"html": "text/html",
	"htm":  "text/html",
	"css":  "text/css",
	"js":   "application/javascript",
	"json": "application/json",
	"txt":  "text/plain",
	"xml":  "application/xml",
	"svg":  "image/svg+xml",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"ico":  "image/x-icon",
	"webp": "image/webp",
	"pdf":  "application/pdf",
	"wasm": "application/wasm",
}

// TypeByPath returns the content type for path based on its extension.
// Matching is case-insensitive.
func TypeByPath(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return Default
	}

	if t, ok := byExtension[strings.ToLower(ext[1:])]; ok {
		return t
	}
	return Default
}
