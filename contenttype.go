package filehandle

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// DefaultContentType is reported when nothing better is known.
const DefaultContentType = "application/octet-stream"

// Extensions whose MIME type varies between platform mime tables
var extensionToMIME = map[string]string{
	".txt":  "text/plain; charset=utf-8",
	".md":   "text/markdown; charset=utf-8",
	".csv":  "text/csv; charset=utf-8",
	".json": "application/json",
	".xml":  "application/xml",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
	".log":  "text/plain; charset=utf-8",
	".js":   "text/javascript; charset=utf-8",
	".gz":   "application/gzip",
	".tar":  "application/x-tar",
	".zip":  "application/zip",
	".pdf":  "application/pdf",
	".svg":  "image/svg+xml",
	".webp": "image/webp",
}

// GuessContentType determines the content type of a file from its name and,
// when the extension is unknown, from the first bytes of its content. Only
// the first 512 bytes of head are considered. The result is never empty.
func GuessContentType(name string, head []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext != "" {
		if contentType, ok := extensionToMIME[ext]; ok {
			return contentType
		}
		if contentType := mime.TypeByExtension(ext); contentType != "" {
			return contentType
		}
	}

	if len(head) > 0 {
		return http.DetectContentType(head)
	}

	return DefaultContentType
}
