package filehandle

import "testing"

func TestGuessContentType(t *testing.T) {
	tests := []struct {
		name string
		path string
		head []byte
		want string
	}{
		{"known extension", "notes/readme.md", nil, "text/markdown; charset=utf-8"},
		{"extension is case insensitive", "DATA.JSON", nil, "application/json"},
		{"extension beats content", "page.json", []byte("<html></html>"), "application/json"},
		{"content sniffing", "blob", []byte("<html><body></body></html>"), "text/html; charset=utf-8"},
		{"png signature", "image", []byte("\x89PNG\r\n\x1a\n"), "image/png"},
		{"nothing known", "blob", nil, DefaultContentType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GuessContentType(tt.path, tt.head); got != tt.want {
				t.Errorf("GuessContentType(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
