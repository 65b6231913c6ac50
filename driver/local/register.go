package local

import "github.com/gobeaver/filehandle"

func init() {
	filehandle.RegisterDriver("local", func(cfg *filehandle.Config) (filehandle.FileSystem, error) {
		return New(cfg.LocalBasePath)
	})
}
