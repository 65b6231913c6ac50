package memory

import "github.com/gobeaver/filehandle"

func init() {
	filehandle.RegisterDriver("memory", func(cfg *filehandle.Config) (filehandle.FileSystem, error) {
		return New(), nil
	})
}
