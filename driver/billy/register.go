package billy

import (
	"fmt"

	"github.com/gobeaver/filehandle"
)

func init() {
	filehandle.RegisterDriver("billy", func(cfg *filehandle.Config) (filehandle.FileSystem, error) {
		switch cfg.BillyBackend {
		case "", "memory":
			return NewInMemory(), nil
		case "os":
			return NewOS(cfg.BillyBasePath), nil
		default:
			return nil, fmt.Errorf("unknown billy backend: %s", cfg.BillyBackend)
		}
	})
}
