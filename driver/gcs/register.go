package gcs

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/gobeaver/filehandle"
)

func init() {
	filehandle.RegisterDriver("gcs", func(cfg *filehandle.Config) (filehandle.FileSystem, error) {
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("GCS bucket is required")
		}

		// Create client - uses GOOGLE_APPLICATION_CREDENTIALS env var or default credentials
		client, err := storage.NewClient(context.Background())
		if err != nil {
			return nil, fmt.Errorf("failed to create GCS client: %w", err)
		}

		var options []AdapterOption
		if cfg.GCSPrefix != "" {
			options = append(options, WithPrefix(cfg.GCSPrefix))
		}

		return New(client, cfg.GCSBucket, options...), nil
	})
}
