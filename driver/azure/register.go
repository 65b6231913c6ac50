package azure

import (
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/gobeaver/filehandle"
)

func init() {
	filehandle.RegisterDriver("azure", func(cfg *filehandle.Config) (filehandle.FileSystem, error) {
		if cfg.AzureContainer == "" {
			return nil, fmt.Errorf("azure container name is required")
		}

		var (
			client *azblob.Client
			err    error
		)
		switch {
		case cfg.AzureConnectionString != "":
			client, err = azblob.NewClientFromConnectionString(cfg.AzureConnectionString, nil)
		case cfg.AzureAccountName != "" && cfg.AzureAccountKey != "":
			var cred *azblob.SharedKeyCredential
			cred, err = azblob.NewSharedKeyCredential(cfg.AzureAccountName, cfg.AzureAccountKey)
			if err != nil {
				return nil, fmt.Errorf("failed to create azure credential: %w", err)
			}
			serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AzureAccountName)
			client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		default:
			return nil, fmt.Errorf("azure connection string or account name and key are required")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create azure client: %w", err)
		}

		var options []AdapterOption
		if cfg.AzurePrefix != "" {
			options = append(options, WithPrefix(cfg.AzurePrefix))
		}

		return New(client, cfg.AzureContainer, options...), nil
	})
}
