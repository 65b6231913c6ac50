package filehandle

import (
	"github.com/gobeaver/beaver-kit/config"
)

type Config struct {
	// Driver backing the handles (local, memory, billy, s3, gcs, azure, sftp)
	Driver string `env:"FILEHANDLE_DRIVER,default:local"`

	// Local driver configuration. An empty base path means paths are used
	// exactly as given, relative to the process working directory.
	LocalBasePath string `env:"FILEHANDLE_LOCAL_BASE_PATH"`

	// Billy driver configuration (os, memory)
	BillyBackend  string `env:"FILEHANDLE_BILLY_BACKEND,default:memory"`
	BillyBasePath string `env:"FILEHANDLE_BILLY_BASE_PATH,default:."`

	// S3 driver configuration
	S3Region          string `env:"FILEHANDLE_S3_REGION,default:us-east-1"`
	S3Bucket          string `env:"FILEHANDLE_S3_BUCKET"`
	S3Prefix          string `env:"FILEHANDLE_S3_PREFIX"`
	S3Endpoint        string `env:"FILEHANDLE_S3_ENDPOINT"`
	S3AccessKeyID     string `env:"FILEHANDLE_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"FILEHANDLE_S3_SECRET_ACCESS_KEY"`
	S3ForcePathStyle  bool   `env:"FILEHANDLE_S3_FORCE_PATH_STYLE,default:false"`

	// GCS driver configuration; credentials come from the environment
	GCSBucket string `env:"FILEHANDLE_GCS_BUCKET"`
	GCSPrefix string `env:"FILEHANDLE_GCS_PREFIX"`

	// Azure Blob Storage driver configuration
	AzureAccountName      string `env:"FILEHANDLE_AZURE_ACCOUNT_NAME"`
	AzureAccountKey       string `env:"FILEHANDLE_AZURE_ACCOUNT_KEY"`
	AzureConnectionString string `env:"FILEHANDLE_AZURE_CONNECTION_STRING"`
	AzureContainer        string `env:"FILEHANDLE_AZURE_CONTAINER"`
	AzurePrefix           string `env:"FILEHANDLE_AZURE_PREFIX"`

	// SFTP driver configuration
	SFTPHost       string `env:"FILEHANDLE_SFTP_HOST"`
	SFTPPort       int    `env:"FILEHANDLE_SFTP_PORT,default:22"`
	SFTPUsername   string `env:"FILEHANDLE_SFTP_USERNAME"`
	SFTPPassword   string `env:"FILEHANDLE_SFTP_PASSWORD"`
	SFTPPrivateKey string `env:"FILEHANDLE_SFTP_PRIVATE_KEY"` // Path to private key file
	SFTPKnownHosts string `env:"FILEHANDLE_SFTP_KNOWN_HOSTS"` // Path to known_hosts file
	SFTPBasePath   string `env:"FILEHANDLE_SFTP_BASE_PATH"`

	// Handle defaults
	Encoding      string `env:"FILEHANDLE_ENCODING,default:utf-8"`
	BufferSize    int    `env:"FILEHANDLE_BUFFER_SIZE,default:32768"`
	PollInterval  string `env:"FILEHANDLE_POLL_INTERVAL,default:1s"`
	HashAlgorithm string `env:"FILEHANDLE_HASH_ALGORITHM,default:md5"`
	HashEncoding  string `env:"FILEHANDLE_HASH_ENCODING,default:hex"`

	// Write constraints; zero size and empty lists mean no limit
	MaxFileSize       int64  `env:"FILEHANDLE_MAX_FILE_SIZE,default:0"`
	AllowedExtensions string `env:"FILEHANDLE_ALLOWED_EXTENSIONS"` // comma-separated
	BlockedExtensions string `env:"FILEHANDLE_BLOCKED_EXTENSIONS"` // comma-separated

	// Base64 AES key (16, 24 or 32 bytes); content is encrypted at rest when set
	EncryptionKey string `env:"FILEHANDLE_ENCRYPTION_KEY"`

	// Reject every write and remove when true
	ReadOnly bool `env:"FILEHANDLE_READ_ONLY,default:false"`

	// Log level (panic, fatal, error, warn, info, debug, trace); empty disables logging
	LogLevel string `env:"FILEHANDLE_LOG_LEVEL"`
}

// GetConfig returns config loaded from environment
func GetConfig() (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
