package filehandle

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gobeaver/beaver-kit/config"
	"github.com/sirupsen/logrus"
)

// Global instance
var (
	defaultKit  *Kit
	defaultOnce sync.Once
	defaultErr  error
)

// Kit hands out handles that share one FileSystem and one set of defaults.
type Kit struct {
	fs            FileSystem
	options       []Option
	hashAlgorithm ChecksumAlgorithm
	hashEncoding  DigestEncoding
}

// Builder provides a way to create Kit instances with custom prefixes
type Builder struct {
	prefix string
}

// WithPrefix creates a new Builder with the specified prefix
func WithPrefix(prefix string) *Builder {
	return &Builder{prefix: prefix}
}

// Init initializes the global Kit instance using the builder's prefix
func (b *Builder) Init() error {
	cfg := &Config{}
	if err := config.Load(cfg, config.LoadOptions{Prefix: b.prefix}); err != nil {
		return err
	}
	return Init(cfg)
}

// New creates a new Kit instance using the builder's prefix
func (b *Builder) New() (*Kit, error) {
	cfg := &Config{}
	if err := config.Load(cfg, config.LoadOptions{Prefix: b.prefix}); err != nil {
		return nil, err
	}
	return NewKit(cfg)
}

// Init initializes the global kit instance
func Init(configs ...*Config) error {
	defaultOnce.Do(func() {
		var cfg *Config
		if len(configs) > 0 {
			cfg = configs[0]
		} else {
			cfg, defaultErr = GetConfig()
			if defaultErr != nil {
				return
			}
		}

		defaultKit, defaultErr = NewKit(cfg)
	})

	return defaultErr
}

// NewKit creates a new kit with the given config
func NewKit(cfg *Config) (*Kit, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	fs, err := CreateDriver(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}

	if cfg.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("invalid encryption key: %w", err)
		}
		encFS, err := NewEncryptedFileSystem(fs, key)
		if err != nil {
			return nil, fmt.Errorf("failed to create encrypted filesystem: %w", err)
		}
		fs = encFS
	}

	if constraints, ok := createConstraints(cfg); ok {
		fs = NewValidatedFileSystem(fs, constraints)
	}

	if cfg.ReadOnly {
		fs = NewReadOnlyFileSystem(fs)
	}

	options, err := createOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	kit := NewKitFor(fs, options...)
	if cfg.HashAlgorithm != "" {
		kit.hashAlgorithm = ChecksumAlgorithm(cfg.HashAlgorithm)
	}
	if cfg.HashEncoding != "" {
		kit.hashEncoding = DigestEncoding(cfg.HashEncoding)
	}
	return kit, nil
}

// NewKitFor creates a kit over an already constructed filesystem.
func NewKitFor(fs FileSystem, options ...Option) *Kit {
	return &Kit{
		fs:            fs,
		options:       options,
		hashAlgorithm: ChecksumMD5,
		hashEncoding:  DigestHex,
	}
}

// validateConfig checks configuration validity
func validateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if cfg.Driver == "" {
		return errors.New("driver is required")
	}

	switch cfg.Driver {
	case "local", "memory":
	case "billy":
		switch cfg.BillyBackend {
		case "", "memory", "os":
		default:
			return fmt.Errorf("unknown billy backend: %s", cfg.BillyBackend)
		}
	case "s3":
		if cfg.S3Bucket == "" {
			return errors.New("S3 bucket is required for S3 driver")
		}
		// Access keys can be provided via IAM roles, so not always required
	case "gcs":
		if cfg.GCSBucket == "" {
			return errors.New("GCS bucket is required for GCS driver")
		}
	case "azure":
		if cfg.AzureContainer == "" {
			return errors.New("Azure container is required for Azure driver")
		}
		if cfg.AzureConnectionString == "" && cfg.AzureAccountName == "" {
			return errors.New("Azure account name or connection string is required for Azure driver")
		}
	case "sftp":
		if cfg.SFTPHost == "" {
			return errors.New("SFTP host is required for SFTP driver")
		}
		if cfg.SFTPPassword == "" && cfg.SFTPPrivateKey == "" {
			return errors.New("SFTP password or private key is required for SFTP driver")
		}
	default:
		return fmt.Errorf("unknown driver: %s", cfg.Driver)
	}

	if _, err := LookupEncoding(cfg.Encoding); err != nil {
		return err
	}
	if cfg.HashAlgorithm != "" {
		if _, err := NewHasher(ChecksumAlgorithm(cfg.HashAlgorithm)); err != nil {
			return err
		}
	}
	if _, err := EncodeDigest(nil, DigestEncoding(cfg.HashEncoding)); err != nil {
		return err
	}
	if cfg.LogLevel != "" {
		if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
			return err
		}
	}
	if cfg.MaxFileSize < 0 {
		return errors.New("max file size cannot be negative")
	}
	if cfg.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.EncryptionKey)
		if err != nil {
			return fmt.Errorf("invalid encryption key: %w", err)
		}
		switch len(key) {
		case 16, 24, 32:
		default:
			return fmt.Errorf("encryption key must be 16, 24 or 32 bytes (got %d bytes)", len(key))
		}
	}

	return nil
}

// createConstraints collects the write constraints of cfg. It reports false
// when nothing is constrained.
func createConstraints(cfg *Config) (WriteConstraints, bool) {
	constraints := WriteConstraints{
		MaxFileSize:       cfg.MaxFileSize,
		AllowedExtensions: splitList(cfg.AllowedExtensions),
		BlockedExtensions: splitList(cfg.BlockedExtensions),
	}
	ok := constraints.MaxFileSize > 0 ||
		len(constraints.AllowedExtensions) > 0 ||
		len(constraints.BlockedExtensions) > 0
	return constraints, ok
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// createOptions turns the handle defaults of cfg into options
func createOptions(cfg *Config) ([]Option, error) {
	var options []Option

	if cfg.Encoding != "" {
		options = append(options, WithEncoding(cfg.Encoding))
	}

	if cfg.BufferSize > 0 {
		options = append(options, WithBufferSize(cfg.BufferSize))
	}

	if strings.TrimSpace(cfg.PollInterval) != "" {
		interval, err := time.ParseDuration(cfg.PollInterval)
		if err != nil {
			return nil, fmt.Errorf("poll interval: %w", err)
		}
		options = append(options, WithPollInterval(interval))
	}

	if cfg.LogLevel != "" {
		options = append(options, WithLogger(NewLogger(os.Stderr, cfg.LogLevel)))
	}

	return options, nil
}

// FileSystem returns the filesystem behind the kit
func (k *Kit) FileSystem() FileSystem {
	return k.fs
}

// File returns a handle for path carrying the kit's defaults.
// Additional options override the defaults.
func (k *Kit) File(path string, options ...Option) *Handle {
	all := make([]Option, 0, len(k.options)+len(options))
	all = append(all, k.options...)
	all = append(all, options...)
	return New(k.fs, path, all...)
}

// Digest hashes the file at path with the kit's configured algorithm and
// digest encoding.
func (k *Kit) Digest(ctx context.Context, path string) (string, error) {
	return k.File(path).Hash(ctx, k.hashAlgorithm, k.hashEncoding)
}

// Default returns the global instance, initializing if needed with error handling
func Default() (*Kit, error) {
	if defaultKit == nil {
		if err := Init(); err != nil {
			return nil, err
		}
	}
	return defaultKit, nil
}

// File returns a handle for path on the global kit. If the global kit
// cannot be initialized, the handle still exists but every operation on it
// fails with the initialization error.
func File(path string, options ...Option) *Handle {
	kit, err := Default()
	if err != nil {
		return New(unavailableFS{err: err}, path, options...)
	}
	return kit.File(path, options...)
}

// unavailableFS fails every call with the reason the global kit is missing.
type unavailableFS struct {
	err error
}

func (u unavailableFS) Stat(_ context.Context, path string) (*FileInfo, error) {
	return nil, NewPathError("stat", path, u.err)
}

func (u unavailableFS) Read(_ context.Context, path string) (io.ReadCloser, error) {
	return nil, NewPathError("read", path, u.err)
}

func (u unavailableFS) OpenWrite(_ context.Context, path string) (io.WriteCloser, error) {
	return nil, NewPathError("openwrite", path, u.err)
}

func (u unavailableFS) RemoveAll(_ context.Context, path string) error {
	return NewPathError("removeall", path, u.err)
}

// NewFromEnv creates instance from environment variables (convenience constructor)
func NewFromEnv() (*Kit, error) {
	cfg, err := GetConfig()
	if err != nil {
		return nil, err
	}
	return NewKit(cfg)
}

// Reset clears the global instance (for testing)
func Reset() {
	defaultKit = nil
	defaultOnce = sync.Once{}
	defaultErr = nil
}
