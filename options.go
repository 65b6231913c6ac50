package filehandle

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// Option represents a configuration option for a Handle
type Option func(*Options)

// Options contains all settings a Handle carries
type Options struct {
	// Encoding is the text encoding used by Text and WriteString
	Encoding string

	// BufferSize is the chunk size used when pumping streams
	BufferSize int

	// Logger receives debug records for every operation
	Logger logrus.FieldLogger

	// PollInterval is used by Watch when the driver has no native events
	PollInterval time.Duration
}

func defaultOptions() Options {
	return Options{
		Encoding:     DefaultEncoding,
		BufferSize:   DefaultBufferSize,
		Logger:       discardLogger(),
		PollInterval: time.Second,
	}
}

// WithEncoding sets the text encoding
func WithEncoding(name string) Option {
	return func(o *Options) {
		o.Encoding = name
	}
}

// WithBufferSize sets the stream chunk size
func WithBufferSize(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.BufferSize = size
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithPollInterval sets the polling interval used by Watch
func WithPollInterval(interval time.Duration) Option {
	return func(o *Options) {
		if interval > 0 {
			o.PollInterval = interval
		}
	}
}

func processOptions(options ...Option) Options {
	opts := defaultOptions()
	for _, option := range options {
		option(&opts)
	}
	return opts
}

// discardLogger returns a logger that drops every record.
func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// NewLogger returns a text logger writing to out at the given level name.
// An empty or unknown level yields a logger that discards everything.
func NewLogger(out io.Writer, level string) logrus.FieldLogger {
	lvl, err := logrus.ParseLevel(level)
	if level == "" || err != nil || out == nil {
		return discardLogger()
	}
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return logger
}
