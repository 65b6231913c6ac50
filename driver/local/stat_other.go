//go:build !unix && !windows

package local

import (
	"os"
	"time"
)

func extractPlatformInfo(os.FileInfo) (owner string, createdAt *time.Time) {
	return "", nil
}
