//go:build windows

package local

import (
	"os"
	"syscall"
	"time"
)

// extractPlatformInfo extracts the creation time on Windows. Owner lookup
// needs GetSecurityInfo and is not reported.
func extractPlatformInfo(info os.FileInfo) (owner string, createdAt *time.Time) {
	data, ok := info.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return "", nil
	}

	t := time.Unix(0, data.CreationTime.Nanoseconds())
	if t.IsZero() {
		return "", nil
	}
	return "", &t
}
