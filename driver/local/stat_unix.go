//go:build unix

package local

import (
	"os"
	"strconv"
	"syscall"
	"time"
)

// extractPlatformInfo extracts the owning uid and, where the platform
// records one, the creation time.
func extractPlatformInfo(info os.FileInfo) (owner string, createdAt *time.Time) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return "", nil
	}

	return strconv.FormatUint(uint64(stat.Uid), 10), extractBirthTime(stat)
}
