//go:build unix && !linux && !darwin

package local

import (
	"syscall"
	"time"
)

func extractBirthTime(*syscall.Stat_t) *time.Time {
	return nil
}
