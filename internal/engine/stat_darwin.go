//go:build darwin

package engine

import (
	"fmt"
	"io/fs"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// statTimes returns the device number and access time of info.
func statTimes(info fs.FileInfo) (dev uint64, atime time.Time) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, info.ModTime()
	}
	return uint64(stat.Dev), time.Unix(stat.Atimespec.Sec, stat.Atimespec.Nsec) //nolint:gosec // G115: dev_t is int32 on darwin, always non-negative
}

// setTimes sets atime and mtime on path. With noFollow a symlink's own
// times are set instead of its target's.
func setTimes(path string, accTime, modTime time.Time, noFollow bool) error {
	if modTime.IsZero() {
		return nil
	}
	if accTime.IsZero() {
		accTime = modTime
	}
	times := []unix.Timespec{
		unix.NsecToTimespec(accTime.UnixNano()),
		unix.NsecToTimespec(modTime.UnixNano()),
	}
	flags := 0
	if noFollow {
		flags = unix.AT_SYMLINK_NOFOLLOW
	}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, path, times, flags); err != nil {
		return fmt.Errorf("utimensat %s: %w", path, err)
	}
	return nil
}
