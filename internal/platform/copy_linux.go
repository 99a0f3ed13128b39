//go:build linux

package platform

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// CopyFile tries the most efficient copy method available on Linux,
// falling through on unsupported/cross-device errors.
func CopyFile(params CopyFileParams) (CopyResult, error) {
	return withFiles(params, func(src, dst *os.File) (CopyResult, error) {
		reserve(dst, params.SrcSize)

		result, err := copyFileRange(src, dst, params.SrcSize)
		if err == nil || result.BytesWritten > 0 || !isFallbackErr(err) {
			return result, err
		}

		result, err = copySendfile(src, dst, params.SrcSize)
		if err == nil || result.BytesWritten > 0 || !isFallbackErr(err) {
			return result, err
		}

		return copyReadWrite(src, dst)
	})
}

// copyFileRange copies until EOF. A short source (file shrank since the
// scan) ends the copy early; a growing one is copied up to its current end.
func copyFileRange(src, dst *os.File, size int64) (CopyResult, error) {
	var roff, woff int64
	var total int64
	chunk := copyChunk(size)
	for {
		n, err := unix.CopyFileRange(int(src.Fd()), &roff, int(dst.Fd()), &woff, chunk, 0)
		if err != nil {
			if total == 0 {
				return CopyResult{}, err
			}
			return CopyResult{BytesWritten: total, Method: CopyFileRange}, err
		}
		if n == 0 {
			break
		}
		total += int64(n)
	}
	return CopyResult{BytesWritten: total, Method: CopyFileRange}, nil
}

func copySendfile(src, dst *os.File, size int64) (CopyResult, error) {
	var offset int64
	var total int64
	chunk := copyChunk(size)
	for {
		n, err := unix.Sendfile(int(dst.Fd()), int(src.Fd()), &offset, chunk)
		if err != nil {
			if total == 0 {
				return CopyResult{}, err
			}
			return CopyResult{BytesWritten: total, Method: Sendfile}, err
		}
		if n == 0 {
			break
		}
		total += int64(n)
	}
	return CopyResult{BytesWritten: total, Method: Sendfile}, nil
}

// reserve asks the filesystem for size bytes of blocks up front without
// changing the file length, so a source that shrinks mid-copy leaves no
// zero-filled tail. Filesystems without fallocate simply skip it.
func reserve(dst *os.File, size int64) {
	if size <= 0 {
		return
	}
	//nolint:errcheck // advisory; unsupported on some filesystems
	unix.Fallocate(int(dst.Fd()), unix.FALLOC_FL_KEEP_SIZE, 0, size)
}

func copyChunk(size int64) int {
	return int(min(max(size, 1<<20), 1<<30))
}

// isFallbackErr returns true if err should trigger a fallback to the next copy strategy.
func isFallbackErr(err error) bool {
	return errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EXDEV) ||
		errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOTSUP) ||
		errors.Is(err, unix.EOPNOTSUPP)
}
