//go:build darwin

package platform

import (
	"os"

	"golang.org/x/sys/unix"
)

// CopyFile tries clonefile first (a CoW copy on APFS), then falls back to
// read/write on macOS.
func CopyFile(params CopyFileParams) (CopyResult, error) {
	err := unix.Clonefile(params.SrcPath, params.DstPath, unix.CLONE_NOFOLLOW)
	if err == nil {
		return CopyResult{BytesWritten: params.SrcSize, Method: Clonefile}, nil
	}
	if !isFallbackCloneErr(err) {
		return CopyResult{}, err
	}

	return withFiles(params, func(src, dst *os.File) (CopyResult, error) {
		return copyReadWrite(src, dst)
	})
}

func isFallbackCloneErr(err error) bool {
	switch err {
	case unix.ENOTSUP, unix.EXDEV, unix.EINVAL:
		return true
	}
	return false
}
