//go:build !linux && !darwin

package platform

import "os"

// CopyFile falls back to read/write on unsupported platforms.
func CopyFile(params CopyFileParams) (CopyResult, error) {
	return withFiles(params, func(src, dst *os.File) (CopyResult, error) {
		return copyReadWrite(src, dst)
	})
}
