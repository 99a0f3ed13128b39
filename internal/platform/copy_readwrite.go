package platform

import (
	"io"
	"os"
	"sync"
)

const bufferSize = 1 << 20 // 1 MiB

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, bufferSize)
		return &b
	},
}

// copyReadWrite copies src into dst through a pooled buffer.
func copyReadWrite(src, dst *os.File) (CopyResult, error) {
	bufp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufp)

	n, err := io.CopyBuffer(onlyWriter{dst}, onlyReader{src}, *bufp)
	return CopyResult{BytesWritten: n, Method: ReadWrite}, err
}

// CopyReadWrite copies with plain read/write, skipping any kernel fast path.
func CopyReadWrite(params CopyFileParams) (CopyResult, error) {
	return withFiles(params, func(src, dst *os.File) (CopyResult, error) {
		return copyReadWrite(src, dst)
	})
}

// withFiles opens the source, creates the destination and runs fn. The
// destination is closed before returning so close errors are reported.
func withFiles(params CopyFileParams, fn func(src, dst *os.File) (CopyResult, error)) (CopyResult, error) {
	src, err := os.Open(params.SrcPath)
	if err != nil {
		return CopyResult{}, err
	}
	defer src.Close()

	dst, err := createDst(params)
	if err != nil {
		return CopyResult{}, err
	}
	result, err := fn(src, dst)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	return result, err
}

// onlyReader and onlyWriter hide ReadFrom/WriteTo so io.CopyBuffer uses the
// pooled buffer instead of the os.File fast paths.
type onlyReader struct{ io.Reader }

type onlyWriter struct{ io.Writer }
