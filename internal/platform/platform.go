package platform

import (
	"io/fs"
	"os"
)

// CopyMethod identifies which syscall/strategy was used for a copy.
type CopyMethod int

const (
	ReadWrite     CopyMethod = iota
	CopyFileRange            // Linux copy_file_range(2)
	Sendfile                 // Linux sendfile(2)
	Clonefile                // macOS clonefile(2)
)

func (m CopyMethod) String() string {
	switch m {
	case ReadWrite:
		return "read_write"
	case CopyFileRange:
		return "copy_file_range"
	case Sendfile:
		return "sendfile"
	case Clonefile:
		return "clonefile"
	default:
		return "unknown"
	}
}

// CopyResult reports the outcome of a copy operation.
type CopyResult struct {
	BytesWritten int64
	Method       CopyMethod
}

// CopyFileParams describes a whole-file copy. DstPath must not exist; it is
// created with Perm.
type CopyFileParams struct {
	SrcPath string
	DstPath string
	SrcSize int64
	Perm    fs.FileMode
}

func createDst(params CopyFileParams) (*os.File, error) {
	perm := params.Perm
	if perm == 0 {
		perm = 0o600
	}
	return os.OpenFile(params.DstPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
}
