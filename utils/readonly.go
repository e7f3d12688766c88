package utils

import (
	"os"

	"github.com/go-git/go-billy/v5"
)

const writeFlags = os.O_WRONLY | os.O_RDWR | os.O_CREATE | os.O_TRUNC | os.O_APPEND

// readOnlyFS hides every mutating operation of the wrapped filesystem.
// Only the billy.Filesystem method set is promoted, so optional extensions
// such as billy.Change are not reachable through it either.
type readOnlyFS struct {
	billy.Filesystem
}

// ReadOnly wraps fs so that it can be handed to servers which must never
// modify the served tree.
func ReadOnly(fs billy.Filesystem) billy.Filesystem {
	if ro, ok := fs.(*readOnlyFS); ok {
		return ro
	}
	return &readOnlyFS{Filesystem: fs}
}

func (fs *readOnlyFS) Create(string) (billy.File, error) {
	return nil, billy.ErrReadOnly
}

func (fs *readOnlyFS) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	if flag&writeFlags != 0 {
		return nil, billy.ErrReadOnly
	}
	return fs.Filesystem.OpenFile(filename, flag, perm)
}

func (fs *readOnlyFS) Rename(string, string) error { return billy.ErrReadOnly }

func (fs *readOnlyFS) Remove(string) error { return billy.ErrReadOnly }

func (fs *readOnlyFS) TempFile(string, string) (billy.File, error) {
	return nil, billy.ErrReadOnly
}

func (fs *readOnlyFS) MkdirAll(string, os.FileMode) error { return billy.ErrReadOnly }

func (fs *readOnlyFS) Symlink(string, string) error { return billy.ErrReadOnly }

func (fs *readOnlyFS) Chroot(path string) (billy.Filesystem, error) {
	sub, err := fs.Filesystem.Chroot(path)
	if err != nil {
		return nil, err
	}
	return &readOnlyFS{Filesystem: sub}, nil
}

func (fs *readOnlyFS) Capabilities() billy.Capability {
	return billy.Capabilities(fs.Filesystem) &^
		(billy.WriteCapability | billy.ReadAndWriteCapability | billy.TruncateCapability | billy.LockCapability)
}
