package utils

import (
	"os"

	"github.com/go-git/go-billy/v5"
)

// hiddenFS leaves dotfiles and dot directories out of the wrapped tree:
// they are absent from listings and every lookup reports them missing.
type hiddenFS struct {
	billy.Filesystem
}

// HideDotfiles wraps fs so that entries matching IsHidden cannot be listed,
// stat'ed or opened.
func HideDotfiles(fs billy.Filesystem) billy.Filesystem {
	if h, ok := fs.(*hiddenFS); ok {
		return h
	}
	return &hiddenFS{Filesystem: fs}
}

func notExist(op, name string) error {
	return &os.PathError{Op: op, Path: name, Err: os.ErrNotExist}
}

func (fs *hiddenFS) Open(filename string) (billy.File, error) {
	if IsHidden(filename) {
		return nil, notExist("open", filename)
	}
	return fs.Filesystem.Open(filename)
}

func (fs *hiddenFS) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	if IsHidden(filename) {
		return nil, notExist("open", filename)
	}
	return fs.Filesystem.OpenFile(filename, flag, perm)
}

func (fs *hiddenFS) Stat(filename string) (os.FileInfo, error) {
	if IsHidden(filename) {
		return nil, notExist("stat", filename)
	}
	return fs.Filesystem.Stat(filename)
}

func (fs *hiddenFS) Lstat(filename string) (os.FileInfo, error) {
	if IsHidden(filename) {
		return nil, notExist("lstat", filename)
	}
	return fs.Filesystem.Lstat(filename)
}

func (fs *hiddenFS) Readlink(link string) (string, error) {
	if IsHidden(link) {
		return "", notExist("readlink", link)
	}
	return fs.Filesystem.Readlink(link)
}

func (fs *hiddenFS) ReadDir(path string) ([]os.FileInfo, error) {
	if IsHidden(path) {
		return nil, notExist("readdir", path)
	}
	entries, err := fs.Filesystem.ReadDir(path)
	if err != nil {
		return nil, err
	}
	visible := entries[:0]
	for _, fi := range entries {
		if !IsHidden(fi.Name()) {
			visible = append(visible, fi)
		}
	}
	return visible, nil
}

func (fs *hiddenFS) Chroot(path string) (billy.Filesystem, error) {
	if IsHidden(path) {
		return nil, notExist("chroot", path)
	}
	sub, err := fs.Filesystem.Chroot(path)
	if err != nil {
		return nil, err
	}
	return &hiddenFS{Filesystem: sub}, nil
}

func (fs *hiddenFS) Capabilities() billy.Capability {
	return billy.Capabilities(fs.Filesystem)
}
