//go:build unix

package repo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

// refLock is an flock(2) held on a ref file. Exclusive locks create the file
// when it is missing; an empty file reads as an absent ref.
type refLock struct {
	path      string
	f         *os.File
	created   bool
	committed bool
}

// lockRef opens path and takes a shared or exclusive flock on it. The path
// is re-checked after locking because a concurrent writer may have replaced
// or removed the file while this caller waited.
func lockRef(path string, exclusive bool) (*refLock, error) {
	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	for {
		f, created, err := openRefFile(path, exclusive)
		if err != nil {
			return nil, err
		}
		if err := flock(f, how); err != nil {
			f.Close()
			return nil, fmt.Errorf("flock %s: %w", path, err)
		}

		held, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, err
		}
		cur, err := os.Stat(path)
		if err == nil && os.SameFile(held, cur) {
			return &refLock{path: path, f: f, created: created}, nil
		}
		f.Close()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		if !exclusive && err != nil {
			return nil, err
		}
	}
}

func openRefFile(path string, exclusive bool) (*os.File, bool, error) {
	if !exclusive {
		f, err := os.Open(path)
		return f, false, err
	}
	for {
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err == nil {
			return f, false, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, false, err
		}
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, true, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, false, err
		}
	}
}

func flock(f *os.File, how int) error {
	for {
		err := unix.Flock(int(f.Fd()), how)
		if err != unix.EINTR {
			return err
		}
	}
}

// unlock releases the lock. A file created by lockRef and never replaced by
// a committed write is removed first, while the lock is still held.
func (l *refLock) unlock() error {
	if l.created && !l.committed {
		os.Remove(l.path)
	}
	err := flock(l.f, unix.LOCK_UN)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	return err
}
