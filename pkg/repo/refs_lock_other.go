//go:build !unix

package repo

import (
	"fmt"
	"os"
	"time"
)

const (
	refLockRetryDelay = 5 * time.Millisecond
	refLockWaitLimit  = 2 * time.Second
)

// refLock emulates an exclusive ref lock with a <ref>.lock file created with
// O_EXCL. Shared locks are no-ops; ref writes replace files by rename so a
// reader never sees a partial value.
type refLock struct {
	path      string
	lockPath  string
	f         *os.File
	committed bool
}

func lockRef(path string, exclusive bool) (*refLock, error) {
	if !exclusive {
		if _, err := os.Stat(path); err != nil {
			return nil, err
		}
		return &refLock{path: path}, nil
	}

	lockPath := path + ".lock"
	deadline := time.Now().Add(refLockWaitLimit)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return &refLock{path: path, lockPath: lockPath, f: f}, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timeout waiting for lock %q", lockPath)
		}
		time.Sleep(refLockRetryDelay)
	}
}

func (l *refLock) unlock() error {
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	if rerr := os.Remove(l.lockPath); err == nil {
		err = rerr
	}
	return err
}
