package client

import (
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

// lockResult is the outcome of trying to take the server-start lock.
type lockResult int

const (
	// lockOwned means this client holds the lock and may start the server.
	lockOwned lockResult = iota

	// lockRetry means another client held the lock while starting the
	// server; it has since been released, so connecting should be retried.
	lockRetry

	// lockFailed means the lock path could not be used. Server start
	// proceeds anyway; a non-nil file is carried forward to the server.
	lockFailed
)

// getLock takes the advisory lock guarding server start. When the lock is
// busy it blocks until the holder releases it, then reports lockRetry. A
// flock failure other than contention reports lockFailed with the descriptor
// still open: server start expects to inherit and reuse it.
func getLock(lockPath string) (lockResult, *os.File) {
	slog.Debug(fmt.Sprintf("lock file is %s", lockPath))

	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE, 0o600)
	if err != nil {
		slog.Debug(fmt.Sprintf("open failed: %v", err))
		return lockFailed, nil
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		slog.Debug(fmt.Sprintf("flock failed: %v", err))
		if err != unix.EWOULDBLOCK {
			return lockFailed, f
		}
		for {
			err := unix.Flock(int(f.Fd()), unix.LOCK_EX)
			if err != unix.EINTR {
				break
			}
		}
		f.Close()
		return lockRetry, nil
	}

	slog.Debug("flock succeeded")
	return lockOwned, f
}
