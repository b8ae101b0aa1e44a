package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestGetLockOwned(t *testing.T) {
	quietLogger(t)
	lockPath := filepath.Join(t.TempDir(), "default.lock")

	res, f := getLock(lockPath)
	require.Equal(t, lockOwned, res)
	require.NotNil(t, f)
	defer f.Close()

	// The lock must actually exclude other descriptors.
	other, err := os.OpenFile(lockPath, os.O_WRONLY, 0o600)
	require.NoError(t, err)
	defer other.Close()
	err = unix.Flock(int(other.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	require.Equal(t, unix.EWOULDBLOCK, err)
}

func TestGetLockBlocksThenRetries(t *testing.T) {
	quietLogger(t)
	lockPath := filepath.Join(t.TempDir(), "default.lock")

	holder, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE, 0o600)
	require.NoError(t, err)
	require.NoError(t, unix.Flock(int(holder.Fd()), unix.LOCK_EX|unix.LOCK_NB))

	type result struct {
		res lockResult
		f   *os.File
	}
	done := make(chan result, 1)
	go func() {
		res, f := getLock(lockPath)
		done <- result{res, f}
	}()

	// The contender should be parked waiting for the lock.
	select {
	case <-done:
		t.Fatal("getLock returned while the lock was still held")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, holder.Close())

	select {
	case got := <-done:
		require.Equal(t, lockRetry, got.res)
		require.Nil(t, got.f, "retry must not carry a descriptor")
	case <-time.After(2 * time.Second):
		t.Fatal("getLock did not return after the lock was released")
	}
}

func TestGetLockOpenFailure(t *testing.T) {
	quietLogger(t)
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { os.Chmod(dir, 0o700) })

	res, f := getLock(filepath.Join(dir, "default.lock"))
	require.Equal(t, lockFailed, res)
	require.Nil(t, f)
}
