package client

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestConnectToRunningServer(t *testing.T) {
	quietLogger(t)
	path := filepath.Join(shortTempDir(t), "default")

	listener, err := net.Listen("unix", path)
	require.NoError(t, err)
	defer listener.Close()

	c := New(Config{SocketPath: path})
	conn, err := c.connect()
	require.NoError(t, err)
	conn.Close()
}

func TestConnectNoServerNoStart(t *testing.T) {
	quietLogger(t)
	path := filepath.Join(shortTempDir(t), "default")

	c := New(Config{SocketPath: path})
	_, err := c.connect()
	require.Error(t, err)
}

func TestConnectPathTooLong(t *testing.T) {
	quietLogger(t)

	c := New(Config{SocketPath: "/tmp/" + strings.Repeat("x", 200)})
	_, err := c.connect()
	require.ErrorIs(t, err, unix.ENAMETOOLONG)
}

func TestConnectLockRaceRetriesOnceThenStarts(t *testing.T) {
	quietLogger(t)
	dir := shortTempDir(t)
	path := filepath.Join(dir, "default")

	dials := 0
	started := false
	var startLock *os.File

	serverEnd, _ := unixPair(t)

	c := New(Config{
		SocketPath: path,
		StartServer: func(lockFile *os.File, lockPath string) (*net.UnixConn, error) {
			started = true
			startLock = lockFile
			return serverEnd, nil
		},
	})
	c.dial = func(string) (*net.UnixConn, error) {
		dials++
		return nil, fmt.Errorf("connect: %w", syscall.ECONNREFUSED)
	}

	conn, err := c.connect()
	require.NoError(t, err)
	require.True(t, started, "server start must be invoked")

	// One failed connect, the lock taken, exactly one more connect before
	// starting the server.
	require.Equal(t, 2, dials)

	// The held lock is handed over to server start.
	require.NotNil(t, startLock)
	startLock.Close()
	conn.Close()
}

func TestConnectSecondClientWinsRace(t *testing.T) {
	quietLogger(t)
	dir := shortTempDir(t)
	path := filepath.Join(dir, "default")

	// First dial fails; while "we" take the lock, another client has
	// started the server, so the retry connects.
	var listener net.Listener
	dials := 0
	c := New(Config{
		SocketPath: path,
		StartServer: func(lockFile *os.File, lockPath string) (*net.UnixConn, error) {
			t.Fatal("server start must not run when the retry connects")
			return nil, nil
		},
	})
	c.dial = func(p string) (*net.UnixConn, error) {
		dials++
		if dials == 1 {
			var err error
			listener, err = net.Listen("unix", p)
			require.NoError(t, err)
			return nil, fmt.Errorf("connect: %w", syscall.ECONNREFUSED)
		}
		addr := &net.UnixAddr{Name: p, Net: "unix"}
		return net.DialUnix("unix", nil, addr)
	}

	conn, err := c.connect()
	require.NoError(t, err)
	require.Equal(t, 2, dials)
	conn.Close()
	listener.Close()
}

func TestConnectStaleSocketIsRemoved(t *testing.T) {
	quietLogger(t)
	dir := shortTempDir(t)
	path := filepath.Join(dir, "default")

	// A socket file nobody listens on produces ECONNREFUSED from a real
	// dial and must be unlinked before the server starts.
	stale, err := net.Listen("unix", path)
	require.NoError(t, err)
	stale.(*net.UnixListener).SetUnlinkOnClose(false)
	stale.Close()
	require.NoError(t, exists(path))

	serverEnd, _ := unixPair(t)
	c := New(Config{
		SocketPath: path,
		StartServer: func(lockFile *os.File, lockPath string) (*net.UnixConn, error) {
			require.Error(t, exists(path), "stale socket must be gone before start")
			if lockFile != nil {
				lockFile.Close()
			}
			return serverEnd, nil
		},
	})

	conn, err := c.connect()
	require.NoError(t, err)
	conn.Close()
}

// shortTempDir creates a short temp directory to stay inside sockaddr_un
// path length limits.
func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "tmux-test-")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func exists(path string) error {
	_, err := os.Lstat(path)
	return err
}
