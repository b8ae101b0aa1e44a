package core

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// DefaultSocketName is the socket name used when neither -L nor -S is given.
const DefaultSocketName = "default"

// SocketDir returns the per-user directory that holds server sockets:
// $TMUX_TMPDIR/tmux-<uid>, falling back to /tmp when TMUX_TMPDIR is unset.
func SocketDir() string {
	tmpdir := os.Getenv("TMUX_TMPDIR")
	if tmpdir == "" {
		tmpdir = "/tmp"
	}
	return filepath.Join(tmpdir, fmt.Sprintf("tmux-%d", os.Getuid()))
}

// SocketPath resolves the socket path for the given socket name, creating the
// per-user socket directory if needed. The directory must be owned by the
// current user and not group or world accessible, otherwise any local user
// could race socket creation.
func SocketPath(name string) (string, error) {
	dir := SocketDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create socket directory %s: %w", dir, err)
	}

	var st unix.Stat_t
	if err := unix.Lstat(dir, &st); err != nil {
		return "", fmt.Errorf("failed to stat socket directory %s: %w", dir, err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFDIR {
		return "", fmt.Errorf("%s is not a directory", dir)
	}
	if int(st.Uid) != os.Getuid() || st.Mode&(unix.S_IRWXG|unix.S_IRWXO) != 0 {
		return "", fmt.Errorf("socket directory %s has unsafe permissions", dir)
	}

	return filepath.Join(dir, name), nil
}
