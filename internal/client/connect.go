package client

import (
	"errors"
	"log/slog"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// sunPathLen is the size of sockaddr_un's path buffer; longer socket paths
// cannot be bound or connected.
const sunPathLen = 108

// connect establishes the connection to the server, racing other clients
// through the lock file when the server needs starting.
//
// The lock dance: on a failed connect the client takes the lock, then retries
// the connect even when the lock was acquired first try, because another
// client may have taken the lock, started the server and released it between
// our connect and our flock. Only when a connect fails while locked does this
// client unlink the stale socket and start the server itself.
func (c *Client) connect() (*net.UnixConn, error) {
	path := c.cfg.SocketPath
	if len(path) >= sunPathLen {
		return nil, unix.ENAMETOOLONG
	}
	slog.Debug("socket is " + path)

	locked := false
	var lockFile *os.File
	lockPath := path + ".lock"

	for {
		slog.Debug("trying connect")
		conn, err := c.dial(path)
		if err == nil {
			if lockFile != nil {
				lockFile.Close()
			}
			return conn, nil
		}
		slog.Debug("connect failed: " + err.Error())

		if !isConnRefused(err) && !errors.Is(err, os.ErrNotExist) {
			if lockFile != nil {
				lockFile.Close()
			}
			return nil, err
		}
		if c.cfg.StartServer == nil {
			if lockFile != nil {
				lockFile.Close()
			}
			return nil, err
		}

		if !locked {
			res, f := getLock(lockPath)
			switch res {
			case lockRetry:
				continue
			case lockOwned, lockFailed:
				// Retry at least once even with the lock owned; see
				// the comment above. A failed lock proceeds the same
				// way and starts the server regardless.
				lockFile = f
				locked = true
				continue
			}
		}

		// Connect failed again while locked: the socket is stale.
		if lockFile != nil {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				lockFile.Close()
				return nil, err
			}
		}
		return c.cfg.StartServer(lockFile, lockPath)
	}
}
