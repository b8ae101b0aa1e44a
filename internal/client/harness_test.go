package client

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/RiskSense-Ops/tmux/internal/protocol"
)

// quietLogger suppresses default slog output during tests and restores it after.
func quietLogger(t *testing.T) {
	t.Helper()
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(99)})))
	t.Cleanup(func() { slog.SetDefault(old) })
}

// unixPair creates a connected pair of unix stream sockets.
func unixPair(t *testing.T) (*net.UnixConn, *net.UnixConn) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	return fdToConn(t, fds[0]), fdToConn(t, fds[1])
}

func fdToConn(t *testing.T, fd int) *net.UnixConn {
	t.Helper()
	f := os.NewFile(uintptr(fd), "pair")
	defer f.Close()
	conn, err := net.FileConn(f)
	require.NoError(t, err)
	uc, ok := conn.(*net.UnixConn)
	require.True(t, ok, "expected a unix connection")
	t.Cleanup(func() { uc.Close() })
	return uc
}

// harness wires a Client to an in-memory server end with every outward side
// effect captured.
type harness struct {
	c      *Client
	server *protocol.Peer
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	fatals []string
	locked []string
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	quietLogger(t)

	clientConn, serverConn := unixPair(t)

	h := &harness{
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
	}
	h.c = New(cfg)
	h.c.peer = protocol.NewPeer(clientConn)
	h.server = protocol.NewPeer(serverConn)
	t.Cleanup(func() {
		h.c.peer.Close()
		h.server.Close()
	})

	h.c.stdout = h.stdout
	h.c.stderr = h.stderr
	h.c.fatalf = func(format string, args ...any) {
		h.fatals = append(h.fatals, fmt.Sprintf(format, args...))
	}
	h.c.systemFn = func(command string) {
		h.locked = append(h.locked, command)
	}
	h.c.closeFromFn = func(int) {}
	h.c.execFn = func(shell string, argv []string, env []string) error {
		t.Fatalf("unexpected exec of %s", shell)
		return nil
	}
	return h
}

// inbound builds a frame as the client's dispatcher would receive it.
func inbound(typ protocol.MsgType, payload []byte) *protocol.Message {
	return &protocol.Message{Type: typ, Payload: payload, PeerVersion: protocol.Version}
}

// expectFrame reads the next frame the client sent and checks its type.
func (h *harness) expectFrame(t *testing.T, typ protocol.MsgType) *protocol.Message {
	t.Helper()
	select {
	case m, ok := <-h.server.In():
		require.True(t, ok, "server channel closed while waiting for %s", typ)
		require.Equal(t, typ, m.Type)
		return m
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s frame", typ)
	}
	return nil
}

// expectNoFrame asserts the client sent nothing within a short window.
func (h *harness) expectNoFrame(t *testing.T) {
	t.Helper()
	select {
	case m, ok := <-h.server.In():
		if ok {
			t.Fatalf("unexpected %s frame", m.Type)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

// stdioRecord packs payload bytes into the fixed STDOUT/STDERR record shape.
func stdioRecord(data []byte) []byte {
	record := make([]byte, 8+stdinDataSize)
	binary.NativeEndian.PutUint64(record[:8], uint64(int64(len(data))))
	copy(record[8:], data)
	return record
}
