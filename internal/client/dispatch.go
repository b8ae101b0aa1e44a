package client

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/RiskSense-Ops/tmux/internal/protocol"
)

// dispatch handles one decoded inbound frame. A nil message means the
// connection to the server was lost.
func (c *Client) dispatch(m *protocol.Message) {
	if m == nil {
		c.setExitReason(ExitLostServer, 1)
		c.exit()
		return
	}
	if c.attached {
		c.dispatchAttached(m)
	} else {
		c.dispatchWait(m)
	}
}

// dispatchWait handles frames before READY. The server sends nothing until
// the identity sequence is complete, so the first inbound frame marks the
// point where the fd-passing capability is no longer needed and is dropped.
func (c *Client) dispatchWait(m *protocol.Message) {
	if !c.fdsDropped {
		c.peer.DropFDPassing()
		c.fdsDropped = true
	}

	data := m.Payload

	switch m.Type {
	case protocol.MsgExit, protocol.MsgShutdown:
		if len(data) != 0 && len(data) != 4 {
			c.fatalf("bad MSG_EXIT size")
			return
		}
		if len(data) == 4 {
			c.exitValue = int(int32(binary.NativeEndian.Uint32(data)))
		}
		c.exit()
	case protocol.MsgReady:
		if len(data) != 0 {
			c.fatalf("bad MSG_READY size")
			return
		}
		c.disableStdin()
		c.attached = true
		c.peer.Send(protocol.MsgResize, nil)
	case protocol.MsgStdin:
		if len(data) != 0 {
			c.fatalf("bad MSG_STDIN size")
			return
		}
		c.enableStdin()
	case protocol.MsgStdout:
		size, payload, ok := decodeStdioRecord(data)
		if !ok {
			c.fatalf("bad MSG_STDOUT size")
			return
		}
		writeRetry(c.stdoutFD, payload[:size])
	case protocol.MsgStderr:
		size, payload, ok := decodeStdioRecord(data)
		if !ok {
			c.fatalf("bad MSG_STDERR size")
			return
		}
		writeRetry(c.stderrFD, payload[:size])
	case protocol.MsgVersion:
		if len(data) != 0 {
			c.fatalf("bad MSG_VERSION size")
			return
		}
		fmt.Fprintf(c.stderr, "protocol version mismatch (client %d, server %d)\n",
			protocol.Version, m.PeerVersion)
		c.exitValue = 1
		c.exit()
	case protocol.MsgShell:
		shell, ok := nulString(data)
		if !ok {
			c.fatalf("bad MSG_SHELL string")
			return
		}
		clearSignals()
		c.execShellCommand(shell, c.cfg.ShellCommand)
		// Not reached when execFn replaces the process image.
	case protocol.MsgDetach, protocol.MsgDetachKill:
		c.peer.Send(protocol.MsgExiting, nil)
	case protocol.MsgExited:
		c.exit()
	}
}

// dispatchAttached handles frames after READY, when the server owns the
// terminal.
func (c *Client) dispatchAttached(m *protocol.Message) {
	data := m.Payload

	switch m.Type {
	case protocol.MsgDetach, protocol.MsgDetachKill:
		session, ok := nulString(data)
		if !ok || session == "" {
			c.fatalf("bad MSG_DETACH string")
			return
		}
		c.exitSession = session
		c.exitType = m.Type
		if m.Type == protocol.MsgDetachKill {
			c.setExitReason(ExitDetachedHUP, c.exitValue)
		} else {
			c.setExitReason(ExitDetached, c.exitValue)
		}
		c.peer.Send(protocol.MsgExiting, nil)
	case protocol.MsgExec:
		command, shell, ok := nulStringPair(data)
		if !ok {
			c.fatalf("bad MSG_EXEC string")
			return
		}
		c.execCmd = command
		c.execShell = shell
		c.exitType = m.Type
		c.peer.Send(protocol.MsgExiting, nil)
	case protocol.MsgExit:
		if len(data) != 0 && len(data) != 4 {
			c.fatalf("bad MSG_EXIT size")
			return
		}
		c.peer.Send(protocol.MsgExiting, nil)
		c.setExitReason(ExitExited, c.exitValue)
	case protocol.MsgExited:
		if len(data) != 0 {
			c.fatalf("bad MSG_EXITED size")
			return
		}
		c.exit()
	case protocol.MsgShutdown:
		if len(data) != 0 {
			c.fatalf("bad MSG_SHUTDOWN size")
			return
		}
		c.peer.Send(protocol.MsgExiting, nil)
		c.setExitReason(ExitServerExited, 1)
	case protocol.MsgSuspend:
		if len(data) != 0 {
			c.fatalf("bad MSG_SUSPEND size")
			return
		}
		c.suspend()
	case protocol.MsgLock:
		command, ok := nulString(data)
		if !ok {
			c.fatalf("bad MSG_LOCK string")
			return
		}
		c.systemFn(command)
		c.peer.Send(protocol.MsgUnlock, nil)
	}
}

// decodeStdioRecord validates a fixed STDOUT/STDERR record: a signed size
// followed by the fixed-width data buffer.
func decodeStdioRecord(data []byte) (int, []byte, bool) {
	if len(data) != 8+stdinDataSize {
		return 0, nil, false
	}
	size := int64(binary.NativeEndian.Uint64(data[:8]))
	if size < 0 || size > stdinDataSize {
		return 0, nil, false
	}
	return int(size), data[8:], true
}

// nulString validates a single NUL-terminated string payload.
func nulString(data []byte) (string, bool) {
	if len(data) == 0 || data[len(data)-1] != 0 {
		return "", false
	}
	return string(data[:len(data)-1]), true
}

// nulStringPair validates two consecutive NUL-terminated strings filling the
// whole payload; a payload holding only one string is rejected.
func nulStringPair(data []byte) (string, string, bool) {
	if len(data) == 0 || data[len(data)-1] != 0 {
		return "", "", false
	}
	i := bytes.IndexByte(data, 0)
	if i <= 0 || i == len(data)-1 {
		return "", "", false
	}
	first := string(data[:i])
	second := string(data[i+1 : len(data)-1])
	if second == "" || bytes.IndexByte(data[i+1:len(data)-1], 0) >= 0 {
		return "", "", false
	}
	return first, second, true
}
