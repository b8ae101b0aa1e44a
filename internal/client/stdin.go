package client

import (
	"encoding/binary"

	"golang.org/x/sys/unix"

	"github.com/RiskSense-Ops/tmux/internal/protocol"
)

// stdinWatcher waits for stdin readability whenever the pump is armed and
// hands control back to the event loop. The read itself happens on the loop
// goroutine so all state stays single-threaded.
func (c *Client) stdinWatcher() {
	for {
		select {
		case <-c.stdinArm:
		case <-c.done:
			return
		}
		for {
			pfd := []unix.PollFd{{Fd: int32(c.stdinFD), Events: unix.POLLIN}}
			_, err := unix.Poll(pfd, -1)
			if err != unix.EINTR {
				break
			}
		}
		select {
		case c.stdinReady <- struct{}{}:
		case <-c.done:
			return
		}
	}
}

// enableStdin arms the pump: the next readable edge on stdin produces a
// STDIN frame.
func (c *Client) enableStdin() {
	if c.stdinOn {
		return
	}
	c.stdinOn = true
	c.armStdin()
}

// disableStdin suspends the pump. A readiness edge already in flight is
// discarded by the loop.
func (c *Client) disableStdin() {
	c.stdinOn = false
}

func (c *Client) armStdin() {
	select {
	case c.stdinArm <- struct{}{}:
	default:
	}
}

// stdinCallback drains one non-blocking chunk from stdin into a STDIN frame.
// EOF and read errors are forwarded as a final record with size <= 0 and
// suspend the pump; the server treats that record as a one-shot signal.
func (c *Client) stdinCallback() {
	record := make([]byte, 8+stdinDataSize)
	n, err := unix.Read(c.stdinFD, record[8:])
	if err == unix.EINTR || err == unix.EAGAIN {
		c.armStdin()
		return
	}

	size := int64(n)
	if err != nil {
		size = -1
	}
	binary.NativeEndian.PutUint64(record[:8], uint64(size))

	c.peer.Send(protocol.MsgStdin, record)
	if size <= 0 {
		c.disableStdin()
		return
	}
	c.armStdin()
}
