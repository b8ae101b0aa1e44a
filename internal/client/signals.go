package client

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/RiskSense-Ops/tmux/internal/protocol"
)

// handleSignal runs on the loop goroutine; asynchronous delivery has already
// been bridged onto the signal channel. Semantics depend on phase: before
// READY only TERM matters, afterwards signals translate into protocol frames.
func (c *Client) handleSignal(sig os.Signal) {
	if sig == syscall.SIGCHLD {
		c.reapChildren()
		return
	}

	if !c.attached {
		if sig == syscall.SIGTERM {
			c.exit()
		}
		return
	}

	switch sig {
	case syscall.SIGHUP:
		c.setExitReason(ExitLostTTY, 1)
		c.peer.Send(protocol.MsgExiting, nil)
	case syscall.SIGTERM:
		c.setExitReason(ExitTerminated, 1)
		c.peer.Send(protocol.MsgExiting, nil)
	case syscall.SIGWINCH:
		c.peer.Send(protocol.MsgResize, nil)
	case syscall.SIGCONT:
		// Re-ignore TSTP before waking the server so its resumed output
		// cannot race our signal posture.
		signal.Ignore(syscall.SIGTSTP)
		c.peer.Send(protocol.MsgWakeup, nil)
	}
}

// reapChildren collects exited children without blocking, so a daemonizing
// server start never leaves a zombie.
func (c *Client) reapChildren() {
	var status unix.WaitStatus
	unix.Wait4(-1, &status, unix.WNOHANG, nil)
}

// suspend restores the default TSTP disposition and delivers it to self. The
// matching CONT re-ignores TSTP and wakes the server.
func (c *Client) suspend() {
	signal.Reset(syscall.SIGTSTP)
	unix.Kill(os.Getpid(), unix.SIGTSTP)
}

// clearSignals detaches every handler before the process image is replaced.
func clearSignals() {
	signal.Reset()
}
