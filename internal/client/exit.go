package client

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/RiskSense-Ops/tmux/internal/protocol"
)

// exitMessage renders the user-visible reason for exiting.
func (c *Client) exitMessage() string {
	switch c.exitReason {
	case ExitDetached:
		if c.exitSession != "" {
			return fmt.Sprintf("detached (from session %s)", c.exitSession)
		}
		return "detached"
	case ExitDetachedHUP:
		if c.exitSession != "" {
			return fmt.Sprintf("detached and SIGHUP (from session %s)", c.exitSession)
		}
		return "detached and SIGHUP"
	case ExitLostTTY:
		return "lost tty"
	case ExitTerminated:
		return "terminated"
	case ExitLostServer:
		return "lost server"
	case ExitExited:
		return "exited"
	case ExitServerExited:
		return "server exited"
	}
	return "unknown reason"
}

// finalize runs after the event loop: it prints the exit reason, restores the
// terminal and returns the process status. When the server requested an exec
// the process image is replaced instead and finalize never returns.
func (c *Client) finalize() int {
	if c.exitType == protocol.MsgExec {
		c.execShellCommand(c.execShell, c.execCmd)
		// Not reached when execFn replaces the process image.
	}

	if c.attached {
		if c.exitReason != ExitNone {
			fmt.Fprintf(c.stdout, "[%s]\n", c.exitMessage())
		}
		if ppid := os.Getppid(); c.exitType == protocol.MsgDetachKill && ppid > 1 {
			unix.Kill(ppid, unix.SIGHUP)
		}
	} else if c.cfg.Flags&FlagControlControl != 0 {
		if c.exitReason != ExitNone {
			fmt.Fprintf(c.stdout, "%%exit %s\n", c.exitMessage())
		} else {
			fmt.Fprintf(c.stdout, "%%exit\n")
		}
		fmt.Fprintf(c.stdout, "\033\\")
		if c.savedTermios != nil {
			restoreTermios(c.stdoutFD, c.savedTermios)
		}
	} else if c.exitReason != ExitNone {
		fmt.Fprintf(c.stderr, "%s\n", c.exitMessage())
	}

	unix.SetNonblock(c.stdinFD, false)
	return c.exitValue
}

// execShellCommand replaces the process image with `shell argv0 -c command`.
// argv[0] gets a leading dash for login clients. Blocking mode is restored on
// the std descriptors first so the shell does not inherit a non-blocking
// stdin.
func (c *Client) execShellCommand(shell, command string) {
	name := shell
	if i := strings.LastIndex(shell, "/"); i >= 0 && i+1 < len(shell) {
		name = shell[i+1:]
	}
	argv0 := name
	if c.cfg.Flags&FlagLogin != 0 {
		argv0 = "-" + name
	}
	os.Setenv("SHELL", shell)

	unix.SetNonblock(c.stdinFD, false)
	unix.SetNonblock(c.stdoutFD, false)
	unix.SetNonblock(c.stderrFD, false)
	c.closeFromFn(c.stderrFD + 1)

	if err := c.execFn(shell, []string{argv0, "-c", command}, os.Environ()); err != nil {
		c.fatalf("exec failed: %v", err)
	}
}

// execReplaceImage is the real exec; it only returns on failure.
func execReplaceImage(shell string, argv []string, env []string) error {
	return unix.Exec(shell, argv, env)
}

// runShellCommand invokes a shell command synchronously with the client's
// stdio attached; used for the server's LOCK request, which by then has
// detached the terminal.
func runShellCommand(command string) {
	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Run()
}

// closeFrom closes every descriptor at or above fd, so an executed shell
// inherits nothing beyond its stdio.
func closeFrom(fd int) {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		for i := fd; i < 1024; i++ {
			unix.Close(i)
		}
		return
	}
	for _, entry := range entries {
		n, err := strconv.Atoi(entry.Name())
		if err != nil || n < fd {
			continue
		}
		unix.Close(n)
	}
}

// writeRetry pushes the whole buffer to the descriptor, retrying interrupted
// and would-block writes. Other errors abandon the write: the data is
// best-effort and the server holds the authoritative copy.
func writeRetry(fd int, data []byte) {
	for len(data) != 0 {
		n, err := unix.Write(fd, data)
		if err != nil {
			if err == syscall.EINTR || err == syscall.EAGAIN {
				continue
			}
			return
		}
		data = data[n:]
	}
}
