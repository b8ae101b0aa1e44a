// Package client implements the client half of the tmux client/server
// architecture: a short-lived process that connects to the server over a unix
// socket, identifies itself, forwards a one-shot command or attaches as an
// interactive terminal, and exits on detach, signal or server loss.
package client

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/kballard/go-shellquote"
	"golang.org/x/sys/unix"

	"github.com/RiskSense-Ops/tmux/internal/protocol"
)

// Flags are client options forwarded to the server verbatim in the
// IDENTIFY_FLAGS frame.
type Flags uint32

const (
	// FlagLogin marks the client as a login shell; affects argv[0] when a
	// shell is executed on exit.
	FlagLogin Flags = 1 << iota

	// FlagControl puts the client in control mode.
	FlagControl

	// FlagControlControl additionally takes over the caller's terminal with
	// raw mode and %-prefixed framing.
	FlagControlControl
)

// StartServerFunc starts the server when no socket answers. It receives
// ownership of the lock file (which may be nil if the lock could not be
// opened) and must return a connection to the freshly started server.
type StartServerFunc func(lockFile *os.File, lockPath string) (*net.UnixConn, error)

// Config carries everything the client needs; immutable after Run starts.
type Config struct {
	Flags        Flags
	SocketPath   string
	ShellCommand string   // non-empty iff the user requested -c
	Args         []string // command tokens, exclusive with ShellCommand

	// StartServer is invoked when connecting fails and a server start is
	// wanted. A nil StartServer makes connection failure fatal.
	StartServer StartServerFunc
}

// ExitReason records why the client is exiting. It is assigned at most once;
// later causes may still update the exit value.
type ExitReason int

const (
	ExitNone ExitReason = iota
	ExitDetached
	ExitDetachedHUP
	ExitLostTTY
	ExitTerminated
	ExitLostServer
	ExitExited
	ExitServerExited
)

const stdinDataSize = 8192

// Client owns the connection to the server and all process-local side
// effects. All mutable state is touched only from the event loop goroutine.
type Client struct {
	cfg  Config
	peer *protocol.Peer

	attached    bool
	exiting     bool
	exitReason  ExitReason
	exitValue   int
	exitType    protocol.MsgType
	exitSession string
	execCmd     string
	execShell   string

	savedTermios *unix.Termios

	sigCh      chan os.Signal
	stdinReady chan struct{}
	stdinArm   chan struct{}
	stdinOn    bool
	done       chan struct{}

	fdsDropped bool

	// Injection points so tests can observe side effects that would
	// otherwise write to the process's real terminal or replace its image.
	stdout      io.Writer
	stderr      io.Writer
	stdinFD     int
	stdoutFD    int
	stderrFD    int
	execFn      func(shell string, argv []string, env []string) error
	systemFn    func(command string)
	closeFromFn func(fd int)
	fatalf      func(format string, args ...any)

	dial func(path string) (*net.UnixConn, error)
}

// New creates a client for the given configuration.
func New(cfg Config) *Client {
	c := &Client{
		cfg:        cfg,
		sigCh:      make(chan os.Signal, 16),
		stdinReady: make(chan struct{}, 1),
		stdinArm:   make(chan struct{}, 1),
		done:       make(chan struct{}),
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		stdinFD:    unix.Stdin,
		stdoutFD:   unix.Stdout,
		stderrFD:   unix.Stderr,
	}
	c.execFn = execReplaceImage
	c.systemFn = runShellCommand
	c.closeFromFn = closeFrom
	c.fatalf = func(format string, args ...any) {
		fmt.Fprintf(c.stderr, format+"\n", args...)
		os.Exit(1)
	}
	c.dial = func(path string) (*net.UnixConn, error) {
		addr := &net.UnixAddr{Name: path, Net: "unix"}
		return net.DialUnix("unix", nil, addr)
	}
	return c
}

// Run connects to the server, performs the identity handshake, drives the
// event loop until an exit cause fires, and returns the process exit status.
func Run(cfg Config) int {
	return New(cfg).Run()
}

// Run implements the whole client lifecycle. It returns the exit status,
// except when the server requested an exec, in which case the process image
// is replaced and Run never returns.
func (c *Client) Run() int {
	// Reap children from the start so a daemonizing server never leaves a
	// zombie behind.
	signal.Notify(c.sigCh,
		syscall.SIGCHLD, syscall.SIGHUP, syscall.SIGTERM,
		syscall.SIGWINCH, syscall.SIGCONT)
	defer signal.Stop(c.sigCh)
	defer close(c.done)

	conn, err := c.connect()
	if err != nil {
		if isConnRefused(err) {
			fmt.Fprintf(c.stderr, "no server running on %s\n", c.cfg.SocketPath)
		} else {
			fmt.Fprintf(c.stderr, "error connecting to %s (%v)\n", c.cfg.SocketPath, err)
		}
		return 1
	}
	c.peer = protocol.NewPeer(conn)
	defer c.peer.Close()
	c.reapChildren()

	cwd := workingDir()
	ttyname := ttyName(c.stdinFD)

	if c.cfg.Flags&FlagControlControl != 0 {
		saved, err := enterControlMode(c.stdinFD)
		if err != nil {
			c.fatalf("tcgetattr failed: %v", err)
			return 1
		}
		c.savedTermios = saved
	}

	if err := unix.SetNonblock(c.stdinFD, true); err != nil {
		c.fatalf("failed to set stdin non-blocking: %v", err)
		return 1
	}
	go c.stdinWatcher()

	if err := c.sendStartup(ttyname, cwd); err != nil {
		fmt.Fprintf(c.stderr, "%v\n", err)
		unix.SetNonblock(c.stdinFD, false)
		return 1
	}

	c.loop()
	return c.finalize()
}

// sendStartup pushes the identity sequence followed by the initial COMMAND or
// SHELL frame, with no intervening reads.
func (c *Client) sendStartup(ttyname, cwd string) error {
	if err := c.sendIdentify(ttyname, cwd); err != nil {
		return fmt.Errorf("failed to send identify: %w", err)
	}

	if c.cfg.ShellCommand != "" {
		if err := c.peer.Send(protocol.MsgShell, nil); err != nil {
			return errors.New("failed to send command")
		}
		return nil
	}

	slog.Debug(fmt.Sprintf("sending command: %s", shellquote.Join(c.cfg.Args...)))
	payload, err := packCommand(c.cfg.Args)
	if err != nil {
		return err
	}
	if err := c.peer.Send(protocol.MsgCommand, payload); err != nil {
		return errors.New("failed to send command")
	}
	return nil
}

// loop is the single-threaded reactor: it multiplexes inbound frames, signal
// delivery and stdin readability until an exit cause fires.
func (c *Client) loop() {
	for !c.exiting {
		select {
		case sig := <-c.sigCh:
			c.handleSignal(sig)
		case m, ok := <-c.peer.In():
			if !ok {
				c.dispatch(nil)
				continue
			}
			c.dispatch(m)
		case <-c.stdinReady:
			if c.stdinOn {
				c.stdinCallback()
			}
		}
	}
}

// exit requests loop termination. Outbound frames already sent are on the
// wire; EXITING is always the last one.
func (c *Client) exit() {
	c.exiting = true
}

// setExitReason records the first exit cause; later causes only update the
// exit value.
func (c *Client) setExitReason(reason ExitReason, value int) {
	if c.exitReason == ExitNone {
		c.exitReason = reason
	}
	c.exitValue = value
}

func workingDir() string {
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "/"
}

func isConnRefused(err error) bool {
	var errno syscall.Errno
	return errors.As(err, &errno) && errno == syscall.ECONNREFUSED
}
