package client

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// ttyName resolves the terminal device name for the descriptor, or "" when
// it is not a terminal.
func ttyName(fd int) string {
	if !term.IsTerminal(fd) {
		return ""
	}
	name, err := os.Readlink(fmt.Sprintf("/proc/self/fd/%d", fd))
	if err != nil {
		return ""
	}
	return name
}

// enterControlMode saves the current terminal attributes and switches the
// descriptor to the raw mode control clients require: CR/NL mapping on input,
// post-processing on output, one-byte reads, baud carried over from the saved
// state. The returned termios is restored by the exit finalizer.
func enterControlMode(fd int) (*unix.Termios, error) {
	saved, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}

	tio := *saved
	tio.Iflag = unix.ICRNL | unix.IXANY
	tio.Oflag = unix.OPOST | unix.ONLCR
	tio.Lflag = 0
	tio.Cflag = unix.CREAD | unix.CS8 | unix.HUPCL
	tio.Cc[unix.VMIN] = 1
	tio.Cc[unix.VTIME] = 0
	tio.Cflag |= saved.Cflag & (unix.CBAUD | unix.CIBAUD)
	tio.Ispeed = saved.Ispeed
	tio.Ospeed = saved.Ospeed

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &tio); err != nil {
		return nil, err
	}
	return saved, nil
}

// restoreTermios reapplies saved attributes, flushing pending output first.
func restoreTermios(fd int, tio *unix.Termios) {
	unix.IoctlSetTermios(fd, unix.TCSETSF, tio)
}
