package client

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/RiskSense-Ops/tmux/internal/protocol"
)

// sendIdentify transmits the identity handshake: a fixed frame sequence
// conveying flags, terminal metadata, a duplicated stdin descriptor, the
// client pid and the whole environment, terminated by IDENTIFY_DONE. The
// server sends nothing back until the sequence is complete.
func (c *Client) sendIdentify(ttyname, cwd string) error {
	flags := make([]byte, 4)
	binary.NativeEndian.PutUint32(flags, uint32(c.cfg.Flags))
	if err := c.peer.Send(protocol.MsgIdentifyFlags, flags); err != nil {
		return err
	}

	term := os.Getenv("TERM")
	if err := c.peer.Send(protocol.MsgIdentifyTerm, nulTerminated(term)); err != nil {
		return err
	}
	if err := c.peer.Send(protocol.MsgIdentifyTtyname, nulTerminated(ttyname)); err != nil {
		return err
	}
	if err := c.peer.Send(protocol.MsgIdentifyCwd, nulTerminated(cwd)); err != nil {
		return err
	}

	dupFD, err := unix.Dup(c.stdinFD)
	if err != nil {
		return fmt.Errorf("dup failed: %w", err)
	}
	stdin := os.NewFile(uintptr(dupFD), "stdin")
	if err := c.peer.SendFD(protocol.MsgIdentifyStdin, stdin, nil); err != nil {
		return err
	}

	pid := make([]byte, 4)
	binary.NativeEndian.PutUint32(pid, uint32(os.Getpid()))
	if err := c.peer.Send(protocol.MsgIdentifyClientPid, pid); err != nil {
		return err
	}

	for _, entry := range os.Environ() {
		if len(entry)+1 > protocol.MaxPayload {
			continue
		}
		if err := c.peer.Send(protocol.MsgIdentifyEnviron, nulTerminated(entry)); err != nil {
			return err
		}
	}

	return c.peer.Send(protocol.MsgIdentifyDone, nil)
}

// packCommand builds the COMMAND payload: the token count followed by the
// NUL-separated token blob.
func packCommand(args []string) ([]byte, error) {
	var buf bytes.Buffer
	count := make([]byte, 4)
	binary.NativeEndian.PutUint32(count, uint32(len(args)))
	buf.Write(count)
	for _, arg := range args {
		buf.WriteString(arg)
		buf.WriteByte(0)
	}
	if buf.Len() > protocol.MaxPayload {
		return nil, errors.New("command too long")
	}
	return buf.Bytes(), nil
}

func nulTerminated(s string) []byte {
	return append([]byte(s), 0)
}
