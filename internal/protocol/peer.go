package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// ErrFDPassingDropped is returned by SendFD after DropFDPassing has been
// called.
var ErrFDPassingDropped = errors.New("fd passing capability dropped")

// Message is a single decoded inbound frame. FD is non-nil only when the peer
// passed a descriptor alongside the frame; the receiver owns it. PeerVersion
// is the protocol version from the low byte of the frame's peer id.
type Message struct {
	Type        MsgType
	Payload     []byte
	FD          *os.File
	PeerVersion int
}

// Peer is one end of a framed connection. Frames are enqueued atomically:
// a (type, payload, optional fd) triple sent together arrives together.
//
// Send and SendFD must be called from a single goroutine. Inbound frames are
// decoded by an internal reader goroutine and delivered on In; the channel is
// closed when the connection is lost, which a dispatcher observes as a nil
// message.
type Peer struct {
	conn      *net.UnixConn
	in        chan *Message
	noSendFDs atomic.Bool
}

// NewPeer wraps an established connection and starts decoding inbound frames.
func NewPeer(conn *net.UnixConn) *Peer {
	p := &Peer{
		conn: conn,
		in:   make(chan *Message, 32),
	}
	go p.readLoop()
	return p
}

// In returns the inbound frame channel. It is closed on connection loss.
func (p *Peer) In() <-chan *Message {
	return p.in
}

// Close tears down the connection. The reader goroutine then closes In.
func (p *Peer) Close() error {
	return p.conn.Close()
}

// Send writes one frame with no file descriptor attached.
func (p *Peer) Send(t MsgType, payload []byte) error {
	return p.send(t, nil, payload)
}

// SendFD writes one frame with a duplicated descriptor passed alongside the
// payload. The file is closed after a successful send; the peer's copy is the
// surviving one.
func (p *Peer) SendFD(t MsgType, fd *os.File, payload []byte) error {
	if p.noSendFDs.Load() {
		return ErrFDPassingDropped
	}
	if err := p.send(t, fd, payload); err != nil {
		return err
	}
	return fd.Close()
}

// DropFDPassing renders any further SendFD call impossible. The client calls
// this once all identity descriptors have been transmitted, narrowing what a
// compromised process could leak to the server.
func (p *Peer) DropFDPassing() {
	p.noSendFDs.Store(true)
}

func (p *Peer) send(t MsgType, fd *os.File, payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("frame payload too big: %d bytes", len(payload))
	}

	buf := make([]byte, HeaderSize+len(payload))
	binary.NativeEndian.PutUint32(buf[0:4], uint32(t))
	binary.NativeEndian.PutUint32(buf[4:8], uint32(len(buf)))
	binary.NativeEndian.PutUint32(buf[8:12], uint32(Version))
	copy(buf[HeaderSize:], payload)

	var oob []byte
	if fd != nil {
		oob = unix.UnixRights(int(fd.Fd()))
	}

	n, _, err := p.conn.WriteMsgUnix(buf, oob, nil)
	if err != nil {
		return fmt.Errorf("failed to send %s frame: %w", t, err)
	}
	if n != len(buf) {
		return fmt.Errorf("short write sending %s frame: %d of %d bytes", t, n, len(buf))
	}
	return nil
}

func (p *Peer) readLoop() {
	defer close(p.in)

	var (
		pending []byte
		fds     []int
	)
	buf := make([]byte, MaxMessageSize)
	oob := make([]byte, unix.CmsgSpace(4*4))

	for {
		n, oobn, _, _, err := p.conn.ReadMsgUnix(buf, oob)
		if err != nil || n == 0 {
			for _, fd := range fds {
				unix.Close(fd)
			}
			return
		}
		if oobn > 0 {
			fds = append(fds, parseRights(oob[:oobn])...)
		}
		pending = append(pending, buf[:n]...)

		for len(pending) >= HeaderSize {
			length := int(binary.NativeEndian.Uint32(pending[4:8]))
			if length < HeaderSize || length > MaxMessageSize {
				slog.Debug(fmt.Sprintf("peer sent frame with bad length %d", length))
				p.conn.Close()
				return
			}
			if len(pending) < length {
				break
			}

			m := &Message{
				Type:        MsgType(binary.NativeEndian.Uint32(pending[0:4])),
				Payload:     append([]byte(nil), pending[HeaderSize:length]...),
				PeerVersion: int(binary.NativeEndian.Uint32(pending[8:12]) & 0xff),
			}
			if len(fds) > 0 {
				m.FD = os.NewFile(uintptr(fds[0]), "peer-fd")
				fds = fds[1:]
			}
			pending = pending[length:]
			p.in <- m
		}
	}
}

// parseRights extracts passed descriptors from socket control messages.
func parseRights(oob []byte) []int {
	scms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil
	}
	var fds []int
	for _, scm := range scms {
		got, err := unix.ParseUnixRights(&scm)
		if err != nil {
			continue
		}
		fds = append(fds, got...)
	}
	return fds
}
