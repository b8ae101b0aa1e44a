// Package protocol implements the framed message transport spoken between the
// tmux client and server over a local stream socket. Each frame is a typed
// record with a length-prefixed payload and an optional file descriptor passed
// alongside via SCM_RIGHTS. Integers on the wire are native-endian; the
// transport is local-only.
package protocol

// Version is the protocol version. The sender encodes it in the low byte of
// every frame's peer-id header field so the receiver can detect mismatches.
const Version = 8

// MsgType tags a frame with its meaning.
type MsgType uint32

// MsgVersion is sent by the server when the peer's protocol version does not
// match its own.
const MsgVersion MsgType = 12

// Identity frames, sent by the client immediately after connecting, in a
// fixed order ending with MsgIdentifyDone.
const (
	MsgIdentifyFlags MsgType = iota + 100
	MsgIdentifyTerm
	MsgIdentifyTtyname
	msgIdentifyOldCwd // no longer sent
	MsgIdentifyStdin
	MsgIdentifyEnviron
	MsgIdentifyDone
	MsgIdentifyClientPid
	MsgIdentifyCwd
)

// Session frames, exchanged after identity.
const (
	MsgCommand MsgType = iota + 200
	MsgDetach
	MsgDetachKill
	MsgExit
	MsgExited
	MsgExiting
	MsgLock
	MsgReady
	MsgResize
	MsgShell
	MsgShutdown
	MsgStderr
	MsgStdin
	MsgStdout
	MsgSuspend
	MsgUnlock
	MsgWakeup
	MsgExec
)

const (
	// HeaderSize is the fixed size of the frame header: type, length and
	// peer id, each 32 bits.
	HeaderSize = 12

	// MaxMessageSize bounds a whole frame including its header.
	MaxMessageSize = 16384

	// MaxPayload is the largest payload a single frame can carry.
	MaxPayload = MaxMessageSize - HeaderSize
)

var msgNames = map[MsgType]string{
	MsgVersion:           "VERSION",
	MsgIdentifyFlags:     "IDENTIFY_FLAGS",
	MsgIdentifyTerm:      "IDENTIFY_TERM",
	MsgIdentifyTtyname:   "IDENTIFY_TTYNAME",
	MsgIdentifyStdin:     "IDENTIFY_STDIN",
	MsgIdentifyEnviron:   "IDENTIFY_ENVIRON",
	MsgIdentifyDone:      "IDENTIFY_DONE",
	MsgIdentifyClientPid: "IDENTIFY_CLIENTPID",
	MsgIdentifyCwd:       "IDENTIFY_CWD",
	MsgCommand:           "COMMAND",
	MsgDetach:            "DETACH",
	MsgDetachKill:        "DETACHKILL",
	MsgExit:              "EXIT",
	MsgExited:            "EXITED",
	MsgExiting:           "EXITING",
	MsgLock:              "LOCK",
	MsgReady:             "READY",
	MsgResize:            "RESIZE",
	MsgShell:             "SHELL",
	MsgShutdown:          "SHUTDOWN",
	MsgStderr:            "STDERR",
	MsgStdin:             "STDIN",
	MsgStdout:            "STDOUT",
	MsgSuspend:           "SUSPEND",
	MsgUnlock:            "UNLOCK",
	MsgWakeup:            "WAKEUP",
	MsgExec:              "EXEC",
}

func (t MsgType) String() string {
	if name, ok := msgNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}
