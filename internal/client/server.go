package client

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"time"
)

// serverProgramEnv overrides the server binary the client launches.
const serverProgramEnv = "TMUX_SERVER_PROGRAM"

// SpawnServer returns a StartServerFunc that launches the server process in
// the background for the given socket path and connects once it is
// listening. The lock file is inherited by the server (which releases it
// after binding the socket); the client's copy is closed as soon as the server
// process has started.
func SpawnServer(socketPath string) StartServerFunc {
	return func(lockFile *os.File, lockPath string) (*net.UnixConn, error) {
		program := os.Getenv(serverProgramEnv)
		if program == "" {
			program = "tmux-server"
		}

		cmd := exec.Command(program, "-S", socketPath)
		cmd.Env = os.Environ()
		if lockFile != nil {
			// The server inherits the held lock on fd 3 and drops it once
			// the socket exists, keeping other starting clients parked
			// until then.
			cmd.ExtraFiles = []*os.File{lockFile}
			cmd.Env = append(cmd.Env, "TMUX_LOCK_FD=3", "TMUX_LOCK_PATH="+lockPath)
		}

		if err := cmd.Start(); err != nil {
			if lockFile != nil {
				lockFile.Close()
			}
			return nil, fmt.Errorf("could not fork server process: %w", err)
		}
		slog.Debug(fmt.Sprintf("server process launched with pid %d", cmd.Process.Pid))
		cmd.Process.Release()
		if lockFile != nil {
			lockFile.Close()
		}

		return waitForServer(socketPath)
	}
}

// waitForServer polls the socket until the freshly started server accepts.
func waitForServer(socketPath string) (*net.UnixConn, error) {
	addr := &net.UnixAddr{Name: socketPath, Net: "unix"}
	var lastErr error
	for i := 0; i < 50; i++ {
		conn, err := net.DialUnix("unix", nil, addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		time.Sleep(100 * time.Millisecond)
	}
	return nil, fmt.Errorf("server was launched but socket did not accept in time: %w", lastErr)
}
