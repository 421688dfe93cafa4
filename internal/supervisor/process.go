// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package supervisor

import (
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// killGracePeriod bounds how long a turnProcess waits for the child to exit
// after a terminate signal before escalating to a forced kill.
const killGracePeriod = 5 * time.Second

// turnProcess wraps the one subprocess spawned for a single SendMessage
// call: stdout/stderr pipes (stdin only when a payload will be written),
// cmd.Start, a background stderr monitor goroutine, and a close sequence
// that signals termination first and only force-kills after a grace period.
type turnProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser // nil unless spawned with wantStdin
	stdout io.ReadCloser

	waitOnce sync.Once
	waitDone chan struct{}
	waitErr  error

	mu       sync.Mutex
	closed   bool
	sawFatal bool
}

// spawnTurnProcess starts the external CLI. wantStdin selects whether a
// stdin pipe is opened: false leaves cmd.Stdin nil, so the child's stdin is
// the null device and no pipe is ever opened on it.
func spawnTurnProcess(program string, args []string, env []string, dir string, wantStdin bool, logger *zap.Logger, onFatalStderr func(string)) (*turnProcess, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cmd := exec.Command(program, args...)
	cmd.Dir = dir
	cmd.Env = env

	var stdin io.WriteCloser
	if wantStdin {
		var err error
		stdin, err = cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("create stdin pipe: %w", err)
		}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		closeIfOpen(stdin)
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		closeIfOpen(stdin)
		stdout.Close()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		closeIfOpen(stdin)
		stdout.Close()
		stderr.Close()
		return nil, err
	}

	tp := &turnProcess{cmd: cmd, stdin: stdin, stdout: stdout, waitDone: make(chan struct{})}
	go tp.monitorStderr(stderr, logger, onFatalStderr)
	return tp, nil
}

// monitorStderr classifies stderr: the first chunk containing "ENOENT" is
// fatal and surfaced; everything else (the child's own verbose debug output)
// is discarded.
func (tp *turnProcess) monitorStderr(stderr io.ReadCloser, logger *zap.Logger, onFatalStderr func(string)) {
	buf := make([]byte, 4096)
	for {
		n, err := stderr.Read(buf)
		if n > 0 {
			chunk := string(buf[:n])
			if strings.Contains(chunk, "ENOENT") {
				tp.mu.Lock()
				first := !tp.sawFatal
				tp.sawFatal = true
				tp.mu.Unlock()
				if first && onFatalStderr != nil {
					onFatalStderr(chunk)
				}
			}
		}
		if err != nil {
			if err != io.EOF {
				logger.Debug("stderr read error", zap.Error(err))
			}
			return
		}
	}
}

// writeStdinLine writes payload followed by a newline, then closes stdin.
// Used only for the image-attachment input path, which spawns with
// wantStdin.
func (tp *turnProcess) writeStdinLine(payload []byte) error {
	if _, err := tp.stdin.Write(payload); err != nil {
		return fmt.Errorf("write stdin: %w", err)
	}
	if _, err := tp.stdin.Write([]byte("\n")); err != nil {
		return fmt.Errorf("write stdin newline: %w", err)
	}
	return tp.stdin.Close()
}

// closeStdin closes an opened stdin pipe without writing, so the child sees
// EOF instead of hanging. Only reached when a pipe was opened for a payload
// that then failed to encode; a turn spawned without wantStdin has no pipe
// and this is a no-op.
func (tp *turnProcess) closeStdin() error {
	if tp.stdin == nil {
		return nil
	}
	return tp.stdin.Close()
}

func closeIfOpen(c io.Closer) {
	if c != nil {
		c.Close()
	}
}

// startWait runs cmd.Wait exactly once in the background, regardless of how
// many of kill/wait observe its completion; exec.Cmd panics if Wait is
// invoked twice.
func (tp *turnProcess) startWait() {
	tp.waitOnce.Do(func() {
		go func() {
			tp.waitErr = tp.cmd.Wait()
			close(tp.waitDone)
		}()
	})
}

// kill requests termination: send the child a terminate signal, then
// escalate to a forced kill in the background if it has not exited within
// killGracePeriod. Never blocks on the child; safe to call multiple times.
func (tp *turnProcess) kill() {
	tp.mu.Lock()
	if tp.closed {
		tp.mu.Unlock()
		return
	}
	tp.closed = true
	tp.mu.Unlock()

	closeIfOpen(tp.stdin)
	if tp.cmd.Process != nil {
		tp.cmd.Process.Signal(syscall.SIGTERM)
	}
	tp.startWait()

	go func() {
		select {
		case <-tp.waitDone:
		case <-time.After(killGracePeriod):
			if tp.cmd.Process != nil {
				tp.cmd.Process.Kill()
			}
		}
	}()
}

// wasKilled reports whether kill was requested for this process.
func (tp *turnProcess) wasKilled() bool {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return tp.closed
}

// wait blocks until the child exits, reaping it. Safe to call concurrently
// with kill.
func (tp *turnProcess) wait() {
	tp.startWait()
	<-tp.waitDone
}
