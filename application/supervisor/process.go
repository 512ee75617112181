package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// Handle is one started bridge process
type Handle interface {
	PID() int
	// Wait blocks until the process exits
	Wait() error
	// Stop asks the process to exit and kills it after grace
	Stop(grace time.Duration) error
	// Logs - recent combined output
	Logs() string
}

// Spawner starts bridge processes
type Spawner interface {
	Spawn(spec Spec) (Handle, error)
}

// ExecSpawner re-executes a binary with the bridge subcommand
type ExecSpawner struct {
	Binary string
	// Env is appended to the supervisor's environment
	Env []string
}

// NewExecSpawner - spawner for the running executable
func NewExecSpawner() (*ExecSpawner, error) {
	bin, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate executable: %w", err)
	}
	return &ExecSpawner{Binary: bin}, nil
}

func (s *ExecSpawner) Spawn(spec Spec) (Handle, error) {
	cmd := exec.Command(s.Binary, "bridge",
		"--platform", string(spec.Platform),
		"--port", strconv.Itoa(spec.Port),
	)
	cmd.Env = append(os.Environ(), s.Env...)

	logs := newRingBuffer(64 * 1024)
	cmd.Stdout = logs
	cmd.Stderr = logs

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s bridge: %w", spec.Platform, err)
	}
	p := &execHandle{cmd: cmd, logs: logs, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

type execHandle struct {
	cmd  *exec.Cmd
	logs *ringBuffer
	done chan struct{}
	err  error
}

func (p *execHandle) PID() int {
	return p.cmd.Process.Pid
}

func (p *execHandle) Wait() error {
	<-p.done
	return p.err
}

func (p *execHandle) Stop(grace time.Duration) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	if err := p.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return p.kill()
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-timer.C:
		return p.kill()
	}
}

func (p *execHandle) kill() error {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill pid %d: %w", p.PID(), err)
	}
	<-p.done
	return nil
}

func (p *execHandle) Logs() string {
	return p.logs.String()
}

// ringBuffer keeps the tail of a process's output
type ringBuffer struct {
	mu   sync.Mutex
	data []byte
	max  int
}

func newRingBuffer(max int) *ringBuffer {
	return &ringBuffer{max: max, data: make([]byte, 0, max)}
}

func (rb *ringBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.data = append(rb.data, p...)
	if len(rb.data) > rb.max {
		rb.data = rb.data[len(rb.data)-rb.max:]
	}
	return len(p), nil
}

func (rb *ringBuffer) String() string {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return string(rb.data)
}
