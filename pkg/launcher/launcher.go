// Package launcher runs the simulation as a child process and exposes its
// standard streams as a transport session.
package launcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/opd-ai/ggw-viewer/pkg/logging"
)

// ErrBinaryNotFound is returned by New when the simulation binary cannot be
// resolved.
var ErrBinaryNotFound = errors.New("launcher: simulation binary not found")

// DefaultStopTimeout is how long Stop waits after SIGTERM before killing.
const DefaultStopTimeout = 2 * time.Second

// Process starts the simulation in stdio mode. Each Dial starts a fresh
// process; the previous one, if still running, is stopped first.
type Process struct {
	path   string
	args   []string
	logger *logging.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	exited chan struct{}
	starts int
}

// New resolves binary and prepares a Process. args are passed unchanged,
// typically []string{"--stdio"}.
func New(binary string, args []string, logger *logging.Logger) (*Process, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBinaryNotFound, binary, err)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Process{
		path:   path,
		args:   append([]string(nil), args...),
		logger: logger.With("component", "launcher", "binary", path),
	}, nil
}

func (p *Process) String() string {
	return "launch:" + p.path
}

// Running reports whether a started process has not yet exited.
func (p *Process) Running() bool {
	p.mu.Lock()
	exited := p.exited
	p.mu.Unlock()
	if exited == nil {
		return false
	}
	select {
	case <-exited:
		return false
	default:
		return true
	}
}

// Dial starts the simulation. Its stdout becomes the session's read side
// and its stdin the write side. Stderr is logged at debug level.
func (p *Process) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Running() {
		p.logger.Info(ctx, "restarting simulation")
		if err := p.Stop(DefaultStopTimeout); err != nil {
			return nil, err
		}
	}

	cmd := exec.Command(p.path, p.args...)
	cmd.WaitDelay = 500 * time.Millisecond

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("starting %s: %w", p.path, err)
	}

	exited := make(chan struct{})
	p.mu.Lock()
	p.cmd = cmd
	p.exited = exited
	p.starts++
	p.mu.Unlock()

	p.logger.Info(ctx, "simulation started", "pid", cmd.Process.Pid)

	go p.logStderr(errR)
	go func() {
		err := cmd.Wait()
		outW.CloseWithError(io.EOF)
		errW.Close()
		p.logger.Info(context.Background(), "simulation exited", "pid", cmd.Process.Pid, "status", exitStatus(err))
		close(exited)
	}()

	return &stdioConn{r: outR, w: stdin}, nil
}

// Stop asks the running process to exit, waits up to timeout and then
// kills it. It returns once the process is gone.
func (p *Process) Stop(timeout time.Duration) error {
	p.mu.Lock()
	cmd, exited := p.cmd, p.exited
	p.mu.Unlock()
	if cmd == nil {
		return nil
	}

	select {
	case <-exited:
		return nil
	default:
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		p.logger.Debug(context.Background(), "SIGTERM failed", "error", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-exited:
		return nil
	case <-timer.C:
	}

	p.logger.Warn(context.Background(), "simulation ignored SIGTERM, killing", "timeout", timeout.String())
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing simulation: %w", err)
	}
	<-exited
	return nil
}

func (p *Process) logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.logger.Debug(context.Background(), "simulation stderr", "line", scanner.Text())
	}
}

func exitStatus(err error) string {
	if err == nil {
		return "exit status 0"
	}
	return err.Error()
}

// stdioConn joins the child's stdout and stdin into one session.
type stdioConn struct {
	r    *io.PipeReader
	w    io.WriteCloser
	once sync.Once
}

func (c *stdioConn) Read(b []byte) (int, error)  { return c.r.Read(b) }
func (c *stdioConn) Write(b []byte) (int, error) { return c.w.Write(b) }

func (c *stdioConn) Close() error {
	var err error
	c.once.Do(func() {
		err = errors.Join(c.r.Close(), c.w.Close())
	})
	return err
}
