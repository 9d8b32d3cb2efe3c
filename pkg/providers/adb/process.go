// Package adb runs `adb logcat` as a supervised child process.
package adb

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
)

// Format is the logcat output format the parser understands.
const Format = "epoch,uid"

// Options selects the adb binary, the device and the logcat buffers.
type Options struct {
	Path    string // defaults to "adb"
	Serial  string
	Buffers []string
	Args    []string // appended after the generated arguments
	Logger  *slog.Logger
}

// Argv returns the full command line for opts.
func (o Options) Argv() []string {
	path := o.Path
	if path == "" {
		path = "adb"
	}
	argv := []string{path}
	if o.Serial != "" {
		argv = append(argv, "-s", o.Serial)
	}
	argv = append(argv, "logcat", "-v", Format)
	for _, b := range o.Buffers {
		argv = append(argv, "-b", b)
	}
	return append(argv, o.Args...)
}

// Process is a running `adb logcat`. It satisfies core.Process.
type Process struct {
	cmd    *exec.Cmd
	stdout *os.File
	reader *bufio.Reader
	logger *slog.Logger

	done    chan struct{} // closed once the child has been reaped
	waitErr error

	killOnce sync.Once
	killErr  error
}

// Start spawns adb in its own process group.
func Start(ctx context.Context, opts Options) (*Process, error) {
	argv := opts.Argv()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return start(ctx, argv[0], argv[1:], logger)
}

func start(ctx context.Context, name string, args []string, logger *slog.Logger) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Real pipes rather than StdoutPipe: Wait must not close the read end
	// while buffered output is still being consumed.
	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	cmd := exec.Command(name, args...)
	cmd.Stdout = outW
	cmd.Stderr = errW
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	err = cmd.Start()
	outW.Close()
	errW.Close()
	if err != nil {
		outR.Close()
		errR.Close()
		return nil, fmt.Errorf("failed to execute %s: %w", name, err)
	}

	p := &Process{
		cmd:    cmd,
		stdout: outR,
		reader: bufio.NewReader(outR),
		logger: logger.With("pid", cmd.Process.Pid),
		done:   make(chan struct{}),
	}

	go func() {
		defer errR.Close()
		scanLines(errR, func(line string) {
			p.logger.Debug("adb stderr", "line", line)
		})
	}()

	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	p.logger.Info("adb started", "args", args)
	return p, nil
}

// ReadLine returns the next stdout line including its newline.
func (p *Process) ReadLine() (string, error) {
	line, err := p.reader.ReadString('\n')
	if errors.Is(err, os.ErrClosed) {
		err = io.EOF
	}
	return line, err
}

// TryWait reports whether the child has been reaped. A non-zero exit status
// still counts as exited and is only logged.
func (p *Process) TryWait() (bool, error) {
	select {
	case <-p.done:
	default:
		return false, nil
	}
	var exitErr *exec.ExitError
	switch {
	case p.waitErr == nil:
		p.logger.Debug("adb exited", "status", 0)
	case errors.As(p.waitErr, &exitErr):
		p.logger.Debug("adb exited", "status", exitErr.ExitCode())
	default:
		return true, fmt.Errorf("wait adb: %w", p.waitErr)
	}
	return true, nil
}

// Kill sends SIGKILL to the process group and waits for the child to be
// reaped. Killing an already reaped child is not an error.
func (p *Process) Kill() error {
	p.killOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}
		pid := p.cmd.Process.Pid
		if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			p.killErr = fmt.Errorf("kill process group %d: %w", pid, err)
			return
		}
		<-p.done
		p.stdout.Close()
	})
	return p.killErr
}

// Pid returns the child's process ID.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done is closed once the child has been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

func scanLines(r io.Reader, fn func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fn(scanner.Text())
	}
}
