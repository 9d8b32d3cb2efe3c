// Package replay feeds a captured `adb logcat -v epoch,uid` file through the
// same ingest path as a live device.
package replay

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// Stdin is the path that selects standard input.
const Stdin = "-"

// Process replays a file. It counts as exited once the file is exhausted.
type Process struct {
	name   string
	r      io.ReadCloser
	reader *bufio.Reader

	mu     sync.Mutex
	eof    bool
	closed bool
}

// Open opens path for replay, or stdin when path is "-".
func Open(path string) (*Process, error) {
	if path == Stdin {
		return New("stdin", io.NopCloser(os.Stdin)), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay %s: %w", path, err)
	}
	return New(path, f), nil
}

// New wraps an arbitrary reader.
func New(name string, r io.ReadCloser) *Process {
	return &Process{name: name, r: r, reader: bufio.NewReader(r)}
}

// ReadLine returns the next line. The underlying reader is closed as soon as
// it is exhausted, since an exited replay is never killed.
func (p *Process) ReadLine() (string, error) {
	line, err := p.reader.ReadString('\n')
	if errors.Is(err, os.ErrClosed) {
		err = io.EOF
	}
	if errors.Is(err, io.EOF) {
		p.mu.Lock()
		p.eof = true
		if cerr := p.closeLocked(); cerr != nil && line == "" {
			err = cerr
		}
		p.mu.Unlock()
	}
	return line, err
}

func (p *Process) TryWait() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.eof || p.closed, nil
}

// Kill closes the underlying reader.
func (p *Process) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *Process) closeLocked() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.r.Close(); err != nil {
		return fmt.Errorf("close %s: %w", p.name, err)
	}
	return nil
}

// Pid is always 0; a replay has no OS process.
func (p *Process) Pid() int { return 0 }

func (p *Process) String() string { return "replay:" + p.name }
