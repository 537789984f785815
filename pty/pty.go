// Package pty wraps a pseudo terminal pair for control interfaces that
// external programs talk to through the slave device. Received data is
// delivered on the cooperative loop, so all pipeline code stays on one
// thread.
package pty

import (
	"errors"
	"os"
	"sync"

	"github.com/creack/pty"

	"github.com/dj1an/svxlink/async"
)

// ErrNotOpen is returned when writing to a closed pty.
var ErrNotOpen = errors.New("pty not open")

// Pty wraps the master end of a pseudo terminal.
type Pty struct {
	loop   *async.Loop
	onData func([]byte)

	mu     sync.Mutex
	master *os.File
	slave  *os.File
	done   chan struct{}
}

// Option provides a way to set functional parameters to the pty.
type Option func(*Pty)

// OnData registers the callback invoked on the loop with data received
// from the slave side.
func OnData(fn func(data []byte)) Option {
	return func(p *Pty) {
		p.onData = fn
	}
}

// New creates a pty wrapper. It is closed until Open is called.
func New(loop *async.Loop, options ...Option) *Pty {
	p := &Pty{loop: loop}
	for _, option := range options {
		option(p)
	}
	return p
}

// Open opens the pty pair and starts receiving. An already open pty is
// closed first.
func (p *Pty) Open() error {
	p.Close()
	master, slave, err := pty.Open()
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.master = master
	p.slave = slave
	p.done = make(chan struct{})
	p.mu.Unlock()

	go p.readLoop(master, p.done)
	return nil
}

// Close closes the pty pair. Safe to call on a closed pty.
func (p *Pty) Close() {
	p.mu.Lock()
	master, slave, done := p.master, p.slave, p.done
	p.master, p.slave, p.done = nil, nil, nil
	p.mu.Unlock()
	if master == nil {
		return
	}
	master.Close()
	slave.Close()
	<-done
}

// Reopen closes and opens the pty again. External programs have to reopen
// the slave device afterwards.
func (p *Pty) Reopen() error {
	return p.Open()
}

// SlaveName returns the file system path of the slave device, empty when
// closed.
func (p *Pty) SlaveName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.slave == nil {
		return ""
	}
	return p.slave.Name()
}

// Write sends data to the slave side.
func (p *Pty) Write(data []byte) (int, error) {
	p.mu.Lock()
	master := p.master
	p.mu.Unlock()
	if master == nil {
		return 0, ErrNotOpen
	}
	return master.Write(data)
}

// readLoop pumps the master end and hands received data over to the loop.
// It exits once the master is closed.
func (p *Pty) readLoop(master *os.File, done chan struct{}) {
	defer close(done)
	buf := make([]byte, 4096)
	for {
		n, err := master.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			p.loop.Defer(func() {
				if p.onData != nil {
					p.onData(data)
				}
			})
		}
		if err != nil {
			return
		}
	}
}
