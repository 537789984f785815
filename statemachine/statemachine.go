// Package statemachine implements a hierarchical finite state machine used
// for call-control logic. States form a tree; switching states runs the
// exit handlers up to the common ancestor and the entry handlers down to
// the target, so shared setup lives in shared ancestor states.
package statemachine

import (
	"time"

	"github.com/dj1an/svxlink/async"
)

// State is one state in the hierarchy. States are typically stateless
// singletons; the machine passes the shared context to every handler.
type State[C any] interface {
	Name() string
	// Parent returns the enclosing state, nil for the top state.
	Parent() State[C]
	Entry(ctx *C)
	Exit(ctx *C)
}

// TimeoutHandler is implemented by states that react to the machine
// timeout.
type TimeoutHandler[C any] interface {
	Timeout(ctx *C)
}

// Base provides no-op Entry and Exit handlers for embedding.
type Base[C any] struct{}

// Entry implements State.
func (Base[C]) Entry(*C) {}

// Exit implements State.
func (Base[C]) Exit(*C) {}

// Machine drives a state hierarchy over a shared context.
type Machine[C any] struct {
	ctx   *C
	state State[C]
	loop  *async.Loop
	timer *async.Timer
}

// Option provides a way to set functional parameters to the machine.
type Option[C any] func(*Machine[C])

// WithLoop attaches the cooperative loop used for state timeouts.
func WithLoop[C any](l *async.Loop) Option[C] {
	return func(m *Machine[C]) {
		m.loop = l
	}
}

// New creates a machine over the given context. The machine is idle until
// Start is called.
func New[C any](ctx *C, options ...Option[C]) *Machine[C] {
	m := &Machine[C]{ctx: ctx}
	for _, option := range options {
		option(m)
	}
	return m
}

// Start enters the initial state, running the entry handlers from the top
// of the hierarchy down.
func (m *Machine[C]) Start(initial State[C]) {
	for _, s := range pathOf(initial) {
		s.Entry(m.ctx)
	}
	m.state = initial
}

// Ctx returns the shared context.
func (m *Machine[C]) Ctx() *C {
	return m.ctx
}

// State returns the current state.
func (m *Machine[C]) State() State[C] {
	return m.state
}

// SetState switches to the given state. Exit handlers run from the current
// state up to, excluding, the common ancestor; entry handlers run from
// below the common ancestor down to the target. Switching to the current
// state is ignored.
func (m *Machine[C]) SetState(next State[C]) {
	if m.state == next {
		return
	}
	from := pathOf(m.state)
	to := pathOf(next)

	// Longest shared prefix is the common ancestor chain.
	shared := 0
	for shared < len(from) && shared < len(to) && from[shared] == to[shared] {
		shared++
	}
	for i := len(from) - 1; i >= shared; i-- {
		from[i].Exit(m.ctx)
	}
	m.state = next
	for i := shared; i < len(to); i++ {
		to[i].Entry(m.ctx)
	}
}

// SetTimeout arms the machine timeout. When it expires the current state's
// Timeout handler is invoked on the loop. A previously armed timeout is
// replaced.
func (m *Machine[C]) SetTimeout(d time.Duration) {
	if m.loop == nil {
		panic("statemachine: no loop attached")
	}
	m.ClearTimeout()
	m.timer = m.loop.After(d, func() {
		m.timer = nil
		if h, ok := m.state.(TimeoutHandler[C]); ok {
			h.Timeout(m.ctx)
		}
	})
}

// ClearTimeout disarms a pending timeout.
func (m *Machine[C]) ClearTimeout() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// pathOf returns the chain of states from the top of the hierarchy down to
// s.
func pathOf[C any](s State[C]) []State[C] {
	var path []State[C]
	for ; s != nil; s = s.Parent() {
		path = append(path, s)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
