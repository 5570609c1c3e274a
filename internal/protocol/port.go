package protocol

import (
	"context"
	"log/slog"
	"sync"
)

// Handler receives messages delivered by a Port.
type Handler func(Message)

// Port is an ordered, fire-and-forget, at-most-once channel to one handler.
// Post never blocks and never fails. Messages are delivered by a single
// goroutine in the order they were posted.
//
// A handler must not call Flush on the port that is delivering to it.
type Port struct {
	name    string
	handler Handler
	logger  *slog.Logger

	mu        sync.Mutex
	queue     []Message
	posted    uint64
	delivered uint64
	closed    bool
	progress  chan struct{} // closed and replaced after every delivery

	wake chan struct{}
	done chan struct{}
}

// NewPort starts a port that delivers to h.
func NewPort(name string, h Handler, logger *slog.Logger) *Port {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Port{
		name:     name,
		handler:  h,
		logger:   logger,
		progress: make(chan struct{}),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

// Post enqueues m. Posts after Close are dropped.
func (p *Port) Post(m Message) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Debug("port closed, dropping message", "port", p.name, "type", m.Type)
		return
	}
	p.queue = append(p.queue, m)
	p.posted++
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Flush waits until every message posted before the call was delivered.
func (p *Port) Flush(ctx context.Context) error {
	p.mu.Lock()
	target := p.posted
	for p.delivered < target {
		ch := p.progress
		p.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		p.mu.Lock()
	}
	p.mu.Unlock()
	return nil
}

// Close stops accepting posts. Already queued messages are still delivered.
func (p *Port) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Done is closed once the port has stopped after Close.
func (p *Port) Done() <-chan struct{} {
	return p.done
}

func (p *Port) run() {
	defer close(p.done)
	for {
		p.mu.Lock()
		for len(p.queue) == 0 {
			if p.closed {
				p.mu.Unlock()
				return
			}
			p.mu.Unlock()
			<-p.wake
			p.mu.Lock()
		}
		m := p.queue[0]
		p.queue[0] = Message{}
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.dispatch(m)

		p.mu.Lock()
		p.delivered++
		close(p.progress)
		p.progress = make(chan struct{})
		p.mu.Unlock()
	}
}

func (p *Port) dispatch(m Message) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("message handler panicked", "port", p.name, "type", m.Type, "panic", r)
		}
	}()
	p.handler(m)
}
