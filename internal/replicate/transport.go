package replicate

import "sync"

// Pipe links two in-process transports: whatever one end sends arrives
// synchronously at the other end's handler. Used by same-process replicas
// and tests.
func Pipe() (Transport, Transport) {
	a := &pipeEnd{}
	b := &pipeEnd{}
	a.peer = b
	b.peer = a
	return a, b
}

type pipeEnd struct {
	mu      sync.Mutex
	handler func(Snapshot)
	peer    *pipeEnd
}

func (p *pipeEnd) OnSnapshot(fn func(Snapshot)) {
	p.mu.Lock()
	p.handler = fn
	p.mu.Unlock()
}

func (p *pipeEnd) Send(snap Snapshot) error {
	p.peer.mu.Lock()
	fn := p.peer.handler
	p.peer.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
	return nil
}
