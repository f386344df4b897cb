package replicate

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Big-debs/jigsawverse-sub000/internal/puzzle"
)

// Transport moves snapshots between peers. Send publishes the local state;
// OnSnapshot registers the handler for inbound peer state.
type Transport interface {
	Send(Snapshot) error
	OnSnapshot(func(Snapshot))
}

// Replicator owns one replica of a game. Commands run through the engine
// against the replica, and every accepted command publishes the resulting
// snapshot. Inbound snapshots replace the replica wholesale unless they are
// stale or invalid. Because placements carry their correctness verdict and
// snapshots carry complete state, both peers converge no matter which side
// adjudicated.
type Replicator struct {
	mu        sync.Mutex
	engine    *puzzle.Engine
	state     puzzle.State
	transport Transport
	logger    zerolog.Logger
	clock     func() time.Time

	subMu   sync.Mutex
	subs    map[int]func(puzzle.State)
	nextSub int
}

type Option func(*Replicator)

// WithTransport wires the replicator to a peer.
func WithTransport(t Transport) Option {
	return func(r *Replicator) { r.transport = t }
}

// WithLogger sets a custom logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Replicator) { r.logger = logger }
}

// WithClock overrides the snapshot timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Replicator) { r.clock = now }
}

// New creates a replicator seeded with an initial state. If a transport is
// configured its inbound snapshots start applying immediately.
func New(engine *puzzle.Engine, initial puzzle.State, opts ...Option) *Replicator {
	r := &Replicator{
		engine: engine,
		state:  initial.Clone(),
		logger: zerolog.Nop(),
		clock:  time.Now,
		subs:   make(map[int]func(puzzle.State)),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.transport != nil {
		r.transport.OnSnapshot(func(snap Snapshot) {
			r.Apply(snap)
		})
	}
	return r
}

// State returns a copy of the current replica.
func (r *Replicator) State() puzzle.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

// Export renders the current replica as a snapshot.
func (r *Replicator) Export() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exportLocked()
}

func (r *Replicator) exportLocked() Snapshot {
	snap := Export(r.engine.Catalog(), r.state)
	snap.EmittedAt = r.clock().UTC().Format(time.RFC3339)
	return snap
}

// Place runs a placement against the replica and publishes the result.
func (r *Replicator) Place(player puzzle.Seat, pieceID, gridIndex int) (puzzle.PlaceOutcome, error) {
	r.mu.Lock()
	ns, out, err := r.engine.Place(r.state, player, pieceID, gridIndex)
	if err != nil {
		r.mu.Unlock()
		return puzzle.PlaceOutcome{}, err
	}
	r.state = ns
	snap := r.exportLocked()
	r.mu.Unlock()

	r.publish(snap, ns)
	return out, nil
}

// Decide adjudicates the pending placement and publishes the result.
func (r *Replicator) Decide(decider puzzle.Seat, decision puzzle.Decision) (puzzle.DecideOutcome, error) {
	r.mu.Lock()
	ns, out, err := r.engine.Decide(r.state, decider, decision)
	if err != nil {
		r.mu.Unlock()
		return puzzle.DecideOutcome{}, err
	}
	r.state = ns
	snap := r.exportLocked()
	r.mu.Unlock()

	r.publish(snap, ns)
	return out, nil
}

// UseHint charges a hint against the replica and publishes the new scores.
// The hint payload itself stays local; only the charge replicates.
func (r *Replicator) UseHint(player puzzle.Seat, kind puzzle.HintKind) (puzzle.Hint, error) {
	r.mu.Lock()
	ns, hint, err := r.engine.UseHint(r.state, player, kind)
	if err != nil {
		r.mu.Unlock()
		return puzzle.Hint{}, err
	}
	r.state = ns
	snap := r.exportLocked()
	r.mu.Unlock()

	r.publish(snap, ns)
	return hint, nil
}

// Tick advances the game clock. Publishing is skipped when nothing changed
// so idle and untimed games stay quiet on the wire.
func (r *Replicator) Tick(seconds int) int {
	r.mu.Lock()
	ns := r.engine.Tick(r.state, seconds)
	left := ns.TimerLeft
	if left == r.state.TimerLeft {
		r.mu.Unlock()
		return left
	}
	r.state = ns
	snap := r.exportLocked()
	r.mu.Unlock()

	r.publish(snap, ns)
	return left
}

// Terminate force-completes the game and publishes the terminal state.
func (r *Replicator) Terminate(reason puzzle.TerminateReason) error {
	r.mu.Lock()
	ns, err := r.engine.Terminate(r.state, reason)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	r.state = ns
	snap := r.exportLocked()
	r.mu.Unlock()

	r.publish(snap, ns)
	return nil
}

func (r *Replicator) publish(snap Snapshot, s puzzle.State) {
	if r.transport != nil {
		if err := r.transport.Send(snap); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to publish snapshot")
		}
	}
	r.notify(s)
}

// Apply ingests a peer snapshot. Snapshots that would rewind the move
// history are ignored; equal-length snapshots are accepted because hint and
// timer changes replicate without appending a move. The return reports
// whether the replica changed.
func (r *Replicator) Apply(snap Snapshot) (bool, error) {
	r.mu.Lock()
	if len(snap.MoveHistory) < len(r.state.History) {
		local := len(r.state.History)
		r.mu.Unlock()
		r.logger.Debug().
			Int("incoming", len(snap.MoveHistory)).
			Int("local", local).
			Msg("Ignoring stale snapshot")
		return false, nil
	}
	s, dropped, err := Import(r.engine.Catalog(), snap)
	if err != nil {
		r.mu.Unlock()
		event := r.logger.Warn().Err(err)
		var v *puzzle.InvariantViolation
		if errors.As(err, &v) {
			event = event.Str("invariant", v.Invariant)
		}
		event.Msg("Rejected peer snapshot")
		return false, err
	}
	if len(dropped) > 0 {
		r.logger.Warn().Ints("pieceIds", dropped).Msg("Dropped unknown pieces from peer snapshot")
	}
	r.state = s
	r.mu.Unlock()
	r.notify(s)
	return true, nil
}

// Subscribe registers a callback for every replica change, local or remote.
// The returned function cancels the subscription.
func (r *Replicator) Subscribe(fn func(puzzle.State)) func() {
	r.subMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.subMu.Unlock()
	return func() {
		r.subMu.Lock()
		delete(r.subs, id)
		r.subMu.Unlock()
	}
}

func (r *Replicator) notify(s puzzle.State) {
	r.subMu.Lock()
	fns := make([]func(puzzle.State), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.subMu.Unlock()
	for _, fn := range fns {
		fn(s.Clone())
	}
}
