package web

import (
	"context"
	"crypto/rand"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Big-debs/jigsawverse-sub000/internal/persist"
	"github.com/Big-debs/jigsawverse-sub000/internal/puzzle"
	"github.com/Big-debs/jigsawverse-sub000/internal/replicate"
	"github.com/Big-debs/jigsawverse-sub000/internal/slicer"
)

var (
	errUnknownToken  = errors.New("unknown join token")
	errSessionFull   = errors.New("session has no free seat")
	errSessionExists = errors.New("session code already live")
	errBadCode       = errors.New("malformed session code")
)

// GameParams describes the board a session is built around.
type GameParams struct {
	Rows         int
	Cols         int
	Mode         puzzle.ModeID
	ImageRef     string
	TimerSeconds int
	RackCapacity int
}

// Session is one live game: the engine, its replica, the seat assignments
// and the join tokens handed out to players. All mutating game traffic goes
// through the replicator so peers and websocket watchers stay in sync.
type Session struct {
	Code      string
	Rows      int
	Cols      int
	ImageRef  string
	CreatedAt time.Time

	engine *puzzle.Engine
	rep    *replicate.Replicator
	link   *replicate.Link

	mu          sync.RWMutex
	tokens      map[string]puzzle.Seat
	seated      [2]bool
	lastActive  time.Time
	cancelWatch func()
	stop        chan struct{}
	stopOnce    sync.Once
}

// Join claims the next free seat and returns a token the player presents
// with every command. Solo sessions only ever seat player A.
func (sess *Session) Join() (string, puzzle.Seat, error) {
	multi := puzzle.LookupMode(sess.rep.State().Mode).Features.Multiplayer

	sess.mu.Lock()
	defer sess.mu.Unlock()

	var seat puzzle.Seat
	switch {
	case !sess.seated[puzzle.SeatA]:
		seat = puzzle.SeatA
	case multi && !sess.seated[puzzle.SeatB]:
		seat = puzzle.SeatB
	default:
		return "", puzzle.SeatA, errSessionFull
	}

	token := uuid.New().String()
	sess.tokens[token] = seat
	sess.seated[seat] = true
	sess.lastActive = time.Now()
	return token, seat, nil
}

// SeatOf resolves a join token to its seat.
func (sess *Session) SeatOf(token string) (puzzle.Seat, error) {
	sess.mu.RLock()
	defer sess.mu.RUnlock()
	seat, ok := sess.tokens[token]
	if !ok {
		return puzzle.SeatA, errUnknownToken
	}
	return seat, nil
}

// Players returns the number of claimed seats.
func (sess *Session) Players() int {
	sess.mu.RLock()
	defer sess.mu.RUnlock()
	n := 0
	for _, taken := range sess.seated {
		if taken {
			n++
		}
	}
	return n
}

// State returns the current game state.
func (sess *Session) State() puzzle.State {
	return sess.rep.State()
}

// Snapshot returns the current state in wire form.
func (sess *Session) Snapshot() replicate.Snapshot {
	return sess.rep.Export()
}

// Place plays a piece for the seat behind token.
func (sess *Session) Place(token string, pieceID, gridIndex int) (puzzle.PlaceOutcome, error) {
	seat, err := sess.SeatOf(token)
	if err != nil {
		return puzzle.PlaceOutcome{}, err
	}
	return sess.rep.Place(seat, pieceID, gridIndex)
}

// Decide adjudicates the pending placement for the seat behind token.
func (sess *Session) Decide(token string, decision puzzle.Decision) (puzzle.DecideOutcome, error) {
	seat, err := sess.SeatOf(token)
	if err != nil {
		return puzzle.DecideOutcome{}, err
	}
	return sess.rep.Decide(seat, decision)
}

// Hint buys a hint for the seat behind token. The reveal goes only to the
// caller; the point charge replicates like any other state change.
func (sess *Session) Hint(token string, kind puzzle.HintKind) (puzzle.Hint, error) {
	seat, err := sess.SeatOf(token)
	if err != nil {
		return puzzle.Hint{}, err
	}
	return sess.rep.UseHint(seat, kind)
}

// Forfeit ends the game early. Any seated player may concede; the winner is
// still resolved from the scores.
func (sess *Session) Forfeit(token string) error {
	if _, err := sess.SeatOf(token); err != nil {
		return err
	}
	return sess.rep.Terminate(puzzle.ReasonForfeit)
}

// Apply ingests a snapshot received from a peer server.
func (sess *Session) Apply(snap replicate.Snapshot) (bool, error) {
	return sess.rep.Apply(snap)
}

// Subscribe registers fn for every committed state change, delivered in
// wire form. The returned func cancels the subscription.
func (sess *Session) Subscribe(fn func(replicate.Snapshot)) func() {
	return sess.rep.Subscribe(func(st puzzle.State) {
		fn(replicate.Export(sess.engine.Catalog(), st))
	})
}

// LastActive reports when the session last saw a committed change or join.
func (sess *Session) LastActive() time.Time {
	sess.mu.RLock()
	defer sess.mu.RUnlock()
	return sess.lastActive
}

func (sess *Session) touch() {
	sess.mu.Lock()
	sess.lastActive = time.Now()
	sess.mu.Unlock()
}

// Close stops the countdown and the peer link. Idempotent.
func (sess *Session) Close() {
	sess.stopOnce.Do(func() {
		close(sess.stop)
		if sess.cancelWatch != nil {
			sess.cancelWatch()
		}
		if sess.link != nil {
			if err := sess.link.Stop(); err != nil {
				log.Debug().Err(err).Str("code", sess.Code).Msg("Peer link stop")
			}
		}
	})
}

// runTimer drives the countdown one second at a time. Only the session's
// originating server runs this; followers see the clock through snapshots.
func (sess *Session) runTimer() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-sess.stop:
			return
		case <-ticker.C:
			if sess.rep.State().Status != puzzle.StatusActive {
				return
			}
			if left := sess.rep.Tick(1); left <= 0 {
				if err := sess.rep.Terminate(puzzle.ReasonTimeout); err != nil {
					log.Debug().Err(err).Str("code", sess.Code).Msg("Timer expiry raced game end")
				}
				return
			}
		}
	}
}

// Manager holds the live sessions keyed by code, so each code is its own
// isolated game. Sessions autosave on every change and idle ones are
// reaped; a reaped session stays on disk and can be resumed.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	store       persist.Store
	peerBase    string
	idleTimeout time.Duration

	// onChange fans committed snapshots out to the websocket hub. Set it
	// once at startup, before any session exists.
	onChange func(code string, snap replicate.Snapshot)
}

// NewManager builds a session manager. peerBase is the base URL of the peer
// server when replication is on, empty otherwise. A positive idleTimeout
// starts the reaper.
func NewManager(store persist.Store, peerBase string, idleTimeout time.Duration) *Manager {
	m := &Manager{
		sessions:    make(map[string]*Session),
		store:       store,
		peerBase:    peerBase,
		idleTimeout: idleTimeout,
	}
	if idleTimeout > 0 {
		go m.reaperLoop()
	}
	return m
}

// OnChange registers the callback invoked with every committed snapshot of
// every session.
func (m *Manager) OnChange(fn func(code string, snap replicate.Snapshot)) {
	m.onChange = fn
}

// Create starts a new session and returns it with the host's join token.
// The host takes seat A.
func (m *Manager) Create(p GameParams) (*Session, string, error) {
	if p.RackCapacity <= 0 {
		p.RackCapacity = puzzle.DefaultRackCapacity
	}
	sess, err := m.newSession(p)
	if err != nil {
		return nil, "", err
	}
	st, err := sess.engine.Initialize(p.Mode)
	if err != nil {
		return nil, "", err
	}
	st.TimerLeft = p.TimerSeconds

	sess.Code = m.newCode()
	opts := []replicate.Option{replicate.WithLogger(log.With().Str("code", sess.Code).Logger())}
	if m.peerBase != "" {
		sess.link = replicate.NewLink(m.syncURL(sess.Code, p))
		opts = append(opts, replicate.WithTransport(sess.link))
	}
	sess.rep = replicate.New(sess.engine, st, opts...)

	token, _, err := sess.Join()
	if err != nil {
		return nil, "", err
	}

	m.mu.Lock()
	m.sessions[sess.Code] = sess
	m.mu.Unlock()

	m.watch(sess)
	if sess.link != nil {
		// Seed the mirror on every dial. A fresh mirror has no deal until
		// this arrives, and after an outage the peer needs the moves it
		// missed. An ahead peer ignores the stale snapshot.
		sess.link.OnConnect(func() {
			if err := sess.link.Send(sess.rep.Export()); err != nil {
				log.Warn().Err(err).Str("code", sess.Code).Msg("Failed to seed peer after connect")
			}
		})
		if err := sess.link.Start(); err != nil {
			log.Error().Err(err).Str("code", sess.Code).Msg("Failed to start peer link")
		}
	}
	if p.TimerSeconds > 0 {
		go sess.runTimer()
	}

	log.Info().
		Str("code", sess.Code).
		Str("mode", string(st.Mode)).
		Int("pieces", len(st.Grid)).
		Msg("Created game session")
	return sess, token, nil
}

// CreateMirror builds the follower half of a replicated session under a
// code minted by the peer. The mirror starts undealt, with every piece in
// the pool, and takes its real state from the first peer snapshot. Seat A
// belongs to the remote host; local players join as B. The peer drives the
// game clock, so no countdown runs here.
func (m *Manager) CreateMirror(code string, p GameParams) (*Session, error) {
	if !persist.ValidCode(code) {
		return nil, errBadCode
	}
	sess, err := m.newSession(p)
	if err != nil {
		return nil, err
	}
	sess.Code = code
	sess.rep = replicate.New(sess.engine,
		mirrorState(sess.engine.Catalog(), p.Mode, sess.engine.RackCapacity()),
		replicate.WithLogger(log.With().Str("code", code).Logger()))
	sess.seated[puzzle.SeatA] = true

	m.mu.Lock()
	if _, exists := m.sessions[code]; exists {
		m.mu.Unlock()
		return nil, errSessionExists
	}
	m.sessions[code] = sess
	m.mu.Unlock()

	m.watch(sess)
	log.Info().Str("code", code).Msg("Created mirror session for peer")
	return sess, nil
}

// Resume rebuilds a session from a saved game. Seats are unclaimed: players
// rejoin and receive fresh tokens.
func (m *Manager) Resume(saved persist.SavedGame) (*Session, error) {
	sl, err := slicer.New(saved.Rows, saved.Cols)
	if err != nil {
		return nil, err
	}
	catalog, err := sl.Catalog(saved.ImageRef)
	if err != nil {
		return nil, err
	}
	rackCap := saved.Snapshot.RackCapacity
	if rackCap <= 0 {
		rackCap = puzzle.DefaultRackCapacity
	}
	engine := puzzle.NewEngine(catalog, puzzle.WithRackCapacity(rackCap))
	st, dropped, err := replicate.Import(catalog, saved.Snapshot)
	if err != nil {
		return nil, err
	}
	if len(dropped) > 0 {
		log.Warn().Str("code", saved.Code).Ints("pieceIds", dropped).Msg("Saved game referenced unknown pieces")
	}

	sess := &Session{
		Code:       saved.Code,
		Rows:       saved.Rows,
		Cols:       saved.Cols,
		ImageRef:   saved.ImageRef,
		CreatedAt:  time.Now(),
		engine:     engine,
		rep:        replicate.New(engine, st, replicate.WithLogger(log.With().Str("code", saved.Code).Logger())),
		tokens:     make(map[string]puzzle.Seat),
		lastActive: time.Now(),
		stop:       make(chan struct{}),
	}

	m.mu.Lock()
	if _, exists := m.sessions[saved.Code]; exists {
		m.mu.Unlock()
		return nil, errSessionExists
	}
	m.sessions[saved.Code] = sess
	m.mu.Unlock()

	m.watch(sess)
	if st.TimerLeft > 0 && st.Status == puzzle.StatusActive {
		go sess.runTimer()
	}
	log.Info().Str("code", saved.Code).Msg("Resumed saved session")
	return sess, nil
}

// Get returns the live session for code.
func (m *Manager) Get(code string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[code]
	return sess, ok
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// List returns the live sessions, newest first.
func (m *Manager) List() []*Session {
	m.mu.Lock()
	out := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Remove closes and forgets a session. The saved copy stays on disk.
func (m *Manager) Remove(code string) {
	m.mu.Lock()
	sess, ok := m.sessions[code]
	delete(m.sessions, code)
	m.mu.Unlock()
	if ok {
		sess.Close()
	}
}

// newSession assembles the catalog, engine and session shell. The caller
// fills in Code and the replica.
func (m *Manager) newSession(p GameParams) (*Session, error) {
	sl, err := slicer.New(p.Rows, p.Cols)
	if err != nil {
		return nil, err
	}
	catalog, err := sl.Catalog(p.ImageRef)
	if err != nil {
		return nil, err
	}
	if p.RackCapacity <= 0 {
		p.RackCapacity = puzzle.DefaultRackCapacity
	}
	return &Session{
		Rows:       p.Rows,
		Cols:       p.Cols,
		ImageRef:   p.ImageRef,
		CreatedAt:  time.Now(),
		engine:     puzzle.NewEngine(catalog, puzzle.WithRackCapacity(p.RackCapacity)),
		tokens:     make(map[string]puzzle.Seat),
		lastActive: time.Now(),
		stop:       make(chan struct{}),
	}, nil
}

// mirrorState is the pre-sync placeholder for a follower session: nothing
// dealt, every piece in the pool. The first peer snapshot replaces it
// wholesale, because two empty move histories compare as equal length.
func mirrorState(catalog *puzzle.PieceSet, mode puzzle.ModeID, rackCap int) puzzle.State {
	st := puzzle.State{
		Status:  puzzle.StatusActive,
		Mode:    puzzle.LookupMode(mode).ID,
		RackCap: rackCap,
		Grid:    make([]int, catalog.Size()),
		Pool:    catalog.IDs(),
		Turn:    puzzle.SeatA,
	}
	for i := range st.Grid {
		st.Grid[i] = puzzle.EmptyCell
	}
	for i := range st.Scores {
		st.Scores[i] = puzzle.ScoreRecord{Accuracy: 100}
	}
	return st
}

// watch wires autosave and the hub fan-out to the session's replica. Any
// committed change, local or peer-applied, counts as activity for the
// reaper.
func (m *Manager) watch(sess *Session) {
	sess.cancelWatch = sess.Subscribe(func(snap replicate.Snapshot) {
		sess.touch()
		if m.onChange != nil {
			m.onChange(sess.Code, snap)
		}
		if m.store == nil {
			return
		}
		saved := persist.SavedGame{
			Code:     sess.Code,
			Rows:     sess.Rows,
			Cols:     sess.Cols,
			ImageRef: sess.ImageRef,
			Snapshot: snap,
			SavedAt:  time.Now().UTC().Format(time.RFC3339),
		}
		if err := m.store.Save(context.Background(), saved); err != nil {
			log.Error().Err(err).Str("code", sess.Code).Msg("Failed to autosave game")
		}
	})
}

// syncURL is where the peer's follower endpoint for this session lives. The
// query carries the board parameters the peer needs to mint its mirror. The
// configured peer URL uses the http scheme; the link speaks websocket.
func (m *Manager) syncURL(code string, p GameParams) string {
	base := m.peerBase
	switch {
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	}
	q := url.Values{}
	q.Set("rows", strconv.Itoa(p.Rows))
	q.Set("cols", strconv.Itoa(p.Cols))
	q.Set("mode", string(p.Mode))
	q.Set("image", p.ImageRef)
	q.Set("rack", strconv.Itoa(p.RackCapacity))
	return base + "/api/sync/" + code + "?" + q.Encode()
}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newCode generates a crypto-random session code and ensures it doesn't
// collide with a live session.
func (m *Manager) newCode() string {
	for {
		buf := make([]byte, 6)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, len(buf))
		for i := range out {
			out[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
		}
		code := string(out)

		m.mu.Lock()
		_, exists := m.sessions[code]
		m.mu.Unlock()

		if !exists {
			return code
		}
	}
}

// reaperLoop periodically closes sessions idle longer than idleTimeout.
func (m *Manager) reaperLoop() {
	ticker := time.NewTicker(m.idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-m.idleTimeout)

		m.mu.Lock()
		var expired []*Session
		for code, sess := range m.sessions {
			if sess.LastActive().Before(cutoff) {
				delete(m.sessions, code)
				expired = append(expired, sess)
			}
		}
		m.mu.Unlock()

		for _, sess := range expired {
			log.Info().Str("code", sess.Code).Msg("Reaped idle session")
			sess.Close()
		}
	}
}
