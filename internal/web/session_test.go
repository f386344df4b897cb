package web

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/Big-debs/jigsawverse-sub000/internal/persist"
	"github.com/Big-debs/jigsawverse-sub000/internal/puzzle"
)

func newTestStore(t *testing.T) *persist.FS {
	t.Helper()
	store, err := persist.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS failed: %v", err)
	}
	return store
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(newTestStore(t), "", 0)
}

// smallBoard is a 3x3 game with four-slot racks: both racks deal full and
// one piece lands in the pool.
func smallBoard() GameParams {
	return GameParams{
		Rows:         3,
		Cols:         3,
		Mode:         puzzle.ModeClassic,
		ImageRef:     "harbor.jpg",
		RackCapacity: 4,
	}
}

func TestCreateSeatsTheHost(t *testing.T) {
	m := newTestManager(t)
	sess, token, err := m.Create(smallBoard())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if !persist.ValidCode(sess.Code) || len(sess.Code) != 6 {
		t.Errorf("Unexpected session code %q", sess.Code)
	}
	seat, err := sess.SeatOf(token)
	if err != nil || seat != puzzle.SeatA {
		t.Errorf("Expected the host on seat A, got %v (%v)", seat, err)
	}

	st := sess.State()
	if st.Status != puzzle.StatusActive || st.Turn != puzzle.SeatA {
		t.Errorf("Unexpected opening state %+v", st)
	}
	if st.RackCount(puzzle.SeatA) != 4 || st.RackCount(puzzle.SeatB) != 4 || len(st.Pool) != 1 {
		t.Errorf("Unexpected deal: racks %d/%d, pool %d",
			st.RackCount(puzzle.SeatA), st.RackCount(puzzle.SeatB), len(st.Pool))
	}

	if got, ok := m.Get(sess.Code); !ok || got != sess {
		t.Error("Expected the session registered under its code")
	}
	if m.Count() != 1 {
		t.Errorf("Expected one live session, got %d", m.Count())
	}
}

func TestJoinFillsSeatBThenRejects(t *testing.T) {
	m := newTestManager(t)
	sess, _, err := m.Create(smallBoard())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	token, seat, err := sess.Join()
	if err != nil || seat != puzzle.SeatB {
		t.Fatalf("Expected seat B for the second player, got %v (%v)", seat, err)
	}
	if got, err := sess.SeatOf(token); err != nil || got != puzzle.SeatB {
		t.Errorf("Expected the token bound to seat B, got %v (%v)", got, err)
	}
	if sess.Players() != 2 {
		t.Errorf("Expected two players, got %d", sess.Players())
	}

	if _, _, err := sess.Join(); !errors.Is(err, errSessionFull) {
		t.Errorf("Expected a full session, got %v", err)
	}
}

func TestSoloSessionSeatsOnePlayer(t *testing.T) {
	m := newTestManager(t)
	p := smallBoard()
	p.Mode = puzzle.ModeSingle
	sess, _, err := m.Create(p)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if sess.Players() != 1 {
		t.Errorf("Expected one seated player, got %d", sess.Players())
	}
	if _, _, err := sess.Join(); !errors.Is(err, errSessionFull) {
		t.Errorf("Expected no seat B in a solo game, got %v", err)
	}

	st := sess.State()
	if st.RackCount(puzzle.SeatB) != 0 || len(st.Pool) != 5 {
		t.Errorf("Unexpected solo deal: rack B %d, pool %d", st.RackCount(puzzle.SeatB), len(st.Pool))
	}
}

func TestCommandsResolveSeatsFromTokens(t *testing.T) {
	m := newTestManager(t)
	sess, tokenA, err := m.Create(smallBoard())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	tokenB, _, err := sess.Join()
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	// Piece ids are row-major, so a piece's id doubles as its solved cell.
	pieceID := sess.State().Racks[puzzle.SeatA][0]
	out, err := sess.Place(tokenA, pieceID, pieceID)
	if err != nil {
		t.Fatalf("Place failed: %v", err)
	}
	if out.Result != puzzle.ResultPendingCheck || !out.Correct {
		t.Errorf("Unexpected placement outcome %+v", out)
	}

	dec, err := sess.Decide(tokenB, puzzle.DecisionCheck)
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if dec.Result != puzzle.ResultFailedCheck {
		t.Errorf("Unexpected decision outcome %+v", dec)
	}

	st := sess.State()
	if st.Scores[puzzle.SeatA].Score != 10 || st.Scores[puzzle.SeatB].Score != -2 {
		t.Errorf("Unexpected scores %+v", st.Scores)
	}
	if st.Turn != puzzle.SeatB {
		t.Errorf("Expected the turn handed to the decider, got %s", st.Turn)
	}

	if _, err := sess.Place("bogus", 0, 0); !errors.Is(err, errUnknownToken) {
		t.Errorf("Expected an unknown token refused, got %v", err)
	}
	if _, err := sess.Hint("bogus", puzzle.HintEdge); !errors.Is(err, errUnknownToken) {
		t.Errorf("Expected an unknown token refused, got %v", err)
	}
}

func TestForfeitEndsTheGame(t *testing.T) {
	m := newTestManager(t)
	sess, _, err := m.Create(smallBoard())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	tokenB, _, err := sess.Join()
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	if err := sess.Forfeit(tokenB); err != nil {
		t.Fatalf("Forfeit failed: %v", err)
	}
	st := sess.State()
	if st.Status != puzzle.StatusCompleted || st.EndReason != puzzle.ReasonForfeit {
		t.Errorf("Unexpected terminal state %s/%s", st.Status, st.EndReason)
	}
	if err := sess.Forfeit(tokenB); !puzzle.IsKind(err, puzzle.KindGameNotActive) {
		t.Errorf("Expected a second forfeit refused, got %v", err)
	}
}

// TestAutosaveWritesThroughStore: every committed change lands on disk
// before the command returns, so a crash never loses more than nothing.
func TestAutosaveWritesThroughStore(t *testing.T) {
	store := newTestStore(t)
	m := NewManager(store, "", 0)
	sess, tokenA, err := m.Create(smallBoard())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	pieceID := sess.State().Racks[puzzle.SeatA][0]
	if _, err := sess.Place(tokenA, pieceID, pieceID); err != nil {
		t.Fatalf("Place failed: %v", err)
	}

	saved, err := store.Load(context.Background(), sess.Code)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(saved.Snapshot.MoveHistory) != 1 {
		t.Errorf("Expected one move persisted, got %d", len(saved.Snapshot.MoveHistory))
	}
	if saved.Rows != 3 || saved.Cols != 3 || saved.ImageRef != "harbor.jpg" {
		t.Errorf("Unexpected saved geometry %+v", saved)
	}
}

func TestResumeRestoresState(t *testing.T) {
	store := newTestStore(t)
	m := NewManager(store, "", 0)
	sess, tokenA, err := m.Create(smallBoard())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	pieceID := sess.State().Racks[puzzle.SeatA][0]
	if _, err := sess.Place(tokenA, pieceID, pieceID); err != nil {
		t.Fatalf("Place failed: %v", err)
	}
	before := sess.State()

	saved, err := store.Load(context.Background(), sess.Code)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	m.Remove(sess.Code)

	resumed, err := m.Resume(saved)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if resumed.Code != sess.Code {
		t.Errorf("Expected the code preserved, got %s", resumed.Code)
	}
	if !reflect.DeepEqual(before, resumed.State()) {
		t.Errorf("Resumed state diverged.\nBefore: %+v\nAfter: %+v", before, resumed.State())
	}

	// Tokens do not survive a restart; players rejoin for fresh ones.
	if _, err := resumed.SeatOf(tokenA); !errors.Is(err, errUnknownToken) {
		t.Errorf("Expected stale tokens invalidated, got %v", err)
	}
	if _, seat, err := resumed.Join(); err != nil || seat != puzzle.SeatA {
		t.Errorf("Expected seat A free again, got %v (%v)", seat, err)
	}
}

func TestCreateMirrorStartsUndealt(t *testing.T) {
	m := newTestManager(t)
	p := GameParams{Rows: 2, Cols: 2, Mode: puzzle.ModeClassic, ImageRef: "pier.png", RackCapacity: 2}

	mirror, err := m.CreateMirror("MIRROR", p)
	if err != nil {
		t.Fatalf("CreateMirror failed: %v", err)
	}
	st := mirror.State()
	if st.GridCount() != 0 || len(st.Pool) != 4 {
		t.Errorf("Expected everything pooled before the first sync, got %+v", st)
	}
	if st.RackCount(puzzle.SeatA) != 0 || st.RackCount(puzzle.SeatB) != 0 {
		t.Error("Expected empty racks before the first sync")
	}

	// Seat A belongs to the remote host; a local player lands on B.
	if mirror.Players() != 1 {
		t.Errorf("Expected the host seat pre-claimed, got %d players", mirror.Players())
	}
	if _, seat, err := mirror.Join(); err != nil || seat != puzzle.SeatB {
		t.Errorf("Expected seat B for the local player, got %v (%v)", seat, err)
	}

	// The host's opening snapshot replaces the placeholder wholesale.
	host := newTestManager(t)
	hostSess, _, err := host.Create(p)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	changed, err := mirror.Apply(hostSess.Snapshot())
	if err != nil || !changed {
		t.Fatalf("Apply failed: changed=%v err=%v", changed, err)
	}
	if !reflect.DeepEqual(hostSess.State(), mirror.State()) {
		t.Errorf("Mirror diverged from the host.\nHost: %+v\nMirror: %+v", hostSess.State(), mirror.State())
	}
}

func TestCreateMirrorValidatesCode(t *testing.T) {
	m := newTestManager(t)
	p := GameParams{Rows: 2, Cols: 2, Mode: puzzle.ModeClassic, ImageRef: "pier.png", RackCapacity: 2}

	if _, err := m.CreateMirror("../etc", p); !errors.Is(err, errBadCode) {
		t.Errorf("Expected a malformed code refused, got %v", err)
	}
	if _, err := m.CreateMirror("DOUBLE", p); err != nil {
		t.Fatalf("CreateMirror failed: %v", err)
	}
	if _, err := m.CreateMirror("DOUBLE", p); !errors.Is(err, errSessionExists) {
		t.Errorf("Expected a duplicate code refused, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	m := newTestManager(t)
	var codes []string
	for i := 0; i < 3; i++ {
		sess, _, err := m.Create(smallBoard())
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		codes = append(codes, sess.Code)
		time.Sleep(5 * time.Millisecond)
	}

	listed := m.List()
	if len(listed) != 3 {
		t.Fatalf("Expected 3 sessions, got %d", len(listed))
	}
	for i, sess := range listed {
		if want := codes[len(codes)-1-i]; sess.Code != want {
			t.Errorf("Expected %s at position %d, got %s", want, i, sess.Code)
		}
	}
}

func TestReaperRemovesIdleSessions(t *testing.T) {
	m := NewManager(newTestStore(t), "", 50*time.Millisecond)
	sess, _, err := m.Create(smallBoard())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := m.Get(sess.Code); !ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("Expected the idle session reaped")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTimerExpiryTerminatesGame(t *testing.T) {
	m := newTestManager(t)
	p := smallBoard()
	p.TimerSeconds = 1
	sess, _, err := m.Create(p)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if sess.State().TimerLeft != 1 {
		t.Fatalf("Expected the countdown armed, got %d", sess.State().TimerLeft)
	}

	deadline := time.Now().Add(3 * time.Second)
	for sess.State().Status != puzzle.StatusCompleted {
		if time.Now().After(deadline) {
			t.Fatal("Expected the game terminated on expiry")
		}
		time.Sleep(50 * time.Millisecond)
	}
	st := sess.State()
	if st.EndReason != puzzle.ReasonTimeout || st.TimerLeft != 0 {
		t.Errorf("Unexpected terminal state %s with %d seconds left", st.EndReason, st.TimerLeft)
	}
}
