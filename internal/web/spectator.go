package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/Big-debs/jigsawverse-sub000/internal/puzzle"
)

// GameIndex is one row of the spectator lobby listing.
type GameIndex struct {
	Code           string        `json:"code"`
	Mode           puzzle.ModeID `json:"mode"`
	Status         puzzle.Status `json:"status"`
	MoveCount      int           `json:"moveCount"`
	Players        int           `json:"players"`
	SpectatorCount int           `json:"spectatorCount"`
	CreatedAt      time.Time     `json:"createdAt"`
	LastActiveAt   time.Time     `json:"lastActiveAt"`
}

// GetActiveGamesHandler returns the live sessions available for spectating,
// newest first.
func (s *Service) GetActiveGamesHandler(w http.ResponseWriter, r *http.Request) {
	sessions := s.sessions.List()
	games := make([]GameIndex, 0, len(sessions))
	for _, sess := range sessions {
		st := sess.State()
		games = append(games, GameIndex{
			Code:           sess.Code,
			Mode:           st.Mode,
			Status:         st.Status,
			MoveCount:      len(st.History),
			Players:        sess.Players(),
			SpectatorCount: s.hub.clientCount(sess.Code),
			CreatedAt:      sess.CreatedAt,
			LastActiveAt:   sess.LastActive(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"games": games,
		"total": len(games),
	})
}

// GetSpectatorGameHandler returns game data optimized for spectators.
func (s *Service) GetSpectatorGameHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	sess, ok := s.sessions.Get(code)
	if !ok {
		http.Error(w, "Game not found", http.StatusNotFound)
		return
	}

	st := sess.State()
	response := map[string]interface{}{
		"game":           sess.Snapshot(),
		"spectatorCount": s.hub.clientCount(code),
	}
	if winner, done := puzzle.WinnerOf(st); done {
		response["winner"] = winner
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// UpdateSpectatorCountHandler recounts a session's watchers and pushes the
// figure to everyone connected.
func (s *Service) UpdateSpectatorCountHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	if _, ok := s.sessions.Get(code); !ok {
		http.Error(w, "Game not found", http.StatusNotFound)
		return
	}

	count := s.hub.clientCount(code)
	s.hub.BroadcastGameUpdate(GameUpdate{
		Code: code,
		Type: "spectator_count",
		Data: map[string]interface{}{
			"count": count,
		},
	})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":           code,
		"spectatorCount": count,
	})
}

// abandonTimeout is how long a session must sit idle before the opponent
// may claim it.
func (s *Service) abandonTimeout() time.Duration {
	timeout := time.Duration(s.config.Game.IdleTimeoutMinutes) * time.Minute
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return timeout
}

// CheckAbandonmentHandler reports whether a game has gone quiet for long
// enough to claim.
func (s *Service) CheckAbandonmentHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	sess, ok := s.sessions.Get(code)
	if !ok {
		http.Error(w, "Game not found", http.StatusNotFound)
		return
	}

	if sess.State().Status != puzzle.StatusActive {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"abandoned": false,
			"reason":    "Game already ended",
		})
		return
	}

	timeout := s.abandonTimeout()
	idle := time.Since(sess.LastActive())
	abandoned := idle > timeout

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"abandoned":    abandoned,
		"lastActivity": sess.LastActive().UTC().Format(time.RFC3339),
		"idleFor":      idle.String(),
		"timeout":      timeout.String(),
		"canClaim":     abandoned,
	})
}

// ClaimAbandonedGameHandler lets a seated player end an abandoned game. The
// result still comes from the scores, so a claim against a leading opponent
// concedes the loss.
func (s *Service) ClaimAbandonedGameHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	sess, ok := s.sessions.Get(code)
	if !ok {
		http.Error(w, "Game not found", http.StatusNotFound)
		return
	}

	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if _, err := sess.SeatOf(req.Token); err != nil {
		writeGameError(w, err)
		return
	}

	if idle := time.Since(sess.LastActive()); idle <= s.abandonTimeout() {
		http.Error(w, "Game is not abandoned", http.StatusConflict)
		return
	}

	if err := sess.Forfeit(req.Token); err != nil {
		log.Info().Err(err).Str("code", code).Msg("Abandonment claim rejected")
		writeGameError(w, err)
		return
	}

	st := sess.State()
	winner, _ := puzzle.WinnerOf(st)
	log.Info().Str("code", code).Str("winner", string(winner)).Msg("Abandoned game claimed")

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"claimed": true,
		"winner":  winner,
		"state":   sess.Snapshot(),
	})
}
