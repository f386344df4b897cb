package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/Big-debs/jigsawverse-sub000/internal/config"
	"github.com/Big-debs/jigsawverse-sub000/internal/persist"
	"github.com/Big-debs/jigsawverse-sub000/internal/puzzle"
	"github.com/Big-debs/jigsawverse-sub000/internal/replicate"
)

type Service struct {
	sessions *Manager
	store    persist.Store
	hub      *Hub
	config   *config.Config
}

// NewService wires the REST surface to the session manager. Committed state
// changes fan out to the hub from here on.
func NewService(sessions *Manager, store persist.Store, hub *Hub, cfg *config.Config) *Service {
	sessions.OnChange(func(code string, snap replicate.Snapshot) {
		hub.BroadcastGameUpdate(GameUpdate{Code: code, Type: "state", Data: snap})
	})
	return &Service{
		sessions: sessions,
		store:    store,
		hub:      hub,
		config:   cfg,
	}
}

// Routes assembles the full router, CORS included.
func (s *Service) Routes() *mux.Router {
	router := mux.NewRouter()

	// Add CORS middleware
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.HealthHandler).Methods("GET")
	api.HandleFunc("/modes", s.ModesHandler).Methods("GET")
	api.HandleFunc("/games", s.CreateGameHandler).Methods("POST")
	api.HandleFunc("/games", s.GetActiveGamesHandler).Methods("GET")
	api.HandleFunc("/games/{code}", s.GetGameHandler).Methods("GET")
	api.HandleFunc("/games/{code}/join", s.JoinGameHandler).Methods("POST")
	api.HandleFunc("/games/{code}/place", s.PlaceHandler).Methods("POST")
	api.HandleFunc("/games/{code}/decide", s.DecideHandler).Methods("POST")
	api.HandleFunc("/games/{code}/hint", s.HintHandler).Methods("POST")
	api.HandleFunc("/games/{code}/forfeit", s.ForfeitHandler).Methods("POST")
	api.HandleFunc("/games/{code}/qr", s.QRCodeHandler).Methods("GET")
	api.HandleFunc("/games/{code}/spectators", s.UpdateSpectatorCountHandler).Methods("POST")
	api.HandleFunc("/games/{code}/abandonment", s.CheckAbandonmentHandler).Methods("GET")
	api.HandleFunc("/games/{code}/claim", s.ClaimAbandonedGameHandler).Methods("POST")
	api.HandleFunc("/spectate/{code}", s.GetSpectatorGameHandler).Methods("GET")
	api.HandleFunc("/saved", s.ListSavedHandler).Methods("GET")
	api.HandleFunc("/saved/{code}", s.DeleteSavedHandler).Methods("DELETE")
	api.HandleFunc("/saved/{code}/resume", s.ResumeGameHandler).Methods("POST")
	api.HandleFunc("/sync/{code}", s.SyncHandler).Methods("GET")
	router.HandleFunc("/ws/{code}", s.WebSocketHandler()).Methods("GET")

	return router
}

// statusForError maps the protocol error taxonomy onto HTTP statuses.
func statusForError(err error) int {
	switch puzzle.KindOf(err) {
	case puzzle.KindInvalidPosition:
		return http.StatusBadRequest
	case puzzle.KindPieceNotFound:
		return http.StatusNotFound
	case puzzle.KindSnapshotRejected:
		return http.StatusUnprocessableEntity
	case puzzle.KindNotYourTurn, puzzle.KindPendingResolution, puzzle.KindPositionOccupied,
		puzzle.KindNoPendingCheck, puzzle.KindWrongDecider, puzzle.KindHintBudgetExhausted,
		puzzle.KindGameNotActive:
		return http.StatusConflict
	}
	switch {
	case errors.Is(err, errUnknownToken):
		return http.StatusUnauthorized
	case errors.Is(err, errSessionFull), errors.Is(err, errSessionExists):
		return http.StatusConflict
	case errors.Is(err, errBadCode):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeGameError answers a failed command with the error kind so clients
// can react without parsing message text.
func writeGameError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusForError(err))
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
		"kind":  string(puzzle.KindOf(err)),
	})
}

func (s *Service) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "ok",
		"sessions": s.sessions.Count(),
	})
}

func (s *Service) ModesHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"modes": puzzle.Modes(),
	})
}

type CreateGameRequest struct {
	Rows         int    `json:"rows"`
	Cols         int    `json:"cols"`
	Mode         string `json:"mode"`
	ImageRef     string `json:"imageRef"`
	TimerSeconds int    `json:"timerSeconds"`
	RackCapacity int    `json:"rackCapacity"`
}

type CreateGameResponse struct {
	Code      string             `json:"code"`
	JoinToken string             `json:"joinToken"`
	Seat      puzzle.Seat        `json:"seat"`
	JoinURL   string             `json:"joinUrl"`
	State     replicate.Snapshot `json:"state"`
}

func (s *Service) CreateGameHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ImageRef == "" {
		http.Error(w, "imageRef is required", http.StatusBadRequest)
		return
	}
	if req.Rows == 0 {
		req.Rows = s.config.Game.Rows
	}
	if req.Cols == 0 {
		req.Cols = s.config.Game.Cols
	}
	if req.Mode == "" {
		req.Mode = s.config.Game.Mode
	}
	if req.TimerSeconds == 0 {
		req.TimerSeconds = s.config.Game.TimerSeconds
	}
	if req.RackCapacity == 0 {
		req.RackCapacity = s.config.Game.RackCapacity
	}

	sess, token, err := s.sessions.Create(GameParams{
		Rows:         req.Rows,
		Cols:         req.Cols,
		Mode:         puzzle.ModeID(req.Mode),
		ImageRef:     req.ImageRef,
		TimerSeconds: req.TimerSeconds,
		RackCapacity: req.RackCapacity,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to create game")
		http.Error(w, fmt.Sprintf("Failed to create game: %s", err.Error()), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(CreateGameResponse{
		Code:      sess.Code,
		JoinToken: token,
		Seat:      puzzle.SeatA,
		JoinURL:   "/join/" + sess.Code,
		State:     sess.Snapshot(),
	})
}

type JoinGameResponse struct {
	Code      string             `json:"code"`
	JoinToken string             `json:"joinToken"`
	Seat      puzzle.Seat        `json:"seat"`
	State     replicate.Snapshot `json:"state"`
}

func (s *Service) JoinGameHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	sess, ok := s.sessions.Get(code)
	if !ok {
		http.Error(w, "Game not found", http.StatusNotFound)
		return
	}

	token, seat, err := sess.Join()
	if err != nil {
		log.Warn().Err(err).Str("code", code).Msg("Join rejected")
		writeGameError(w, err)
		return
	}

	log.Info().Str("code", code).Str("seat", seat.String()).Msg("Player joined session")

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(JoinGameResponse{
		Code:      code,
		JoinToken: token,
		Seat:      seat,
		State:     sess.Snapshot(),
	})
}

func (s *Service) GetGameHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	sess, ok := s.sessions.Get(code)
	if !ok {
		http.Error(w, "Game not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sess.Snapshot())
}

type PlaceRequest struct {
	Token    string `json:"token"`
	PieceID  int    `json:"pieceId"`
	Position int    `json:"position"`
}

func (s *Service) PlaceHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	sess, ok := s.sessions.Get(code)
	if !ok {
		http.Error(w, "Game not found", http.StatusNotFound)
		return
	}

	var req PlaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	out, err := sess.Place(req.Token, req.PieceID, req.Position)
	if err != nil {
		log.Info().Err(err).Str("code", code).Int("pieceId", req.PieceID).Msg("Placement rejected")
		writeGameError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"result":   out.Result,
		"correct":  out.Correct,
		"returned": out.Returned,
		"refilled": out.Refilled,
		"state":    sess.Snapshot(),
	})
}

type DecideRequest struct {
	Token    string `json:"token"`
	Decision string `json:"decision"`
}

func (s *Service) DecideHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	sess, ok := s.sessions.Get(code)
	if !ok {
		http.Error(w, "Game not found", http.StatusNotFound)
		return
	}

	var req DecideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	out, err := sess.Decide(req.Token, puzzle.Decision(req.Decision))
	if err != nil {
		log.Info().Err(err).Str("code", code).Msg("Decision rejected")
		writeGameError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"result":    out.Result,
		"correct":   out.Correct,
		"returned":  out.Returned,
		"completed": out.Completed,
		"state":     sess.Snapshot(),
	})
}

type HintRequest struct {
	Token string `json:"token"`
	Kind  string `json:"kind"`
}

func (s *Service) HintHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	sess, ok := s.sessions.Get(code)
	if !ok {
		http.Error(w, "Game not found", http.StatusNotFound)
		return
	}

	var req HintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	hint, err := sess.Hint(req.Token, puzzle.HintKind(req.Kind))
	if err != nil {
		log.Info().Err(err).Str("code", code).Str("kind", req.Kind).Msg("Hint rejected")
		writeGameError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"hint":  hint,
		"state": sess.Snapshot(),
	})
}

func (s *Service) ForfeitHandler(w http.ResponseWriter, r *http.Request) {
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

	if err := sess.Forfeit(req.Token); err != nil {
		log.Info().Err(err).Str("code", code).Msg("Forfeit rejected")
		writeGameError(w, err)
		return
	}

	st := sess.State()
	winner, _ := puzzle.WinnerOf(st)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"code":    code,
		"winner":  winner,
		"state":   sess.Snapshot(),
	})
}

// QRCodeHandler renders the join URL as a PNG so the second player can scan
// straight into the session.
func (s *Service) QRCodeHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	if _, ok := s.sessions.Get(code); !ok {
		http.Error(w, "Game not found", http.StatusNotFound)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	joinURL := fmt.Sprintf("%s://%s/join/%s", scheme, r.Host, code)

	png, err := qrcode.Encode(joinURL, qrcode.Medium, 256)
	if err != nil {
		log.Error().Err(err).Str("code", code).Msg("Failed to encode QR code")
		http.Error(w, "Failed to generate QR code", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (s *Service) ListSavedHandler(w http.ResponseWriter, r *http.Request) {
	games, err := s.store.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list saved games")
		http.Error(w, "Failed to list saved games", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"games": games,
		"total": len(games),
	})
}

func (s *Service) ResumeGameHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	if _, live := s.sessions.Get(code); live {
		http.Error(w, "Game is already live", http.StatusConflict)
		return
	}

	saved, err := s.store.Load(r.Context(), code)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "Saved game not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("code", code).Msg("Failed to load saved game")
		http.Error(w, "Failed to load saved game", http.StatusInternalServerError)
		return
	}

	sess, err := s.sessions.Resume(saved)
	if err != nil {
		log.Error().Err(err).Str("code", code).Msg("Failed to resume saved game")
		writeGameError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":  sess.Code,
		"state": sess.Snapshot(),
	})
}

func (s *Service) DeleteSavedHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	if err := s.store.Delete(r.Context(), code); err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "Saved game not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("code", code).Msg("Failed to delete saved game")
		http.Error(w, "Failed to delete saved game", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
