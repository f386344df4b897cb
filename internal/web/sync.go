package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Big-debs/jigsawverse-sub000/internal/puzzle"
	"github.com/Big-debs/jigsawverse-sub000/internal/replicate"
)

// SyncHandler is the inbound half of peer replication: the remote server's
// link dials this endpoint and the two exchange raw snapshots. If the
// session is unknown and the query carries board parameters, a mirror
// session is minted so play can proceed on both servers.
func (s *Service) SyncHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	sess, found := s.sessions.Get(code)
	if !found {
		var err error
		sess, err = s.mintMirror(code, r)
		if err != nil {
			log.Warn().Err(err).Str("code", code).Msg("Rejected peer sync request")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if sess == nil {
			http.Error(w, "Unknown session", http.StatusNotFound)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("code", code).Msg("Failed to upgrade peer sync connection")
		return
	}

	peer := &peerConn{
		conn: conn,
		send: make(chan replicate.Snapshot, 16),
		done: make(chan struct{}),
	}

	// A re-established connection to a known session starts by healing the
	// peer with the current state. A fresh mirror stays quiet: its
	// placeholder state would clobber the host's real deal.
	if found {
		peer.send <- sess.Snapshot()
	}

	cancel := sess.Subscribe(func(snap replicate.Snapshot) {
		select {
		case peer.send <- snap:
		default:
			// Dropped snapshots heal on the next change; full state
			// travels every time.
			log.Warn().Str("code", code).Msg("Peer sync buffer full, dropping snapshot")
		}
	})

	log.Info().Str("code", code).Bool("mirror", !found).Msg("Peer connected for sync")

	go peer.writeLoop(code)
	peer.readLoop(code, sess)

	cancel()
	close(peer.done)
	conn.Close()
	log.Info().Str("code", code).Msg("Peer sync connection closed")
}

// mintMirror builds the follower session for a host-initiated sync. Returns
// nil without error when the query carries no board parameters.
func (s *Service) mintMirror(code string, r *http.Request) (*Session, error) {
	q := r.URL.Query()
	if q.Get("rows") == "" {
		return nil, nil
	}
	rows, err := strconv.Atoi(q.Get("rows"))
	if err != nil {
		return nil, err
	}
	cols, err := strconv.Atoi(q.Get("cols"))
	if err != nil {
		return nil, err
	}
	rack, _ := strconv.Atoi(q.Get("rack"))

	return s.sessions.CreateMirror(code, GameParams{
		Rows:         rows,
		Cols:         cols,
		Mode:         puzzle.ModeID(q.Get("mode")),
		ImageRef:     q.Get("image"),
		RackCapacity: rack,
	})
}

// peerConn pumps snapshots in both directions over one sync connection.
type peerConn struct {
	conn *websocket.Conn
	send chan replicate.Snapshot
	done chan struct{}
}

// readLoop ingests peer snapshots until the connection drops. Rejected
// snapshots are logged by the replica and the connection stays up.
func (p *peerConn) readLoop(code string, sess *Session) {
	p.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("code", code).Msg("Peer sync connection lost")
			}
			return
		}
		p.conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		var snap replicate.Snapshot
		if err := json.Unmarshal(message, &snap); err != nil {
			log.Warn().Err(err).Str("code", code).Msg("Unparseable peer snapshot")
			continue
		}
		if _, err := sess.Apply(snap); err != nil {
			// Already logged with the violated invariant by the replica.
			continue
		}
	}
}

// writeLoop sends local snapshots and keepalive pings.
func (p *peerConn) writeLoop(code string) {
	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case snap := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := p.conn.WriteJSON(snap); err != nil {
				log.Warn().Err(err).Str("code", code).Msg("Failed to send snapshot to peer")
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
