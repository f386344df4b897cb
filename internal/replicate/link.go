package replicate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	initialReconnectDelay  = 1 * time.Second
	maxReconnectDelay      = 5 * time.Minute
	reconnectBackoffFactor = 2

	dialTimeout  = 30 * time.Second
	pingInterval = 30 * time.Second
	pongTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
)

// Link is a websocket Transport to a peer server's sync endpoint. It
// reconnects with exponential backoff and hands every inbound snapshot to
// the registered handler. Sends while disconnected fail fast; since every
// snapshot carries complete state, the next publish after reconnecting
// heals the gap.
type Link struct {
	url            string
	dialer         *websocket.Dialer
	logger         zerolog.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	reconnectDelay time.Duration

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	handler   func(Snapshot)
	onConnect func()

	writeMu sync.Mutex
}

// LinkOption configures the link.
type LinkOption func(*Link)

// WithLinkLogger sets a custom logger.
func WithLinkLogger(logger zerolog.Logger) LinkOption {
	return func(l *Link) { l.logger = logger }
}

// WithDialer overrides the websocket dialer, for tests.
func WithDialer(dialer *websocket.Dialer) LinkOption {
	return func(l *Link) { l.dialer = dialer }
}

// WithInitialReconnectDelay sets the first backoff step.
func WithInitialReconnectDelay(delay time.Duration) LinkOption {
	return func(l *Link) { l.reconnectDelay = delay }
}

// NewLink creates a link to the peer's sync endpoint.
func NewLink(url string, opts ...LinkOption) *Link {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Link{
		url:            url,
		dialer:         websocket.DefaultDialer,
		logger:         zerolog.Nop(),
		ctx:            ctx,
		cancel:         cancel,
		reconnectDelay: initialReconnectDelay,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// OnSnapshot registers the inbound snapshot handler.
func (l *Link) OnSnapshot(fn func(Snapshot)) {
	l.mu.Lock()
	l.handler = fn
	l.mu.Unlock()
}

// OnConnect registers a callback invoked after every successful dial,
// including reconnects. Callers use it to push state the peer missed
// while the link was down.
func (l *Link) OnConnect(fn func()) {
	l.mu.Lock()
	l.onConnect = fn
	l.mu.Unlock()
}

// Start begins connecting to the peer.
func (l *Link) Start() error {
	go l.run()
	return nil
}

// Stop shuts the link down.
func (l *Link) Stop() error {
	l.cancel()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		err := l.conn.Close()
		l.conn = nil
		l.connected = false
		return err
	}
	return nil
}

// IsConnected reports whether the peer is currently reachable.
func (l *Link) IsConnected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connected
}

// Send publishes a snapshot to the peer.
func (l *Link) Send(snap Snapshot) error {
	l.mu.RLock()
	conn := l.conn
	l.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("peer link is down")
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(snap); err != nil {
		return fmt.Errorf("websocket write failed: %w", err)
	}
	return nil
}

func (l *Link) run() {
	for {
		select {
		case <-l.ctx.Done():
			return
		default:
			if err := l.connect(); err != nil {
				l.logger.Error().Err(err).Msg("Failed to connect to peer")
				l.waitReconnect()
				continue
			}
			l.mu.RLock()
			onConnect := l.onConnect
			l.mu.RUnlock()
			if onConnect != nil {
				onConnect()
			}
			if err := l.listen(); err != nil {
				l.logger.Error().Err(err).Msg("Peer connection lost")
			}
			l.waitReconnect()
		}
	}
}

func (l *Link) connect() error {
	l.logger.Info().Str("url", l.url).Msg("Connecting to peer")

	headers := http.Header{}
	headers.Set("User-Agent", "jigsawverse/1.0")

	ctx, cancel := context.WithTimeout(l.ctx, dialTimeout)
	defer cancel()

	conn, _, err := l.dialer.DialContext(ctx, l.url, headers)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	l.mu.Lock()
	l.conn = conn
	l.connected = true
	l.reconnectDelay = initialReconnectDelay
	l.mu.Unlock()

	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pingInterval + pongTimeout))
		return nil
	})

	l.logger.Info().Msg("Connected to peer")
	return nil
}

func (l *Link) listen() error {
	go l.pingLoop()

	for {
		select {
		case <-l.ctx.Done():
			return nil
		default:
			_, data, err := l.conn.ReadMessage()
			if err != nil {
				return err
			}

			var snap Snapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				l.logger.Warn().Err(err).Msg("Unparseable peer message")
				continue
			}

			l.mu.RLock()
			handler := l.handler
			l.mu.RUnlock()
			if handler != nil {
				handler(snap)
			}
		}
	}
}

func (l *Link) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.mu.RLock()
			conn := l.conn
			l.mu.RUnlock()
			if conn == nil {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeTimeout)); err != nil {
				l.logger.Error().Err(err).Msg("Ping failed")
				return
			}
		}
	}
}

func (l *Link) waitReconnect() {
	l.mu.Lock()
	l.connected = false
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}
	delay := l.reconnectDelay
	l.reconnectDelay = time.Duration(float64(l.reconnectDelay) * reconnectBackoffFactor)
	if l.reconnectDelay > maxReconnectDelay {
		l.reconnectDelay = maxReconnectDelay
	}
	l.mu.Unlock()

	l.logger.Info().Str("delay", delay.String()).Msg("Waiting before reconnect")

	select {
	case <-time.After(delay):
	case <-l.ctx.Done():
	}
}
