package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"go-notify/internal/notify"
)

// ConnState is the connection manager's lifecycle state.
type ConnState int

const (
	StateIdle ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateDisconnected:
		return "DISCONNECTED"
	}
	return fmt.Sprintf("ConnState(%d)", int(s))
}

// StatePayload is the payload of the local conn:state bus event.
type StatePayload struct {
	State string `json:"state"`
}

// ConnConfig tunes the reconnect schedule.
type ConnConfig struct {
	URL                  string
	BaseDelay            time.Duration // default 1s
	MaxDelay             time.Duration // default 30s
	MaxReconnectAttempts int           // default 5
	AuthWait             time.Duration // default 10s

	// Jitter perturbs a computed backoff delay. Defaults to adding a
	// random amount up to half the delay.
	Jitter func(time.Duration) time.Duration
}

func (c *ConnConfig) withDefaults() ConnConfig {
	out := *c
	if out.BaseDelay <= 0 {
		out.BaseDelay = time.Second
	}
	if out.MaxDelay <= 0 {
		out.MaxDelay = 30 * time.Second
	}
	if out.MaxReconnectAttempts <= 0 {
		out.MaxReconnectAttempts = 5
	}
	if out.AuthWait <= 0 {
		out.AuthWait = 10 * time.Second
	}
	if out.Jitter == nil {
		out.Jitter = func(d time.Duration) time.Duration {
			return d + time.Duration(rand.Int63n(int64(d)/2+1))
		}
	}
	return out
}

// ConnManager owns the single logical push connection: dial, in-band
// authenticate, read loop, and the capped-exponential reconnect schedule.
// Inbound frames are published on the bus; consumers never touch the socket.
type ConnManager struct {
	cfg    ConnConfig
	bus    *Bus
	api    API
	cache  *Cache
	dialer *websocket.Dialer

	mu      sync.Mutex
	state   ConnState
	attempt int
	cancel  context.CancelFunc
	conn    *websocket.Conn

	errs chan error
	done chan struct{}
}

func NewConnManager(cfg ConnConfig, bus *Bus, api API, cache *Cache) *ConnManager {
	return &ConnManager{
		cfg:    cfg.withDefaults(),
		bus:    bus,
		api:    api,
		cache:  cache,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		state:  StateIdle,
		errs:   make(chan error, 4),
	}
}

// State returns the current lifecycle state.
func (m *ConnManager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Errors surfaces fatal signals: ErrAuth and ErrGiveUp.
func (m *ConnManager) Errors() <-chan error {
	return m.errs
}

// Connect starts the state machine with the given token. Only legal from
// IDLE or terminal DISCONNECTED.
func (m *ConnManager) Connect(token string) error {
	m.mu.Lock()
	if m.state != StateIdle && m.state != StateDisconnected {
		m.mu.Unlock()
		return fmt.Errorf("connect called in state %s", m.state)
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.attempt = 0
	m.done = make(chan struct{})
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()
	m.announceState(StateConnecting)

	go m.run(ctx, token)
	return nil
}

// Disconnect tears the state machine down from any state and cancels any
// pending reconnect timer. The context is cancelled while mu is held so the
// run loop, which re-checks ctx under the same lock, can never overwrite
// DISCONNECTED afterwards.
func (m *ConnManager) Disconnect() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	conn := m.conn
	done := m.done
	m.conn = nil
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()
	m.announceState(StateDisconnected)

	if conn != nil {
		conn.Close()
	}
	if done != nil {
		<-done
	}
}

func (m *ConnManager) run(ctx context.Context, token string) {
	defer close(m.done)

	for {
		err := m.dialAndServe(ctx, token)

		// Cancellation is re-checked under mu before every transition:
		// an explicit disconnect already set DISCONNECTED and that must
		// stand no matter where the handshake was when it happened.
		if errors.Is(err, ErrAuth) {
			// Bad or expired token: no backoff, the caller must
			// re-authenticate and call Connect again.
			m.mu.Lock()
			if ctx.Err() != nil {
				m.mu.Unlock()
				return
			}
			m.setStateLocked(StateDisconnected)
			m.mu.Unlock()
			m.announceState(StateDisconnected)
			m.surface(ErrAuth)
			return
		}

		// Transport loss: walk the backoff schedule.
		m.mu.Lock()
		if ctx.Err() != nil {
			m.mu.Unlock()
			return
		}
		if m.attempt >= m.cfg.MaxReconnectAttempts {
			m.setStateLocked(StateDisconnected)
			m.mu.Unlock()
			m.announceState(StateDisconnected)
			m.surface(ErrGiveUp)
			return
		}
		delay := m.cfg.Jitter(BackoffDelay(m.attempt, m.cfg.BaseDelay, m.cfg.MaxDelay))
		m.attempt++
		m.setStateLocked(StateReconnecting)
		m.mu.Unlock()
		m.announceState(StateReconnecting)

		log.Printf("connection lost (%v), reconnecting in %s", err, delay)
		if err := sleepCtx(ctx, delay); err != nil {
			return
		}
	}
}

// BackoffDelay computes min(base * 2^attempt, max), jitter excluded.
func BackoffDelay(attempt int, base, max time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// dialAndServe performs one connect attempt: dial, authenticate, then serve
// the read loop until the transport drops. The returned error classifies the
// failure (ErrAuth is fatal, everything else retries).
func (m *ConnManager) dialAndServe(ctx context.Context, token string) error {
	conn, _, err := m.dialer.DialContext(ctx, m.cfg.URL, nil)
	if err != nil {
		return &TransportError{Op: "dial", Err: err}
	}

	// Expose the conn before authenticating: a Disconnect issued mid
	// handshake closes it, which unblocks the reads below.
	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		conn.Close()
		return ctx.Err()
	}
	m.conn = conn
	m.mu.Unlock()

	if err := m.authenticate(conn, token); err != nil {
		m.releaseConn(conn)
		conn.Close()
		return err
	}

	m.mu.Lock()
	if ctx.Err() != nil {
		if m.conn == conn {
			m.conn = nil
		}
		m.mu.Unlock()
		conn.Close()
		return ctx.Err()
	}
	m.attempt = 0
	m.setStateLocked(StateConnected)
	m.mu.Unlock()
	m.announceState(StateConnected)

	// Push delivery is not assumed gap-free: pull the authoritative state
	// immediately so anything missed while disconnected lands in the cache.
	go func() {
		if err := m.Resync(ctx); err != nil && ctx.Err() == nil {
			log.Printf("resync after connect: %v", err)
		}
	}()

	err = m.readLoop(conn)

	m.releaseConn(conn)
	conn.Close()
	return err
}

// releaseConn drops the manager's reference if it still points at conn.
func (m *ConnManager) releaseConn(conn *websocket.Conn) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()
}

func (m *ConnManager) authenticate(conn *websocket.Conn, token string) error {
	frame, _ := json.Marshal(notify.Frame{
		Event:   notify.EventAuthenticate,
		Payload: notify.AuthPayload{Token: token},
	})
	conn.SetWriteDeadline(time.Now().Add(m.cfg.AuthWait))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return &TransportError{Op: "authenticate write", Err: err}
	}

	conn.SetReadDeadline(time.Now().Add(m.cfg.AuthWait))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		if isAuthClose(err) {
			return ErrAuth
		}
		return &TransportError{Op: "authenticate read", Err: err}
	}
	var reply struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return &TransportError{Op: "authenticate decode", Err: err}
	}
	switch reply.Event {
	case notify.EventAuthenticated:
		return nil
	case notify.EventAuthError:
		return ErrAuth
	default:
		return &TransportError{Op: "authenticate", Err: fmt.Errorf("unexpected reply %q", reply.Event)}
	}
}

func (m *ConnManager) readLoop(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Time{})
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if isAuthClose(err) {
				return ErrAuth
			}
			return &TransportError{Op: "read", Err: err}
		}

		var frame struct {
			Event   string          `json:"event"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Printf("malformed push frame dropped: %v", err)
			continue
		}
		if frame.Event == notify.EventAuthError {
			return ErrAuth
		}
		m.bus.Publish(frame.Event, frame.Payload)
	}
}

// Resync pulls the authoritative list and count over REST and replaces the
// local cache.
func (m *ConnManager) Resync(ctx context.Context) error {
	if m.api == nil || m.cache == nil {
		return nil
	}
	page, err := m.api.ListNotifications(ctx, 0, 100)
	if err != nil {
		return err
	}
	count, err := m.api.UnreadCount(ctx)
	if err != nil {
		return err
	}
	m.cache.Reset(page.Items, count)
	return nil
}

// setStateLocked transitions state; caller holds mu and must call
// announceState after unlocking so bus handlers stay free to call State().
func (m *ConnManager) setStateLocked(s ConnState) {
	m.state = s
}

func (m *ConnManager) announceState(s ConnState) {
	if m.bus == nil {
		return
	}
	payload, _ := json.Marshal(StatePayload{State: s.String()})
	m.bus.Publish(EventConnState, payload)
}

func (m *ConnManager) surface(err error) {
	select {
	case m.errs <- err:
	default:
	}
}

func isAuthClose(err error) bool {
	var closeErr *websocket.CloseError
	return errors.As(err, &closeErr) && closeErr.Code == websocket.ClosePolicyViolation
}
