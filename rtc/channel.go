// Package rtc is the websocket data-channel client.
//
// A Channel joins a named realtime channel, surfaces connection state
// transitions on a stream, and delivers inbound binary payloads with
// their sender identity to a registered handler in arrival order. The
// wire protocol is a thin envelope:
//
//	client -> server: {"type":"join","channel":...,"uid":...,"token":...}
//	                  {"type":"control","op":"mute"|"unmute"}
//	                  {"type":"renew_token","token":...}
//	server -> client: {"type":"joined"}
//	                  {"type":"stream","uid":...} followed by one binary frame
//	                  {"type":"token_will_expire"}
//	                  {"type":"error","message":...}
//
// Payload content is opaque here; reassembly happens upstream.
package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parleyhq/parley/log"
)

// ConnectionState is one step of the channel lifecycle.
type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateDisconnected ConnectionState = "disconnected"
)

// Defaults for channel configuration.
const (
	DefaultDialTimeout  = 15 * time.Second
	DefaultRenewTimeout = 10 * time.Second
	// DefaultRedials bounds automatic reconnect attempts after an
	// abnormal connection loss.
	DefaultRedials = 3
)

// DataHandler receives one inbound binary payload with its sender.
// Called from the read loop; implementations must not block.
type DataHandler func(senderID string, payload []byte)

// RenewFunc fetches a fresh channel token when the current one is about
// to expire.
type RenewFunc func(ctx context.Context) (string, error)

// Config configures a channel join.
type Config struct {
	// URL is the websocket endpoint, e.g. "wss://rtc.example.com/ws" (required).
	URL string
	// Channel and UID identify this participant (required).
	Channel string
	UID     string
	// Token authenticates the join.
	Token string

	// OnData receives inbound binary payloads (required).
	OnData DataHandler
	// RenewToken is invoked on a token-expiry warning. Optional; without
	// it an expiry warning degrades to disconnection.
	RenewToken RenewFunc

	// Logger is optional.
	Logger *log.Logger

	// DialTimeout bounds the websocket dial (default 15s).
	DialTimeout time.Duration
	// RenewTimeout bounds one token renewal round trip (default 10s).
	RenewTimeout time.Duration
	// Redials bounds automatic reconnect attempts (default 3).
	Redials int
}

type envelope struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	UID     string `json:"uid,omitempty"`
	Token   string `json:"token,omitempty"`
	Op      string `json:"op,omitempty"`
	Message string `json:"message,omitempty"`
}

// Channel is a joined realtime data channel.
type Channel struct {
	config Config
	logger *log.Logger

	connMu  sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	// active guards against operations after teardown: sends are
	// rejected and late inbound data is dropped.
	active    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
	states    chan ConnectionState

	// token is the current credential, refreshed by renewal.
	tokenMu sync.Mutex
	token   string

	errMu sync.Mutex
	err   error
}

// Join dials the endpoint, authenticates, and starts the read loop.
// Connection state transitions are delivered on States.
func Join(ctx context.Context, cfg Config) (*Channel, error) {
	if cfg.URL == "" {
		return nil, errors.New("rtc: channel requires a URL")
	}
	if cfg.Channel == "" || cfg.UID == "" {
		return nil, errors.New("rtc: channel and uid are required")
	}
	if cfg.OnData == nil {
		return nil, errors.New("rtc: channel requires a data handler")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.RenewTimeout <= 0 {
		cfg.RenewTimeout = DefaultRenewTimeout
	}
	if cfg.Redials <= 0 {
		cfg.Redials = DefaultRedials
	}

	c := &Channel{
		config: cfg,
		logger: cfg.Logger,
		done:   make(chan struct{}),
		states: make(chan ConnectionState, 8),
		token:  cfg.Token,
	}

	c.emitState(StateConnecting)
	conn, err := c.dial(ctx)
	if err != nil {
		c.emitState(StateDisconnected)
		close(c.states)
		close(c.done)
		return nil, err
	}

	c.conn = conn
	c.active.Store(true)
	c.emitState(StateConnected)
	go c.readLoop()
	return c, nil
}

// dial connects and performs the join handshake on a fresh connection.
func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.config.DialTimeout)
	defer cancel()

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, c.config.URL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("rtc: dial %s: status %d: %w", c.config.URL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("rtc: dial %s: %w", c.config.URL, err)
	}

	join := envelope{
		Type:    "join",
		Channel: c.config.Channel,
		UID:     c.config.UID,
		Token:   c.currentToken(),
	}
	if err := conn.WriteJSON(join); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rtc: send join: %w", err)
	}

	var ack envelope
	if err := conn.ReadJSON(&ack); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rtc: read join ack: %w", err)
	}
	switch ack.Type {
	case "joined":
		return conn, nil
	case "error":
		_ = conn.Close()
		return nil, fmt.Errorf("rtc: join rejected: %s", ack.Message)
	default:
		_ = conn.Close()
		return nil, fmt.Errorf("rtc: unexpected join response %q", ack.Type)
	}
}

// States is the connection-state stream. Closed after the channel
// reaches its terminal disconnected state.
func (c *Channel) States() <-chan ConnectionState {
	return c.states
}

// Err returns the terminal error, if any, once the channel is done.
func (c *Channel) Err() error {
	<-c.done
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// SetMuted toggles mic publishing via a control message.
func (c *Channel) SetMuted(muted bool) error {
	op := "unmute"
	if muted {
		op = "mute"
	}
	return c.sendJSON(envelope{Type: "control", Op: op})
}

// Leave closes the channel cleanly and waits for the read loop to exit.
// Safe to call more than once.
func (c *Channel) Leave() error {
	c.closeOnce.Do(func() {
		c.active.Store(false)
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn != nil {
			c.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(2*time.Second))
			c.writeMu.Unlock()
			_ = conn.Close()
		}
	})
	<-c.done
	return nil
}

func (c *Channel) sendJSON(v any) error {
	if !c.active.Load() {
		return errors.New("rtc: channel is closed")
	}
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(v)
}

// readLoop consumes frames until the connection ends, reconnecting on
// abnormal loss while the channel is active.
func (c *Channel) readLoop() {
	defer close(c.done)
	defer c.emitTerminal()

	var pendingSender string
	for {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if !c.active.Load() ||
				websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			if !c.redial() {
				c.setErr(err)
				return
			}
			pendingSender = ""
			continue
		}

		switch messageType {
		case websocket.TextMessage:
			var env envelope
			if err := json.Unmarshal(data, &env); err != nil {
				c.logWarn("malformed control frame dropped", err)
				continue
			}
			switch env.Type {
			case "stream":
				pendingSender = env.UID
			case "token_will_expire":
				go c.renew()
			case "error":
				c.setErr(fmt.Errorf("rtc: server error: %s", env.Message))
				return
			}
		case websocket.BinaryMessage:
			if pendingSender == "" || !c.active.Load() {
				continue
			}
			c.config.OnData(pendingSender, append([]byte(nil), data...))
			pendingSender = ""
		}
	}
}

// redial attempts a bounded reconnect with exponential backoff.
// Returns true when a fresh connection is joined.
func (c *Channel) redial() bool {
	c.emitState(StateReconnecting)

	for i := 0; i < c.config.Redials; i++ {
		if i > 0 {
			time.Sleep(time.Duration(1<<uint(i-1)) * 500 * time.Millisecond)
		}
		if !c.active.Load() {
			return false
		}

		conn, err := c.dial(context.Background())
		if err != nil {
			c.logWarn("reconnect attempt failed", err)
			continue
		}

		c.connMu.Lock()
		old := c.conn
		c.conn = conn
		c.connMu.Unlock()
		if old != nil {
			_ = old.Close()
		}
		c.emitState(StateConnected)
		return true
	}
	return false
}

// renew fetches a fresh token and sends it before expiry. Failure
// degrades to disconnection via the state stream.
func (c *Channel) renew() {
	if c.config.RenewToken == nil {
		c.teardown(errors.New("rtc: token expiring and no renewal configured"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.config.RenewTimeout)
	defer cancel()

	token, err := c.config.RenewToken(ctx)
	if err != nil {
		c.teardown(fmt.Errorf("rtc: token renewal failed: %w", err))
		return
	}

	c.tokenMu.Lock()
	c.token = token
	c.tokenMu.Unlock()

	if err := c.sendJSON(envelope{Type: "renew_token", Token: token}); err != nil {
		c.teardown(fmt.Errorf("rtc: send renewed token: %w", err))
	}
}

// teardown records the error and closes the connection so the read
// loop exits and emits the terminal state.
func (c *Channel) teardown(err error) {
	c.setErr(err)
	c.active.Store(false)
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Channel) currentToken() string {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	return c.token
}

func (c *Channel) emitTerminal() {
	c.active.Store(false)
	c.emitState(StateDisconnected)
	close(c.states)
}

func (c *Channel) emitState(s ConnectionState) {
	select {
	case c.states <- s:
	default:
		// Never block the read loop on a slow consumer.
	}
}

func (c *Channel) setErr(err error) {
	if err == nil {
		return
	}
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *Channel) logWarn(msg string, err error) {
	if c.logger == nil {
		return
	}
	c.logger.Warn(msg, map[string]any{"error": err.Error()})
}
