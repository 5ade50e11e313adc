// Package hass talks to the Home Assistant websocket API: authentication, command/result
// correlation, event subscriptions, entity states and remote template rendering.
package hass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultPingInterval = 30 * time.Second
	abandonTimeout      = 5 * time.Second
)

var (
	ErrClosed      = errors.New("home assistant connection closed")
	ErrAuthInvalid = errors.New("home assistant rejected the access token")
)

// Error is a failed command result as reported by Home Assistant.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("home assistant error %s: %s", e.Code, e.Message)
}

type inbound struct {
	ID      int64           `json:"id"`
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error"`
	Event   json.RawMessage `json:"event"`
	Message string          `json:"message"`
	Version string          `json:"ha_version"`
}

type reply struct {
	result json.RawMessage
	err    error
}

type ClientOptions struct {
	Logger       *slog.Logger
	PingInterval time.Duration
}

// Client is one authenticated connection. Call Run to start reading; Call and Subscribe
// block until Run delivers their result.
type Client struct {
	sock         Socket
	logger       *slog.Logger
	pingInterval time.Duration
	version      string

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan reply
	events  map[int64]func(json.RawMessage)
	closed  bool
}

// Connect dials url and completes the auth handshake with token.
func Connect(ctx context.Context, dialer Dialer, url, token string, opts ClientOptions) (*Client, error) {
	if dialer == nil {
		dialer = RealDialer{}
	}
	sock, err := dialer.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial home assistant: %w", err)
	}
	c := NewClient(sock, opts)
	if err := c.authenticate(ctx, token); err != nil {
		_ = sock.Close()
		return nil, err
	}
	return c, nil
}

// NewClient wraps an already-open socket. The auth handshake is not performed.
func NewClient(sock Socket, opts ClientOptions) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	interval := opts.PingInterval
	if interval <= 0 {
		interval = defaultPingInterval
	}
	return &Client{
		sock:         sock,
		logger:       logger,
		pingInterval: interval,
		pending:      map[int64]chan reply{},
		events:       map[int64]func(json.RawMessage){},
	}
}

func (c *Client) authenticate(ctx context.Context, token string) error {
	for {
		msg, err := c.readMessage(ctx)
		if err != nil {
			return fmt.Errorf("auth handshake: %w", err)
		}
		switch msg.Type {
		case "auth_required":
			if err := c.writeJSON(ctx, map[string]any{"type": "auth", "access_token": token}); err != nil {
				return fmt.Errorf("send auth: %w", err)
			}
		case "auth_ok":
			c.version = msg.Version
			c.logger.Info("home assistant authenticated", "ha_version", msg.Version)
			return nil
		case "auth_invalid":
			if msg.Message != "" {
				return fmt.Errorf("%w: %s", ErrAuthInvalid, msg.Message)
			}
			return ErrAuthInvalid
		default:
			return fmt.Errorf("auth handshake: unexpected message type %q", msg.Type)
		}
	}
}

// Version is the Home Assistant version reported during auth.
func (c *Client) Version() string {
	return c.version
}

// Run reads messages and sends keepalive pings until ctx ends or the connection fails.
// Pending calls fail with ErrClosed once Run returns.
func (c *Client) Run(ctx context.Context) error {
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer stop()
		defer c.shutdown()
		for {
			text, err := c.sock.ReadText(gctx)
			if err != nil {
				if errors.Is(err, io.EOF) || gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("read home assistant message: %w", err)
			}
			var msg inbound
			if err := json.Unmarshal([]byte(text), &msg); err != nil {
				c.logger.Warn("home assistant frame not decodable", "err", err)
				continue
			}
			c.dispatch(msg)
		}
	})
	g.Go(func() error {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				pingCtx, cancel := context.WithTimeout(gctx, c.pingInterval)
				_, err := c.Call(pingCtx, map[string]any{"type": "ping"})
				cancel()
				if err != nil && gctx.Err() == nil {
					_ = c.sock.Close()
					return fmt.Errorf("home assistant ping: %w", err)
				}
			}
		}
	})
	return g.Wait()
}

func (c *Client) dispatch(msg inbound) {
	switch msg.Type {
	case "result", "pong":
		c.mu.Lock()
		ch, ok := c.pending[msg.ID]
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("home assistant result without caller", "id", msg.ID)
			return
		}
		if msg.Type == "result" && !msg.Success {
			err := error(msg.Error)
			if msg.Error == nil {
				err = &Error{Code: "unknown_error", Message: "command failed"}
			}
			ch <- reply{err: err}
			return
		}
		ch <- reply{result: msg.Result}
	case "event":
		c.mu.Lock()
		fn := c.events[msg.ID]
		c.mu.Unlock()
		if fn != nil {
			fn(msg.Event)
		}
	default:
		c.logger.Debug("home assistant message ignored", "type", msg.Type, "id", msg.ID)
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	c.closed = true
	pending := c.pending
	c.pending = map[int64]chan reply{}
	clear(c.events)
	c.mu.Unlock()
	for _, ch := range pending {
		ch <- reply{err: ErrClosed}
	}
}

// Call sends cmd with a fresh id and waits for its result.
func (c *Client) Call(ctx context.Context, cmd map[string]any) (json.RawMessage, error) {
	id, ch, err := c.register(nil)
	if err != nil {
		return nil, err
	}
	return c.roundTrip(ctx, id, ch, cmd)
}

// Subscribe sends cmd and routes every event carrying its id to onEvent until Unsubscribe.
// onEvent runs on the read loop and must not block.
func (c *Client) Subscribe(ctx context.Context, cmd map[string]any, onEvent func(json.RawMessage)) (int64, error) {
	id, ch, err := c.register(onEvent)
	if err != nil {
		return 0, err
	}
	if _, err := c.roundTrip(ctx, id, ch, cmd); err != nil {
		c.dropEvents(id)
		if ctx.Err() != nil {
			// the server may have accepted the subscription after we stopped waiting
			go c.abandon(id)
		}
		return 0, err
	}
	return id, nil
}

func (c *Client) abandon(id int64) {
	ctx, cancel := context.WithTimeout(context.Background(), abandonTimeout)
	defer cancel()
	if err := c.Unsubscribe(ctx, id); err != nil {
		c.logger.Debug("abandoned subscription cleanup failed", "id", id, "err", err)
	}
}

// Unsubscribe stops the subscription id. The local handler is removed even if the call fails.
func (c *Client) Unsubscribe(ctx context.Context, id int64) error {
	c.dropEvents(id)
	_, err := c.Call(ctx, map[string]any{"type": "unsubscribe_events", "subscription": id})
	return err
}

func (c *Client) register(onEvent func(json.RawMessage)) (int64, chan reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, nil, ErrClosed
	}
	c.nextID++
	id := c.nextID
	ch := make(chan reply, 1)
	c.pending[id] = ch
	if onEvent != nil {
		c.events[id] = onEvent
	}
	return id, ch, nil
}

func (c *Client) roundTrip(ctx context.Context, id int64, ch chan reply, cmd map[string]any) (json.RawMessage, error) {
	frame := make(map[string]any, len(cmd)+1)
	for k, v := range cmd {
		frame[k] = v
	}
	frame["id"] = id
	if err := c.writeJSON(ctx, frame); err != nil {
		c.forget(id)
		return nil, err
	}
	select {
	case r := <-ch:
		return r.result, r.err
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

func (c *Client) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) dropEvents(id int64) {
	c.mu.Lock()
	delete(c.events, id)
	c.mu.Unlock()
}

func (c *Client) writeJSON(ctx context.Context, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := c.sock.WriteText(ctx, string(raw)); err != nil {
		return fmt.Errorf("write home assistant message: %w", err)
	}
	return nil
}

func (c *Client) readMessage(ctx context.Context) (inbound, error) {
	text, err := c.sock.ReadText(ctx)
	if err != nil {
		return inbound{}, err
	}
	var msg inbound
	if err := json.Unmarshal([]byte(text), &msg); err != nil {
		return inbound{}, fmt.Errorf("decode home assistant message: %w", err)
	}
	return msg, nil
}

func (c *Client) Close() error {
	return c.sock.Close()
}
