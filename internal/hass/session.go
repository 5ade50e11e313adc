package hass

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

type SessionOptions struct {
	URL    string
	Token  string
	Dialer Dialer
	Logger *slog.Logger
	// OnConnect runs after every successful handshake, before the session is considered up.
	// An error drops the connection and retries.
	OnConnect func(ctx context.Context, c *Client) error
	// OnDisconnect runs after a connection that passed OnConnect is lost.
	OnDisconnect func(err error)
	PingInterval time.Duration
}

// Session keeps a Client connected, reconnecting with exponential backoff.
type Session struct {
	opts   SessionOptions
	logger *slog.Logger

	mu     sync.RWMutex
	client *Client
}

func NewSession(opts SessionOptions) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if opts.Dialer == nil {
		opts.Dialer = RealDialer{}
	}
	return &Session{opts: opts, logger: logger}
}

// Client returns the live client, or nil while disconnected.
func (s *Session) Client() *Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// Run connects and reconnects until ctx ends. An invalid token stops the session.
func (s *Session) Run(ctx context.Context) error {
	backoff := minBackoff
	for {
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrAuthInvalid) {
			return err
		}
		if err == nil {
			backoff = minBackoff
		}
		s.logger.Warn("home assistant connection lost, retrying", "err", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (s *Session) runOnce(ctx context.Context) error {
	c, err := Connect(ctx, s.opts.Dialer, s.opts.URL, s.opts.Token, ClientOptions{
		Logger:       s.logger,
		PingInterval: s.opts.PingInterval,
	})
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(runCtx) }()

	s.setClient(c)
	if s.opts.OnConnect != nil {
		if err := s.opts.OnConnect(ctx, c); err != nil {
			s.setClient(nil)
			cancel()
			<-runErr
			return err
		}
	}
	err = <-runErr
	s.setClient(nil)
	if s.opts.OnDisconnect != nil {
		s.opts.OnDisconnect(err)
	}
	return err
}

func (s *Session) setClient(c *Client) {
	s.mu.Lock()
	s.client = c
	s.mu.Unlock()
}
