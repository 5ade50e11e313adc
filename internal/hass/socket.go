package hass

import (
	"context"
	"io"
	"sync"

	"github.com/coder/websocket"
)

// readLimit covers get_states on large installations.
const readLimit = 32 << 20

type Socket interface {
	ReadText(ctx context.Context) (string, error)
	WriteText(ctx context.Context, text string) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Socket, error)
}

type RealDialer struct{}

func (RealDialer) Dial(ctx context.Context, url string) (Socket, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(readLimit)
	return &realSocket{conn: conn}, nil
}

type realSocket struct {
	conn *websocket.Conn
}

func (s *realSocket) ReadText(ctx context.Context) (string, error) {
	_, data, err := s.conn.Read(ctx)
	if err != nil {
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return "", io.EOF
		}
		return "", err
	}
	return string(data), nil
}

func (s *realSocket) WriteText(ctx context.Context, text string) error {
	return s.conn.Write(ctx, websocket.MessageText, []byte(text))
}

func (s *realSocket) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

// FakeSocket is an in-memory Socket for tests. Frames written by the client are exposed on
// Written; frames pushed with Emit are returned by ReadText. Emit after Close is a no-op.
type FakeSocket struct {
	readCh  chan string
	Written chan string

	mu     sync.Mutex
	closed bool
}

func NewFakeSocket() *FakeSocket {
	return &FakeSocket{
		readCh:  make(chan string, 64),
		Written: make(chan string, 64),
	}
}

func (f *FakeSocket) Emit(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.readCh <- text
}

func (f *FakeSocket) ReadText(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case text, ok := <-f.readCh:
		if !ok {
			return "", io.EOF
		}
		return text, nil
	}
}

func (f *FakeSocket) WriteText(ctx context.Context, text string) error {
	select {
	case f.Written <- text:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *FakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.readCh)
	}
	return nil
}

// FakeDialer hands out a fixed socket.
type FakeDialer struct {
	Sock Socket
	Err  error
}

func (d FakeDialer) Dial(context.Context, string) (Socket, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Sock, nil
}
