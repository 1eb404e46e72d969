package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketConfig configures the websocket sink.
type WebSocketConfig struct {
	URL              string
	Headers          http.Header
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// WebSocketSink sends each batch as one JSON text message. After a failed
// write the connection is dropped and redialed on the next batch.
type WebSocketSink struct {
	cfg    WebSocketConfig
	dialer *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	batches int64
	dials   int64
}

type batchMessage struct {
	Snapshots []Snapshot `json:"snapshots"`
}

func NewWebSocketSink(cfg WebSocketConfig) (*WebSocketSink, error) {
	if cfg.URL == "" {
		return nil, errors.New("websocket sink: url is required")
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &WebSocketSink{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			Proxy:            http.ProxyFromEnvironment,
		},
	}, nil
}

func (s *WebSocketSink) Send(ctx context.Context, batch []Snapshot) error {
	payload, err := json.Marshal(batchMessage{Snapshots: batch})
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		if err := s.dialLocked(ctx); err != nil {
			return err
		}
	}

	deadline := time.Now().Add(s.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetWriteDeadline(deadline)
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		_ = s.conn.Close()
		s.conn = nil
		return fmt.Errorf("write message: %w", err)
	}
	s.batches++
	return nil
}

func (s *WebSocketSink) dialLocked(ctx context.Context) error {
	conn, resp, err := s.dialer.DialContext(ctx, s.cfg.URL, s.cfg.Headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	s.conn = conn
	s.dials++
	return nil
}

// Counts returns how many batches were written and how many dials were made.
func (s *WebSocketSink) Counts() (batches, dials int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches, s.dials
}

// Close sends a close frame and closes the connection.
func (s *WebSocketSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}

	err := s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(5*time.Second),
	)

	closeErr := s.conn.Close()
	s.conn = nil

	if err != nil {
		return err
	}

	return closeErr
}
