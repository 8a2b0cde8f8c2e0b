// Package wsclient is a landmark backend that streams frames to a
// detection service over a websocket and reads back JSON detections.
package wsclient

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/menta2k/face-capture/pkg/detection"
	"github.com/menta2k/face-capture/pkg/log"
	"github.com/menta2k/face-capture/pkg/types"
)

// Client holds one websocket connection, redialed on demand
type Client struct {
	url          string
	header       http.Header
	conn         *websocket.Conn
	mu           sync.Mutex
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewClient creates a client for the given ws:// or wss:// URL.
// The connection is opened lazily.
func NewClient(url string) *Client {
	return &Client{
		url:          url,
		readTimeout:  10 * time.Second,
		writeTimeout: 5 * time.Second,
	}
}

// WithHeader sets headers sent on the handshake
func (c *Client) WithHeader(h http.Header) *Client {
	c.header = h
	return c
}

// connect dials the service. Caller must hold mu.
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	conn.SetPingHandler(func(appData string) error {
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.writeTimeout))
		if err != nil {
			log.Warn(log.Fields{"error": err}, "error sending pong")
		}
		return nil
	})

	log.Info(log.Fields{"url": c.url}, "connected to landmark service")
	c.conn = conn
	return conn, nil
}

// drop closes the current connection. Caller must hold mu.
func (c *Client) drop() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Ping dials if needed and round-trips a control ping
func (c *Client) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
		c.drop()
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// DetectLandmarks sends the encoded frame as one binary message and
// decodes the JSON reply. The model argument is unused by this backend.
func (c *Client) DetectLandmarks(ctx context.Context, model, imgB64 string) ([]types.Face, error) {
	frame, err := base64.StdEncoding.DecodeString(imgB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 image: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		c.drop()
		return nil, fmt.Errorf("error sending frame: %w", err)
	}

	deadline = time.Now().Add(c.readTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)
	_, message, err := conn.ReadMessage()
	if err != nil {
		c.drop()
		return nil, fmt.Errorf("error reading detection message: %w", err)
	}
	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Time{})

	log.Debug(log.Fields{"frame_bytes": len(frame), "reply_bytes": len(message)}, "landmark reply received")

	return detection.ParseResponse(string(message))
}

// Close shuts the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(c.writeTimeout))
	c.drop()
	return nil
}
