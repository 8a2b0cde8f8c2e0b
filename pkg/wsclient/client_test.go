package wsclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func newServer(t *testing.T, reply func(frame []byte) string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.BinaryMessage {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply(msg))); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDetectLandmarks(t *testing.T) {
	var got []byte
	srv := newServer(t, func(frame []byte) string {
		got = frame
		return `{"faces":[{"box":{"x":5,"y":6,"w":70,"h":80},"confidence":0.9}]}`
	})
	defer srv.Close()

	c := NewClient(wsURL(srv))
	defer c.Close()

	// "hello" in base64
	faces, err := c.DetectLandmarks(context.Background(), "", "aGVsbG8=")
	if err != nil {
		t.Fatalf("DetectLandmarks failed: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("Expected raw frame bytes on the wire, got %q", got)
	}
	if len(faces) != 1 || faces[0].Box.W != 70 {
		t.Errorf("Unexpected faces: %+v", faces)
	}

	// Second call reuses the connection
	if _, err := c.DetectLandmarks(context.Background(), "", "aGVsbG8="); err != nil {
		t.Errorf("Second DetectLandmarks failed: %v", err)
	}
}

func TestPing(t *testing.T) {
	srv := newServer(t, func([]byte) string { return `{"faces":[]}` })
	defer srv.Close()

	c := NewClient(wsURL(srv))
	defer c.Close()
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestDialFailure(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/ws")
	if _, err := c.DetectLandmarks(context.Background(), "", "aGVsbG8="); err == nil {
		t.Error("Expected dial error")
	}
	if _, err := c.DetectLandmarks(context.Background(), "", "***"); err == nil {
		t.Error("Expected base64 error")
	}
}
