package llamacpp

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDetectLandmarks(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"{\"faces\":[{\"box\":{\"x\":1,\"y\":2,\"w\":3,\"h\":4},\"confidence\":0.5}]}"}}]}`)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL + "/")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	faces, err := c.DetectLandmarks(context.Background(), "vision", "aGVsbG8=")
	if err != nil {
		t.Fatalf("DetectLandmarks failed: %v", err)
	}
	if len(faces) != 1 || faces[0].Box.W != 3 || faces[0].Confidence != 0.5 {
		t.Errorf("Unexpected faces: %+v", faces)
	}
	if !strings.Contains(gotBody, "data:image/jpeg;base64,aGVsbG8=") {
		t.Errorf("Expected data URL in request, got %s", gotBody)
	}
	if !strings.Contains(gotBody, `"json_object"`) {
		t.Errorf("Expected JSON response format in request")
	}
}

func TestDetectLandmarksServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	if _, err := c.DetectLandmarks(context.Background(), "vision", "aGVsbG8="); err == nil {
		t.Error("Expected error on 503")
	}
	if _, err := c.DetectLandmarks(context.Background(), "vision", ""); err == nil {
		t.Error("Expected error for empty payload")
	}
}

func TestPing(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" && healthy {
			io.WriteString(w, `{"status":"ok"}`)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Expected healthy server, got %v", err)
	}
	healthy = false
	if err := c.Ping(context.Background()); err == nil {
		t.Error("Expected error from unhealthy server")
	}
}

func TestDataURL(t *testing.T) {
	if got := dataURL("iVBORw0KGgoAAAA"); !strings.HasPrefix(got, "data:image/png;base64,") {
		t.Errorf("Expected PNG data URL, got %s", got)
	}
	if got := dataURL("/9j/4AAQ"); !strings.HasPrefix(got, "data:image/jpeg;base64,") {
		t.Errorf("Expected JPEG data URL, got %s", got)
	}
}
