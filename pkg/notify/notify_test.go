package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/menta2k/face-capture/pkg/types"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic   string
	payload []byte
}

// fakeClient implements the parts of mqtt.Client the notifier uses
type fakeClient struct {
	mqtt.Client
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakeClient) IsConnected() bool { return true }
func (f *fakeClient) Disconnect(uint)   {}
func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{topic: topic, payload: payload.([]byte)})
	return doneToken{err: f.err}
}

type recorder struct {
	events []Event
	err    error
}

func (r *recorder) Notify(ctx context.Context, ev Event) error {
	r.events = append(r.events, ev)
	return r.err
}

func TestMQTTNotifierPublishes(t *testing.T) {
	fc := &fakeClient{}
	n := NewMQTTNotifier(MQTTConfig{TopicPrefix: "capture", QoS: 1}, fc)

	ev := Event{SessionID: "s1", Direction: types.Left, Message: "Left", LookingFor: "Left", Accepted: true, Reason: "accepted"}
	if err := n.Notify(context.Background(), ev); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	ev.Complete = true
	if err := n.Notify(context.Background(), ev); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	if len(fc.msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(fc.msgs))
	}
	if fc.msgs[0].topic != "capture/s1/progress" {
		t.Errorf("Unexpected topic %s", fc.msgs[0].topic)
	}
	if fc.msgs[1].topic != "capture/s1/complete" {
		t.Errorf("Unexpected completion topic %s", fc.msgs[1].topic)
	}
	if !strings.Contains(string(fc.msgs[0].payload), `"direction":"Left"`) {
		t.Errorf("Expected direction name in payload, got %s", fc.msgs[0].payload)
	}

	sent, failed := n.Stats()
	if sent != 2 || failed != 0 {
		t.Errorf("Expected 2/0 stats, got %d/%d", sent, failed)
	}
}

func TestMQTTNotifierPublishError(t *testing.T) {
	fc := &fakeClient{err: errors.New("broker rejected")}
	n := NewMQTTNotifier(MQTTConfig{TopicPrefix: "capture"}, fc)

	if err := n.Notify(context.Background(), Event{SessionID: "s"}); err == nil {
		t.Fatal("Expected publish error")
	}
	if _, failed := n.Stats(); failed != 1 {
		t.Errorf("Expected 1 error counted, got %d", failed)
	}

	n.Close()
	if err := n.Notify(context.Background(), Event{SessionID: "s"}); err == nil {
		t.Error("Expected error after close")
	}
}

func TestMultiFansOutAndJoinsErrors(t *testing.T) {
	a := &recorder{}
	b := &recorder{err: errors.New("b failed")}
	m := Multi{a, LogNotifier{}, b}

	err := m.Notify(context.Background(), Event{Direction: types.Straight, Accepted: true})
	if err == nil || !strings.Contains(err.Error(), "b failed") {
		t.Errorf("Expected joined error, got %v", err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("Expected each notifier to see the event once")
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
