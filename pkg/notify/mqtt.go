package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	jsoniter "github.com/json-iterator/go"

	"github.com/menta2k/face-capture/pkg/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MQTTConfig configures the broker connection
type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// MQTTNotifier publishes events to <prefix>/<session>/progress and
// completion to <prefix>/<session>/complete
type MQTTNotifier struct {
	cfg    MQTTConfig
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

// NewMQTTNotifier creates a notifier around an existing client, mainly for tests
func NewMQTTNotifier(cfg MQTTConfig, client mqtt.Client) *MQTTNotifier {
	return &MQTTNotifier{cfg: cfg, client: client, connected: client != nil && client.IsConnected()}
}

// DialMQTT connects to the broker with auto-reconnect enabled
func DialMQTT(ctx context.Context, cfg MQTTConfig) (*MQTTNotifier, error) {
	n := &MQTTNotifier{cfg: cfg}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		n.setConnected(true)
		log.Info(log.Fields{"broker": cfg.Broker, "client_id": cfg.ClientID}, "mqtt connection established")
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		n.setConnected(false)
		log.Warn(log.Fields{"broker": cfg.Broker, "error": err}, "mqtt connection lost, will auto-reconnect")
	}

	n.client = mqtt.NewClient(opts)

	timeout := 5 * time.Second
	if d, ok := ctx.Deadline(); ok {
		timeout = time.Until(d)
	}
	token := n.client.Connect()
	// Disconnect stops the connect-retry loop on failure
	if !token.WaitTimeout(timeout) {
		n.client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		n.client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	n.setConnected(true)
	return n, nil
}

func (n *MQTTNotifier) setConnected(v bool) {
	n.mu.Lock()
	n.connected = v
	n.mu.Unlock()
}

func (n *MQTTNotifier) isConnected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.connected
}

// Topic returns the topic an event is published on
func (n *MQTTNotifier) Topic(ev Event) string {
	kind := "progress"
	if ev.Complete && ev.Accepted {
		kind = "complete"
	}
	return fmt.Sprintf("%s/%s/%s", n.cfg.TopicPrefix, ev.SessionID, kind)
}

// Notify publishes the event as JSON
func (n *MQTTNotifier) Notify(ctx context.Context, ev Event) error {
	if !n.isConnected() {
		n.countError()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		n.countError()
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	token := n.client.Publish(n.Topic(ev), n.cfg.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		n.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		n.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	n.mu.Lock()
	n.published++
	n.mu.Unlock()
	return nil
}

func (n *MQTTNotifier) countError() {
	n.mu.Lock()
	n.errors++
	n.mu.Unlock()
}

// Stats returns the published and failed counts
func (n *MQTTNotifier) Stats() (published, errors uint64) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.published, n.errors
}

// Close disconnects from the broker
func (n *MQTTNotifier) Close() error {
	if n.client != nil && n.client.IsConnected() {
		n.client.Disconnect(250)
	}
	n.setConnected(false)
	return nil
}
