// Package mqtt provides the MQTT ingress client that feeds wire messages to
// the router.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/chipmonitor/ingest/internal/bus"
	"github.com/chipmonitor/ingest/internal/config"
	"github.com/chipmonitor/ingest/internal/event"
	"github.com/chipmonitor/ingest/internal/log"
)

// Router is the decode entrypoint the client hands every message to. The
// implementation must not block.
type Router interface {
	Handle(topic string, payload []byte)
}

// Stats is a snapshot of receive counters.
type Stats struct {
	Connected        bool
	MessagesReceived uint64
	BytesReceived    uint64
	LastMessage      time.Time
	ConnectedSince   time.Time
	Topics           []string
}

// Client subscribes to the configured topic filters and routes inbound
// messages. The paho callback only updates counters and calls the router,
// decode work runs on the scheduler.
type Client struct {
	client            mqtt.Client
	router            Router
	bus               *bus.Bus
	topics            []string
	qos               byte
	subscribeTimeout  time.Duration
	disconnectTimeout uint
	log               *log.Logger

	mu        sync.Mutex
	messages  uint64
	bytes     uint64
	lastMsg   time.Time
	connected time.Time
}

// NewClient connects to the broker and subscribes. Connection state changes
// are logged and republished as device events so downstream consumers see
// ingress health.
func NewClient(cfg *config.MQTTConfig, router Router, b *bus.Bus, logger *log.Logger) (*Client, error) {
	c := &Client{
		router:            router,
		bus:               b,
		topics:            cfg.Topics,
		qos:               cfg.QoS,
		subscribeTimeout:  cfg.SubscribeTimeout,
		disconnectTimeout: cfg.DisconnectTimeout,
		log:               logger,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(cfg.MaxReconnectInterval)
	opts.SetResumeSubs(true)
	opts.SetOrderMatters(false)

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		if err != nil {
			logger.Error("MQTT connection lost: %v", err)
		}
		c.publishConnectionEvent("connection_lost", "warning")
	})

	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		logger.Info("MQTT reconnecting...")
	})

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.Info("MQTT connected successfully")
		c.mu.Lock()
		c.connected = time.Now()
		c.mu.Unlock()
		c.publishConnectionEvent("connected", "info")
	})

	if cfg.TLSEnabled {
		tlsConfig, err := newTLSConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("%w: mqtt connect exceeded %s", event.ErrTimeout, cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	c.client = client
	return c, nil
}

// newTLSConfig creates a TLS configuration from MQTT config
func newTLSConfig(cfg *config.MQTTConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		// Note: Enabling InsecureSkipVerify weakens TLS security and should only be used for testing.
		InsecureSkipVerify: cfg.InsecureSkip, // #nosec G402 - configurable for testing environments
		MinVersion:         tls.VersionTLS12,
	}

	if cfg.CACert != "" {
		caCert, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA cert")
		}
		tlsConfig.RootCAs = caCertPool
	}

	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client cert/key: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// Subscribe registers the configured topic filters. The message callback
// must stay cheap; anything slow belongs in the router's scheduler task.
func (c *Client) Subscribe() error {
	filters := make(map[string]byte, len(c.topics))
	for _, topic := range c.topics {
		filters[topic] = c.qos
	}

	token := c.client.SubscribeMultiple(filters, func(_ mqtt.Client, msg mqtt.Message) {
		c.mu.Lock()
		c.messages++
		c.bytes += uint64(len(msg.Payload()))
		c.lastMsg = time.Now()
		c.mu.Unlock()

		c.router.Handle(msg.Topic(), msg.Payload())
	})

	if !token.WaitTimeout(c.subscribeTimeout) {
		return fmt.Errorf("%w: mqtt subscribe exceeded %s", event.ErrTimeout, c.subscribeTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	c.log.Info("Subscribed to %d topic filter(s)", len(c.topics))
	return nil
}

// IsConnected reports the broker connection state.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

// GetStats snapshots the receive counters.
func (c *Client) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Connected:        c.IsConnected(),
		MessagesReceived: c.messages,
		BytesReceived:    c.bytes,
		LastMessage:      c.lastMsg,
		ConnectedSince:   c.connected,
		Topics:           append([]string(nil), c.topics...),
	}
}

// publishConnectionEvent reports ingress connectivity on the device-events
// channel. Nil bus is allowed in tests.
func (c *Client) publishConnectionEvent(eventType, severity string) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(event.ChannelDeviceEvents, "mqtt", event.DeviceEvent{
		DeviceID:   "mqtt_ingress",
		DeviceType: "SYSTEM",
		Vendor:     "SYSTEM",
		EventType:  eventType,
		Severity:   severity,
	}, "mqtt_ingress")
}

// Close disconnects from the MQTT broker
func (c *Client) Close() error {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(c.disconnectTimeout)
	}
	return nil
}
