// Package ingestor runs the MQTT transport adapter: a long-lived broker
// client that subscribes to the configured topic patterns and feeds every
// message through the ingestion pipeline. Reconnects are automatic with
// bounded backoff, and every (re)connect resubscribes the full topic set.
package ingestor

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	config "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Config"
	logger "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Logger"
	pipeline "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Pipeline"
)

type inbound struct {
	topic   string
	payload []byte
}

type Listener struct {
	cfg      config.MQTTConfig
	pipeline *pipeline.Pipeline
	logger   *logger.Logger
	client   mqtt.Client
	msgCh    chan inbound
	wg       sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

func New(cfg config.MQTTConfig, pipe *pipeline.Pipeline, log *logger.Logger) *Listener {
	return &Listener{
		cfg:      cfg,
		pipeline: pipe,
		logger:   log.WithComponent("mqtt-listener"),
		msgCh:    make(chan inbound, 4096),
	}
}

// Start connects to the broker and launches the worker that drains the
// message queue. The worker stops when ctx is cancelled.
func (l *Listener) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(l.brokerURL()).
		SetClientID(l.cfg.ClientID).
		SetOrderMatters(false).
		SetKeepAlive(l.cfg.KeepAlive).
		SetPingTimeout(l.cfg.PingTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(1 * time.Second).
		SetMaxReconnectInterval(10 * time.Second).
		SetCleanSession(false)

	if l.cfg.BrokerUser != "" {
		opts.SetUsername(l.cfg.BrokerUser)
		opts.SetPassword(l.cfg.BrokerPass)
	}

	if l.cfg.UseTLS {
		tlsCfg, err := l.tlsConfig(l.cfg.CACertPath)
		if err != nil {
			return err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		l.logger.WithError(err).Warn("mqtt connection lost, reconnecting")
	}
	opts.OnConnect = func(c mqtt.Client) {
		l.subscribeAll(c)
	}

	l.client = mqtt.NewClient(opts)
	if tk := l.client.Connect(); tk.Wait() && tk.Error() != nil {
		return fmt.Errorf("mqtt connect failed: %w", tk.Error())
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.worker(ctx)
	}()

	return nil
}

// Stop disconnects from the broker and waits for the worker to exit. The
// context passed to Start must be cancelled first. Paho dispatches handlers
// on their own goroutines and Disconnect does not join them, so the queue is
// never closed here; late callbacks are dropped instead.
func (l *Listener) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	if l.client != nil && l.client.IsConnected() {
		l.client.Disconnect(500)
	}
	l.wg.Wait()
}

func (l *Listener) IsConnected() bool {
	return l.client != nil && l.client.IsConnected()
}

// subscribeAll runs on every (re)connect. Subscribing to an already-held
// filter is idempotent at the broker, so resubscription after a reconnect
// never double-delivers.
func (l *Listener) subscribeAll(c mqtt.Client) {
	for _, pattern := range l.cfg.Topics {
		topic := pattern
		if l.cfg.SharedGroup != "" {
			topic = fmt.Sprintf("$share/%s/%s", l.cfg.SharedGroup, pattern)
		}
		l.logger.WithField("topic", topic).Info("subscribing")
		if token := c.Subscribe(topic, byte(l.cfg.QoS), l.onMessage); token.Wait() && token.Error() != nil {
			l.logger.WithError(token.Error()).WithField("topic", topic).Error("subscribe failed")
		}
	}
}

func (l *Listener) onMessage(_ mqtt.Client, m mqtt.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	payload := make([]byte, len(m.Payload()))
	copy(payload, m.Payload())
	select {
	case l.msgCh <- inbound{topic: m.Topic(), payload: payload}:
	default:
		l.logger.WithField("topic", m.Topic()).Warn("message queue full, dropping uplink")
	}
}

func (l *Listener) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-l.msgCh:
			l.process(ctx, msg)
		}
	}
}

// process handles exactly one message. Faults are logged and swallowed so a
// bad uplink never terminates the loop.
func (l *Listener) process(ctx context.Context, msg inbound) {
	route, ok := ParseTopic(msg.topic)
	if !ok {
		l.logger.WithField("topic", msg.topic).Warn("unroutable topic, skipping")
		return
	}
	outcome := l.pipeline.Ingest(ctx, route, msg.payload)
	if outcome.Status == pipeline.StatusSkipped {
		l.logger.WithField("topic", msg.topic).WithField("reason", outcome.Reason).Debug("uplink skipped")
	}
}

func (l *Listener) brokerURL() string {
	scheme := "tcp"
	if l.cfg.UseTLS {
		scheme = "tcps"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, l.cfg.BrokerHost, l.cfg.BrokerPort)
}

func (l *Listener) tlsConfig(caFile string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return cfg, nil
	}
	ca, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}
	cp := x509.NewCertPool()
	if !cp.AppendCertsFromPEM(ca) {
		return nil, fmt.Errorf("bad CA file")
	}
	cfg.RootCAs = cp
	return cfg, nil
}
