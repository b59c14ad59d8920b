// Package loriotservice runs the LORIOT transport adapter: a long-lived
// WebSocket client on the LORIOT application feed. Uplink envelopes are
// forwarded to the ingestion pipeline; every other envelope type is ignored.
// The connection reconnects with bounded backoff until the context is
// cancelled.
package loriotservice

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	config "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Config"
	logger "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Logger"
	pipeline "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Pipeline"
)

// Envelope commands that carry an uplink. Everything else on the feed
// (gateway status, join notifications, tx confirmations) is skipped.
var uplinkCommands = map[string]bool{"up": true, "rx": true}

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 10 * time.Second
)

type Client struct {
	cfg      config.LoriotConfig
	logger   *logger.Logger
	ingestFn func(ctx context.Context, route pipeline.Route, payload []byte) pipeline.Outcome

	mu   sync.Mutex
	conn *websocket.Conn
	wg   sync.WaitGroup
}

func New(cfg config.LoriotConfig, pipe *pipeline.Pipeline, log *logger.Logger) *Client {
	return &Client{
		cfg:      cfg,
		logger:   log.WithComponent("loriot"),
		ingestFn: pipe.Ingest,
	}
}

// Start launches the connect/read loop. It returns immediately; the loop
// runs until ctx is cancelled (which includes the bounded run-seconds mode,
// applied by the caller as a context deadline).
func (c *Client) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
}

// Stop closes the current connection and waits for the loop to exit. The
// context passed to Start must be cancelled first.
func (c *Client) Stop() {
	c.closeConn()
	c.wg.Wait()
}

func (c *Client) run(ctx context.Context) {
	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		err := c.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.logger.WithError(err).Warn("loriot session ended, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// session dials once and reads until the connection drops or ctx ends.
func (c *Client) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	if c.cfg.Insecure {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}
	c.setConn(conn)
	defer c.closeConn()
	c.logger.WithField("url", c.cfg.URL).Info("connected to loriot feed")

	conn.SetReadDeadline(time.Now().Add(c.cfg.PingInterval + c.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.PingInterval + c.cfg.PongTimeout))
	})

	// Keepalive pings; the read deadline above detects a dead peer.
	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.handleMessage(ctx, message)
	}
}

// handleMessage dispatches one raw frame. Malformed JSON and non-uplink
// envelopes are skipped without error.
func (c *Client) handleMessage(ctx context.Context, message []byte) {
	var env map[string]interface{}
	if err := json.Unmarshal(message, &env); err != nil {
		c.logger.Warn("invalid JSON frame on loriot feed, skipping")
		return
	}

	cmd := envelopeCommand(env)
	if !uplinkCommands[cmd] {
		c.logger.WithField("cmd", cmd).Debug("ignoring non-uplink envelope")
		return
	}

	route := pipeline.Route{
		DevEUI:     pipeline.ExtractDevEUI(env),
		Port:       pipeline.ExtractPort(env),
		BindSensor: true,
	}
	route.Topic = routeTopic(route)

	outcome := c.ingestFn(ctx, route, message)
	if outcome.Status == pipeline.StatusSkipped {
		c.logger.WithField("reason", outcome.Reason).Debug("loriot uplink skipped")
	}
}

func envelopeCommand(env map[string]interface{}) string {
	for _, key := range []string{"cmd", "type"} {
		if s, ok := env[key].(string); ok && s != "" {
			return strings.ToLower(s)
		}
	}
	return ""
}

// routeTopic synthesizes the reading's source identifier in the same shape
// the broker path records.
func routeTopic(route pipeline.Route) string {
	var b strings.Builder
	b.WriteString("loriot")
	if route.DevEUI != "" {
		b.WriteString("/")
		b.WriteString(route.DevEUI)
	}
	if route.Port != nil {
		b.WriteString("/")
		b.WriteString(strconv.Itoa(*route.Port))
	}
	return b.String()
}

// IsConnected reports whether a feed session is currently established.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
