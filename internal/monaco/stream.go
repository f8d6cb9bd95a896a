package monaco

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/matchpulse/odds-engine/internal/pkg/config"
	"github.com/matchpulse/odds-engine/internal/pkg/ratelimit"
)

const (
	pingInterval    = 60 * time.Second
	writeTimeout    = 10 * time.Second
	maxReconnectGap = 60 * time.Second
)

// subscriptions requested on every authenticated connection.
var subscriptionTypes = []string{MsgMarketPriceUpdate, MsgMarketStatusUpdate}

// StreamClient maintains the venue websocket: authenticate, subscribe, keep
// alive with pings, re-authenticate in place when the session rotates tokens,
// and reconnect with exponential backoff when the connection drops. Decoded
// messages go to the sink (the batcher).
type StreamClient struct {
	url        string
	session    *SessionManager
	subLimiter *ratelimit.Limiter
	log        *slog.Logger
	sink       func(StreamMessage)

	tokenCh chan string
}

func NewStreamClient(cfg *config.MonacoConfig, session *SessionManager, subLimiter *ratelimit.Limiter, log *slog.Logger, sink func(StreamMessage)) *StreamClient {
	c := &StreamClient{
		url:        cfg.StreamURL,
		session:    session,
		subLimiter: subLimiter,
		log:        log,
		sink:       sink,
		tokenCh:    make(chan string, 1),
	}
	session.OnTokenRotation(func(token string) {
		select {
		case c.tokenCh <- token:
		default:
			// A pending rotation is already queued; the connection will pick
			// up the current token when it processes it.
		}
	})
	return c
}

// Run blocks until ctx is cancelled, reconnecting on every failure. The
// backoff doubles per consecutive failure and resets once a connection
// authenticates.
func (c *StreamClient) Run(ctx context.Context) {
	attempt := 0
	for {
		authenticated, err := c.connectOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if authenticated {
			attempt = 0
		}
		delay := reconnectDelay(attempt)
		attempt++
		c.log.Warn("stream connection lost, reconnecting", "error", err, "delay", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func reconnectDelay(attempt int) time.Duration {
	delay := time.Second << uint(attempt)
	if delay > maxReconnectGap || delay <= 0 {
		return maxReconnectGap
	}
	return delay
}

// connectOnce runs one connection to termination. It reports whether the
// venue acknowledged authentication, which gates the backoff reset.
func (c *StreamClient) connectOnce(ctx context.Context) (bool, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to dial stream: %w", err)
	}
	defer conn.Close()

	if err := c.writeJSON(conn, map[string]any{
		"action":      "authenticate",
		"accessToken": c.session.AccessToken(),
	}); err != nil {
		return false, err
	}

	msgCh := make(chan StreamMessage, 64)
	errCh := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			var msg StreamMessage
			if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
				c.log.Debug("skipping undecodable stream frame", "error", err)
				continue
			}
			msg.ReceivedAt = time.Now()
			select {
			case msgCh <- msg:
			case <-done:
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	authenticated := false
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout))
			return authenticated, ctx.Err()

		case err := <-errCh:
			return authenticated, fmt.Errorf("stream read failed: %w", err)

		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return authenticated, fmt.Errorf("stream ping failed: %w", err)
			}

		case token := <-c.tokenCh:
			// Keep the live connection authorized past the old token's expiry.
			if err := c.writeJSON(conn, map[string]any{
				"action":      "authenticate",
				"accessToken": token,
			}); err != nil {
				return authenticated, err
			}
			c.log.Info("re-authenticated live stream connection")

		case msg := <-msgCh:
			if msg.Type == MsgAuthenticationUpdate {
				if !authenticated {
					authenticated = true
					if err := c.subscribe(ctx, conn); err != nil {
						return authenticated, err
					}
				}
				continue
			}
			c.sink(msg)
		}
	}
}

func (c *StreamClient) subscribe(ctx context.Context, conn *websocket.Conn) error {
	for _, subType := range subscriptionTypes {
		if err := c.subLimiter.Wait(ctx); err != nil {
			return err
		}
		if err := c.writeJSON(conn, map[string]any{
			"action":           "subscribe",
			"subscriptionType": subType,
			"subscriptionIds":  []string{"*"},
		}); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", subType, err)
		}
	}
	c.log.Info("stream subscriptions established", "types", subscriptionTypes)
	return nil
}

func (c *StreamClient) writeJSON(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}
