package monaco

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/matchpulse/odds-engine/internal/pkg/config"
	"github.com/matchpulse/odds-engine/internal/pkg/ratelimit"
)

// refreshLead is how long before access token expiry a refresh is attempted.
const refreshLead = 2 * time.Minute

// SessionManager owns the venue token pair and keeps the access token fresh
// in the background. Consumers read the current token through AccessToken and
// may register for rotation callbacks (the stream re-authenticates its live
// connection on rotation).
type SessionManager struct {
	baseURL    string
	appID      string
	apiKey     string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	log        *slog.Logger

	mu               sync.Mutex
	accessToken      string
	refreshToken     string
	accessExpiresAt  time.Time
	refreshExpiresAt time.Time
	refreshTimer     *time.Timer
	onRotate         []func(token string)
	stopped          bool
}

func NewSessionManager(cfg *config.MonacoConfig, limiter *ratelimit.Limiter, log *slog.Logger) *SessionManager {
	return &SessionManager{
		baseURL:    cfg.BaseURL,
		appID:      cfg.AppID,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    limiter,
		log:        log,
	}
}

// OnTokenRotation registers a callback invoked after every token change.
// Callbacks run on the refresh goroutine and must not block.
func (m *SessionManager) OnTokenRotation(fn func(token string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRotate = append(m.onRotate, fn)
}

// AccessToken returns the current access token, empty before the first
// successful authentication.
func (m *SessionManager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accessToken
}

// Authenticate performs a full credential login and schedules the background
// refresh cycle.
func (m *SessionManager) Authenticate(ctx context.Context) error {
	body := map[string]string{"appId": m.appID, "apiKey": m.apiKey}
	sess, err := m.postSession(ctx, "/sessions", body)
	if err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}
	m.adopt(sess, false)
	return nil
}

// refresh swaps the access token using the refresh token. On any failure it
// falls back to a full re-authentication so one bad refresh never strands the
// stream with an expiring token.
func (m *SessionManager) refresh(ctx context.Context) error {
	m.mu.Lock()
	token := m.refreshToken
	m.mu.Unlock()

	sess, err := m.postSession(ctx, "/sessions/refresh", map[string]string{"refreshToken": token})
	if err != nil {
		m.log.Warn("session refresh failed, re-authenticating", "error", err)
		return m.Authenticate(ctx)
	}
	m.adopt(sess, true)
	return nil
}

func (m *SessionManager) adopt(sess *Session, rotated bool) {
	access := parseExpiry(sess.AccessExpiresAt)
	refresh := parseExpiry(sess.RefreshExpiresAt)

	m.mu.Lock()
	// A failed refresh falls back to a full re-auth, which rotates the token
	// without coming through the refresh path. Detect rotation by comparison
	// so live connections are always told about a replaced token.
	if m.accessToken != "" && m.accessToken != sess.AccessToken {
		rotated = true
	}
	m.accessToken = sess.AccessToken
	if sess.RefreshToken != "" {
		m.refreshToken = sess.RefreshToken
	}
	m.accessExpiresAt = access
	if !refresh.IsZero() {
		m.refreshExpiresAt = refresh
	}
	callbacks := append([]func(string){}, m.onRotate...)
	token := m.accessToken
	m.scheduleRefreshLocked()
	m.mu.Unlock()

	m.log.Info("session established", "accessExpiresAt", access, "rotated", rotated)
	if rotated {
		for _, fn := range callbacks {
			fn(token)
		}
	}
}

// scheduleRefreshLocked arms the refresh timer for refreshLead before access
// expiry. Caller holds m.mu.
func (m *SessionManager) scheduleRefreshLocked() {
	if m.stopped {
		return
	}
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
	}
	delay := time.Until(m.accessExpiresAt) - refreshLead
	if delay < time.Second {
		delay = time.Second
	}
	m.refreshTimer = time.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := m.refresh(ctx); err != nil {
			m.log.Error("session refresh and re-auth both failed, retrying in 30s", "error", err)
			m.mu.Lock()
			m.accessExpiresAt = time.Now().Add(refreshLead + 30*time.Second)
			m.scheduleRefreshLocked()
			m.mu.Unlock()
		}
	})
}

// Stop cancels the background refresh cycle.
func (m *SessionManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
	}
}

func (m *SessionManager) postSession(ctx context.Context, path string, body map[string]string) (*Session, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to build session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("session request returned %d: %s", resp.StatusCode, snippet)
	}

	var sess Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return nil, fmt.Errorf("failed to decode session response: %w", err)
	}
	if sess.AccessToken == "" {
		return nil, fmt.Errorf("session response carried no access token")
	}
	return &sess, nil
}

func parseExpiry(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		// Unparseable expiry: assume a short-lived token so refresh still runs.
		return time.Now().Add(10 * time.Minute)
	}
	return t
}
