// Package browser owns the single authenticated browser session used to reach
// marketplaces behind anti-automation defenses. The session is created lazily
// under a lock, solves the anti-bot challenge on demand, and persists its
// cookie jar between restarts.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"pricesentry/logger"
	errs "pricesentry/pkg/errors"
)

// Config configures the browser session
type Config struct {
	// Headless controls whether chrome runs without a display
	Headless bool

	// CookiePath is the file the cookie jar is persisted to
	CookiePath string

	// ChallengeURL is the probe endpoint used to solve the anti-bot challenge
	ChallengeURL string

	// ChallengeCookie is the cookie whose presence marks a solved challenge
	ChallengeCookie string

	// FirstPartyHosts lists host suffixes the request filter lets through
	FirstPartyHosts []string

	// NavigateTimeout bounds challenge navigation
	NavigateTimeout time.Duration

	// FetchTimeout bounds in-page data requests
	FetchTimeout time.Duration
}

func (c *Config) defaults() {
	if c.ChallengeCookie == "" {
		c.ChallengeCookie = "abt_data"
	}
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 60 * time.Second
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
}

// Session is the process-wide authenticated browser session. The creation
// path is mutually exclusive; a started session may be used by concurrent
// fetches.
type Session struct {
	cfg Config
	log *logger.Logger

	mu      sync.Mutex
	lnch    *launcher.Launcher
	browser *rod.Browser
	router  *rod.HijackRouter
	page    *rod.Page
	started bool
	closed  bool
}

// NewSession creates a session manager. The browser is not launched until
// EnsureStarted is called.
func NewSession(cfg Config) *Session {
	cfg.defaults()
	return &Session{
		cfg: cfg,
		log: logger.ForBrowser(),
	}
}

// EnsureStarted launches the browser if it is not running yet. It is
// idempotent and safe for concurrent use. A failure surfaces as a transient
// session-unavailable error, never as a fatal condition.
func (s *Session) EnsureStarted(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errs.NewSessionUnavailable("", "session manager is shut down", nil)
	}
	if s.started {
		return nil
	}

	if err := s.launch(ctx); err != nil {
		s.cleanupLocked()
		return errs.NewSessionUnavailable("", "browser launch failed", err)
	}

	s.started = true
	s.log.Info().Bool("headless", s.cfg.Headless).Msg("Browser session started")
	return nil
}

func (s *Session) launch(ctx context.Context) error {
	prof := osProfile()

	l := launcher.New().
		Headless(s.cfg.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("lang", "ru-RU").
		Delete("enable-automation")
	if runtime.GOOS == "linux" {
		l = l.NoSandbox(true).Set("disable-dev-shm-usage")
	}

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch chrome: %w", err)
	}
	s.lnch = l

	b := rod.New().Context(ctx).ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}
	s.browser = b

	if err := s.restoreCookies(); err != nil {
		s.log.Warn().Err(err).Str("path", s.cfg.CookiePath).Msg("Cookie restore failed")
	}

	s.router = b.HijackRequests()
	if err := s.router.Add("*", "", s.routeRequest); err != nil {
		return fmt.Errorf("install request filter: %w", err)
	}
	go s.router.Run()

	page, err := stealth.Page(b)
	if err != nil {
		return fmt.Errorf("open stealth page: %w", err)
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      prof.userAgent,
		AcceptLanguage: "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7",
		Platform:       prof.platform,
	}); err != nil {
		return fmt.Errorf("override user agent: %w", err)
	}
	s.page = page

	return nil
}

// SolveChallenge navigates the probe endpoint and waits for the marker cookie
// to appear. A pass is not permanent and may need to be repeated later.
func (s *Session) SolveChallenge(ctx context.Context) bool {
	s.mu.Lock()
	page := s.page
	s.mu.Unlock()
	if page == nil {
		return false
	}

	s.log.Debug().Str("url", s.cfg.ChallengeURL).Msg("Solving anti-bot challenge")

	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavigateTimeout)
	defer cancel()

	p := page.Context(navCtx)
	if err := p.Navigate(s.cfg.ChallengeURL); err != nil {
		s.log.Warn().Err(err).Msg("Challenge navigation failed")
		return false
	}
	if err := p.WaitLoad(); err != nil {
		s.log.Warn().Err(err).Msg("Challenge page load failed")
		return false
	}

	deadline := time.Now().Add(s.cfg.NavigateTimeout)
	for time.Now().Before(deadline) {
		if s.hasChallengeCookie() {
			s.log.Debug().Msg("Anti-bot challenge passed")
			return true
		}
		select {
		case <-navCtx.Done():
			return false
		case <-time.After(500 * time.Millisecond):
		}
	}

	s.log.Warn().Msg("Anti-bot challenge not passed before deadline")
	return false
}

func (s *Session) hasChallengeCookie() bool {
	s.mu.Lock()
	b := s.browser
	s.mu.Unlock()
	if b == nil {
		return false
	}

	cookies, err := b.GetCookies()
	if err != nil {
		return false
	}
	for _, c := range cookies {
		if c.Name == s.cfg.ChallengeCookie {
			return true
		}
	}
	return false
}

// FetchJSON issues a GET request from inside the page context so it carries
// the session cookies and fingerprint, and returns the raw response body.
func (s *Session) FetchJSON(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	s.mu.Lock()
	page := s.page
	s.mu.Unlock()
	if page == nil {
		return nil, errs.NewSessionUnavailable("", "session not started", nil)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	const script = `async (url, headers) => {
		const resp = await fetch(url, { headers: headers, credentials: 'include' });
		if (!resp.ok) {
			throw new Error('unexpected status ' + resp.status);
		}
		return await resp.text();
	}`

	obj, err := page.Context(fetchCtx).Evaluate(rod.Eval(script, url, headers).ByPromise())
	if err != nil {
		return nil, fmt.Errorf("in-page fetch: %w", err)
	}
	return []byte(obj.Value.Str()), nil
}

// PersistCookies serializes the current cookie jar to durable storage
func (s *Session) PersistCookies() error {
	s.mu.Lock()
	b := s.browser
	s.mu.Unlock()
	if b == nil || s.cfg.CookiePath == "" {
		return nil
	}

	cookies, err := b.GetCookies()
	if err != nil {
		return fmt.Errorf("read cookie jar: %w", err)
	}

	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: c.SameSite,
			Expires:  c.Expires,
		})
	}

	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode cookie jar: %w", err)
	}

	if dir := filepath.Dir(s.cfg.CookiePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cookie dir: %w", err)
		}
	}
	if err := os.WriteFile(s.cfg.CookiePath, data, 0o600); err != nil {
		return fmt.Errorf("write cookie file: %w", err)
	}

	s.log.Debug().Str("path", s.cfg.CookiePath).Int("count", len(params)).Msg("Cookies persisted")
	return nil
}

func (s *Session) restoreCookies() error {
	if s.cfg.CookiePath == "" {
		return nil
	}
	data, err := os.ReadFile(s.cfg.CookiePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var params []*proto.NetworkCookieParam
	if err := json.Unmarshal(data, &params); err != nil {
		return fmt.Errorf("decode cookie file: %w", err)
	}
	if len(params) == 0 {
		return nil
	}
	if err := s.browser.SetCookies(params); err != nil {
		return fmt.Errorf("restore cookie jar: %w", err)
	}

	s.log.Info().Int("count", len(params)).Str("path", s.cfg.CookiePath).Msg("Cookies restored")
	return nil
}

// Reset tears down a failed session so the next EnsureStarted relaunches it
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.cleanupLocked()
	s.log.Info().Msg("Browser session reset")
}

// Shutdown releases the session. It is idempotent and safe to call even if
// the session was never started.
func (s *Session) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cleanupLocked()
	s.log.Info().Msg("Browser session shut down")
}

func (s *Session) cleanupLocked() {
	if s.router != nil {
		_ = s.router.Stop()
		s.router = nil
	}
	if s.page != nil {
		_ = s.page.Close()
		s.page = nil
	}
	if s.browser != nil {
		_ = s.browser.Close()
		s.browser = nil
	}
	if s.lnch != nil {
		s.lnch.Cleanup()
		s.lnch = nil
	}
	s.started = false
}

// profile holds per-OS fingerprint fields
type profile struct {
	userAgent string
	platform  string
}

func osProfile() profile {
	switch runtime.GOOS {
	case "darwin":
		return profile{
			userAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
			platform:  "MacIntel",
		}
	case "windows":
		return profile{
			userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
			platform:  "Win32",
		}
	default:
		return profile{
			userAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
			platform:  "Linux x86_64",
		}
	}
}
