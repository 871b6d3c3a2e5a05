// Package browser manages the Chrome session for the acquisition pipeline:
// launch with anti-automation flags, stealth page creation, restart after
// unrecoverable UI failures, and a bounded-wait page session with
// human-plausible pointer input.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Headless launches without a window. The interaction flow is tuned
	// for a visible session, so the default is headful.
	Headless bool

	// ConditionWait is the deadline for every explicit element wait.
	// Default: 30s.
	ConditionWait time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.ConditionWait <= 0 {
		c.ConditionWait = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns the Chrome lifecycle. One browser serves the whole run; the
// orchestrator may ask for a restart between establishments.
type Manager struct {
	cfg     Config
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// NewManager creates a browser Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches Chrome (or connects to a remote instance).
func (m *Manager) Start(ctx context.Context) error {
	log := m.cfg.Logger

	var wsURL string
	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().
			Headless(m.cfg.Headless).
			Set("ignore-certificate-errors").
			Set("start-maximized").
			Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "headless", m.cfg.Headless)
	}

	b := rod.New().Context(ctx).ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("browser: connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}

	m.browser = b
	return nil
}

// Browser returns the current Rod browser handle, nil before Start.
func (m *Manager) Browser() *rod.Browser { return m.browser }

// IsOpen reports whether a browser session is active.
func (m *Manager) IsOpen() bool { return m.browser != nil }

// Restart closes the current Chrome and launches a fresh one. Used by the
// authentication loop when a login attempt must start from a clean profile.
func (m *Manager) Restart(ctx context.Context) error {
	m.Close()
	return m.Start(ctx)
}

// NewSession opens a stealth page and wraps it in a Session.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	if m.browser == nil {
		return nil, fmt.Errorf("browser: not started")
	}
	page, err := stealth.Page(m.browser)
	if err != nil {
		return nil, fmt.Errorf("browser: create stealth page: %w", err)
	}
	return newSession(m.browser, page, m.cfg.ConditionWait, m.cfg.Logger), nil
}

// Close shuts down Chrome.
func (m *Manager) Close() {
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.cfg.Logger.Warn("browser: close failed", "error", err)
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
}
