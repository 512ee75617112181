package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"social_automation/domain/entities"
	"social_automation/domain/interfaces"
	"social_automation/infrastructure/storage"

	"github.com/sirupsen/logrus"
)

// Session is one exclusively-owned, authenticated browser. It is handed out
// by Acquire and must be given back through Release.
type Session struct {
	browser  interfaces.Browser
	platform entities.Platform
	key      string
	mode     entities.BrowserMode
	once     sync.Once
}

// Page - the session's active page
func (s *Session) Page() interfaces.Page {
	return s.browser.Page()
}

// Key - credential key the session belongs to
func (s *Session) Key() string {
	return s.key
}

func (s *Session) Mode() entities.BrowserMode {
	return s.mode
}

// Stats is a snapshot of controller counters
type Stats struct {
	Acquired int64 `json:"acquired"`
	Released int64 `json:"released"`
	Open     int   `json:"open"`
}

// Controller launches authenticated browser sessions and guarantees every
// acquired session is released exactly once
type Controller struct {
	driver   interfaces.Driver
	profiles *storage.ProfileStore
	recorder interfaces.Recorder
	logger   *logrus.Logger

	// headlessOverride forces a mode for every launch when set
	headlessOverride *bool

	acquired atomic.Int64
	released atomic.Int64

	mu   sync.Mutex
	open map[string]int
}

// ControllerOption customizes a Controller
type ControllerOption func(*Controller)

// WithHeadlessOverride - ignore per-operation modes
func WithHeadlessOverride(headless bool) ControllerOption {
	return func(c *Controller) {
		c.headlessOverride = &headless
	}
}

// WithRecorder - report session metrics
func WithRecorder(r interfaces.Recorder) ControllerOption {
	return func(c *Controller) {
		if r != nil {
			c.recorder = r
		}
	}
}

// NewController - creates new browser controller over a driver
func NewController(driver interfaces.Driver, profiles *storage.ProfileStore, logger *logrus.Logger, opts ...ControllerOption) *Controller {
	c := &Controller{
		driver:   driver,
		profiles: profiles,
		recorder: interfaces.NopRecorder{},
		logger:   logger,
		open:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DriverName - name of the underlying engine
func (c *Controller) DriverName() string {
	return c.driver.Name()
}

// Acquire - launches a browser for the credential and authenticates it
// with the platform's configured strategy
func (c *Controller) Acquire(ctx context.Context, cfg *entities.PlatformConfig, cred entities.CredentialRecord, mode entities.BrowserMode) (*Session, error) {
	if c.headlessOverride != nil {
		mode = entities.ModeVisible
		if *c.headlessOverride {
			mode = entities.ModeHeadless
		}
	}

	auth, err := NewAuthenticator(cfg.Auth.Strategy, c.profiles)
	if err != nil {
		return nil, err
	}

	opts := interfaces.LaunchOptions{
		Mode:              mode,
		Viewport:          interfaces.Size{Width: cfg.Browser.Viewport.Width, Height: cfg.Browser.Viewport.Height},
		UserAgent:         cfg.Browser.UserAgent,
		Locale:            cfg.Browser.Locale,
		Args:              cfg.Browser.Args,
		SlowMo:            cfg.Browser.SlowMo,
		NavigationTimeout: cfg.Timeouts.Navigation,
	}
	if err := auth.Prepare(&opts, cfg, cred); err != nil {
		return nil, fmt.Errorf("failed to prepare %s session: %w", cfg.Auth.Strategy, err)
	}

	b, err := c.driver.Launch(ctx, opts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, entities.Transient(err, "failed to launch browser")
	}

	if err := auth.Apply(ctx, b, cfg, cred); err != nil {
		// the browser is ours until Acquire returns, close it here
		if closeErr := b.Close(); closeErr != nil {
			c.logger.WithError(closeErr).Warn("failed to close browser after auth failure")
		}
		var opErr *entities.OperationError
		if errors.As(err, &opErr) {
			return nil, err
		}
		return nil, entities.Transient(err, "failed to authenticate browser")
	}

	s := &Session{browser: b, platform: cfg.Platform, key: cred.Key(), mode: mode}

	c.acquired.Add(1)
	c.mu.Lock()
	c.open[s.key]++
	c.mu.Unlock()
	c.recorder.SessionAcquired(cfg.Platform, mode)

	c.logger.WithFields(logrus.Fields{
		"platform": cfg.Platform,
		"account":  cred.Account,
		"mode":     mode,
		"auth":     cfg.Auth.Strategy,
		"driver":   c.driver.Name(),
	}).Debug("Browser session acquired")

	return s, nil
}

// Release - closes the session's browser. Calling it again, or racing it
// with a timeout-driven release, is a no-op.
func (c *Controller) Release(s *Session) error {
	if s == nil {
		return nil
	}
	var closeErr error
	s.once.Do(func() {
		closeErr = s.browser.Close()
		if closeErr != nil && isTargetClosed(closeErr) {
			closeErr = nil
		}

		c.released.Add(1)
		c.mu.Lock()
		c.open[s.key]--
		if c.open[s.key] <= 0 {
			delete(c.open, s.key)
		}
		c.mu.Unlock()
		c.recorder.SessionReleased(s.platform)

		c.logger.WithField("platform", s.platform).Debug("Browser session released")
	})
	return closeErr
}

// Stats - acquire/release counters
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	open := 0
	for _, n := range c.open {
		open += n
	}
	c.mu.Unlock()
	return Stats{
		Acquired: c.acquired.Load(),
		Released: c.released.Load(),
		Open:     open,
	}
}

// OpenSessions - sessions currently open for one credential key
func (c *Controller) OpenSessions(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open[key]
}

func isTargetClosed(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "target closed") ||
		strings.Contains(msg, "has been closed") ||
		strings.Contains(msg, "invalid session id")
}
