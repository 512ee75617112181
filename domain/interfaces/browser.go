package interfaces

import (
	"context"
	"time"

	"social_automation/domain/entities"
)

// Size is a viewport size in CSS pixels
type Size struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// LaunchOptions configures one browser instance. A non-empty ProfileDir
// selects a persistent on-disk profile; otherwise a clean context is used.
type LaunchOptions struct {
	Mode              entities.BrowserMode
	ProfileDir        string
	Viewport          Size
	UserAgent         string
	Locale            string
	Args              []string
	SlowMo            time.Duration
	NavigationTimeout time.Duration
}

// Cookie is one cookie injected into a browser context
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
}

// Driver launches browser engine instances
type Driver interface {
	// Name identifies the engine for logs and metrics
	Name() string

	// Launch starts a browser with a single page
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

// Browser is one exclusively-owned browser engine process plus its page
type Browser interface {
	// AddCookies injects cookies into the context
	AddCookies(ctx context.Context, cookies []Cookie) error

	// Cookies lists cookies currently set for the given URL
	Cookies(ctx context.Context, url string) ([]Cookie, error)

	// Page returns the active page
	Page() Page

	// Close terminates the browser; safe to call more than once
	Close() error
}

// Page drives a single tab
type Page interface {
	// Goto navigates and waits for the document to load
	Goto(ctx context.Context, url string) error

	// Query returns every element matched by a strategy, in document order
	Query(ctx context.Context, strategy entities.Strategy) ([]Element, error)

	// Info snapshots url, title and html
	Info(ctx context.Context) (entities.PageInfo, error)

	// URL returns the current location
	URL() string

	// Scroll scrolls the viewport vertically by pixels
	Scroll(ctx context.Context, pixels int) error

	// Press sends a key to the focused element
	Press(ctx context.Context, key string) error
}

// Element is a handle to one DOM node
type Element interface {
	IsVisible(ctx context.Context) (bool, error)
	IsEnabled(ctx context.Context) (bool, error)
	Click(ctx context.Context) error
	Fill(ctx context.Context, text string) error
	Press(ctx context.Context, key string) error
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, error)
	// Value is the live content of an input, textarea or contenteditable
	Value(ctx context.Context) (string, error)
	SetFiles(ctx context.Context, paths []string) error
}
