// Package browsertest provides a scripted in-memory browser for tests.
// Pages hold elements keyed by selector strategy; click hooks mutate the
// page the way the real UI would.
package browsertest

import (
	"context"
	"errors"
	"sync"
	"time"

	"social_automation/domain/entities"
	"social_automation/domain/interfaces"
)

// ErrClosed is returned by page calls after the browser was closed
var ErrClosed = errors.New("target closed")

// Driver counts launches and tracks how many browsers are open at once
type Driver struct {
	// Setup populates every freshly launched page
	Setup func(p *Page)
	// LaunchErr makes Launch fail
	LaunchErr error
	// LaunchDelay stalls Launch without watching ctx, like a browser
	// process that has already been spawned
	LaunchDelay time.Duration

	mu       sync.Mutex
	launches int
	closes   int
	open     int
	maxOpen  int
	options  []interfaces.LaunchOptions
	browsers []*Browser
}

// NewDriver - creates a driver whose pages are prepared by setup
func NewDriver(setup func(p *Page)) *Driver {
	return &Driver{Setup: setup}
}

func (d *Driver) Name() string {
	return "fake"
}

func (d *Driver) Launch(ctx context.Context, opts interfaces.LaunchOptions) (interfaces.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.LaunchDelay > 0 {
		time.Sleep(d.LaunchDelay)
	}

	d.mu.Lock()
	if d.LaunchErr != nil {
		d.mu.Unlock()
		return nil, d.LaunchErr
	}
	d.launches++
	d.open++
	if d.open > d.maxOpen {
		d.maxOpen = d.open
	}
	d.options = append(d.options, opts)

	b := &Browser{driver: d, closed: make(chan struct{})}
	b.page = NewPage()
	b.page.browser = b
	d.browsers = append(d.browsers, b)
	setup := d.Setup
	d.mu.Unlock()

	if setup != nil {
		setup(b.page)
	}
	return b, nil
}

// Launches - number of browsers started
func (d *Driver) Launches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.launches
}

// Closes - number of browsers closed
func (d *Driver) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

// Open - browsers currently open
func (d *Driver) Open() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// MaxOpen - high-water mark of simultaneously open browsers
func (d *Driver) MaxOpen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxOpen
}

// LaunchOptions - options passed to each launch, in order
func (d *Driver) LaunchOptions() []interfaces.LaunchOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]interfaces.LaunchOptions(nil), d.options...)
}

// LastBrowser - most recently launched browser, nil if none
func (d *Driver) LastBrowser() *Browser {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.browsers) == 0 {
		return nil
	}
	return d.browsers[len(d.browsers)-1]
}

// Browser is one fake browser with a single page
type Browser struct {
	driver *Driver
	page   *Page

	mu      sync.Mutex
	cookies []interfaces.Cookie
	once    sync.Once
	closed  chan struct{}
}

func (b *Browser) AddCookies(ctx context.Context, cookies []interfaces.Cookie) error {
	if b.isClosed() {
		return ErrClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cookies = append(b.cookies, cookies...)
	return nil
}

func (b *Browser) Cookies(ctx context.Context, url string) ([]interfaces.Cookie, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]interfaces.Cookie(nil), b.cookies...), nil
}

// InjectedCookies - cookies added so far
func (b *Browser) InjectedCookies() []interfaces.Cookie {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]interfaces.Cookie(nil), b.cookies...)
}

func (b *Browser) Page() interfaces.Page {
	return b.page
}

// FakePage - the concrete page for assertions
func (b *Browser) FakePage() *Page {
	return b.page
}

func (b *Browser) Close() error {
	b.once.Do(func() {
		close(b.closed)
		b.driver.mu.Lock()
		b.driver.open--
		b.driver.closes++
		b.driver.mu.Unlock()
	})
	return nil
}

func (b *Browser) isClosed() bool {
	select {
	case <-b.closed:
		return true
	default:
		return false
	}
}

// Strategy shorthands for building pages
func CSS(v string) entities.Strategy { return entities.Strategy{Kind: entities.LocatorCSS, Value: v} }
func XPath(v string) entities.Strategy { return entities.Strategy{Kind: entities.LocatorXPath, Value: v} }
func TestID(v string) entities.Strategy { return entities.Strategy{Kind: entities.LocatorTestID, Value: v} }
func Aria(v string) entities.Strategy { return entities.Strategy{Kind: entities.LocatorAria, Value: v} }
func Text(tag, v string) entities.Strategy {
	return entities.Strategy{Kind: entities.LocatorText, Tag: tag, Value: v}
}
