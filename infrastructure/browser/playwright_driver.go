package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"social_automation/domain/entities"
	"social_automation/domain/interfaces"

	"github.com/playwright-community/playwright-go"
	"github.com/sirupsen/logrus"
)

const defaultActionTimeout = 10 * time.Second

// PlaywrightDriver launches Chromium through playwright. The playwright
// runtime is started lazily and shared by every browser it launches.
type PlaywrightDriver struct {
	logger         *logrus.Logger
	executablePath string

	mu sync.Mutex
	pw *playwright.Playwright
}

// NewPlaywrightDriver - creates playwright-backed driver
func NewPlaywrightDriver(logger *logrus.Logger, executablePath string) *PlaywrightDriver {
	return &PlaywrightDriver{logger: logger, executablePath: executablePath}
}

func (d *PlaywrightDriver) Name() string {
	return "playwright"
}

func (d *PlaywrightDriver) runtime() (*playwright.Playwright, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pw != nil {
		return d.pw, nil
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	d.pw = pw
	return pw, nil
}

// Stop - shuts the playwright runtime down
func (d *PlaywrightDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pw == nil {
		return nil
	}
	err := d.pw.Stop()
	d.pw = nil
	return err
}

func (d *PlaywrightDriver) Launch(ctx context.Context, opts interfaces.LaunchOptions) (interfaces.Browser, error) {
	pw, err := d.runtime()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	headless := opts.Mode == entities.ModeHeadless
	var executable *string
	if d.executablePath != "" {
		executable = playwright.String(d.executablePath)
	}
	viewport := &playwright.Size{Width: opts.Viewport.Width, Height: opts.Viewport.Height}
	if opts.Viewport.Width == 0 || opts.Viewport.Height == 0 {
		viewport = &playwright.Size{Width: 1280, Height: 720}
	}

	pb := &playwrightBrowser{logger: d.logger}

	if opts.ProfileDir != "" {
		bctx, err := pw.Chromium.LaunchPersistentContext(opts.ProfileDir, playwright.BrowserTypeLaunchPersistentContextOptions{
			Headless:       playwright.Bool(headless),
			SlowMo:         playwright.Float(float64(opts.SlowMo.Milliseconds())),
			Args:           opts.Args,
			ExecutablePath: executable,
			Viewport:       viewport,
			UserAgent:      optionalString(opts.UserAgent),
			Locale:         optionalString(opts.Locale),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to launch persistent context: %w", err)
		}
		pb.context = bctx
	} else {
		browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless:       playwright.Bool(headless),
			SlowMo:         playwright.Float(float64(opts.SlowMo.Milliseconds())),
			Args:           opts.Args,
			ExecutablePath: executable,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
			Viewport:  viewport,
			UserAgent: optionalString(opts.UserAgent),
			Locale:    optionalString(opts.Locale),
		})
		if err != nil {
			browser.Close()
			return nil, fmt.Errorf("failed to create context: %w", err)
		}
		pb.browser = browser
		pb.context = bctx
	}

	var page playwright.Page
	if pages := pb.context.Pages(); len(pages) > 0 {
		page = pages[0]
	} else {
		page, err = pb.context.NewPage()
		if err != nil {
			pb.Close()
			return nil, fmt.Errorf("failed to create page: %w", err)
		}
	}
	if opts.NavigationTimeout > 0 {
		page.SetDefaultNavigationTimeout(float64(opts.NavigationTimeout.Milliseconds()))
	}
	pb.page = &playwrightPage{page: page, navTimeout: opts.NavigationTimeout}

	page.OnDialog(func(dialog playwright.Dialog) {
		dialog.Accept()
	})

	// popups opened by the site become the active page
	pb.context.OnPage(func(newPage playwright.Page) {
		pb.page.swap(newPage)
		newPage.OnDialog(func(dialog playwright.Dialog) {
			dialog.Accept()
		})
	})

	return pb, nil
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return playwright.String(v)
}

// timeoutMs - milliseconds left until ctx's deadline, capped at def
func timeoutMs(ctx context.Context, def time.Duration) *float64 {
	d := def
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < d {
			d = left
		}
	}
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return playwright.Float(float64(d.Milliseconds()))
}

type playwrightBrowser struct {
	logger  *logrus.Logger
	browser playwright.Browser
	context playwright.BrowserContext
	page    *playwrightPage
	once    sync.Once
}

func (b *playwrightBrowser) AddCookies(ctx context.Context, cookies []interfaces.Cookie) error {
	out := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, playwright.OptionalCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   playwright.String(c.Domain),
			Path:     playwright.String(c.Path),
			Secure:   playwright.Bool(c.Secure),
			HttpOnly: playwright.Bool(c.HTTPOnly),
		})
	}
	if err := b.context.AddCookies(out); err != nil {
		return fmt.Errorf("failed to add cookies: %w", err)
	}
	return nil
}

func (b *playwrightBrowser) Cookies(ctx context.Context, url string) ([]interfaces.Cookie, error) {
	cookies, err := b.context.Cookies(url)
	if err != nil {
		return nil, err
	}
	out := make([]interfaces.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, interfaces.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		})
	}
	return out, nil
}

func (b *playwrightBrowser) Page() interfaces.Page {
	return b.page
}

func (b *playwrightBrowser) Close() error {
	var err error
	b.once.Do(func() {
		if b.context != nil {
			err = b.context.Close()
		}
		if b.browser != nil {
			if closeErr := b.browser.Close(); closeErr != nil && err == nil {
				err = closeErr
			}
		}
	})
	return err
}

type playwrightPage struct {
	mu         sync.Mutex
	page       playwright.Page
	navTimeout time.Duration
}

func (p *playwrightPage) current() playwright.Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.page
}

func (p *playwrightPage) swap(page playwright.Page) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.page = page
}

func (p *playwrightPage) Goto(ctx context.Context, url string) error {
	def := p.navTimeout
	if def == 0 {
		def = 30 * time.Second
	}
	page := p.current()
	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   timeoutMs(ctx, def),
	}); err != nil {
		return err
	}

	// SPAs keep loading after DOMContentLoaded; a short idle wait is best effort
	page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: timeoutMs(ctx, 3*time.Second),
	})
	return nil
}

func (p *playwrightPage) Query(ctx context.Context, strategy entities.Strategy) ([]interfaces.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	selector, err := playwrightSelector(strategy)
	if err != nil {
		return nil, err
	}
	locators, err := p.current().Locator(selector).All()
	if err != nil {
		return nil, err
	}
	els := make([]interfaces.Element, 0, len(locators))
	for _, l := range locators {
		els = append(els, &playwrightElement{locator: l})
	}
	return els, nil
}

func (p *playwrightPage) Info(ctx context.Context) (entities.PageInfo, error) {
	page := p.current()
	title, _ := page.Title()
	html, err := page.Content()
	if err != nil {
		return entities.PageInfo{}, err
	}
	return entities.PageInfo{URL: page.URL(), Title: title, HTML: html}, nil
}

func (p *playwrightPage) URL() string {
	return p.current().URL()
}

func (p *playwrightPage) Scroll(ctx context.Context, pixels int) error {
	return p.current().Mouse().Wheel(0, float64(pixels))
}

func (p *playwrightPage) Press(ctx context.Context, key string) error {
	return p.current().Keyboard().Press(key)
}

type playwrightElement struct {
	locator playwright.Locator
}

func (e *playwrightElement) IsVisible(ctx context.Context) (bool, error) {
	return e.locator.IsVisible()
}

func (e *playwrightElement) IsEnabled(ctx context.Context) (bool, error) {
	return e.locator.IsEnabled(playwright.LocatorIsEnabledOptions{Timeout: timeoutMs(ctx, defaultActionTimeout)})
}

func (e *playwrightElement) Click(ctx context.Context) error {
	return e.locator.Click(playwright.LocatorClickOptions{Timeout: timeoutMs(ctx, defaultActionTimeout)})
}

func (e *playwrightElement) Fill(ctx context.Context, text string) error {
	// contenteditable composers ignore Fill on some platforms, so type instead
	if err := e.locator.Click(playwright.LocatorClickOptions{Timeout: timeoutMs(ctx, defaultActionTimeout)}); err != nil {
		return err
	}
	return e.locator.PressSequentially(text, playwright.LocatorPressSequentiallyOptions{
		Delay:   playwright.Float(30),
		Timeout: timeoutMs(ctx, defaultActionTimeout+time.Duration(len(text))*50*time.Millisecond),
	})
}

func (e *playwrightElement) Press(ctx context.Context, key string) error {
	return e.locator.Press(key, playwright.LocatorPressOptions{Timeout: timeoutMs(ctx, defaultActionTimeout)})
}

func (e *playwrightElement) Text(ctx context.Context) (string, error) {
	return e.locator.InnerText(playwright.LocatorInnerTextOptions{Timeout: timeoutMs(ctx, defaultActionTimeout)})
}

func (e *playwrightElement) Attribute(ctx context.Context, name string) (string, error) {
	return e.locator.GetAttribute(name, playwright.LocatorGetAttributeOptions{Timeout: timeoutMs(ctx, defaultActionTimeout)})
}

func (e *playwrightElement) Value(ctx context.Context) (string, error) {
	v, err := e.locator.Evaluate(`el => ("value" in el ? el.value : el.innerText) || ""`, nil, playwright.LocatorEvaluateOptions{
		Timeout: timeoutMs(ctx, defaultActionTimeout),
	})
	if err != nil {
		return "", err
	}
	text, _ := v.(string)
	return text, nil
}

func (e *playwrightElement) SetFiles(ctx context.Context, paths []string) error {
	return e.locator.SetInputFiles(paths, playwright.LocatorSetInputFilesOptions{Timeout: timeoutMs(ctx, defaultActionTimeout)})
}
