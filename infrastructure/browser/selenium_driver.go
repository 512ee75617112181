package browser

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"social_automation/domain/entities"
	"social_automation/domain/interfaces"

	"github.com/sirupsen/logrus"
	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
)

// SeleniumDriver launches Chrome through a chromedriver service. Each
// browser gets its own service on a free port so closing one never
// affects another.
type SeleniumDriver struct {
	logger       *logrus.Logger
	driverPath   string
	chromeBinary string
}

// findChromeDriver - finds ChromeDriver executable path
func findChromeDriver(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err == nil {
			return configured, nil
		}
	}

	commonPaths := []string{
		"/usr/local/bin/chromedriver",
		"/usr/bin/chromedriver",
		"/opt/homebrew/bin/chromedriver",
		filepath.Join(os.Getenv("HOME"), "bin", "chromedriver"),
	}

	for _, path := range commonPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	if path, err := exec.LookPath("chromedriver"); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("chromedriver not found. Please install it or set BROWSER_DRIVER_PATH")
}

// findChromeBinary - finds Chrome/Chromium browser executable path
func findChromeBinary(configured string) string {
	if configured != "" {
		if _, err := os.Stat(configured); err == nil {
			return configured
		}
	}

	chromePaths := []string{
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		"/Applications/Chromium.app/Contents/MacOS/Chromium",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium",
		"/usr/bin/chromium-browser",
	}

	for _, path := range chromePaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	for _, name := range []string{"google-chrome", "chromium", "chromium-browser"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	return ""
}

// NewSeleniumDriver - resolves chromedriver and Chrome up front
func NewSeleniumDriver(logger *logrus.Logger, driverPath, chromeBinary string) (*SeleniumDriver, error) {
	path, err := findChromeDriver(driverPath)
	if err != nil {
		return nil, err
	}
	logger.Infof("Using ChromeDriver at: %s", path)

	binary := findChromeBinary(chromeBinary)
	if binary != "" {
		logger.Infof("Using Chrome binary at: %s", binary)
	}

	return &SeleniumDriver{logger: logger, driverPath: path, chromeBinary: binary}, nil
}

func (d *SeleniumDriver) Name() string {
	return "selenium"
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// chromeArgs - command line for one launch
func chromeArgs(opts interfaces.LaunchOptions) []string {
	args := append([]string{}, opts.Args...)
	if opts.Mode == entities.ModeHeadless {
		args = append(args, "--headless=new")
	}
	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		args = append(args, fmt.Sprintf("--window-size=%d,%d", opts.Viewport.Width, opts.Viewport.Height))
	}
	if opts.UserAgent != "" {
		args = append(args, "--user-agent="+opts.UserAgent)
	}
	if opts.Locale != "" {
		args = append(args, "--lang="+opts.Locale)
	}
	if opts.ProfileDir != "" {
		args = append(args, "--user-data-dir="+opts.ProfileDir)
	}
	return args
}

func (d *SeleniumDriver) Launch(ctx context.Context, opts interfaces.LaunchOptions) (interfaces.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	port, err := freePort()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate chromedriver port: %w", err)
	}
	service, err := selenium.NewChromeDriverService(d.driverPath, port)
	if err != nil {
		return nil, fmt.Errorf("failed to start chromedriver: %w", err)
	}

	caps := selenium.Capabilities{
		"browserName": "chrome",
	}
	chromeCaps := chrome.Capabilities{Args: chromeArgs(opts)}
	if d.chromeBinary != "" {
		chromeCaps.Path = d.chromeBinary
	}
	caps.AddChrome(chromeCaps)

	wd, err := selenium.NewRemote(caps, fmt.Sprintf("http://localhost:%d/wd/hub", port))
	if err != nil {
		service.Stop()
		if strings.Contains(err.Error(), "cannot find Chrome binary") {
			return nil, fmt.Errorf("failed to create webdriver: Chrome browser not found, set CHROME_BINARY_PATH: %w", err)
		}
		return nil, fmt.Errorf("failed to create webdriver: %w", err)
	}
	if opts.NavigationTimeout > 0 {
		if err := wd.SetPageLoadTimeout(opts.NavigationTimeout); err != nil {
			d.logger.Warnf("Failed to set page load timeout: %v", err)
		}
	}

	b := &seleniumBrowser{wd: wd, service: service, logger: d.logger}
	b.page = &seleniumPage{wd: wd, logger: d.logger, slowMo: opts.SlowMo}
	return b, nil
}

type seleniumBrowser struct {
	wd      selenium.WebDriver
	service *selenium.Service
	logger  *logrus.Logger
	page    *seleniumPage
	once    sync.Once
}

// visitOrigin - WebDriver only accepts cookies for the current document's
// domain, so navigate there first
func (b *seleniumBrowser) visitOrigin(target string) error {
	current, _ := b.wd.CurrentURL()
	cu, _ := url.Parse(current)
	tu, err := url.Parse(target)
	if err != nil {
		return err
	}
	if cu != nil && cu.Host == tu.Host {
		return nil
	}
	return b.wd.Get(target)
}

func (b *seleniumBrowser) AddCookies(ctx context.Context, cookies []interfaces.Cookie) error {
	for _, c := range cookies {
		host := strings.TrimPrefix(c.Domain, ".")
		if host == "" {
			return fmt.Errorf("cookie %s has no domain", c.Name)
		}
		if err := b.visitOrigin("https://" + host + "/"); err != nil {
			return fmt.Errorf("failed to open %s for cookie injection: %w", host, err)
		}
		err := b.wd.AddCookie(&selenium.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
			Secure: c.Secure,
			Expiry: uint(time.Now().Add(365 * 24 * time.Hour).Unix()),
		})
		if err != nil {
			return fmt.Errorf("failed to add cookie %s: %w", c.Name, err)
		}
	}
	return nil
}

func (b *seleniumBrowser) Cookies(ctx context.Context, target string) ([]interfaces.Cookie, error) {
	if err := b.visitOrigin(target); err != nil {
		return nil, err
	}
	cookies, err := b.wd.GetCookies()
	if err != nil {
		return nil, err
	}
	out := make([]interfaces.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, interfaces.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
			Secure: c.Secure,
		})
	}
	return out, nil
}

func (b *seleniumBrowser) Page() interfaces.Page {
	return b.page
}

// Close - closes browser and stops ChromeDriver service
func (b *seleniumBrowser) Close() error {
	var err error
	b.once.Do(func() {
		if b.wd != nil {
			err = b.wd.Quit()
		}
		if b.service != nil {
			if stopErr := b.service.Stop(); stopErr != nil {
				b.logger.Warnf("Failed to stop chromedriver: %v", stopErr)
			}
		}
	})
	return err
}

type seleniumPage struct {
	wd     selenium.WebDriver
	logger *logrus.Logger
	slowMo time.Duration
}

func (p *seleniumPage) Goto(ctx context.Context, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.wd.Get(target)
}

func (p *seleniumPage) Query(ctx context.Context, strategy entities.Strategy) ([]interfaces.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	by, value := selenium.ByCSSSelector, ""
	if css, ok := strategy.CSS(); ok {
		value = css
	} else if xpath, ok := strategy.XPath(); ok {
		by, value = selenium.ByXPATH, xpath
	} else {
		return nil, fmt.Errorf("unsupported locator kind %q", strategy.Kind)
	}

	found, err := p.wd.FindElements(by, value)
	if err != nil {
		return nil, err
	}
	els := make([]interfaces.Element, 0, len(found))
	for _, el := range found {
		els = append(els, &seleniumElement{el: el, page: p})
	}
	return els, nil
}

func (p *seleniumPage) Info(ctx context.Context) (entities.PageInfo, error) {
	current, err := p.wd.CurrentURL()
	if err != nil {
		return entities.PageInfo{}, err
	}
	title, _ := p.wd.Title()
	html, err := p.wd.PageSource()
	if err != nil {
		return entities.PageInfo{}, err
	}
	return entities.PageInfo{URL: current, Title: title, HTML: html}, nil
}

func (p *seleniumPage) URL() string {
	current, err := p.wd.CurrentURL()
	if err != nil {
		return ""
	}
	return current
}

func (p *seleniumPage) Scroll(ctx context.Context, pixels int) error {
	_, err := p.wd.ExecuteScript("window.scrollBy(0, arguments[0]);", []interface{}{pixels})
	return err
}

func (p *seleniumPage) Press(ctx context.Context, key string) error {
	el, err := p.wd.ActiveElement()
	if err != nil {
		return err
	}
	return el.SendKeys(seleniumKey(key))
}

func (p *seleniumPage) pause() {
	if p.slowMo > 0 {
		time.Sleep(p.slowMo)
	}
}

func seleniumKey(key string) string {
	switch key {
	case "Enter":
		return selenium.EnterKey
	case "Escape":
		return selenium.EscapeKey
	case "Tab":
		return selenium.TabKey
	case "Backspace":
		return selenium.BackspaceKey
	}
	return key
}

type seleniumElement struct {
	el   selenium.WebElement
	page *seleniumPage
}

func (e *seleniumElement) IsVisible(ctx context.Context) (bool, error) {
	return e.el.IsDisplayed()
}

func (e *seleniumElement) IsEnabled(ctx context.Context) (bool, error) {
	return e.el.IsEnabled()
}

// Click - scrolls the element into view first, sites ignore clicks on
// off-screen nodes
func (e *seleniumElement) Click(ctx context.Context) error {
	script := `arguments[0].scrollIntoView({behavior: 'instant', block: 'center'}); return true;`
	if _, err := e.page.wd.ExecuteScript(script, []interface{}{e.el}); err != nil {
		e.page.logger.Warnf("Failed to scroll to element: %v", err)
		if err := e.el.MoveTo(0, 0); err != nil {
			e.page.logger.Warnf("Failed to move to element: %v", err)
		}
	}
	e.page.pause()
	return e.el.Click()
}

// Fill - types character by character like a person would
func (e *seleniumElement) Fill(ctx context.Context, text string) error {
	if err := e.el.Clear(); err != nil {
		e.page.logger.Debugf("Failed to clear element: %v", err)
	}
	for _, char := range text {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.el.SendKeys(string(char)); err != nil {
			return fmt.Errorf("failed to type character: %w", err)
		}
		time.Sleep(30 * time.Millisecond)
	}
	return nil
}

func (e *seleniumElement) Press(ctx context.Context, key string) error {
	return e.el.SendKeys(seleniumKey(key))
}

func (e *seleniumElement) Text(ctx context.Context) (string, error) {
	return e.el.Text()
}

func (e *seleniumElement) Attribute(ctx context.Context, name string) (string, error) {
	return e.el.GetAttribute(name)
}

func (e *seleniumElement) Value(ctx context.Context) (string, error) {
	script := `var el = arguments[0]; return ("value" in el ? el.value : el.innerText) || "";`
	v, err := e.page.wd.ExecuteScript(script, []interface{}{e.el})
	if err != nil {
		return "", err
	}
	text, _ := v.(string)
	return text, nil
}

func (e *seleniumElement) SetFiles(ctx context.Context, paths []string) error {
	abs := make([]string, 0, len(paths))
	for _, p := range paths {
		a, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		abs = append(abs, a)
	}
	return e.el.SendKeys(strings.Join(abs, "\n"))
}
