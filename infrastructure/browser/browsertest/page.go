package browsertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"social_automation/domain/entities"
	"social_automation/domain/interfaces"
	"social_automation/infrastructure/extract"
)

// Page is an in-memory page. Elements are registered per strategy so a
// test decides exactly which strategies match.
type Page struct {
	browser *Browser

	mu       sync.Mutex
	url      string
	title    string
	html     string
	elements map[string][]*Element
	routes   map[string]func(p *Page)
	prefixes []prefixRoute
	hang     map[string]bool
	gotoErr  error
	onScroll func(p *Page)
	onPress  map[string]func(p *Page)
	visits   []string
	queries  []string
	pressed  []string
	scrolls  int
}

type prefixRoute struct {
	prefix string
	setup  func(p *Page)
}

// NewPage - creates an empty page not attached to any browser
func NewPage() *Page {
	return &Page{
		elements: make(map[string][]*Element),
		routes:   make(map[string]func(p *Page)),
		hang:     make(map[string]bool),
		onPress:  make(map[string]func(p *Page)),
	}
}

// Route - runs setup after navigation to url
func (p *Page) Route(url string, setup func(p *Page)) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes[url] = setup
	return p
}

// RoutePrefix - runs setup after navigation to any url with prefix
func (p *Page) RoutePrefix(prefix string, setup func(p *Page)) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prefixes = append(p.prefixes, prefixRoute{prefix: prefix, setup: setup})
	return p
}

// Hang - navigation to url never finishes until the browser closes
func (p *Page) Hang(url string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hang[url] = true
	return p
}

// FailGoto - every navigation returns err
func (p *Page) FailGoto(err error) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gotoErr = err
	return p
}

// OnScroll - hook run on every scroll
func (p *Page) OnScroll(fn func(p *Page)) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onScroll = fn
	return p
}

// OnPress - hook run when key is pressed on the page or any element
func (p *Page) OnPress(key string, fn func(p *Page)) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPress[key] = fn
	return p
}

// Add - appends elements matched by strategy
func (p *Page) Add(s entities.Strategy, els ...*Element) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, el := range els {
		el.attach(p)
	}
	key := s.String()
	p.elements[key] = append(p.elements[key], els...)
	return p
}

// Set - replaces the elements matched by strategy
func (p *Page) Set(s entities.Strategy, els ...*Element) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, el := range els {
		el.attach(p)
	}
	p.elements[s.String()] = els
	return p
}

// Mount - adds el under every catalog strategy that matches markup, the
// way a live selector engine would see that node. markup carries the
// surrounding context the strategies depend on, e.g. <main> or <header>.
func (p *Page) Mount(cfg *entities.PlatformConfig, markup string, el *Element) *Page {
	snap, err := extract.Parse(p.URL(), markup)
	if err != nil {
		panic(fmt.Sprintf("browsertest: bad markup: %v", err))
	}
	seen := make(map[string]bool)
	for _, target := range cfg.Targets {
		for _, s := range target.Strategies {
			if seen[s.String()] {
				continue
			}
			seen[s.String()] = true
			if n, err := snap.Count(s); err == nil && n > 0 {
				p.Add(s, el)
			}
		}
	}
	return p
}

// Unmount - el no longer matches any strategy
func (p *Page) Unmount(el *Element) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, els := range p.elements {
		kept := els[:0:0]
		for _, e := range els {
			if e != el {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(p.elements, key)
			continue
		}
		p.elements[key] = kept
	}
	return p
}

// Remove - strategy no longer matches anything
func (p *Page) Remove(s entities.Strategy) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.elements, s.String())
	return p
}

// Clear - drops every element, keeping routes and hooks
func (p *Page) Clear() *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements = make(map[string][]*Element)
	p.html = ""
	p.title = ""
	return p
}

// SetHTML - document returned by Info
func (p *Page) SetHTML(html string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.html = html
	return p
}

// SetTitle - document title
func (p *Page) SetTitle(title string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.title = title
	return p
}

// SetURL - simulates a client-side redirect
func (p *Page) SetURL(url string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	return p
}

func (p *Page) Goto(ctx context.Context, url string) error {
	if err := p.alive(); err != nil {
		return err
	}

	p.mu.Lock()
	p.visits = append(p.visits, url)
	hang := p.hang[url]
	gotoErr := p.gotoErr
	p.mu.Unlock()

	if gotoErr != nil {
		return gotoErr
	}

	if hang {
		var done <-chan struct{}
		if p.browser != nil {
			done = p.browser.closed
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("navigation to %s: %w", url, ctx.Err())
		case <-done:
			return fmt.Errorf("navigation to %s: %w", url, ErrClosed)
		}
	}

	p.mu.Lock()
	p.url = url
	setup := p.routes[url]
	if setup == nil {
		for _, r := range p.prefixes {
			if strings.HasPrefix(url, r.prefix) {
				setup = r.setup
				break
			}
		}
	}
	p.mu.Unlock()

	if setup != nil {
		setup(p)
	}
	return nil
}

func (p *Page) Query(ctx context.Context, s entities.Strategy) ([]interfaces.Element, error) {
	if err := p.alive(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.queries = append(p.queries, s.String())

	els := p.elements[s.String()]
	out := make([]interfaces.Element, len(els))
	for i, el := range els {
		out[i] = el
	}
	return out, nil
}

func (p *Page) Info(ctx context.Context) (entities.PageInfo, error) {
	if err := p.alive(); err != nil {
		return entities.PageInfo{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return entities.PageInfo{URL: p.url, Title: p.title, HTML: p.html}, nil
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) Scroll(ctx context.Context, pixels int) error {
	if err := p.alive(); err != nil {
		return err
	}
	p.mu.Lock()
	p.scrolls++
	hook := p.onScroll
	p.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *Page) Press(ctx context.Context, key string) error {
	if err := p.alive(); err != nil {
		return err
	}
	p.mu.Lock()
	p.pressed = append(p.pressed, key)
	hook := p.onPress[key]
	p.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return nil
}

// Visits - navigated urls in order
func (p *Page) Visits() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.visits...)
}

// Queries - strategies queried, in order
func (p *Page) Queries() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.queries...)
}

// Pressed - keys pressed on the page or its elements
func (p *Page) Pressed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.pressed...)
}

// Scrolls - number of scroll calls
func (p *Page) Scrolls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrolls
}

func (p *Page) alive() error {
	if p.browser != nil && p.browser.isClosed() {
		return ErrClosed
	}
	return nil
}

// Element is a scripted DOM node
type Element struct {
	page *Page

	mu       sync.Mutex
	visible  bool
	enabled  bool
	text     string
	value    string
	attrs    map[string]string
	onClick  func(p *Page)
	onFill   func(p *Page, text string)
	clicks   int
	filled   []string
	files    []string
	pressed  []string
	clickErr error
}

// El - a visible, enabled element with text
func El(text string) *Element {
	return &Element{visible: true, enabled: true, text: text, attrs: make(map[string]string)}
}

// Link - a visible anchor with href
func Link(href, text string) *Element {
	return El(text).Attr("href", href)
}

// Attr - sets an attribute
func (e *Element) Attr(name, value string) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attrs[name] = value
	return e
}

// SetValue - replaces the editable content, e.g. a composer emptied after
// a send
func (e *Element) SetValue(v string) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.value = v
	return e
}

// Hidden - element exists but is not rendered
func (e *Element) Hidden() *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.visible = false
	return e
}

// Disabled - element is rendered but not interactable
func (e *Element) Disabled() *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = false
	return e
}

// OnClick - hook run after each click
func (e *Element) OnClick(fn func(p *Page)) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onClick = fn
	return e
}

// OnFill - hook run after each fill
func (e *Element) OnFill(fn func(p *Page, text string)) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onFill = fn
	return e
}

// FailClick - clicks return err
func (e *Element) FailClick(err error) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clickErr = err
	return e
}

func (e *Element) IsVisible(ctx context.Context) (bool, error) {
	if err := e.alive(); err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.visible, nil
}

func (e *Element) IsEnabled(ctx context.Context) (bool, error) {
	if err := e.alive(); err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled, nil
}

func (e *Element) Click(ctx context.Context) error {
	if err := e.alive(); err != nil {
		return err
	}
	e.mu.Lock()
	if e.clickErr != nil {
		err := e.clickErr
		e.mu.Unlock()
		return err
	}
	if !e.visible || !e.enabled {
		e.mu.Unlock()
		return errors.New("element is not interactable")
	}
	e.clicks++
	hook := e.onClick
	page := e.page
	e.mu.Unlock()

	if hook != nil {
		hook(page)
	}
	return nil
}

func (e *Element) Fill(ctx context.Context, text string) error {
	if err := e.alive(); err != nil {
		return err
	}
	e.mu.Lock()
	e.filled = append(e.filled, text)
	e.value = text
	hook := e.onFill
	page := e.page
	e.mu.Unlock()

	if hook != nil {
		hook(page, text)
	}
	return nil
}

func (e *Element) Press(ctx context.Context, key string) error {
	if err := e.alive(); err != nil {
		return err
	}
	e.mu.Lock()
	e.pressed = append(e.pressed, key)
	page := e.page
	e.mu.Unlock()

	if page != nil {
		return page.Press(ctx, key)
	}
	return nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	if err := e.alive(); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text, nil
}

func (e *Element) Value(ctx context.Context) (string, error) {
	if err := e.alive(); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value, nil
}

func (e *Element) Attribute(ctx context.Context, name string) (string, error) {
	if err := e.alive(); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attrs[name], nil
}

func (e *Element) SetFiles(ctx context.Context, paths []string) error {
	if err := e.alive(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.files = append(e.files, paths...)
	return nil
}

// Clicks - number of successful clicks
func (e *Element) Clicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clicks
}

// Filled - texts filled in, in order
func (e *Element) Filled() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.filled...)
}

// Files - paths attached through SetFiles
func (e *Element) Files() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.files...)
}

func (e *Element) attach(p *Page) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.page = p
}

func (e *Element) alive() error {
	e.mu.Lock()
	page := e.page
	e.mu.Unlock()
	if page != nil {
		return page.alive()
	}
	return nil
}
