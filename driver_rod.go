package main

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/sirupsen/logrus"
)

type rodMode int

const (
	rodRemote rodMode = iota
	rodSystem
	rodPath
	rodDownload
)

// rodProvider opens a stealth go-rod page, either on a browser it launches
// itself or on one that is already running.
type rodProvider struct {
	name string
	cfg  DriverConfig
	mode rodMode
	log  *logrus.Entry
}

func (p *rodProvider) Name() string { return p.name }

func (p *rodProvider) Open(ctx context.Context) (Driver, error) {
	var (
		controlURL string
		l          *launcher.Launcher
		err        error
	)

	if p.mode == rodPath && p.cfg.ChromePath == "" {
		return nil, errProviderSkipped
	}
	if p.mode == rodRemote {
		if p.cfg.RemoteURL == "" {
			return nil, errProviderSkipped
		}
		controlURL, err = launcher.ResolveURL(p.cfg.RemoteURL)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p.cfg.RemoteURL, err)
		}
	} else {
		l, err = p.launcher()
		if err != nil {
			return nil, err
		}
		controlURL, err = l.Context(ctx).Launch()
		if err != nil {
			l.Cleanup()
			return nil, p.launchError(err)
		}
	}

	browser := rod.New().Context(ctx).ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		if l != nil {
			l.Cleanup()
		}
		return nil, fmt.Errorf("connect: %w", err)
	}
	// The connect context must not bound the rest of the session.
	browser = browser.Context(context.Background())

	d := &rodDriver{
		browser:  browser,
		launcher: l,
		remote:   p.mode == rodRemote,
		log:      p.log,
	}
	if !d.isAlive() {
		d.Quit()
		return nil, errors.New("browser does not answer")
	}
	if err := d.openPage(p.cfg); err != nil {
		d.Quit()
		return nil, err
	}
	return d, nil
}

func (p *rodProvider) launcher() (*launcher.Launcher, error) {
	// leakless trips antivirus software on Windows and can deadlock there.
	// See: https://github.com/go-rod/rod/issues/853
	useLeakless := runtime.GOOS != "windows"

	l := launcher.New().
		Leakless(useLeakless).
		Headless(p.cfg.Headless).
		Set("disable-blink-features", "AutomationControlled")

	if p.cfg.BrowserProfilePath != "" {
		l = l.UserDataDir(p.cfg.BrowserProfilePath)
		p.log.Debugf("browser profile: %s", p.cfg.BrowserProfilePath)
	}

	switch p.mode {
	case rodSystem:
		chromePath, found := launcher.LookPath()
		if !found {
			return nil, errors.New("no installed Chrome or Chromium found")
		}
		p.log.Debugf("using system browser %s", chromePath)
		l = l.Bin(chromePath)
	case rodPath:
		l = l.Bin(p.cfg.ChromePath)
	case rodDownload:
		p.log.Info(T("browser_downloading"))
	}
	return l, nil
}

func (p *rodProvider) launchError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "Opening in existing browser session") ||
		strings.Contains(msg, "ProcessSingleton") ||
		strings.Contains(msg, "SingletonLock") {
		return fmt.Errorf("%s: %w", T("error_chrome_already_running"), err)
	}
	return fmt.Errorf("launch: %w", err)
}

// rodDriver implements Driver on a single go-rod page.
type rodDriver struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	remote   bool
	log      *logrus.Entry

	loadTimeout time.Duration
	quitOnce    sync.Once
}

func (d *rodDriver) openPage(cfg DriverConfig) error {
	page, err := stealth.Page(d.browser)
	if err != nil {
		return fmt.Errorf("failed to create stealth page: %w", err)
	}
	d.page = page

	if cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: cfg.UserAgent}); err != nil {
			d.log.Debugf("failed to set User-Agent: %v", err)
		}
	}
	d.loadTimeout = time.Duration(cfg.PageLoadTimeout) * time.Second
	return nil
}

// isAlive reports whether the browser still answers.
func (d *rodDriver) isAlive() bool {
	if d.browser == nil {
		return false
	}
	if _, err := d.browser.Version(); err != nil {
		d.log.Debugf("browser version check failed: %v", err)
		return false
	}
	return true
}

func (d *rodDriver) Navigate(ctx context.Context, url string) error {
	p := d.page.Context(ctx)
	if d.loadTimeout > 0 {
		p = p.Timeout(d.loadTimeout)
	}
	if err := p.Navigate(url); err != nil {
		return newDriverError("navigate", "", ErrTransport, err)
	}
	if err := p.WaitLoad(); err != nil {
		return newDriverError("navigate", "", ErrTransport, err)
	}
	return nil
}

func (d *rodDriver) FindElements(ctx context.Context, sel Selector) ([]ElementHandle, error) {
	p := d.page.Context(ctx)
	var (
		els rod.Elements
		err error
	)
	if sel.IsXPath() {
		els, err = p.ElementsX(sel.String())
	} else {
		els, err = p.Elements(sel.String())
	}
	if err != nil {
		return nil, newDriverError("find all", sel, ErrTransport, err)
	}
	handles := make([]ElementHandle, 0, len(els))
	for _, el := range els {
		handles = append(handles, el)
	}
	return handles, nil
}

func (d *rodDriver) FindElement(ctx context.Context, sel Selector) (ElementHandle, error) {
	el, err := d.find(d.page.Context(ctx).Sleeper(rod.NotFoundSleeper), sel)
	if err != nil {
		var notFound *rod.ElementNotFoundError
		if errors.As(err, &notFound) {
			return nil, newDriverError("find", sel, ErrNotFound, nil)
		}
		return nil, newDriverError("find", sel, ErrTransport, err)
	}
	return el, nil
}

func (d *rodDriver) find(p *rod.Page, sel Selector) (*rod.Element, error) {
	if sel.IsXPath() {
		return p.ElementX(sel.String())
	}
	return p.Element(sel.String())
}

func (d *rodDriver) Click(ctx context.Context, h ElementHandle) error {
	el, ok := h.(*rod.Element)
	if !ok {
		return newDriverError("click", "", ErrNotActionable, fmt.Errorf("foreign element handle %T", h))
	}
	if err := el.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return newDriverError("click", "", ErrNotActionable, err)
	}
	return nil
}

func (d *rodDriver) WaitClickable(ctx context.Context, sel Selector, timeout, poll time.Duration) (ElementHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	p := d.page.Context(ctx).Sleeper(rod.NotFoundSleeper)
	for {
		if el, err := d.find(p, sel); err == nil && clickable(el) {
			return el.Context(context.Background()), nil
		}
		select {
		case <-ctx.Done():
			return nil, newDriverError("wait clickable", sel, ErrTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

func clickable(el *rod.Element) bool {
	visible, err := el.Visible()
	if err != nil || !visible {
		return false
	}
	disabled, err := el.Disabled()
	return err == nil && !disabled
}

func (d *rodDriver) WaitPresent(ctx context.Context, sel Selector, timeout time.Duration) (ElementHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	el, err := d.find(d.page.Context(ctx), sel)
	if err != nil {
		if ctx.Err() != nil {
			return nil, newDriverError("wait present", sel, ErrTimeout, err)
		}
		return nil, newDriverError("wait present", sel, ErrTransport, err)
	}
	return el.Context(context.Background()), nil
}

func (d *rodDriver) SendKeys(ctx context.Context, h ElementHandle, text string) error {
	el, ok := h.(*rod.Element)
	if !ok {
		return newDriverError("type", "", ErrNotActionable, fmt.Errorf("foreign element handle %T", h))
	}
	if err := el.Context(ctx).Input(text); err != nil {
		return newDriverError("type", "", ErrNotActionable, err)
	}
	return nil
}

func (d *rodDriver) Cookies(ctx context.Context) ([]CookieRecord, error) {
	cookies, err := d.page.Context(ctx).Cookies(nil)
	if err != nil {
		return nil, newDriverError("cookies", "", ErrTransport, err)
	}
	records := make([]CookieRecord, 0, len(cookies))
	for _, c := range cookies {
		records = append(records, CookieRecord{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expiry:   float64(c.Expires),
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: string(c.SameSite),
		})
	}
	return records, nil
}

func (d *rodDriver) Quit() error {
	var err error
	d.quitOnce.Do(func() {
		if d.page != nil {
			if cerr := d.page.Close(); cerr != nil {
				d.log.Debugf("page close: %v", cerr)
			}
		}
		// Never shut down a browser we only attached to.
		if d.browser != nil && !d.remote {
			err = d.browser.Close()
		}
		if d.launcher != nil {
			d.launcher.Cleanup()
		}
	})
	return err
}
