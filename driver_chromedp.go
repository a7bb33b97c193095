package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// chromedpProvider is the last resort when go-rod cannot start a browser.
type chromedpProvider struct {
	cfg DriverConfig
	log *logrus.Entry
}

func (p *chromedpProvider) Name() string { return providerChromedp }

func (p *chromedpProvider) Open(ctx context.Context) (Driver, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if p.cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(p.cfg.ChromePath))
	}
	if p.cfg.BrowserProfilePath != "" {
		opts = append(opts, chromedp.UserDataDir(p.cfg.BrowserProfilePath))
	}
	if p.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(p.cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tab, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(p.log.Debugf))

	d := &cdpDriver{
		tab:         tab,
		cancel:      func() { tabCancel(); allocCancel() },
		loadTimeout: time.Duration(p.cfg.PageLoadTimeout) * time.Second,
		log:         p.log,
	}
	// The first Run starts the browser.
	if err := d.run(ctx, 0); err != nil {
		d.Quit()
		return nil, fmt.Errorf("start: %w", err)
	}
	return d, nil
}

// cdpDriver implements Driver with chromedp on one tab.
type cdpDriver struct {
	tab         context.Context
	cancel      func()
	loadTimeout time.Duration
	log         *logrus.Entry

	quitOnce sync.Once
}

// run executes actions on the tab, bounded by timeout (if positive) and
// cancelled together with ctx.
func (d *cdpDriver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(d.tab, timeout)
	} else {
		runCtx, cancel = context.WithCancel(d.tab)
	}
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func queryBy(sel Selector, single bool) chromedp.QueryOption {
	if sel.IsXPath() {
		return chromedp.BySearch
	}
	if single {
		return chromedp.ByQuery
	}
	return chromedp.ByQueryAll
}

func (d *cdpDriver) Navigate(ctx context.Context, url string) error {
	if err := d.run(ctx, d.loadTimeout, chromedp.Navigate(url)); err != nil {
		return newDriverError("navigate", "", ErrTransport, err)
	}
	return nil
}

func (d *cdpDriver) nodes(ctx context.Context, sel Selector, single bool) ([]*cdp.Node, error) {
	var nodes []*cdp.Node
	err := d.run(ctx, 0, chromedp.Nodes(sel.String(), &nodes, queryBy(sel, single), chromedp.AtLeast(0)))
	return nodes, err
}

func (d *cdpDriver) FindElements(ctx context.Context, sel Selector) ([]ElementHandle, error) {
	nodes, err := d.nodes(ctx, sel, false)
	if err != nil {
		return nil, newDriverError("find all", sel, ErrTransport, err)
	}
	handles := make([]ElementHandle, 0, len(nodes))
	for _, n := range nodes {
		handles = append(handles, n)
	}
	return handles, nil
}

func (d *cdpDriver) FindElement(ctx context.Context, sel Selector) (ElementHandle, error) {
	nodes, err := d.nodes(ctx, sel, true)
	if err != nil {
		return nil, newDriverError("find", sel, ErrTransport, err)
	}
	if len(nodes) == 0 {
		return nil, newDriverError("find", sel, ErrNotFound, nil)
	}
	return nodes[0], nil
}

func (d *cdpDriver) Click(ctx context.Context, h ElementHandle) error {
	node, ok := h.(*cdp.Node)
	if !ok {
		return newDriverError("click", "", ErrNotActionable, fmt.Errorf("foreign element handle %T", h))
	}
	if err := d.run(ctx, 0, chromedp.MouseClickNode(node)); err != nil {
		return newDriverError("click", "", ErrNotActionable, err)
	}
	return nil
}

func (d *cdpDriver) WaitClickable(ctx context.Context, sel Selector, timeout, poll time.Duration) (ElementHandle, error) {
	var nodes []*cdp.Node
	by := queryBy(sel, true)
	err := d.run(ctx, timeout,
		chromedp.WaitEnabled(sel.String(), by, chromedp.RetryInterval(poll)),
		chromedp.Nodes(sel.String(), &nodes, by, chromedp.NodeVisible, chromedp.RetryInterval(poll)),
	)
	if err != nil {
		return nil, newDriverError("wait clickable", sel, errorKind(err), err)
	}
	return nodes[0], nil
}

func (d *cdpDriver) WaitPresent(ctx context.Context, sel Selector, timeout time.Duration) (ElementHandle, error) {
	var nodes []*cdp.Node
	err := d.run(ctx, timeout, chromedp.Nodes(sel.String(), &nodes, queryBy(sel, true), chromedp.NodeReady))
	if err != nil {
		return nil, newDriverError("wait present", sel, errorKind(err), err)
	}
	return nodes[0], nil
}

func (d *cdpDriver) SendKeys(ctx context.Context, h ElementHandle, text string) error {
	node, ok := h.(*cdp.Node)
	if !ok {
		return newDriverError("type", "", ErrNotActionable, fmt.Errorf("foreign element handle %T", h))
	}
	if err := d.run(ctx, 0, chromedp.SendKeys([]cdp.NodeID{node.NodeID}, text, chromedp.ByNodeID)); err != nil {
		return newDriverError("type", "", ErrNotActionable, err)
	}
	return nil
}

func (d *cdpDriver) Cookies(ctx context.Context) ([]CookieRecord, error) {
	var cookies []*network.Cookie
	err := d.run(ctx, 0, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
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
			Expiry:   c.Expires,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: string(c.SameSite),
		})
	}
	return records, nil
}

func (d *cdpDriver) Quit() error {
	var err error
	d.quitOnce.Do(func() {
		err = chromedp.Cancel(d.tab)
		d.cancel()
	})
	return err
}
