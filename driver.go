package main

import (
	"context"
	"strings"
	"time"
)

// Selector locates an element on the page. Values starting with "/" or "("
// are treated as XPath expressions, everything else as a CSS selector.
type Selector string

func (s Selector) IsXPath() bool {
	v := strings.TrimSpace(string(s))
	return strings.HasPrefix(v, "/") || strings.HasPrefix(v, "(")
}

func (s Selector) String() string { return string(s) }

// ElementHandle is returned by a Driver and only ever handed back to the
// same Driver. Callers never inspect it.
type ElementHandle interface{}

// CookieRecord mirrors the WebDriver cookie object so snapshots stay
// readable by other tooling.
type CookieRecord struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path,omitempty"`
	Expiry   float64 `json:"expiry,omitempty"`
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"httpOnly"`
	SameSite string  `json:"sameSite,omitempty"`
}

// Driver is the UI automation capability the session consumes. Every call
// blocks the caller until the browser answers or the call fails.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	// FindElements never waits and returns an empty slice when nothing matches.
	FindElements(ctx context.Context, sel Selector) ([]ElementHandle, error)
	// FindElement never waits and fails with ErrNotFound when nothing matches.
	FindElement(ctx context.Context, sel Selector) (ElementHandle, error)
	Click(ctx context.Context, el ElementHandle) error
	// WaitClickable polls every poll interval until the element is visible and
	// enabled, failing with ErrTimeout after timeout.
	WaitClickable(ctx context.Context, sel Selector, timeout, poll time.Duration) (ElementHandle, error)
	WaitPresent(ctx context.Context, sel Selector, timeout time.Duration) (ElementHandle, error)
	SendKeys(ctx context.Context, el ElementHandle, text string) error
	Cookies(ctx context.Context) ([]CookieRecord, error)
	// Quit releases the browser. Safe to call more than once.
	Quit() error
}
