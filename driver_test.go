package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
)

func TestSelectorIsXPath(t *testing.T) {
	tests := []struct {
		sel  Selector
		want bool
	}{
		{`//div[@class="site-nav-sign"]/a`, true},
		{`(//a[@class="go-btn"])[1]`, true},
		{`  //span`, true},
		{"#J_SelectAll1", false},
		{"#submitOrderPC_1 > div > a.go-btn", false},
		{".sixDigitPassword", false},
	}

	for _, tt := range tests {
		t.Run(tt.sel.String(), func(t *testing.T) {
			if got := tt.sel.IsXPath(); got != tt.want {
				t.Errorf("IsXPath(%q) = %v, want %v", tt.sel, got, tt.want)
			}
		})
	}
}

func TestRodLaunchError(t *testing.T) {
	p := &rodProvider{name: "system", mode: rodSystem, log: testLog()}

	tests := []struct {
		name        string
		err         error
		wantRunning bool
	}{
		{"existing session", errors.New("Opening in existing browser session."), true},
		{"process singleton", errors.New("[1234:ERROR:process_singleton_posix.cc] ProcessSingleton: profile in use"), true},
		{"singleton lock", errors.New("Failed to create /tmp/profile/SingletonLock: File exists"), true},
		{"missing binary", errors.New("exec: \"chromium\": executable file not found in $PATH"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.launchError(tt.err)
			if !errors.Is(got, tt.err) {
				t.Errorf("Expected the launch failure to be wrapped, got %v", got)
			}
			running := strings.HasPrefix(got.Error(), T("error_chrome_already_running"))
			if running != tt.wantRunning {
				t.Errorf("launchError(%q) = %q, already-running hint %v, want %v", tt.err, got, running, tt.wantRunning)
			}
			if !tt.wantRunning && !strings.HasPrefix(got.Error(), "launch: ") {
				t.Errorf("Expected a launch prefix, got %q", got)
			}
		})
	}
}

const driverTestPage = `<!DOCTYPE html>
<html><body>
<button id="go">Go</button>
<button id="off" disabled>Off</button>
</body></html>`

// TestDriverErrorKinds runs both drivers against a local page. It needs an
// installed Chrome or Chromium.
func TestDriverErrorKinds(t *testing.T) {
	if testing.Short() {
		t.Skip("browser test")
	}
	if _, found := launcher.LookPath(); !found {
		t.Skip("no Chrome or Chromium installed")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, driverTestPage)
	}))
	defer srv.Close()

	cfg := DriverConfig{Headless: true, PageLoadTimeout: 10}
	providers := []DriverProvider{
		&rodProvider{name: "system", cfg: cfg, mode: rodSystem, log: testLog()},
		&chromedpProvider{cfg: cfg, log: testLog()},
	}

	for _, p := range providers {
		t.Run(p.Name(), func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			d, err := p.Open(ctx)
			if err != nil {
				t.Skipf("browser did not start: %v", err)
			}
			defer d.Quit()

			if err := d.Navigate(ctx, srv.URL); err != nil {
				t.Fatalf("Navigate failed: %v", err)
			}

			if _, err := d.FindElement(ctx, "#go"); err != nil {
				t.Errorf("FindElement(#go) failed: %v", err)
			}
			if _, err := d.FindElement(ctx, `//button[@id="go"]`); err != nil {
				t.Errorf("FindElement by XPath failed: %v", err)
			}
			if _, err := d.WaitClickable(ctx, "#go", 5*time.Second, 50*time.Millisecond); err != nil {
				t.Errorf("WaitClickable(#go) failed: %v", err)
			}

			failures := []struct {
				name string
				call func() error
				want error
			}{
				{"find missing", func() error {
					_, err := d.FindElement(ctx, "#missing")
					return err
				}, ErrNotFound},
				{"wait clickable on disabled", func() error {
					_, err := d.WaitClickable(ctx, "#off", 300*time.Millisecond, 50*time.Millisecond)
					return err
				}, ErrTimeout},
				{"wait present on missing", func() error {
					_, err := d.WaitPresent(ctx, "#missing", 300*time.Millisecond)
					return err
				}, ErrTimeout},
			}
			for _, f := range failures {
				err := f.call()
				if !errors.Is(err, f.want) {
					t.Errorf("%s: expected %v, got %v", f.name, f.want, err)
				}
				var de *DriverError
				if !errors.As(err, &de) {
					t.Errorf("%s: expected a *DriverError, got %T", f.name, err)
				}
			}
		})
	}
}
