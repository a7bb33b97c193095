package main

import (
	"context"
	"errors"
	"testing"
	"time"
)

const (
	testLoginURL = "https://shop.example/login"
	testCartURL  = "https://shop.example/cart"
)

func newTestAuthenticator(d Driver, clock Clock, policy LoginPolicy) *Authenticator {
	return NewAuthenticator(d, clock, testLog(), policy, testLoginURL, testCartURL, testSelectors())
}

func TestLoginAlreadyLoggedIn(t *testing.T) {
	sel := testSelectors()
	clock := newFakeClock(time.Now())
	d := newFakeDriver(clock)
	d.findElement = func(s Selector) (ElementHandle, error) { return s, nil }

	auth := newTestAuthenticator(d, clock, LoginPolicy{Grace: 15 * time.Second, MaxWait: time.Minute})
	if err := auth.Login(context.Background()); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	calls := d.Calls()
	if calls[0].op != "navigate" || calls[0].sel != testLoginURL {
		t.Errorf("Expected first call to open the login page, got %+v", calls[0])
	}
	last := calls[len(calls)-1]
	if last.op != "navigate" || last.sel != testCartURL {
		t.Errorf("Expected last call to open the cart, got %+v", last)
	}
	if d.count("click", sel.LoginLink) != 0 {
		t.Error("Login link clicked although already logged in")
	}
	if len(clock.Sleeps()) != 0 {
		t.Errorf("Expected no waiting, got %v", clock.Sleeps())
	}
}

func TestLoginAfterScan(t *testing.T) {
	sel := testSelectors()
	clock := newFakeClock(time.Now())
	d := newFakeDriver(clock)
	d.findElements = func(s Selector) ([]ElementHandle, error) {
		if s == sel.LoginLink {
			return []ElementHandle{s}, nil
		}
		return nil, nil
	}
	markerChecks := 0
	d.findElement = func(s Selector) (ElementHandle, error) {
		markerChecks++
		if markerChecks < 2 {
			return nil, newDriverError("find", s, ErrNotFound, nil)
		}
		return s, nil
	}

	auth := newTestAuthenticator(d, clock, LoginPolicy{Grace: 15 * time.Second, MaxWait: 10 * time.Minute})
	if err := auth.Login(context.Background()); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if got := d.count("click", sel.LoginLink); got != 2 {
		t.Errorf("Expected login link to be clicked twice, got %d", got)
	}
	sleeps := clock.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 15*time.Second || sleeps[1] != 15*time.Second {
		t.Errorf("Expected two 15s grace periods, got %v", sleeps)
	}
}

func TestLoginTimeout(t *testing.T) {
	testCases := []struct {
		name     string
		policy   LoginPolicy
		attempts int
	}{
		{
			name:     "time budget",
			policy:   LoginPolicy{Grace: 15 * time.Second, MaxWait: time.Minute},
			attempts: 5,
		},
		{
			name:     "attempt cap",
			policy:   LoginPolicy{Grace: 15 * time.Second, MaxWait: 10 * time.Minute, MaxAttempts: 2},
			attempts: 2,
		},
		{
			name:     "single attempt",
			policy:   LoginPolicy{Grace: 15 * time.Second},
			attempts: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clock := newFakeClock(time.Now())
			d := newFakeDriver(clock)

			err := newTestAuthenticator(d, clock, tc.policy).Login(context.Background())
			if !errors.Is(err, ErrAuthTimeout) {
				t.Fatalf("Expected ErrAuthTimeout, got %v", err)
			}
			var timeout *AuthTimeoutError
			if !errors.As(err, &timeout) {
				t.Fatalf("Expected *AuthTimeoutError, got %T", err)
			}
			if timeout.Attempts != tc.attempts {
				t.Errorf("Expected %d attempts, got %d", tc.attempts, timeout.Attempts)
			}
			if d.count("navigate", testCartURL) != 0 {
				t.Error("Cart opened without a confirmed login")
			}
		})
	}
}

func TestLoginCancelled(t *testing.T) {
	clock := newFakeClock(time.Now())
	d := newFakeDriver(clock)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newTestAuthenticator(d, clock, LoginPolicy{Grace: time.Second, MaxWait: time.Hour}).Login(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestLoginTransportErrorsAreRetried(t *testing.T) {
	clock := newFakeClock(time.Now())
	d := newFakeDriver(clock)
	navs := 0
	d.navigate = func(url string) error {
		if url == testLoginURL {
			navs++
			if navs == 1 {
				return newDriverError("navigate", "", ErrTransport, errors.New("connection reset"))
			}
		}
		return nil
	}
	d.findElement = func(s Selector) (ElementHandle, error) { return s, nil }

	if err := newTestAuthenticator(d, clock, LoginPolicy{Grace: 5 * time.Second, MaxWait: time.Minute}).Login(context.Background()); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if navs != 2 {
		t.Errorf("Expected the login page to be loaded twice, got %d", navs)
	}
}
