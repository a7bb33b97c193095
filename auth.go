package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// LoginPolicy bounds how long the login loop waits for out-of-band approval.
type LoginPolicy struct {
	// Grace is the pause after triggering login, e.g. for a QR code scan.
	Grace time.Duration
	// MaxWait is the total time budget. Zero means a single attempt.
	MaxWait time.Duration
	// MaxAttempts caps attempts inside MaxWait; zero means no cap.
	MaxAttempts int
}

// Authenticator drives the storefront login until the post-login marker
// shows up, then moves to the cart page.
type Authenticator struct {
	driver    Driver
	clock     Clock
	log       *logrus.Entry
	policy    LoginPolicy
	loginURL  string
	cartURL   string
	selectors SelectorConfig
}

func NewAuthenticator(driver Driver, clock Clock, log *logrus.Entry, policy LoginPolicy, loginURL, cartURL string, selectors SelectorConfig) *Authenticator {
	return &Authenticator{
		driver:    driver,
		clock:     clock,
		log:       log.WithField("phase", PhaseAuthenticating.String()),
		policy:    policy,
		loginURL:  loginURL,
		cartURL:   cartURL,
		selectors: selectors,
	}
}

// Login returns nil once logged in, an *AuthTimeoutError when the budget is
// spent, or the context error.
func (a *Authenticator) Login(ctx context.Context) error {
	start := a.clock.Now()
	deadline := start.Add(a.policy.MaxWait)

	for attempt := 1; ; attempt++ {
		ok, waited, err := a.attempt(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			a.log.WithField("attempt", attempt).Warnf("login attempt failed: %v", err)
		}
		if ok {
			a.log.WithField("attempt", attempt).Info(T("login_success"))
			if err := a.driver.Navigate(ctx, a.cartURL); err != nil {
				// The scheduler refreshes the cart page anyway.
				a.log.Warnf("failed to open cart page: %v", err)
			}
			return nil
		}

		now := a.clock.Now()
		if !now.Before(deadline) || (a.policy.MaxAttempts > 0 && attempt >= a.policy.MaxAttempts) {
			return &AuthTimeoutError{Attempts: attempt, Waited: now.Sub(start)}
		}
		a.log.WithField("attempt", attempt).Info(T("login_retry"))

		// Without a login link to click nothing paused this attempt; pace the
		// reloads the same way.
		if !waited {
			if err := a.clock.Sleep(ctx, a.policy.Grace); err != nil {
				return err
			}
		}
	}
}

func (a *Authenticator) attempt(ctx context.Context) (ok, waited bool, err error) {
	if err := a.driver.Navigate(ctx, a.loginURL); err != nil {
		return false, false, err
	}

	if a.selectors.LoginLink != "" {
		links, err := a.driver.FindElements(ctx, a.selectors.LoginLink)
		if err != nil {
			return false, false, err
		}
		if len(links) > 0 {
			a.log.Info(T("login_clicking"))
			if err := a.driver.Click(ctx, links[0]); err != nil {
				return false, false, err
			}
			a.log.Infof(T("login_scan_prompt"), int(a.policy.Grace.Seconds()))
			if err := a.clock.Sleep(ctx, a.policy.Grace); err != nil {
				return false, true, err
			}
			waited = true
		}
	}

	if _, err := a.driver.FindElement(ctx, a.selectors.LoginMarker); err != nil {
		if errorKind(err) == ErrNotFound {
			return false, waited, nil
		}
		return false, waited, err
	}
	return true, waited, nil
}
