package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// WaitPolicy controls how the scheduler idles before the sale.
type WaitPolicy struct {
	// RefreshCutoff is how close to the target the page stops being reloaded.
	RefreshCutoff   time.Duration
	RefreshInterval time.Duration
}

// Resyncer refreshes a clock offset. *TimeSync satisfies it.
type Resyncer interface {
	ShouldResync() bool
	Sync() error
}

// WaitScheduler keeps the login alive by reloading the cart page while the
// target is far away, then snapshots cookies once it is near.
type WaitScheduler struct {
	driver  Driver
	clock   Clock
	log     *logrus.Entry
	policy  WaitPolicy
	cartURL string
	store   *CookieStore

	// OnRefresh, when set, receives the remaining time after every reload
	// and once more when the wait ends.
	OnRefresh func(remaining time.Duration)
	// TimeSync, when set, is resynced between reloads once it goes stale.
	TimeSync Resyncer
}

func NewWaitScheduler(driver Driver, clock Clock, log *logrus.Entry, policy WaitPolicy, cartURL string, store *CookieStore) *WaitScheduler {
	return &WaitScheduler{
		driver:  driver,
		clock:   clock,
		log:     log.WithField("phase", PhaseWaiting.String()),
		policy:  policy,
		cartURL: cartURL,
		store:   store,
	}
}

// Wait returns when the target is within the refresh cutoff. Only a
// cancelled context makes it fail.
func (w *WaitScheduler) Wait(ctx context.Context, target time.Time) error {
	w.log.Info(T("wait_started"))

	for {
		w.resync()
		remaining := target.Sub(w.clock.Now())
		if remaining <= w.policy.RefreshCutoff {
			if w.OnRefresh != nil {
				w.OnRefresh(remaining)
			}
			break
		}

		if err := w.driver.Navigate(ctx, w.cartURL); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Warnf("cart refresh failed: %v", err)
		} else {
			w.log.WithField("remaining", remaining.Round(time.Second)).Info(T("wait_refreshed"))
		}
		if w.OnRefresh != nil {
			w.OnRefresh(remaining)
		}

		if err := w.clock.Sleep(ctx, w.policy.RefreshInterval); err != nil {
			return err
		}
	}

	w.snapshot(ctx)
	w.log.Info(T("wait_near_target"))
	return nil
}

func (w *WaitScheduler) resync() {
	if w.TimeSync == nil || !w.TimeSync.ShouldResync() {
		return
	}
	if err := w.TimeSync.Sync(); err != nil {
		w.log.Warnf("time resync failed, keeping the previous offset: %v", err)
	}
}

func (w *WaitScheduler) snapshot(ctx context.Context) {
	if w.store == nil {
		return
	}
	cookies, err := w.driver.Cookies(ctx)
	if err != nil {
		w.log.Warnf("cookie snapshot failed: %v", err)
		return
	}
	if err := w.store.Save(cookies); err != nil {
		w.log.Warnf("cookie snapshot not saved: %v", err)
		return
	}
	w.log.WithField("cookies", len(cookies)).Infof("cookies saved to %s", w.store.Path)
}
