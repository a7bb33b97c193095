package main

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ControllerOptions carries everything the phases need besides the driver.
type ControllerOptions struct {
	LoginURL  string
	CartURL   string
	Selectors SelectorConfig

	Login   LoginPolicy
	Wait    WaitPolicy
	Retry   RetryPolicy
	Payment PaymentPolicy

	Cookies  *CookieStore
	Notifier Notifier

	// KeepOpen delays the browser release on paths that skip payment.
	KeepOpen time.Duration
	// OnRefresh is forwarded to the wait scheduler.
	OnRefresh func(remaining time.Duration)
	// TimeSync is forwarded to the wait scheduler for periodic resyncs.
	TimeSync Resyncer
}

// Controller runs one session through its phases and owns the driver for
// the whole run: the driver is released exactly once, whatever phase the
// session ends in.
type Controller struct {
	driver Driver
	clock  Clock
	log    *logrus.Entry
	opts   ControllerOptions

	releaseOnce sync.Once
	released    bool
}

func NewController(driver Driver, clock Clock, log *logrus.Entry, opts ControllerOptions) *Controller {
	return &Controller{
		driver: driver,
		clock:  clock,
		log:    log,
		opts:   opts,
	}
}

// Run drives s to Completed or Abandoned. Running out of submission retries
// is a normal outcome and returns nil; a login timeout or a cancelled context
// is returned as an error after the session is abandoned.
func (c *Controller) Run(ctx context.Context, s *Session) error {
	log := c.log.WithField("session", s.ID)

	defer func() {
		if !c.released && c.opts.KeepOpen > 0 && ctx.Err() == nil {
			log.Infof(T("keep_browser_open"), int(c.opts.KeepOpen.Seconds()))
			_ = c.clock.Sleep(ctx, c.opts.KeepOpen)
		}
		c.release(log)
		log.WithFields(logrus.Fields{
			"phase":   s.Phase().String(),
			"retries": s.Retries(),
			"success": s.SubmitSuccess(),
		}).Info(T("session_finished"))
	}()

	fail := func(cause error) error {
		s.abandon(cause)
		log.WithField("phase", s.Phase().String()).Errorf("session abandoned: %v", cause)
		return cause
	}

	log.WithField("target", s.Target().Format("2006-01-02 15:04:05")).Info(T("session_started"))
	if err := s.advance(PhaseAuthenticating); err != nil {
		return err
	}
	auth := NewAuthenticator(c.driver, c.clock, log, c.opts.Login, c.opts.LoginURL, c.opts.CartURL, c.opts.Selectors)
	if err := auth.Login(ctx); err != nil {
		return fail(err)
	}

	if err := s.advance(PhaseWaiting); err != nil {
		return err
	}
	sched := NewWaitScheduler(c.driver, c.clock, log, c.opts.Wait, c.opts.CartURL, c.opts.Cookies)
	sched.OnRefresh = c.opts.OnRefresh
	sched.TimeSync = c.opts.TimeSync
	if err := sched.Wait(ctx, s.Target()); err != nil {
		return fail(err)
	}

	if err := s.advance(PhaseSubmitting); err != nil {
		return err
	}
	sub := NewSubmitter(c.driver, c.clock, log, c.opts.Retry, c.opts.Selectors)
	if err := sub.Submit(ctx, s); err != nil {
		return fail(err)
	}

	if !s.SubmitSuccess() {
		return s.advance(PhaseAbandoned)
	}

	// Nothing was ordered in a dry run, so there is nothing to pay.
	if c.opts.Retry.DryRun || !s.HasPaymentSecret() {
		return s.advance(PhaseCompleted)
	}

	if err := s.advance(PhasePayPending); err != nil {
		return err
	}
	fin := NewPaymentFinalizer(c.driver, c.clock, log, c.opts.Payment, c.opts.Selectors, c.opts.Notifier, func() { c.release(log) })
	s.paymentErr = fin.Pay(ctx, s.paymentSecret)
	return s.advance(PhaseCompleted)
}

func (c *Controller) release(log *logrus.Entry) {
	c.releaseOnce.Do(func() {
		c.released = true
		if err := c.driver.Quit(); err != nil {
			log.Warnf("browser release failed: %v", err)
			return
		}
		log.Info(T("browser_released"))
	})
}
