package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

type PaymentPolicy struct {
	StepTimeout time.Duration
	// Grace keeps the browser open after paying so the result page can be seen.
	Grace time.Duration
}

// PaymentFinalizer enters the payment secret after a successful submission
// and always releases the browser afterwards.
type PaymentFinalizer struct {
	driver    Driver
	clock     Clock
	log       *logrus.Entry
	policy    PaymentPolicy
	selectors SelectorConfig
	notifier  Notifier
	release   func()
}

func NewPaymentFinalizer(driver Driver, clock Clock, log *logrus.Entry, policy PaymentPolicy, selectors SelectorConfig, notifier Notifier, release func()) *PaymentFinalizer {
	return &PaymentFinalizer{
		driver:    driver,
		clock:     clock,
		log:       log.WithField("phase", PhasePayPending.String()),
		policy:    policy,
		selectors: selectors,
		notifier:  notifier,
		release:   release,
	}
}

// Pay returns the payment failure, if any. The caller records it but the
// session completes either way.
func (p *PaymentFinalizer) Pay(ctx context.Context, secret string) (err error) {
	defer p.cleanup(ctx)

	err = p.pay(ctx, secret)
	if err != nil {
		p.log.Warnf("payment failed: %v", err)
		p.notify(ctx, T("notify_payment_failed"))
		return err
	}
	p.log.Info(T("payment_success"))
	p.notify(ctx, T("notify_payment_success"))
	return nil
}

func (p *PaymentFinalizer) pay(ctx context.Context, secret string) error {
	input, err := p.driver.WaitPresent(ctx, p.selectors.PasswordInput, p.policy.StepTimeout)
	if err != nil {
		return fmt.Errorf("password input: %w", err)
	}
	if err := p.driver.SendKeys(ctx, input, secret); err != nil {
		return fmt.Errorf("password input: %w", err)
	}
	p.log.Info(T("payment_secret_entered"))

	confirm, err := p.driver.WaitPresent(ctx, p.selectors.PaymentConfirm, p.policy.StepTimeout)
	if err != nil {
		return fmt.Errorf("payment confirm: %w", err)
	}
	if err := p.driver.Click(ctx, confirm); err != nil {
		return fmt.Errorf("payment confirm: %w", err)
	}
	return nil
}

func (p *PaymentFinalizer) notify(ctx context.Context, msg string) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, msg); err != nil {
		p.log.Debugf("notification not delivered: %v", err)
	}
}

func (p *PaymentFinalizer) cleanup(ctx context.Context) {
	p.log.Infof(T("payment_closing"), int(p.policy.Grace.Seconds()))
	if err := p.clock.Sleep(ctx, p.policy.Grace); err != nil {
		p.log.Debugf("grace period cut short: %v", err)
	}
	if p.release != nil {
		p.release()
	}
}
