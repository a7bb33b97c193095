package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

const (
	providerRemote   = "remote"
	providerSystem   = "system"
	providerPath     = "path"
	providerDownload = "download"
	providerChromedp = "chromedp"
)

// errProviderSkipped means the provider is not configured, as opposed to
// configured and broken.
var errProviderSkipped = errors.New("not configured")

// DriverProvider is one way of getting a browser.
type DriverProvider interface {
	Name() string
	Open(ctx context.Context) (Driver, error)
}

// ProviderChain tries providers in order and returns the first driver that
// opens. When all fail, the error joins every provider's failure.
type ProviderChain struct {
	providers []DriverProvider
	log       *logrus.Entry
}

func NewProviderChain(log *logrus.Entry, providers ...DriverProvider) *ProviderChain {
	return &ProviderChain{providers: providers, log: log}
}

func (c *ProviderChain) Open(ctx context.Context) (Driver, error) {
	var errs []error
	for _, p := range c.providers {
		d, err := p.Open(ctx)
		if err == nil {
			c.log.WithField("provider", p.Name()).Info(T("browser_launched"))
			return d, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, errProviderSkipped) {
			c.log.WithField("provider", p.Name()).Debug("provider skipped")
		} else {
			c.log.WithField("provider", p.Name()).Warnf("provider failed: %v", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return nil, fmt.Errorf("%w: %w", ErrNoDriver, errors.Join(errs...))
}

// ProvidersFromConfig maps the configured provider names to providers.
func ProvidersFromConfig(cfg *Config, log *logrus.Entry) ([]DriverProvider, error) {
	var providers []DriverProvider
	for _, name := range cfg.Driver.Providers {
		switch name {
		case providerRemote:
			providers = append(providers, &rodProvider{name: name, cfg: cfg.Driver, mode: rodRemote, log: log})
		case providerSystem:
			providers = append(providers, &rodProvider{name: name, cfg: cfg.Driver, mode: rodSystem, log: log})
		case providerPath:
			providers = append(providers, &rodProvider{name: name, cfg: cfg.Driver, mode: rodPath, log: log})
		case providerDownload:
			providers = append(providers, &rodProvider{name: name, cfg: cfg.Driver, mode: rodDownload, log: log})
		case providerChromedp:
			providers = append(providers, &chromedpProvider{cfg: cfg.Driver, log: log})
		default:
			return nil, fmt.Errorf("unknown driver provider %q", name)
		}
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no driver providers configured")
	}
	return providers, nil
}
