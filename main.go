package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var (
	globalFlags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Value: "config.yaml",
			Usage: "path to the configuration file (created with defaults if missing)",
		},
		cli.StringFlag{
			Name:  "env",
			Value: ".env",
			Usage: "dotenv file with SECKILL_* overrides",
		},
	}

	runFlags = []cli.Flag{
		cli.StringFlag{
			Name:  "target, t",
			Usage: "sale start, e.g. \"2026-11-11 20:00:00\" (overrides target_time)",
		},
		cli.StringFlag{
			Name:  "login-url",
			Usage: "storefront page used to log in",
		},
		cli.IntFlag{
			Name:  "max-retry",
			Usage: "retries after the first submission attempt",
		},
		cli.StringFlag{
			Name:  "remote-url",
			Usage: "attach to a running browser at this DevTools URL",
		},
		cli.StringFlag{
			Name:  "chrome-path",
			Usage: "Chrome or Chromium binary to launch",
		},
		cli.BoolFlag{
			Name:  "headless",
			Usage: "run the browser without a window",
		},
		cli.BoolFlag{
			Name:  "dry-run",
			Usage: "stop before confirming the order",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "enable debug logging",
		},
	}
)

func main() {
	if err := InitLocale(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: locale initialization failed, using English: %v\n", err)
	}
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "seckill"
	app.HelpName = "seckill"
	app.Usage = "log in, wait for the sale and check out at the exact start time"
	app.UsageText = "seckill [global options] [command] [options]"
	app.Flags = append(append([]cli.Flag{}, globalFlags...), runFlags...)
	app.Action = run
	app.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "run one purchase session (default)",
			Flags:  runFlags,
			Action: run,
		},
		{
			Name:  "secret",
			Usage: "manage the payment password in the system keyring",
			Subcommands: []cli.Command{
				{
					Name:   "set",
					Usage:  "prompt for the payment password and store it",
					Action: secretSet,
				},
				{
					Name:   "clear",
					Usage:  "remove the stored payment password",
					Action: secretClear,
				},
			},
		},
		{
			Name:   "cookies",
			Usage:  "show the last cookie snapshot",
			Action: showCookies,
		},
	}
	return app
}

// loadConfig reads the dotenv file, the config file and the environment
// overrides, in that order.
func loadConfig(c *cli.Context) (*Config, error) {
	if err := LoadDotEnv(c.GlobalString("env")); err != nil {
		return nil, fmt.Errorf("load %s: %w", c.GlobalString("env"), err)
	}
	cfg, err := LoadConfig(c.GlobalString("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags puts command-line values over the file and environment config.
// The run flags are accepted both before and after the "run" command; a value
// given after it wins.
func applyFlags(c *cli.Context, cfg *Config) {
	if v := flagString(c, "target"); v != "" {
		cfg.TargetTime = v
	}
	if v := flagString(c, "login-url"); v != "" {
		cfg.LoginURL = v
	}
	if c.IsSet("max-retry") {
		cfg.MaxRetryCount = c.Int("max-retry")
	} else if c.GlobalIsSet("max-retry") {
		cfg.MaxRetryCount = c.GlobalInt("max-retry")
	}
	if v := flagString(c, "remote-url"); v != "" {
		cfg.Driver.RemoteURL = v
	}
	if v := flagString(c, "chrome-path"); v != "" {
		cfg.Driver.ChromePath = v
	}
	if flagBool(c, "headless") {
		cfg.Driver.Headless = true
	}
	if flagBool(c, "dry-run") {
		cfg.DryRun = true
	}
	if flagBool(c, "debug") {
		cfg.DebugMode = true
	}
}

func flagString(c *cli.Context, name string) string {
	if v := c.String(name); v != "" {
		return v
	}
	return c.GlobalString(name)
}

func flagBool(c *cli.Context, name string) bool {
	return c.Bool(name) || c.GlobalBool(name)
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	applyFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	target, err := cfg.Target()
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}

	logger := newLogger(os.Stderr, cfg.DebugMode)
	if initUserDataDirError != nil {
		logger.Warnf("cannot create %s: %v", getUserDataDir(), initUserDataDirError)
	}

	secret, err := ResolvePaymentSecret(cfg)
	if err != nil {
		logger.Warnf("payment secret: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		src nowFunc
		ts  *TimeSync
	)
	if cfg.TimeSync {
		ts = NewTimeSync(cfg.TimeSyncServers, logrus.NewEntry(logger))
		if err := ts.Sync(); err != nil {
			logger.Warnf("time sync failed, using the local clock until a resync succeeds: %v", err)
		}
		src = ts
	}
	retry := cfg.RetryPolicy()
	clock := newSystemClock(src, retry.DeadlineTick)

	fmt.Println(renderBanner(cfg, target, secret != ""))
	fmt.Println()

	session := NewSession(target, secret)
	log := logger.WithField("session", session.ID)

	providers, err := ProvidersFromConfig(cfg, log)
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	driver, err := NewProviderChain(log, providers...).Open(ctx)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	opts := ControllerOptions{
		LoginURL:  cfg.LoginURL,
		CartURL:   cfg.CartURL,
		Selectors: cfg.Selectors,
		Login:     cfg.LoginPolicy(),
		Wait:      cfg.WaitPolicy(),
		Retry:     retry,
		Payment:   cfg.PaymentPolicy(),
		Cookies:   NewCookieStore(cfg.CookieFile),
		Notifier:  NewNotifier(cfg.Notify, log),
	}
	if ts != nil {
		opts.TimeSync = ts
	}
	if cfg.KeepBrowserOpen {
		opts.KeepOpen = 30 * time.Second
	}
	var cd *countdown
	if !cfg.DebugMode && isTerminal(os.Stdout) {
		cd = newCountdown(os.Stdout, opts.Wait.RefreshCutoff)
		opts.OnRefresh = cd.Update
	}

	runErr := NewController(driver, clock, log, opts).Run(ctx, session)
	if cd != nil {
		cd.Done()
	}

	fmt.Println()
	if session.Phase() == PhaseCompleted {
		fmt.Println(titleStyle.Render(T("result_completed")))
	} else {
		fmt.Println(titleStyle.Render(T("result_abandoned")))
	}
	fmt.Println(T("result_retries", session.Retries()))
	if err := session.PaymentErr(); err != nil {
		fmt.Println(noteStyle.Render(err.Error()))
	}

	if runErr != nil {
		return cli.NewExitError(runErr.Error(), 1)
	}
	return nil
}

func secretSet(c *cli.Context) error {
	secret, err := readSecret(os.Stdin, os.Stdout, T("secret_prompt"))
	if err != nil {
		return err
	}
	if err := StorePaymentSecret(secret); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	fmt.Println(T("secret_saved"))
	return nil
}

func secretClear(c *cli.Context) error {
	if err := ClearPaymentSecret(); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	fmt.Println(T("secret_cleared"))
	return nil
}

func showCookies(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	store := NewCookieStore(cfg.CookieFile)
	cookies, err := store.Load()
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	fmt.Println(T("cookies_summary", len(cookies), store.Path))
	for _, ck := range cookies {
		expiry := "session"
		if ck.Expiry > 0 {
			expiry = time.Unix(int64(ck.Expiry), 0).Format(time.RFC3339)
		}
		fmt.Printf("  %-24s %-28s %s\n", ck.Name, ck.Domain, expiry)
	}
	return nil
}

// Store init error for later display (after the logger exists)
var initUserDataDirError error

func init() {
	userDataDir := getUserDataDir()
	if err := os.MkdirAll(userDataDir, 0755); err != nil {
		initUserDataDirError = err
	}
}

func getUserDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./seckill-data"
	}
	return filepath.Join(home, ".seckill")
}
