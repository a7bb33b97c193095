package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	TargetTime string `yaml:"target_time"`
	Timezone   string `yaml:"timezone"`

	LoginURL string `yaml:"login_url"`
	CartURL  string `yaml:"cart_url"`

	// PaymentSecret is only a last resort; prefer SECKILL_PAYMENT_SECRET or
	// the OS keyring (see "seckill secret set").
	PaymentSecret string `yaml:"payment_secret"`

	LoginGraceSeconds   int `yaml:"login_grace_seconds"`
	LoginMaxWaitSeconds int `yaml:"login_max_wait_seconds"`
	LoginMaxAttempts    int `yaml:"login_max_attempts"`

	RefreshCutoffSeconds   int `yaml:"refresh_cutoff_seconds"`
	RefreshIntervalSeconds int `yaml:"refresh_interval_seconds"`

	MaxRetryCount   int  `yaml:"max_retry_count"`
	StepTimeoutMs   int  `yaml:"step_timeout_ms"`
	PollIntervalMs  int  `yaml:"poll_interval_ms"`
	DeadlineTickMs  int  `yaml:"deadline_tick_ms"`
	ResumeAtConfirm bool `yaml:"resume_at_confirm"`

	PaymentTimeoutMs    int `yaml:"payment_timeout_ms"`
	PaymentGraceSeconds int `yaml:"payment_grace_seconds"`

	CookieFile string `yaml:"cookie_file"`

	TimeSync        bool     `yaml:"time_sync"`
	TimeSyncServers []string `yaml:"time_sync_servers"`

	Driver    DriverConfig   `yaml:"driver"`
	Notify    NotifyConfig   `yaml:"notify"`
	Selectors SelectorConfig `yaml:"selectors"`

	KeepBrowserOpen bool `yaml:"keep_browser_open"`
	DryRun          bool `yaml:"dry_run"`
	DebugMode       bool `yaml:"debug_mode"`
}

type DriverConfig struct {
	Providers          []string `yaml:"providers"`
	RemoteURL          string   `yaml:"remote_url"`
	ChromePath         string   `yaml:"chrome_path"`
	BrowserProfilePath string   `yaml:"browser_profile_path"`
	Headless           bool     `yaml:"headless"`
	UserAgent          string   `yaml:"user_agent"`
	PageLoadTimeout    int      `yaml:"page_load_timeout"`
}

type NotifyConfig struct {
	WebhookURL string     `yaml:"webhook_url"`
	SMTP       SMTPConfig `yaml:"smtp"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

type SelectorConfig struct {
	LoginLink      Selector `yaml:"login_link"`
	LoginMarker    Selector `yaml:"login_marker"`
	SelectAll      Selector `yaml:"select_all"`
	CheckoutButton Selector `yaml:"checkout_button"`
	ConfirmOrder   Selector `yaml:"confirm_order"`
	PasswordInput  Selector `yaml:"password_input"`
	PaymentConfirm Selector `yaml:"payment_confirm"`
}

func DefaultConfig() *Config {
	userDataDir := getUserDataDir()

	return &Config{
		LoginURL:               "https://www.taobao.com",
		CartURL:                "https://cart.taobao.com/cart.htm",
		LoginGraceSeconds:      15,
		LoginMaxWaitSeconds:    600,
		RefreshCutoffSeconds:   180,
		RefreshIntervalSeconds: 60,
		MaxRetryCount:          5,
		StepTimeoutMs:          5000,
		PollIntervalMs:         100,
		DeadlineTickMs:         500,
		ResumeAtConfirm:        true,
		PaymentTimeoutMs:       5000,
		PaymentGraceSeconds:    20,
		CookieFile:             "./tb_cookies.txt",
		TimeSync:               false,
		TimeSyncServers: []string{
			"https://www.taobao.com",
			"https://www.baidu.com",
			"https://www.cloudflare.com",
		},
		Driver: DriverConfig{
			Providers:          []string{providerRemote, providerSystem, providerPath, providerDownload, providerChromedp},
			BrowserProfilePath: filepath.Join(userDataDir, "browser-profile"),
			PageLoadTimeout:    30,
			UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		},
		Notify: NotifyConfig{
			SMTP: SMTPConfig{Port: 587},
		},
		Selectors: SelectorConfig{
			LoginLink:      `//div[@class="site-nav-sign"]/a`,
			LoginMarker:    `//*[@id="J_SiteNavMytaobao"]/div[1]/a/span`,
			SelectAll:      "#J_SelectAll1",
			CheckoutButton: "#J_SmallSubmit",
			ConfirmOrder:   "#submitOrderPC_1 > div > a.go-btn",
			PasswordInput:  ".sixDigitPassword",
			PaymentConfirm: "#J_authSubmit",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.Save(path); err != nil {
			return nil, err
		}
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if config.Driver.BrowserProfilePath != "" {
		if err := os.MkdirAll(config.Driver.BrowserProfilePath, 0755); err != nil {
			return nil, err
		}
	}

	return config, nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is fine.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// ApplyEnv overlays SECKILL_* environment variables on top of the file config.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("SECKILL_TARGET_TIME"); v != "" {
		c.TargetTime = v
	}
	if v := os.Getenv("SECKILL_LOGIN_URL"); v != "" {
		c.LoginURL = v
	}
	if v := os.Getenv("SECKILL_PAYMENT_SECRET"); v != "" {
		c.PaymentSecret = v
	}
	if v := os.Getenv("SECKILL_REMOTE_URL"); v != "" {
		c.Driver.RemoteURL = v
	}
	if v := os.Getenv("SECKILL_CHROME_PATH"); v != "" {
		c.Driver.ChromePath = v
	}
	if v := os.Getenv("SECKILL_MAX_RETRY_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SECKILL_MAX_RETRY_COUNT: %w", err)
		}
		c.MaxRetryCount = n
	}
	if v := os.Getenv("SECKILL_SMTP_PASSWORD"); v != "" {
		c.Notify.SMTP.Password = v
	}
	return nil
}

// Validate checks the fields a session cannot start without.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.TargetTime) == "" {
		problems = append(problems, "target_time is required")
	} else if _, err := c.Target(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.LoginURL == "" {
		problems = append(problems, "login_url is required")
	}
	if c.CartURL == "" {
		problems = append(problems, "cart_url is required")
	}
	if c.MaxRetryCount < 0 {
		problems = append(problems, "max_retry_count must not be negative")
	}
	if c.StepTimeoutMs <= 0 || c.PollIntervalMs <= 0 {
		problems = append(problems, "step_timeout_ms and poll_interval_ms must be positive")
	}
	if c.RefreshIntervalSeconds <= 0 {
		problems = append(problems, "refresh_interval_seconds must be positive")
	}
	if c.RefreshCutoffSeconds < 0 {
		problems = append(problems, "refresh_cutoff_seconds must not be negative")
	}
	if c.LoginGraceSeconds < 0 || c.PaymentGraceSeconds < 0 {
		problems = append(problems, "login_grace_seconds and payment_grace_seconds must not be negative")
	}
	if c.DeadlineTickMs <= 0 || c.DeadlineTickMs > 500 {
		problems = append(problems, "deadline_tick_ms must be within (0, 500]")
	}
	if c.Selectors.CheckoutButton == "" || c.Selectors.ConfirmOrder == "" || c.Selectors.LoginMarker == "" {
		problems = append(problems, "selectors.checkout_button, confirm_order and login_marker are required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Target parses TargetTime in the configured timezone (local time when unset).
func (c *Config) Target() (time.Time, error) {
	loc := time.Local
	if c.Timezone != "" {
		l, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("timezone %q: %w", c.Timezone, err)
		}
		loc = l
	}
	return ParseTargetTime(c.TargetTime, loc)
}

func (c *Config) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      c.MaxRetryCount,
		StepTimeout:     time.Duration(c.StepTimeoutMs) * time.Millisecond,
		PollInterval:    time.Duration(c.PollIntervalMs) * time.Millisecond,
		DeadlineTick:    time.Duration(c.DeadlineTickMs) * time.Millisecond,
		ResumeAtConfirm: c.ResumeAtConfirm,
		DryRun:          c.DryRun,
	}
}

func (c *Config) LoginPolicy() LoginPolicy {
	return LoginPolicy{
		Grace:       time.Duration(c.LoginGraceSeconds) * time.Second,
		MaxWait:     time.Duration(c.LoginMaxWaitSeconds) * time.Second,
		MaxAttempts: c.LoginMaxAttempts,
	}
}

func (c *Config) WaitPolicy() WaitPolicy {
	return WaitPolicy{
		RefreshCutoff:   time.Duration(c.RefreshCutoffSeconds) * time.Second,
		RefreshInterval: time.Duration(c.RefreshIntervalSeconds) * time.Second,
	}
}

func (c *Config) PaymentPolicy() PaymentPolicy {
	return PaymentPolicy{
		StepTimeout: time.Duration(c.PaymentTimeoutMs) * time.Millisecond,
		Grace:       time.Duration(c.PaymentGraceSeconds) * time.Second,
	}
}
