// Package config содержит логику чтения конфигурации SMM-панели.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress        = "localhost:8080"
	defaultPollInterval      = 30 * time.Second
	defaultProviderTimeout   = 15 * time.Second
	defaultReconcileSchedule = "0 3 * * *"
	defaultResubmitSchedule  = "@every 2m"
	defaultCodeSendLimit     = 3
	defaultCodeSendWindow    = 10 * time.Minute
)

// Config содержит параметры конфигурации SMM-панели.
type Config struct {
	RunAddress           string        `env:"RUN_ADDRESS"`
	DatabaseURI          string        `env:"DATABASE_URI"`
	ProviderPollInterval time.Duration `env:"PROVIDER_POLL_INTERVAL"`
	ProviderTimeout      time.Duration `env:"PROVIDER_TIMEOUT"`
	FunctionsURL         string        `env:"FUNCTIONS_URL"`
	FunctionsKey         string        `env:"FUNCTIONS_KEY"`
	JWTSecret            string        `env:"JWT_SECRET"`
	WebhookSecret        string        `env:"WEBHOOK_SECRET"`
	RedisAddress         string        `env:"REDIS_ADDRESS"`
	RedisPassword        string        `env:"REDIS_PASSWORD"`
	CodeSendLimit        int           `env:"CODE_SEND_LIMIT"`
	CodeSendWindow       time.Duration `env:"CODE_SEND_WINDOW"`
	ReconcileSchedule    string        `env:"RECONCILE_SCHEDULE"`
	ResubmitSchedule     string        `env:"RESUBMIT_SCHEDULE"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	fromEnv := Config{}
	if err := env.Parse(&fromEnv); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{}
	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.DurationVar(&cfg.ProviderPollInterval, "p", defaultPollInterval, "provider status poll interval")
	flag.DurationVar(&cfg.ProviderTimeout, "provider-timeout", defaultProviderTimeout, "provider request timeout")
	flag.StringVar(&cfg.FunctionsURL, "f", "", "serverless functions base URL")
	flag.StringVar(&cfg.FunctionsKey, "fk", "", "serverless functions key")
	flag.StringVar(&cfg.JWTSecret, "s", "", "auth token signing secret")
	flag.StringVar(&cfg.WebhookSecret, "w", "", "shared secret for webhooks")
	flag.StringVar(&cfg.RedisAddress, "redis", "", "redis address for code send throttling")
	flag.StringVar(&cfg.RedisPassword, "redis-password", "", "redis password")
	flag.IntVar(&cfg.CodeSendLimit, "code-limit", defaultCodeSendLimit, "two-factor codes allowed per window")
	flag.DurationVar(&cfg.CodeSendWindow, "code-window", defaultCodeSendWindow, "two-factor code throttling window")
	flag.StringVar(&cfg.ReconcileSchedule, "reconcile", defaultReconcileSchedule, "ledger reconciliation cron schedule")
	flag.StringVar(&cfg.ResubmitSchedule, "resubmit", defaultResubmitSchedule, "pending orders resubmission cron schedule")

	flag.Parse()

	overrideString(&cfg.RunAddress, fromEnv.RunAddress)
	overrideString(&cfg.DatabaseURI, fromEnv.DatabaseURI)
	overrideDuration(&cfg.ProviderPollInterval, fromEnv.ProviderPollInterval)
	overrideDuration(&cfg.ProviderTimeout, fromEnv.ProviderTimeout)
	overrideString(&cfg.FunctionsURL, fromEnv.FunctionsURL)
	overrideString(&cfg.FunctionsKey, fromEnv.FunctionsKey)
	overrideString(&cfg.JWTSecret, fromEnv.JWTSecret)
	overrideString(&cfg.WebhookSecret, fromEnv.WebhookSecret)
	overrideString(&cfg.RedisAddress, fromEnv.RedisAddress)
	overrideString(&cfg.RedisPassword, fromEnv.RedisPassword)
	if fromEnv.CodeSendLimit != 0 {
		cfg.CodeSendLimit = fromEnv.CodeSendLimit
	}
	overrideDuration(&cfg.CodeSendWindow, fromEnv.CodeSendWindow)
	overrideString(&cfg.ReconcileSchedule, fromEnv.ReconcileSchedule)
	overrideString(&cfg.ResubmitSchedule, fromEnv.ResubmitSchedule)

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.ProviderPollInterval <= 0 {
		cfg.ProviderPollInterval = defaultPollInterval
	}

	return cfg, nil
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func overrideDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}
