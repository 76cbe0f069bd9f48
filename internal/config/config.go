// Package config содержит логику чтения конфигурации клиента витрины и тестового сервера.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
)

// Форматы вывода клиента.
const (
	OutputText = "text"
	OutputJSON = "json"
	OutputYAML = "yaml"
)

const (
	defaultAPIURL   = "http://localhost:8080"
	defaultTimeout  = 10 * time.Second
	defaultRetryMax = 2
	defaultRunAddr  = "localhost:8080"
	defaultTokenTTL = 24 * time.Hour
)

// Client содержит параметры клиента витрины.
type Client struct {
	APIURL    string        `env:"STOREFRONT_API_URL"`
	TokenFile string        `env:"STOREFRONT_TOKEN_FILE"`
	Timeout   time.Duration `env:"STOREFRONT_TIMEOUT"`
	RetryMax  int           `env:"STOREFRONT_RETRY_MAX" envDefault:"-1"`
	Output    string        `env:"STOREFRONT_OUTPUT"`
	Verbose   bool          `env:"STOREFRONT_VERBOSE"`
}

// ParseClient считывает конфигурацию клиента из флагов и переменных окружения.
// Переменные окружения имеют приоритет над флагами. Возвращает аргументы,
// оставшиеся после флагов: подкоманду и её параметры.
func ParseClient(args []string) (*Client, []string, error) {
	cfg := &Client{}

	if err := env.Parse(cfg); err != nil {
		return nil, nil, fmt.Errorf("parse env: %w", err)
	}
	fromEnv := *cfg

	fs := pflag.NewFlagSet("storefront", pflag.ContinueOnError)
	fs.SetInterspersed(false)

	fs.StringVarP(&cfg.APIURL, "api-url", "u", defaultAPIURL, "storefront API base URL")
	fs.StringVarP(&cfg.TokenFile, "token-file", "t", defaultTokenFile(), "file holding the session token")
	fs.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "timeout for a single HTTP request")
	fs.IntVar(&cfg.RetryMax, "retries", defaultRetryMax, "retries for idempotent reads")
	fs.StringVarP(&cfg.Output, "output", "o", OutputText, "output format: text, json or yaml")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	if fromEnv.APIURL != "" {
		cfg.APIURL = fromEnv.APIURL
	}
	if fromEnv.TokenFile != "" {
		cfg.TokenFile = fromEnv.TokenFile
	}
	if fromEnv.Timeout != 0 {
		cfg.Timeout = fromEnv.Timeout
	}
	if fromEnv.RetryMax >= 0 {
		cfg.RetryMax = fromEnv.RetryMax
	}
	if fromEnv.Output != "" {
		cfg.Output = fromEnv.Output
	}
	if fromEnv.Verbose {
		cfg.Verbose = true
	}

	switch cfg.Output {
	case OutputText, OutputJSON, OutputYAML:
	default:
		return nil, nil, fmt.Errorf("unknown output format %q", cfg.Output)
	}
	if cfg.Timeout <= 0 {
		return nil, nil, fmt.Errorf("timeout must be positive, got %s", cfg.Timeout)
	}

	return cfg, fs.Args(), nil
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".storefront-token"
	}
	return filepath.Join(home, ".storefront", "token")
}

// Stub содержит параметры тестового сервера витрины.
type Stub struct {
	RunAddress string        `env:"RUN_ADDRESS"`
	JWTSecret  string        `env:"JWT_SECRET"`
	TokenTTL   time.Duration `env:"TOKEN_TTL"`
}

// ParseStub считывает конфигурацию тестового сервера из флагов и переменных окружения.
func ParseStub(args []string) (*Stub, error) {
	cfg := &Stub{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envSecret := cfg.JWTSecret
	envTTL := cfg.TokenTTL

	fs := flag.NewFlagSet("storefront-stub", flag.ContinueOnError)
	fs.StringVar(&cfg.RunAddress, "a", defaultRunAddr, "address and port for HTTP server")
	fs.StringVar(&cfg.JWTSecret, "s", "", "secret for signing tokens")
	fs.DurationVar(&cfg.TokenTTL, "ttl", defaultTokenTTL, "token lifetime")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envSecret != "" {
		cfg.JWTSecret = envSecret
	}
	if envTTL != 0 {
		cfg.TokenTTL = envTTL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddr
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}

	return cfg, nil
}
