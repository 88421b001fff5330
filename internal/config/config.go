package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/devblac/cctp-stats/internal/cctp"
	"github.com/jellydator/validation"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPageSize       = 1000
	DefaultPageDelay      = 2 * time.Second
	DefaultRequestTimeout = 30 * time.Second

	TransfersFile    = "all_chains_transfers.csv"
	GasFile          = "all_chains_gas.csv"
	DailyStatsFile   = "daily_transfer_stats.csv"
	UserRankingFile  = "active_users_ranking.csv"
	SummaryFile      = "analysis_summary.json"
	ChartFile        = "cctp_analysis_charts.png"
	endpointTemplate = "https://api.goldsky.com/api/public/project_cmgzims7d000c5np28b637r62/subgraphs/yei-cctp-agent-%s/v0.0.13/gn"
)

// Config holds the YAML configuration.
type Config struct {
	Version int           `yaml:"version"`
	Global  GlobalConfig  `yaml:"global"`
	Chains  []ChainConfig `yaml:"chains"`
	Sinks   []Sink        `yaml:"sinks"`
}

type GlobalConfig struct {
	OutputDir      string        `yaml:"output_dir"`
	DBPath         string        `yaml:"db_path"`
	LogLevel       string        `yaml:"log_level"`
	PageSize       int           `yaml:"page_size"`
	PageDelay      time.Duration `yaml:"page_delay"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ChainConfig is the static per-chain fetch configuration.
type ChainConfig struct {
	Name         cctp.Chain `yaml:"name"`
	Endpoint     string     `yaml:"endpoint"`
	NativeSymbol string     `yaml:"native_symbol"`
	Decimals     int32      `yaml:"decimals"`
}

type Sink struct {
	ID         string `yaml:"id"`
	Type       string `yaml:"type"`
	WebhookURL string `yaml:"webhook_url"`
	Template   string `yaml:"template"`
	URL        string `yaml:"url"`
	Method     string `yaml:"method"`
}

// DefaultChains returns the compiled-in chain table in fetch order.
func DefaultChains() []ChainConfig {
	return []ChainConfig{
		{Name: cctp.ChainETH, Endpoint: fmt.Sprintf(endpointTemplate, "mainnet"), NativeSymbol: "ETH", Decimals: 18},
		{Name: cctp.ChainBase, Endpoint: fmt.Sprintf(endpointTemplate, "base"), NativeSymbol: "ETH", Decimals: 18},
		{Name: cctp.ChainAvax, Endpoint: fmt.Sprintf(endpointTemplate, "avalanche"), NativeSymbol: "AVAX", Decimals: 18},
		{Name: cctp.ChainArb, Endpoint: fmt.Sprintf(endpointTemplate, "arbitrum-one"), NativeSymbol: "ETH", Decimals: 18},
		{Name: cctp.ChainPolygon, Endpoint: fmt.Sprintf(endpointTemplate, "matic"), NativeSymbol: "MATIC", Decimals: 18},
		{Name: cctp.ChainOP, Endpoint: fmt.Sprintf(endpointTemplate, "optimism"), NativeSymbol: "ETH", Decimals: 18},
	}
}

// Default returns the compiled-in configuration used when no config file exists.
func Default() *Config {
	return &Config{
		Version: 1,
		Global: GlobalConfig{
			OutputDir:      ".",
			LogLevel:       "info",
			PageSize:       DefaultPageSize,
			PageDelay:      DefaultPageDelay,
			RequestTimeout: DefaultRequestTimeout,
		},
		Chains: DefaultChains(),
	}
}

var envPattern = regexp.MustCompile(`\${([A-Za-z_][A-Za-z0-9_]*)}`)

// Load reads, interpolates env vars, parses YAML over the defaults, and validates.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	interpolated, err := interpolateEnv(string(raw))
	if err != nil {
		return nil, err
	}

	cfg := Default()
	// chains from the file replace the compiled-in table rather than merging with it
	cfg.Chains = nil
	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(cfg.Chains) == 0 {
		cfg.Chains = DefaultChains()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to Default when path does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config: %w", err)
		}
	}
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(configPath string) error {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func interpolateEnv(input string) (string, error) {
	missing := []string{}
	out := envPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing environment variables: %s", strings.Join(dedup(missing), ", "))
	}
	return out, nil
}

// Validate checks the global settings, the chain table and the sinks.
func (c *Config) Validate() error {
	if c.Version == 0 {
		return errors.New("version is required")
	}
	if err := c.Global.Validate(); err != nil {
		return fmt.Errorf("global: %w", err)
	}
	if len(c.Chains) == 0 {
		return errors.New("at least one chain is required")
	}

	seen := map[cctp.Chain]struct{}{}
	for i := range c.Chains {
		ch := &c.Chains[i]
		if _, exists := seen[ch.Name]; exists {
			return fmt.Errorf("duplicate chain: %s", ch.Name)
		}
		seen[ch.Name] = struct{}{}
		if err := ch.Validate(); err != nil {
			return fmt.Errorf("chain %s: %w", ch.Name, err)
		}
	}

	sinkIDs := map[string]struct{}{}
	for i := range c.Sinks {
		s := &c.Sinks[i]
		if _, exists := sinkIDs[s.ID]; exists {
			return fmt.Errorf("duplicate sink id: %s", s.ID)
		}
		sinkIDs[s.ID] = struct{}{}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("sink %s: %w", s.ID, err)
		}
	}
	return nil
}

func (g GlobalConfig) Validate() error {
	return validation.ValidateStruct(&g,
		validation.Field(&g.PageSize, validation.Required, validation.Min(1)),
		validation.Field(&g.PageDelay, validation.By(nonNegativeDuration)),
		validation.Field(&g.RequestTimeout, validation.Required, validation.By(nonNegativeDuration)),
		validation.Field(&g.LogLevel, validation.In("", "debug", "info", "warn", "warning", "error")),
	)
}

func (c ChainConfig) Validate() error {
	known := make([]any, 0, len(cctp.KnownChains))
	for _, k := range cctp.KnownChains {
		known = append(known, k)
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required, validation.In(known...)),
		validation.Field(&c.Endpoint, validation.Required, validation.By(httpURL)),
		validation.Field(&c.NativeSymbol, validation.Required),
		validation.Field(&c.Decimals, validation.Min(int32(0)), validation.Max(int32(36))),
	)
}

func (s *Sink) Validate() error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.Type == "" {
		return errors.New("type is required")
	}

	switch strings.ToLower(s.Type) {
	case "slack", "teams":
		if s.WebhookURL == "" {
			return errors.New("webhook_url is required for slack/teams sinks")
		}
	case "webhook":
		if s.URL == "" {
			return errors.New("url is required for webhook sink")
		}
		if s.Method == "" {
			s.Method = "POST"
		}
	default:
		return fmt.Errorf("unsupported sink type: %s", s.Type)
	}
	return nil
}

// Chain returns the configuration for name.
func (c *Config) Chain(name cctp.Chain) (ChainConfig, bool) {
	for _, ch := range c.Chains {
		if ch.Name == name {
			return ch, true
		}
	}
	return ChainConfig{}, false
}

// SelectChains keeps the configured order and filters it to names when non-empty.
func (c *Config) SelectChains(names []string) ([]ChainConfig, error) {
	if len(names) == 0 {
		return c.Chains, nil
	}
	want := map[cctp.Chain]struct{}{}
	for _, n := range names {
		name := cctp.Chain(strings.ToUpper(strings.TrimSpace(n)))
		if _, ok := c.Chain(name); !ok {
			return nil, fmt.Errorf("unknown chain: %s", n)
		}
		want[name] = struct{}{}
	}
	out := make([]ChainConfig, 0, len(want))
	for _, ch := range c.Chains {
		if _, ok := want[ch.Name]; ok {
			out = append(out, ch)
		}
	}
	return out, nil
}

// OutputPath joins name onto the configured output directory.
func (c *Config) OutputPath(name string) string {
	if c.Global.OutputDir == "" {
		return name
	}
	return filepath.Join(c.Global.OutputDir, name)
}

func nonNegativeDuration(value any) error {
	d, ok := value.(time.Duration)
	if !ok {
		return errors.New("must be a duration")
	}
	if d < 0 {
		return errors.New("must not be negative")
	}
	return nil
}

func httpURL(value any) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an absolute http(s) url")
	}
	return nil
}

func dedup(values []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
