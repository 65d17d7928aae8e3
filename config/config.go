package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"stablecore/native/stable"

	"github.com/BurntSushi/toml"
)

// FeedConfig describes a single upstream price feed. Kind selects the adapter
// ("manual", "rateapi", "confidence", "chained"); the remaining fields apply
// per kind. A chained feed multiplies the quotes of two other configured
// feeds (First x Second); feeds referenced as legs serve only the chain and
// are not offered to the aggregator directly.
type FeedConfig struct {
	Name     string `toml:"Name"`
	Kind     string `toml:"Kind"`
	Endpoint string `toml:"Endpoint"`
	APIKey   string `toml:"APIKey"`
	FeedID   string `toml:"FeedID"`
	Base     string `toml:"Base"`
	Quote    string `toml:"Quote"`
	First    string `toml:"First"`
	Second   string `toml:"Second"`
}

// PoolConfig seeds a constant-product pool snapshot for price chaining.
// Reserve amounts are integers in each token's native decimals.
type PoolConfig struct {
	Token0    string `toml:"Token0"`
	Token1    string `toml:"Token1"`
	Decimals0 uint8  `toml:"Decimals0"`
	Decimals1 uint8  `toml:"Decimals1"`
	Reserve0  string `toml:"Reserve0"`
	Reserve1  string `toml:"Reserve1"`
}

// Config is the daemon configuration loaded from TOML.
type Config struct {
	ListenAddress  string                `toml:"ListenAddress"`
	MetricsAddress string                `toml:"MetricsAddress"`
	DataDir        string                `toml:"DataDir"`
	LogLevel       string                `toml:"LogLevel"`
	LogFormat      string                `toml:"LogFormat"`
	OTLPEndpoint   string                `toml:"OTLPEndpoint"`
	OTLPInsecure   bool                  `toml:"OTLPInsecure"`
	PegPrice       string                `toml:"PegPrice"`
	Feeds          []FeedConfig          `toml:"feeds"`
	Pools          map[string]PoolConfig `toml:"pools"`
	Stable         stable.Config         `toml:"stable"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8080"
	}
	if strings.TrimSpace(c.MetricsAddress) == "" {
		c.MetricsAddress = ":9090"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./stablecore-data"
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = "info"
	}
	if strings.TrimSpace(c.LogFormat) == "" {
		c.LogFormat = "json"
	}
	if strings.TrimSpace(c.PegPrice) == "" {
		c.PegPrice = "1.0"
	}
	c.Stable = c.Stable.Normalise()
}

func (c *Config) validate() error {
	seen := make(map[string]string, len(c.Feeds))
	for i, feed := range c.Feeds {
		name := strings.ToLower(strings.TrimSpace(feed.Name))
		if name == "" {
			return fmt.Errorf("config: feed %d requires a name", i)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("config: duplicate feed name %q", name)
		}
		kind := strings.ToLower(strings.TrimSpace(feed.Kind))
		seen[name] = kind
		switch kind {
		case "manual":
		case "rateapi":
			if strings.TrimSpace(feed.Endpoint) == "" {
				return fmt.Errorf("config: feed %q requires an endpoint", name)
			}
		case "confidence":
			if strings.TrimSpace(feed.Endpoint) == "" || strings.TrimSpace(feed.FeedID) == "" {
				return fmt.Errorf("config: feed %q requires an endpoint and feed id", name)
			}
		case "chained":
			if strings.TrimSpace(feed.First) == "" || strings.TrimSpace(feed.Second) == "" {
				return fmt.Errorf("config: feed %q requires both legs", name)
			}
		default:
			return fmt.Errorf("config: feed %q has unknown kind %q", name, feed.Kind)
		}
	}
	for _, feed := range c.Feeds {
		if strings.ToLower(strings.TrimSpace(feed.Kind)) != "chained" {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(feed.Name))
		first := strings.ToLower(strings.TrimSpace(feed.First))
		second := strings.ToLower(strings.TrimSpace(feed.Second))
		if first == name || second == name {
			return fmt.Errorf("config: feed %q chains onto itself", name)
		}
		if first == second {
			return fmt.Errorf("config: feed %q requires two distinct legs", name)
		}
		for _, leg := range []string{first, second} {
			legKind, ok := seen[leg]
			if !ok {
				return fmt.Errorf("config: feed %q references unknown leg %q", name, leg)
			}
			if legKind == "chained" {
				return fmt.Errorf("config: feed %q leg %q must not itself be chained", name, leg)
			}
		}
	}
	for name, pool := range c.Pools {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "reserve", "stable", "bond", "backstop":
		default:
			return fmt.Errorf("config: unknown pool %q", name)
		}
		if strings.TrimSpace(pool.Token0) == "" || strings.TrimSpace(pool.Token1) == "" {
			return fmt.Errorf("config: pool %q requires both token symbols", name)
		}
	}
	if _, err := c.Stable.Parameters(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:  ":8080",
		MetricsAddress: ":9090",
		DataDir:        "./stablecore-data",
		LogLevel:       "info",
		LogFormat:      "json",
		Feeds: []FeedConfig{
			{Name: "primary", Kind: "manual"},
			{Name: "secondary", Kind: "manual"},
			{Name: "reserve-eth", Kind: "manual"},
			{Name: "eth-usd", Kind: "manual"},
			{Name: "tertiary", Kind: "chained", First: "reserve-eth", Second: "eth-usd"},
		},
	}
	cfg.applyDefaults()

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	buf := &bytes.Buffer{}
	if err := toml.NewEncoder(buf).Encode(cfg); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
