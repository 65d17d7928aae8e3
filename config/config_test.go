package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddress != ":8080" || cfg.MetricsAddress != ":9090" {
		t.Fatalf("addresses = %q/%q", cfg.ListenAddress, cfg.MetricsAddress)
	}
	if cfg.PegPrice != "1.0" {
		t.Fatalf("PegPrice = %q", cfg.PegPrice)
	}
	if len(cfg.Feeds) != 5 {
		t.Fatalf("feeds = %d, want 5", len(cfg.Feeds))
	}
	// The default shape carries a chained tertiary source over two legs.
	var chained *FeedConfig
	for i := range cfg.Feeds {
		if cfg.Feeds[i].Kind == "chained" {
			chained = &cfg.Feeds[i]
		}
	}
	if chained == nil {
		t.Fatal("default config has no chained feed")
	}
	if chained.First == "" || chained.Second == "" {
		t.Fatalf("chained feed legs = %q/%q", chained.First, chained.Second)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}

	// Loading the written file again must round-trip cleanly.
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.ListenAddress != cfg.ListenAddress {
		t.Fatalf("reloaded ListenAddress = %q", reloaded.ListenAddress)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
ListenAddress = ":7000"

[[feeds]]
Name = "primary"
Kind = "manual"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddress != ":7000" {
		t.Fatalf("ListenAddress = %q", cfg.ListenAddress)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Fatalf("logging defaults = %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.Stable.ReserveDecimals != 8 {
		t.Fatalf("ReserveDecimals = %d", cfg.Stable.ReserveDecimals)
	}
}

func TestLoadRejectsDuplicateFeedNames(t *testing.T) {
	path := writeConfig(t, `
[[feeds]]
Name = "primary"
Kind = "manual"

[[feeds]]
Name = "Primary"
Kind = "manual"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected duplicate feed name rejection")
	}
}

func TestLoadRejectsIncompleteFeed(t *testing.T) {
	path := writeConfig(t, `
[[feeds]]
Name = "api"
Kind = "rateapi"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected rejection of rateapi feed without endpoint")
	}

	path = writeConfig(t, `
[[feeds]]
Name = "pyth"
Kind = "confidence"
Endpoint = "https://example.test"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected rejection of confidence feed without feed id")
	}

	path = writeConfig(t, `
[[feeds]]
Name = "odd"
Kind = "carrier-pigeon"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected rejection of unknown feed kind")
	}
}

func TestLoadAcceptsChainedFeed(t *testing.T) {
	path := writeConfig(t, `
[[feeds]]
Name = "reserve-eth"
Kind = "manual"

[[feeds]]
Name = "eth-usd"
Kind = "manual"

[[feeds]]
Name = "tertiary"
Kind = "chained"
First = "reserve-eth"
Second = "eth-usd"
`)
	if _, err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoadRejectsBadChainedFeed(t *testing.T) {
	cases := map[string]string{
		"missing legs": `
[[feeds]]
Name = "tertiary"
Kind = "chained"
`,
		"unknown leg": `
[[feeds]]
Name = "reserve-eth"
Kind = "manual"

[[feeds]]
Name = "tertiary"
Kind = "chained"
First = "reserve-eth"
Second = "absent"
`,
		"self reference": `
[[feeds]]
Name = "reserve-eth"
Kind = "manual"

[[feeds]]
Name = "tertiary"
Kind = "chained"
First = "tertiary"
Second = "reserve-eth"
`,
		"duplicate legs": `
[[feeds]]
Name = "reserve-eth"
Kind = "manual"

[[feeds]]
Name = "tertiary"
Kind = "chained"
First = "reserve-eth"
Second = "reserve-eth"
`,
		"chained leg": `
[[feeds]]
Name = "a"
Kind = "manual"

[[feeds]]
Name = "b"
Kind = "manual"

[[feeds]]
Name = "inner"
Kind = "chained"
First = "a"
Second = "b"

[[feeds]]
Name = "outer"
Kind = "chained"
First = "inner"
Second = "a"
`,
	}
	for label, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: accepted", label)
		}
	}
}

func TestLoadRejectsUnknownPool(t *testing.T) {
	path := writeConfig(t, `
[pools.sidecar]
Token0 = "WBTC"
Token1 = "USDC"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected rejection of unknown pool name")
	}

	path = writeConfig(t, `
[pools.reserve]
Token0 = "WBTC"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected rejection of pool missing a token symbol")
	}
}

func TestLoadRejectsInvalidStableSection(t *testing.T) {
	path := writeConfig(t, `
[stable]
FeeBps = 20000
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected rejection of out-of-range fee")
	}
}
