package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !reflect.DeepEqual(cfg.RPCEndpoints, defaultRPCEndpoints) {
		t.Fatalf("endpoints = %v", cfg.RPCEndpoints)
	}
	if cfg.MaxRetries != 3 || cfg.RetryBackoff != 500*time.Millisecond || cfg.CallTimeout != 10*time.Second {
		t.Fatalf("retry defaults wrong: %+v", cfg)
	}
	if cfg.PoolTTL != 300*time.Second || cfg.PriceTTL != 30*time.Second || cfg.TokenTTL != 3600*time.Second {
		t.Fatalf("ttl defaults wrong: %+v", cfg)
	}
	if cfg.TradeUSD != 1000 || cfg.LogLevel != "info" {
		t.Fatalf("defaults wrong: %+v", cfg)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "rpc: \"https://a.example,https://b.example\"\nmax-retries: 7\ntrade-usd: 250\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	want := []string{"https://a.example", "https://b.example"}
	if !reflect.DeepEqual(cfg.RPCEndpoints, want) {
		t.Fatalf("endpoints = %v, want %v", cfg.RPCEndpoints, want)
	}
	if cfg.MaxRetries != 7 || cfg.TradeUSD != 250 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Fatal("expected an error for an explicit missing config file")
	}
}

func TestLoadFlagOverridesDefault(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Float64("trade-usd", 1000, "")
	flags.String("log-level", "info", "")
	if err := flags.Set("trade-usd", "2500"); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	if err := flags.Set("log-level", "debug"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.TradeUSD != 2500 || cfg.LogLevel != "debug" {
		t.Fatalf("flag values not applied: %+v", cfg)
	}
}

func TestSplitAndClean(t *testing.T) {
	got := splitAndClean(" https://a.example , ,https://b.example ")
	want := []string{"https://a.example", "https://b.example"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("splitAndClean = %v, want %v", got, want)
	}
	if out := splitAndClean(""); out != nil {
		t.Fatalf("empty input = %v, want nil", out)
	}
}
