package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Default public BSC endpoints, tried in order.
var defaultRPCEndpoints = []string{
	"https://bsc-dataseed1.binance.org",
	"https://bsc-dataseed2.binance.org",
	"https://bsc-dataseed3.binance.org",
	"https://rpc.ankr.com/bsc",
}

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCEndpoints []string
	MaxRetries   int
	RetryBackoff time.Duration
	CallTimeout  time.Duration

	PoolTTL  time.Duration
	PriceTTL time.Duration
	TokenTTL time.Duration

	TradeUSD     float64
	FastMode     bool
	ForceRefresh bool

	SnapshotOut   string
	MetricsListen string
	Precache      bool
	LogLevel      string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BSCRADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("rpc", defaultRPCEndpoints)
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("call-timeout", 10*time.Second)
	v.SetDefault("pool-ttl", 300*time.Second)
	v.SetDefault("price-ttl", 30*time.Second)
	v.SetDefault("token-ttl", 3600*time.Second)
	v.SetDefault("trade-usd", 1000.0)
	v.SetDefault("fast", false)
	v.SetDefault("force-refresh", false)
	v.SetDefault("out", "")
	v.SetDefault("metrics-listen", "")
	v.SetDefault("precache", false)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCEndpoints:  getStringSlice(v, "rpc"),
		MaxRetries:    v.GetInt("max-retries"),
		RetryBackoff:  v.GetDuration("retry-backoff"),
		CallTimeout:   v.GetDuration("call-timeout"),
		PoolTTL:       v.GetDuration("pool-ttl"),
		PriceTTL:      v.GetDuration("price-ttl"),
		TokenTTL:      v.GetDuration("token-ttl"),
		TradeUSD:      v.GetFloat64("trade-usd"),
		FastMode:      v.GetBool("fast"),
		ForceRefresh:  v.GetBool("force-refresh"),
		SnapshotOut:   v.GetString("out"),
		MetricsListen: v.GetString("metrics-listen"),
		Precache:      v.GetBool("precache"),
		LogLevel:      v.GetString("log-level"),
	}
	if len(cfg.RPCEndpoints) == 0 {
		cfg.RPCEndpoints = defaultRPCEndpoints
	}

	return cfg, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
