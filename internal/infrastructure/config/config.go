package config

import (
	"errors"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server struct {
		Addr string `toml:"addr"` // e.g. :8080
	} `toml:"server"`

	Kraken struct {
		WsURL            string   `toml:"ws_url"`  // e.g. wss://ws.kraken.com
		PairsURL         string   `toml:"api_url"` // asset pairs reference endpoint
		DefaultPairs     []string `toml:"default_pairs"`
		ReconnectSeconds int      `toml:"reconnect_seconds"`
	} `toml:"kraken"`

	Trading struct {
		InitialBalance float64 `toml:"initial_balance"`
	} `toml:"trading"`

	Storage struct {
		SQLite struct {
			Enabled bool   `toml:"enabled"`
			Path    string `toml:"path"`
		} `toml:"sqlite"`

		Redis struct {
			Enabled      bool   `toml:"enabled"`
			Addr         string `toml:"addr"`
			Password     string `toml:"password"`
			DB           int    `toml:"db"`
			Prefix       string `toml:"prefix"`
			TTLSeconds   int    `toml:"ttl_seconds"`
			TradeStream  string `toml:"trade_stream"`
			PriceChannel string `toml:"price_channel"`
		} `toml:"redis"`

		Postgres struct {
			Enabled bool   `toml:"enabled"`
			DSN     string `toml:"dsn"`
		} `toml:"postgres"`
	} `toml:"storage"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		cfg.Server.Addr = ":8080"
	}
	if strings.TrimSpace(cfg.Kraken.WsURL) == "" {
		cfg.Kraken.WsURL = "wss://ws.kraken.com"
	}
	if cfg.Kraken.ReconnectSeconds <= 0 {
		cfg.Kraken.ReconnectSeconds = 5
	}
	if cfg.Trading.InitialBalance <= 0 {
		cfg.Trading.InitialBalance = 10000
	}
	if cfg.Storage.Redis.Enabled && strings.TrimSpace(cfg.Storage.Redis.Prefix) == "" {
		cfg.Storage.Redis.Prefix = "cryptodesk"
	}
	if cfg.Storage.SQLite.Enabled && strings.TrimSpace(cfg.Storage.SQLite.Path) == "" {
		cfg.Storage.SQLite.Path = "data/cryptodesk.db"
	}
}

var pairPattern = regexp.MustCompile(`^[A-Z]{2,6}/[A-Z]{2,6}$`)

func validate(cfg *Config) error {
	cfg.Kraken.DefaultPairs = normalizePairs(cfg.Kraken.DefaultPairs)
	if len(cfg.Kraken.DefaultPairs) == 0 {
		return errors.New("kraken.default_pairs is empty")
	}
	for _, pair := range cfg.Kraken.DefaultPairs {
		if !pairPattern.MatchString(pair) {
			return errors.New("kraken.default_pairs entry is not BASE/QUOTE form: " + pair)
		}
	}
	if cfg.Storage.Postgres.Enabled && strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
		return errors.New("storage.postgres.dsn empty but enabled")
	}
	if cfg.Storage.Redis.Enabled && strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
		return errors.New("storage.redis.addr empty but enabled")
	}
	return nil
}

func normalizePairs(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
