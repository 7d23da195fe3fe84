package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server.port: %d", cfg.Server.Port)
	}
	if cfg.Trading.EntryZMin != 1.0 || cfg.Trading.EntryZMax != 1.75 {
		t.Errorf("entry band: [%v, %v]", cfg.Trading.EntryZMin, cfg.Trading.EntryZMax)
	}
	if cfg.Cooldown.AfterStop != 168*time.Hour {
		t.Errorf("cooldown.after_stop: %v", cfg.Cooldown.AfterStop)
	}
	if cfg.Risk.MaxHolding != 720*time.Hour {
		t.Errorf("risk.max_holding: %v", cfg.Risk.MaxHolding)
	}
	if cfg.Database.Enabled {
		t.Error("журнал по умолчанию выключен")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")
	t.Setenv("PAIRS_SERVER_PORT", "9090")
	t.Setenv("PAIRS_TRADING_STOP_Z", "4.5")
	t.Setenv("PAIRS_COOLDOWN_AFTER_LOSS", "90m")
	t.Setenv("PAIRS_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("server.port из env: %d", cfg.Server.Port)
	}
	if cfg.Trading.StopZ != 4.5 {
		t.Errorf("trading.stop_z из env: %v", cfg.Trading.StopZ)
	}
	if cfg.Cooldown.AfterLoss != 90*time.Minute {
		t.Errorf("cooldown.after_loss из env: %v", cfg.Cooldown.AfterLoss)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level из env: %s", cfg.Logging.Level)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")

	dir := t.TempDir()
	path := filepath.Join(dir, "pairs.yaml")
	yaml := `
trading:
  starting_capital: 50000
  entry_z_min: 1.2
  entry_z_max: 2.0
cooldown:
  after_profit: 12h
  by_reason:
    STOP_LOSS: 200h
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Trading.StartingCapital != 50000 {
		t.Errorf("starting_capital: %v", cfg.Trading.StartingCapital)
	}
	if cfg.Cooldown.AfterProfit != 12*time.Hour {
		t.Errorf("after_profit: %v", cfg.Cooldown.AfterProfit)
	}
	// viper приводит ключи к нижнему регистру
	if cfg.Cooldown.ByReason["stop_loss"] != 200*time.Hour {
		t.Errorf("by_reason: %v", cfg.Cooldown.ByReason)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/pairs.yaml"); err == nil {
		t.Fatal("ожидали ошибку для несуществующего файла")
	}
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	t.Setenv(ConfigPathEnv, "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"zero capital", func(c *Config) { c.Trading.StartingCapital = 0 }, "starting_capital"},
		{"exit above entry", func(c *Config) { c.Trading.ExitZ = 1.5 }, "z bands"},
		{"entry above stop", func(c *Config) { c.Trading.EntryZMax = 3.5 }, "z bands"},
		{"inverted entry band", func(c *Config) { c.Trading.EntryZMin = 1.8 }, "z bands"},
		{"margin below one", func(c *Config) { c.Trading.ShortMargin = 0.5 }, "margins"},
		{"allocation above one", func(c *Config) { c.Trading.MaxPairAllocation = 1.5 }, "max_pair_allocation"},
		{"negative by_reason", func(c *Config) {
			c.Cooldown.ByReason = map[string]time.Duration{"close": -time.Hour}
		}, "by_reason"},
		{"blowup fraction", func(c *Config) { c.Risk.BlowupFraction = 0 }, "blowup_fraction"},
		{"short lookback", func(c *Config) { c.Risk.VolatilityLookback = 1 }, "volatility_lookback"},
		{"zero holding", func(c *Config) { c.Risk.MaxHolding = 0 }, "max_holding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("неожиданная ошибка: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ожидали ошибку с %q, получили %v", tt.wantErr, err)
			}
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, Name: "pairs", User: "u", Password: "secret", SSLMode: "disable"}

	if !strings.Contains(d.DSN(), "password=secret") {
		t.Errorf("DSN: %s", d.DSN())
	}
	if strings.Contains(d.DSNWithoutPassword(), "secret") {
		t.Errorf("DSNWithoutPassword содержит пароль: %s", d.DSNWithoutPassword())
	}
}
