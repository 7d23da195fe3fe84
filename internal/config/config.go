package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix - префикс переменных окружения (PAIRS_TRADING_ENTRY_Z_MIN и т.д.)
const EnvPrefix = "PAIRS"

// ConfigPathEnv - переменная окружения с путём к YAML файлу (необязательно)
const ConfigPathEnv = "PAIRS_CONFIG"

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Trading  TradingConfig  `mapstructure:"trading"`
	Cooldown CooldownConfig `mapstructure:"cooldown"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Broker   BrokerConfig   `mapstructure:"broker"`
}

// ServerConfig - настройки HTTP сервера диагностики
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr возвращает адрес для http.Server
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig - настройки подключения к журналу сделок
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	Output      string `mapstructure:"output"`
	Development bool   `mapstructure:"development"`
}

// TradingConfig - торговые параметры пар
//
// Полосы z-score: 0 <= ExitZ < EntryZMin <= EntryZMax < StopZ
type TradingConfig struct {
	StartingCapital   float64 `mapstructure:"starting_capital"`
	EntryZMin         float64 `mapstructure:"entry_z_min"`
	EntryZMax         float64 `mapstructure:"entry_z_max"`
	ExitZ             float64 `mapstructure:"exit_z"`
	StopZ             float64 `mapstructure:"stop_z"`
	LongMargin        float64 `mapstructure:"long_margin"`  // капитал на единицу стоимости длинной ноги
	ShortMargin       float64 `mapstructure:"short_margin"` // капитал на единицу стоимости короткой ноги
	LotSize           float64 `mapstructure:"lot_size"`
	MinTicket         float64 `mapstructure:"min_ticket"`          // минимальная аллокация для открытия
	MaxPairAllocation float64 `mapstructure:"max_pair_allocation"` // доля equity на одну пару
	MaxArchivedCycles int     `mapstructure:"max_archived_cycles"` // 0 = не удалять ARCHIVED пары
}

// CooldownConfig - таблица длительностей cooldown пары после закрытия
//
// ByReason переопределяет длительность для конкретной причины закрытия
// (ключи без учёта регистра: stop_loss, holding_timeout, ...).
type CooldownConfig struct {
	AfterProfit time.Duration            `mapstructure:"after_profit"`
	AfterLoss   time.Duration            `mapstructure:"after_loss"`
	AfterStop   time.Duration            `mapstructure:"after_stop"`
	ByReason    map[string]time.Duration `mapstructure:"by_reason"`
}

// RiskConfig - параметры risk-правил
type RiskConfig struct {
	// Портфельные правила
	BlowupEnabled       bool          `mapstructure:"blowup_enabled"`
	BlowupFraction      float64       `mapstructure:"blowup_fraction"` // equity < fraction * starting capital
	BlowupCooldown      time.Duration `mapstructure:"blowup_cooldown"`
	DrawdownEnabled     bool          `mapstructure:"drawdown_enabled"`
	MaxDrawdown         float64       `mapstructure:"max_drawdown"` // доля от HWM equity
	DrawdownCooldown    time.Duration `mapstructure:"drawdown_cooldown"`
	VolatilityEnabled   bool          `mapstructure:"volatility_enabled"`
	VolatilityThreshold float64       `mapstructure:"volatility_threshold"`
	VolatilityLookback  int           `mapstructure:"volatility_lookback"`
	VolatilityCooldown  time.Duration `mapstructure:"volatility_cooldown"`

	// Правила пар
	AnomalyEnabled           bool          `mapstructure:"anomaly_enabled"`
	AnomalyCooldown          time.Duration `mapstructure:"anomaly_cooldown"`
	PairDrawdownEnabled      bool          `mapstructure:"pair_drawdown_enabled"`
	PairMaxDrawdown          float64       `mapstructure:"pair_max_drawdown"` // доля от стоимости входа
	PairDrawdownCooldownWin  time.Duration `mapstructure:"pair_drawdown_cooldown_win"`
	PairDrawdownCooldownLoss time.Duration `mapstructure:"pair_drawdown_cooldown_loss"`
	TimeoutEnabled           bool          `mapstructure:"timeout_enabled"`
	MaxHolding               time.Duration `mapstructure:"max_holding"`
	TimeoutCooldown          time.Duration `mapstructure:"timeout_cooldown"`
}

// FeedConfig - источник циклов для replay
type FeedConfig struct {
	Path string `mapstructure:"path"`
}

// BrokerConfig - настройки paper-брокера
type BrokerConfig struct {
	RejectSymbols []string `mapstructure:"reject_symbols"` // ордера отклоняются при отправке
	CancelSymbols []string `mapstructure:"cancel_symbols"` // ордера отменяются вместо исполнения
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "pairs")
	v.SetDefault("database.user", "pairs")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "")
	v.SetDefault("logging.development", false)

	v.SetDefault("trading.starting_capital", 100000.0)
	v.SetDefault("trading.entry_z_min", 1.0)
	v.SetDefault("trading.entry_z_max", 1.75)
	v.SetDefault("trading.exit_z", 0.25)
	v.SetDefault("trading.stop_z", 3.0)
	v.SetDefault("trading.long_margin", 1.0)
	v.SetDefault("trading.short_margin", 1.5)
	v.SetDefault("trading.lot_size", 1.0)
	v.SetDefault("trading.min_ticket", 1000.0)
	v.SetDefault("trading.max_pair_allocation", 0.2)
	v.SetDefault("trading.max_archived_cycles", 20)

	v.SetDefault("cooldown.after_profit", "24h")
	v.SetDefault("cooldown.after_loss", "72h")
	v.SetDefault("cooldown.after_stop", "168h")

	v.SetDefault("risk.blowup_enabled", true)
	v.SetDefault("risk.blowup_fraction", 0.5)
	v.SetDefault("risk.blowup_cooldown", "720h")
	v.SetDefault("risk.drawdown_enabled", true)
	v.SetDefault("risk.max_drawdown", 0.2)
	v.SetDefault("risk.drawdown_cooldown", "168h")
	v.SetDefault("risk.volatility_enabled", true)
	v.SetDefault("risk.volatility_threshold", 0.05)
	v.SetDefault("risk.volatility_lookback", 20)
	v.SetDefault("risk.volatility_cooldown", "24h")
	v.SetDefault("risk.anomaly_enabled", true)
	v.SetDefault("risk.anomaly_cooldown", "0s")
	v.SetDefault("risk.pair_drawdown_enabled", true)
	v.SetDefault("risk.pair_max_drawdown", 0.1)
	v.SetDefault("risk.pair_drawdown_cooldown_win", "24h")
	v.SetDefault("risk.pair_drawdown_cooldown_loss", "120h")
	v.SetDefault("risk.timeout_enabled", true)
	v.SetDefault("risk.max_holding", "720h")
	v.SetDefault("risk.timeout_cooldown", "48h")

	v.SetDefault("feed.path", "")
	v.SetDefault("broker.reject_symbols", []string{})
	v.SetDefault("broker.cancel_symbols", []string{})
}

// Load загружает конфигурацию: значения по умолчанию → YAML (если задан путь
// или PAIRS_CONFIG) → переменные окружения PAIRS_*
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет числовые диапазоны параметров
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Enabled && (c.Database.Port < 1 || c.Database.Port > 65535) {
		return fmt.Errorf("database.port must be between 1 and 65535, got %d", c.Database.Port)
	}

	t := c.Trading
	if t.StartingCapital <= 0 {
		return fmt.Errorf("trading.starting_capital must be positive, got %v", t.StartingCapital)
	}
	if !(0 <= t.ExitZ && t.ExitZ < t.EntryZMin && t.EntryZMin <= t.EntryZMax && t.EntryZMax < t.StopZ) {
		return fmt.Errorf("z bands must satisfy 0 <= exit < entry_min <= entry_max < stop, got exit=%v entry=[%v,%v] stop=%v",
			t.ExitZ, t.EntryZMin, t.EntryZMax, t.StopZ)
	}
	if t.LongMargin < 1 || t.ShortMargin < 1 {
		return fmt.Errorf("trading margins must be >= 1, got long=%v short=%v", t.LongMargin, t.ShortMargin)
	}
	if t.LotSize < 0 || t.MinTicket < 0 {
		return fmt.Errorf("trading.lot_size and trading.min_ticket cannot be negative")
	}
	if t.MaxPairAllocation <= 0 || t.MaxPairAllocation > 1 {
		return fmt.Errorf("trading.max_pair_allocation must be in (0,1], got %v", t.MaxPairAllocation)
	}
	if t.MaxArchivedCycles < 0 {
		return fmt.Errorf("trading.max_archived_cycles cannot be negative, got %d", t.MaxArchivedCycles)
	}

	if c.Cooldown.AfterProfit < 0 || c.Cooldown.AfterLoss < 0 || c.Cooldown.AfterStop < 0 {
		return fmt.Errorf("cooldown durations cannot be negative")
	}
	for reason, d := range c.Cooldown.ByReason {
		if d < 0 {
			return fmt.Errorf("cooldown.by_reason.%s cannot be negative", reason)
		}
	}

	r := c.Risk
	if r.BlowupFraction <= 0 || r.BlowupFraction > 1 {
		return fmt.Errorf("risk.blowup_fraction must be in (0,1], got %v", r.BlowupFraction)
	}
	if r.MaxDrawdown <= 0 || r.MaxDrawdown > 1 {
		return fmt.Errorf("risk.max_drawdown must be in (0,1], got %v", r.MaxDrawdown)
	}
	if r.PairMaxDrawdown <= 0 || r.PairMaxDrawdown > 1 {
		return fmt.Errorf("risk.pair_max_drawdown must be in (0,1], got %v", r.PairMaxDrawdown)
	}
	if r.VolatilityThreshold <= 0 {
		return fmt.Errorf("risk.volatility_threshold must be positive, got %v", r.VolatilityThreshold)
	}
	if r.VolatilityLookback < 2 {
		return fmt.Errorf("risk.volatility_lookback must be at least 2, got %d", r.VolatilityLookback)
	}
	if r.MaxHolding <= 0 {
		return fmt.Errorf("risk.max_holding must be positive, got %v", r.MaxHolding)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}
