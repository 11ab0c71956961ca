package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"aitrader/internal/audit"
	"aitrader/internal/logging"
	"aitrader/internal/market"
	"aitrader/internal/risk"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Market    MarketConfig    `mapstructure:"market"`
	AI        AIConfig        `mapstructure:"ai"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig enables the shared cooldown store. Empty Addr keeps cooldowns in process.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SchedulerConfig governs the analysis cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// MarketConfig points at the market summary collaborator.
type MarketConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Coins          []string      `mapstructure:"coins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// ProviderConfig is one model provider.
type ProviderConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	BaseURL          string  `mapstructure:"base_url"`
	APIKey           string  `mapstructure:"api_key"`
	EndpointID       string  `mapstructure:"endpoint_id"`
	CheapModel       string  `mapstructure:"cheap_model"`
	PremiumModel     string  `mapstructure:"premium_model"`
	CheapCostPer1K   float64 `mapstructure:"cheap_cost_per_1k"`
	PremiumCostPer1K float64 `mapstructure:"premium_cost_per_1k"`
}

// AIConfig covers the model fan-out.
type AIConfig struct {
	Timeout           time.Duration  `mapstructure:"timeout"`
	Temperature       float64        `mapstructure:"temperature"`
	MaxTokens         int            `mapstructure:"max_tokens"`
	RequestsPerSecond float64        `mapstructure:"requests_per_second"`
	Doubao            ProviderConfig `mapstructure:"doubao"`
	Gemini            ProviderConfig `mapstructure:"gemini"`
	OpenAI            ProviderConfig `mapstructure:"openai"`
	DeepSeek          ProviderConfig `mapstructure:"deepseek"`
}

// RiskConfig holds the tier cascade thresholds.
type RiskConfig struct {
	Thresholds risk.Thresholds `mapstructure:"thresholds"`
}

// ExchangeConfig selects and configures order placement.
type ExchangeConfig struct {
	Mode              string        `mapstructure:"mode"`
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	APISecret         string        `mapstructure:"api_secret"`
	Passphrase        string        `mapstructure:"passphrase"`
	Simulated         bool          `mapstructure:"simulated"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// ExecutionConfig tunes placement retries.
type ExecutionConfig struct {
	MaxAttempts int             `mapstructure:"max_attempts"`
	Backoff     []time.Duration `mapstructure:"backoff"`
}

// AuditConfig selects the durability policy.
type AuditConfig struct {
	Durability string `mapstructure:"durability"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// MetricsConfig exposes prometheus metrics when ListenAddr is set.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AITRADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "aitrader")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("redis.db", 0)

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x41495452))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("market.coins", []string{"BTC", "ETH", "SOL"})
	v.SetDefault("market.request_timeout", "10s")
	v.SetDefault("market.user_agent", "aitrader/1.0")

	v.SetDefault("ai.timeout", "30s")
	v.SetDefault("ai.temperature", 0.1)
	v.SetDefault("ai.max_tokens", 500)
	v.SetDefault("ai.requests_per_second", 2.0)
	v.SetDefault("ai.doubao.base_url", "https://ark.cn-beijing.volces.com/api/v3")
	v.SetDefault("ai.gemini.base_url", "https://generativelanguage.googleapis.com/v1beta/models")
	v.SetDefault("ai.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("ai.deepseek.base_url", "https://api.deepseek.com/v1")
	setProviderDefaults(v, "doubao", "doubao-pro-32k", 0.0001, "doubao-pro-256k", 0.0007)
	setProviderDefaults(v, "gemini", "gemini-2.0-flash", 0.0001, "gemini-2.0-pro", 0.003)
	setProviderDefaults(v, "openai", "gpt-4o-mini", 0.00015, "gpt-4o", 0.005)
	setProviderDefaults(v, "deepseek", "deepseek-chat", 0.00014, "deepseek-reasoner", 0.00055)

	t := risk.DefaultThresholds()
	v.SetDefault("risk.thresholds.price_change_p0", t.PriceChangeP0)
	v.SetDefault("risk.thresholds.depth_drop_p0", t.DepthDropP0)
	v.SetDefault("risk.thresholds.whale_p0", t.WhaleP0)
	v.SetDefault("risk.thresholds.atr_p1", t.ATRP1)
	v.SetDefault("risk.thresholds.whale_p1", t.WhaleP1Min)
	v.SetDefault("risk.thresholds.min_confidence", t.MinConfidence)
	v.SetDefault("risk.thresholds.volatility_upgrade", t.VolatilityUpgrade)

	v.SetDefault("exchange.mode", "paper")
	v.SetDefault("exchange.base_url", "https://www.okx.com")
	v.SetDefault("exchange.request_timeout", "10s")
	v.SetDefault("exchange.requests_per_second", 10.0)

	v.SetDefault("execution.max_attempts", 3)
	v.SetDefault("execution.backoff", []string{"500ms", "1s", "2s"})

	v.SetDefault("audit.durability", string(audit.BestEffort))

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)
}

func setProviderDefaults(v *viper.Viper, name, cheap string, cheapCost float64, premium string, premiumCost float64) {
	prefix := "ai." + name + "."
	v.SetDefault(prefix+"cheap_model", cheap)
	v.SetDefault(prefix+"cheap_cost_per_1k", cheapCost)
	v.SetDefault(prefix+"premium_model", premium)
	v.SetDefault(prefix+"premium_cost_per_1k", premiumCost)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if _, err := c.CoinList(); err != nil {
		return err
	}
	if c.AI.Timeout <= 0 {
		return fmt.Errorf("ai.timeout must be greater than zero")
	}
	if c.Risk.Thresholds.MinConfidence < risk.MinConfidenceFloor {
		return fmt.Errorf("risk.thresholds.min_confidence cannot be below %.1f", risk.MinConfidenceFloor)
	}
	if c.Risk.Thresholds.WhaleP1Min > c.Risk.Thresholds.WhaleP0 {
		return fmt.Errorf("risk.thresholds.whale_p1 must not exceed whale_p0")
	}
	switch c.Exchange.Mode {
	case "paper":
	case "okx":
		if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" || c.Exchange.Passphrase == "" {
			return fmt.Errorf("exchange.api_key, api_secret and passphrase are required in okx mode")
		}
	default:
		return fmt.Errorf("exchange.mode must be paper or okx, got %q", c.Exchange.Mode)
	}
	if c.Execution.MaxAttempts <= 0 {
		return fmt.Errorf("execution.max_attempts must be greater than zero")
	}
	if _, err := audit.ParseDurability(c.Audit.Durability); err != nil {
		return err
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// CoinList parses market.coins.
func (c *Config) CoinList() ([]market.Coin, error) {
	if len(c.Market.Coins) == 0 {
		return nil, fmt.Errorf("market.coins must not be empty")
	}
	coins := make([]market.Coin, 0, len(c.Market.Coins))
	for _, raw := range c.Market.Coins {
		coin, err := market.ParseCoin(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("market.coins: %w", err)
		}
		coins = append(coins, coin)
	}
	return coins, nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
