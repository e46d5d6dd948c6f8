package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file used when CHASEBTC_CONFIG is unset.
const DefaultPath = "config/chasebtc.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration shared by every chasebtc binary.
type Config struct {
	Server   Server   `yaml:"server"`
	Storage  Storage  `yaml:"storage"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Model    Model    `yaml:"model"`
	Backtest Backtest `yaml:"backtest"`
	Redis    Redis    `yaml:"redis"`
	Kafka    Kafka    `yaml:"kafka"`
	Telegram Telegram `yaml:"telegram"`
	Logging  Logging  `yaml:"logging"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir      string `yaml:"data_dir"`
	FeaturesFile string `yaml:"features_file"`
	SQLitePath   string `yaml:"sqlite_path"`
	// PostgresDSN, when set, moves bot subscribers from SQLite to Postgres.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Alpaca holds credentials and the market-data endpoint used to fetch bars.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Symbol    string `yaml:"symbol"`
}

// Model locates the prediction server.
type Model struct {
	URL     string        `yaml:"url"`
	Version string        `yaml:"version"`
	Timeout time.Duration `yaml:"timeout"`
}

// Backtest holds the defaults applied to requests that omit a parameter,
// plus result cache sizing.
type Backtest struct {
	Threshold      float64       `yaml:"threshold"`
	StopLoss       float64       `yaml:"stop_loss"`
	TakeProfit     float64       `yaml:"take_profit"`
	InitialCapital float64       `yaml:"initial_capital"`
	PositionSize   float64       `yaml:"position_size"`
	PeriodsPerYear float64       `yaml:"periods_per_year"`
	StartDate      string        `yaml:"start_date"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	CacheSize      int           `yaml:"cache_size"`
}

// Redis configures the optional shared result cache. An empty Addr disables
// it.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Kafka configures the optional signal stream. No brokers disables it.
type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Telegram configures the chat bot.
type Telegram struct {
	Token     string `yaml:"token"`
	APIURL    string `yaml:"api_url"`
	DailyCron string `yaml:"daily_cron"`
	Timezone  string `yaml:"timezone"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns the configuration file path from CHASEBTC_CONFIG, falling back
// to DefaultPath.
func Path() string {
	if v := os.Getenv("CHASEBTC_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	cfg.ApplyDefaults()

	return cfg, nil
}

// LoadOrDefault behaves like Load but returns a defaulted Config with env
// overrides when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		return nil, err
	}
	cfg = &Config{}
	applyEnvOverrides(cfg)
	cfg.ApplyDefaults()
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("FEATURES_FILE"); v != "" {
		cfg.Storage.FeaturesFile = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	// Canonical SDK names take priority.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("MODEL_URL"); v != "" {
		cfg.Model.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("CHASEBTC_API_URL"); v != "" {
		cfg.Telegram.APIURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	setString(&c.Server.Host, "0.0.0.0")
	setInt(&c.Server.Port, 8000)
	setInt(&c.Server.GRPCPort, 9000)

	setString(&c.Storage.DataDir, "data")
	setString(&c.Storage.FeaturesFile, c.Storage.DataDir+"/btc_features.parquet")
	setString(&c.Storage.SQLitePath, c.Storage.DataDir+"/chasebtc.db")

	setString(&c.Alpaca.Symbol, "BTC/USD")

	setString(&c.Model.URL, "http://localhost:8500")
	setString(&c.Model.Version, "xgb-v1")
	if c.Model.Timeout <= 0 {
		c.Model.Timeout = 30 * time.Second
	}

	b := &c.Backtest
	setFloat(&b.Threshold, 0.27)
	setFloat(&b.StopLoss, 0.05)
	setFloat(&b.TakeProfit, 0.30)
	setFloat(&b.InitialCapital, 1000)
	setFloat(&b.PositionSize, 1.0)
	setFloat(&b.PeriodsPerYear, 365)
	setString(&b.StartDate, "2015-01-01")
	if b.CacheTTL <= 0 {
		b.CacheTTL = time.Hour
	}
	setInt(&b.CacheSize, 256)

	setString(&c.Redis.Prefix, "chasebtc:")
	setString(&c.Kafka.Topic, "chasebtc.signals")

	setString(&c.Telegram.APIURL, "http://localhost:8000")
	setString(&c.Telegram.DailyCron, "40 12 * * *")
	setString(&c.Telegram.Timezone, "Africa/Lagos")

	setString(&c.Logging.Level, "info")
	setString(&c.Logging.Format, "json")
}

// Addr returns the HTTP listen address.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GRPCAddr returns the gRPC listen address.
func (s Server) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.GRPCPort)
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func setFloat(dst *float64, def float64) {
	if *dst == 0 {
		*dst = def
	}
}
