// Package config provides configuration management for the analyzer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"forex-analyzer/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	Ingest     IngestConfig     `mapstructure:"ingest" json:"ingest" yaml:"ingest"`
	Validation ValidationConfig `mapstructure:"validation" json:"validation" yaml:"validation"`
	Analysis   AnalysisConfig   `mapstructure:"analysis" json:"analysis" yaml:"analysis"`
	Risk       RiskConfig       `mapstructure:"risk" json:"risk" yaml:"risk"`
	ML         MLConfig         `mapstructure:"ml" json:"ml" yaml:"ml"`
	Insights   InsightsConfig   `mapstructure:"insights" json:"insights" yaml:"insights"`
	Storage    StorageConfig    `mapstructure:"storage" json:"storage" yaml:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging" json:"logging" yaml:"logging"`
}

// IngestConfig controls how exports are read and normalized.
type IngestConfig struct {
	DefaultSource   string `mapstructure:"default_source" json:"default_source" yaml:"default_source" validate:"oneof=auto MT4 MT5 cTrader generic"`
	DefaultCurrency string `mapstructure:"default_currency" json:"default_currency" yaml:"default_currency" validate:"len=3"`
	DefaultLeverage int    `mapstructure:"default_leverage" json:"default_leverage" yaml:"default_leverage" validate:"gt=0"`
	MaxFileSizeMB   int    `mapstructure:"max_file_size_mb" json:"max_file_size_mb" yaml:"max_file_size_mb" validate:"gt=0"`
	UploadWorkers   int    `mapstructure:"upload_workers" json:"upload_workers" yaml:"upload_workers" validate:"gte=1,lte=32"`
}

// ValidationConfig holds trade validation thresholds.
type ValidationConfig struct {
	MinTradeSize       float64       `mapstructure:"min_trade_size" json:"min_trade_size" yaml:"min_trade_size" validate:"gt=0"`
	MaxTradeSize       float64       `mapstructure:"max_trade_size" json:"max_trade_size" yaml:"max_trade_size" validate:"gtfield=MinTradeSize"`
	MinPrice           float64       `mapstructure:"min_price" json:"min_price" yaml:"min_price" validate:"gt=0"`
	MaxPrice           float64       `mapstructure:"max_price" json:"max_price" yaml:"max_price" validate:"gtfield=MinPrice"`
	DateTolerance      time.Duration `mapstructure:"date_tolerance" json:"date_tolerance" yaml:"date_tolerance" validate:"gte=0"`
	ProfitTolerancePct float64       `mapstructure:"profit_tolerance_pct" json:"profit_tolerance_pct" yaml:"profit_tolerance_pct" validate:"gte=0,lte=1"`
	ProfitToleranceMin float64       `mapstructure:"profit_tolerance_min" json:"profit_tolerance_min" yaml:"profit_tolerance_min" validate:"gte=0"`
	ContractSize       float64       `mapstructure:"contract_size" json:"contract_size" yaml:"contract_size" validate:"gt=0"`
}

// AnalysisConfig holds defaults for the analytics engine.
type AnalysisConfig struct {
	ConfidenceLevel float64 `mapstructure:"confidence_level" json:"confidence_level" yaml:"confidence_level" validate:"gt=0,lt=1"`
	RollingWindow   int     `mapstructure:"rolling_window" json:"rolling_window" yaml:"rolling_window" validate:"gte=2"`
	Granularity     string  `mapstructure:"granularity" json:"granularity" yaml:"granularity" validate:"oneof=hour day week month all"`
}

// RiskConfig holds defaults for the risk assessment provider.
type RiskConfig struct {
	RiskFreeRate          float64   `mapstructure:"risk_free_rate" json:"risk_free_rate" yaml:"risk_free_rate" validate:"gte=0,lt=1"`
	ConfidenceLevels      []float64 `mapstructure:"confidence_levels" json:"confidence_levels" yaml:"confidence_levels" validate:"min=1,dive,gt=0,lt=1"`
	MonteCarloSimulations int       `mapstructure:"monte_carlo_simulations" json:"monte_carlo_simulations" yaml:"monte_carlo_simulations" validate:"gte=100"`
	Seed                  int64     `mapstructure:"seed" json:"seed" yaml:"seed"`
	MinTrades             int       `mapstructure:"min_trades" json:"min_trades" yaml:"min_trades" validate:"gte=2"`
}

// MLConfig holds defaults for clustering, classification and anomaly detection.
type MLConfig struct {
	Seed              int64   `mapstructure:"seed" json:"seed" yaml:"seed"`
	NEstimators       int     `mapstructure:"n_estimators" json:"n_estimators" yaml:"n_estimators" validate:"gte=1"`
	MaxDepth          int     `mapstructure:"max_depth" json:"max_depth" yaml:"max_depth" validate:"gte=1"`
	NInit             int     `mapstructure:"n_init" json:"n_init" yaml:"n_init" validate:"gte=1"`
	MinClusterTrades  int     `mapstructure:"min_cluster_trades" json:"min_cluster_trades" yaml:"min_cluster_trades" validate:"gte=2"`
	MinClassifyTrades int     `mapstructure:"min_classify_trades" json:"min_classify_trades" yaml:"min_classify_trades" validate:"gte=4"`
	MinQuickTrades    int     `mapstructure:"min_quick_trades" json:"min_quick_trades" yaml:"min_quick_trades" validate:"gte=1"`
	DBSCANEps         float64 `mapstructure:"dbscan_eps" json:"dbscan_eps" yaml:"dbscan_eps" validate:"gt=0"`
	DBSCANMinSamples  int     `mapstructure:"dbscan_min_samples" json:"dbscan_min_samples" yaml:"dbscan_min_samples" validate:"gte=1"`
	IQRMultiplier     float64 `mapstructure:"iqr_multiplier" json:"iqr_multiplier" yaml:"iqr_multiplier" validate:"gt=0"`
	Workers           int     `mapstructure:"workers" json:"workers" yaml:"workers" validate:"gte=1,lte=64"`
}

// InsightsConfig holds the thresholds used by the insight rules.
type InsightsConfig struct {
	LowWinRate           float64 `mapstructure:"low_win_rate" json:"low_win_rate" yaml:"low_win_rate" validate:"gte=0,lte=1"`
	HighWinRate          float64 `mapstructure:"high_win_rate" json:"high_win_rate" yaml:"high_win_rate" validate:"gte=0,lte=1,gtfield=LowWinRate"`
	MinProfitFactor      float64 `mapstructure:"min_profit_factor" json:"min_profit_factor" yaml:"min_profit_factor" validate:"gte=0"`
	MinWinLossRatio      float64 `mapstructure:"min_win_loss_ratio" json:"min_win_loss_ratio" yaml:"min_win_loss_ratio" validate:"gte=0"`
	HourProfitGap        float64 `mapstructure:"hour_profit_gap" json:"hour_profit_gap" yaml:"hour_profit_gap" validate:"gte=0"`
	MaxConsecutiveLosses int     `mapstructure:"max_consecutive_losses" json:"max_consecutive_losses" yaml:"max_consecutive_losses" validate:"gte=1"`
	MaxDrawdownPct       float64 `mapstructure:"max_drawdown_pct" json:"max_drawdown_pct" yaml:"max_drawdown_pct" validate:"gt=0"`
	WorstSymbolLoss      float64 `mapstructure:"worst_symbol_loss" json:"worst_symbol_loss" yaml:"worst_symbol_loss" validate:"lte=0"`
	MaxDailyTrades       float64 `mapstructure:"max_daily_trades" json:"max_daily_trades" yaml:"max_daily_trades" validate:"gt=0"`
	SizeVariation        float64 `mapstructure:"size_variation" json:"size_variation" yaml:"size_variation" validate:"gt=0"`
	DirectionalGap       float64 `mapstructure:"directional_gap" json:"directional_gap" yaml:"directional_gap" validate:"gte=0"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	DBPath   string        `mapstructure:"db_path" json:"db_path" yaml:"db_path"`
	CacheTTL time.Duration `mapstructure:"cache_ttl" json:"cache_ttl" yaml:"cache_ttl" validate:"gte=0"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level    string `mapstructure:"level" json:"level" yaml:"level" validate:"oneof=trace debug info warn error"`
	File     bool   `mapstructure:"file" json:"file" yaml:"file"`
	FilePath string `mapstructure:"file_path" json:"file_path" yaml:"file_path"`
}

// envOverrides lists the FXA_* environment variables that override file settings.
type envOverrides struct {
	LogLevel      string        `envconfig:"LOG_LEVEL"`
	LogFile       bool          `envconfig:"LOG_FILE"`
	DBPath        string        `envconfig:"DB_PATH"`
	CacheTTL      time.Duration `envconfig:"CACHE_TTL"`
	RiskFreeRate  float64       `envconfig:"RISK_FREE_RATE"`
	MCSimulations int           `envconfig:"MC_SIMULATIONS"`
	Seed          int64         `envconfig:"SEED"`
	DefaultSource string        `envconfig:"DEFAULT_SOURCE"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/forex-analyzer"
	}
	return filepath.Join(home, ".config", "forex-analyzer")
}

// Default returns the built-in configuration.
func Default() *Config {
	dir := DefaultConfigDir()
	return &Config{
		Ingest: IngestConfig{
			DefaultSource:   "auto",
			DefaultCurrency: "USD",
			DefaultLeverage: 100,
			MaxFileSizeMB:   50,
			UploadWorkers:   4,
		},
		Validation: ValidationConfig{
			MinTradeSize:       0.01,
			MaxTradeSize:       1000,
			MinPrice:           0.0001,
			MaxPrice:           100000,
			DateTolerance:      24 * time.Hour,
			ProfitTolerancePct: 0.10,
			ProfitToleranceMin: 1.0,
			ContractSize:       100000,
		},
		Analysis: AnalysisConfig{
			ConfidenceLevel: 0.95,
			RollingWindow:   30,
			Granularity:     "hour",
		},
		Risk: RiskConfig{
			RiskFreeRate:          0.02,
			ConfidenceLevels:      []float64{0.95, 0.99},
			MonteCarloSimulations: 10000,
			Seed:                  42,
			MinTrades:             10,
		},
		ML: MLConfig{
			Seed:              42,
			NEstimators:       100,
			MaxDepth:          10,
			NInit:             10,
			MinClusterTrades:  5,
			MinClassifyTrades: 20,
			MinQuickTrades:    10,
			DBSCANEps:         0.5,
			DBSCANMinSamples:  5,
			IQRMultiplier:     1.5,
			Workers:           4,
		},
		Insights: InsightsConfig{
			LowWinRate:           0.4,
			HighWinRate:          0.7,
			MinProfitFactor:      1.2,
			MinWinLossRatio:      1.5,
			HourProfitGap:        100,
			MaxConsecutiveLosses: 5,
			MaxDrawdownPct:       20,
			WorstSymbolLoss:      -50,
			MaxDailyTrades:       10,
			SizeVariation:        0.5,
			DirectionalGap:       100,
		},
		Storage: StorageConfig{
			DBPath:   filepath.Join(dir, "fxanalyzer.db"),
			CacheTTL: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:    "info",
			File:     false,
			FilePath: filepath.Join(dir, "logs", "fxanalyzer.log"),
		},
	}
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is replaced by a commented template and defaults apply.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// .env is optional
	_ = godotenv.Load()

	cfg := Default()

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target *Config) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateConfig(configDir, name)
		}
		return err
	}

	return v.Unmarshal(target)
}

func applyEnvOverrides(cfg *Config) error {
	env := envOverrides{
		LogLevel:      cfg.Logging.Level,
		LogFile:       cfg.Logging.File,
		DBPath:        cfg.Storage.DBPath,
		CacheTTL:      cfg.Storage.CacheTTL,
		RiskFreeRate:  cfg.Risk.RiskFreeRate,
		MCSimulations: cfg.Risk.MonteCarloSimulations,
		Seed:          cfg.Risk.Seed,
		DefaultSource: cfg.Ingest.DefaultSource,
	}
	if err := envconfig.Process("FXA", &env); err != nil {
		return err
	}

	cfg.Logging.Level = env.LogLevel
	cfg.Logging.File = env.LogFile
	cfg.Storage.DBPath = env.DBPath
	cfg.Storage.CacheTTL = env.CacheTTL
	cfg.Risk.RiskFreeRate = env.RiskFreeRate
	cfg.Risk.MonteCarloSimulations = env.MCSimulations
	if env.Seed != cfg.Risk.Seed {
		cfg.Risk.Seed = env.Seed
		cfg.ML.Seed = env.Seed
	}
	cfg.Ingest.DefaultSource = env.DefaultSource
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			first := verrs[0]
			return errors.Wrapf(errors.ErrConfigInvalid, "%s failed %q (value %v)", first.Namespace(), first.Tag(), first.Value())
		}
		return errors.Wrap(errors.ErrConfigInvalid, err.Error())
	}
	if c.Storage.DBPath == "" {
		return errors.Wrap(errors.ErrConfigInvalid, "storage.db_path must be set")
	}
	return nil
}

// ConfigFile returns the path of config.toml inside configDir.
func ConfigFile(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}
