package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/tunogya/dipscope/pkg/feature"
)

// EnvPrefix prefixes every environment override (e.g. DIPSCOPE_HORIZON)
const EnvPrefix = "DIPSCOPE"

// Config is the full application configuration
type Config struct {
	Log      Log      `yaml:"log"`
	Data     Data     `yaml:"data"`
	Analysis Analysis `yaml:"analysis"`
	Report   Report   `yaml:"report"`
	DuckDB   DuckDB   `yaml:"duckdb"`
	NATS     NATS     `yaml:"nats"`
	Server   Server   `yaml:"server"`
	Detector Detector `yaml:"detector"`
}

// Log configures the process logger
type Log struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `yaml:"format" default:"console" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stderr" validate:"required"`
}

// Data locates the bar files and names the series they hold.
// Source selects whether analyze reads the files or the DuckDB store.
type Data struct {
	Source      string `yaml:"source" default:"csv" validate:"oneof=csv duckdb"`
	Dir         string `yaml:"dir" default:"data" validate:"required"`
	Pattern     string `yaml:"pattern" default:"*.csv.gz" validate:"required"`
	Symbol      string `yaml:"symbol" default:"BTCUSDT"`
	Timeframe   string `yaml:"timeframe" default:"1m"`
	Concurrency int    `yaml:"concurrency" default:"4" validate:"gte=1"`
}

// Analysis holds the pipeline parameters
type Analysis struct {
	Horizon      int     `yaml:"horizon" default:"1" validate:"gte=1"`
	DipThreshold float64 `yaml:"dip_threshold" default:"-0.01" validate:"lt=0"`
	FeeRate      float64 `yaml:"fee_rate" default:"0.00055" validate:"gte=0"`
}

// Report controls where charts and summaries are written and how the
// volatility histogram is binned
type Report struct {
	OutDir         string  `yaml:"out_dir" default:"out" validate:"required"`
	HistogramRange float64 `yaml:"histogram_range" default:"0.01" validate:"gt=0"`
	HistogramBins  int     `yaml:"histogram_bins" default:"100" validate:"gte=1"`
	WidthInches    float64 `yaml:"width_inches" default:"12" validate:"gt=0"`
	HeightInches   float64 `yaml:"height_inches" default:"6" validate:"gt=0"`
}

// DuckDB locates the bar store. An empty path opens an in-memory database.
type DuckDB struct {
	Path string `yaml:"path" default:"dipscope.duckdb"`
}

// NATS configures the JetStream work queue between import and writer
type NATS struct {
	URL           string        `yaml:"url" default:"nats://localhost:4222" validate:"required"`
	Stream        string        `yaml:"stream" default:"dipscope" validate:"required"`
	RetryAttempts int           `yaml:"retry_attempts" default:"3" validate:"gte=0"`
	RetryDelay    time.Duration `yaml:"retry_delay" default:"1s"`
	BatchSize     int           `yaml:"batch_size" default:"1000" validate:"gte=1"`
	NakDelay      time.Duration `yaml:"nak_delay" default:"1s"`
}

// Server configures the HTTP API
type Server struct {
	Addr string `yaml:"addr" default:":8080" validate:"required"`
}

// Detector configures the streaming dip detector
type Detector struct {
	TargetN int `yaml:"target_n" default:"2" validate:"gte=2"`
}

// envOverrides maps environment variables onto Config. Unset variables
// leave the pointer nil and the loaded value untouched.
type envOverrides struct {
	LogLevel     *string  `envconfig:"LOG_LEVEL"`
	Source       *string  `envconfig:"DATA_SOURCE"`
	DataDir      *string  `envconfig:"DATA_DIR"`
	Pattern      *string  `envconfig:"DATA_PATTERN"`
	Symbol       *string  `envconfig:"SYMBOL"`
	Horizon      *int     `envconfig:"HORIZON"`
	DipThreshold *float64 `envconfig:"DIP_THRESHOLD"`
	FeeRate      *float64 `envconfig:"FEE_RATE"`
	OutDir       *string  `envconfig:"OUT_DIR"`
	DuckDBPath   *string  `envconfig:"DUCKDB_PATH"`
	NATSURL      *string  `envconfig:"NATS_URL"`
	ServerAddr   *string  `envconfig:"SERVER_ADDR"`
	TargetN      *int     `envconfig:"TARGET_N"`
}

// Default returns a Config populated from struct defaults only
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}
	return &c, nil
}

// Load builds the configuration: struct defaults, then the YAML file at
// path (skipped when path is empty), then .env and environment overrides.
// The result is validated.
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	setString(&c.Log.Level, env.LogLevel)
	setString(&c.Data.Source, env.Source)
	setString(&c.Data.Dir, env.DataDir)
	setString(&c.Data.Pattern, env.Pattern)
	setString(&c.Data.Symbol, env.Symbol)
	setString(&c.Report.OutDir, env.OutDir)
	setString(&c.DuckDB.Path, env.DuckDBPath)
	setString(&c.NATS.URL, env.NATSURL)
	setString(&c.Server.Addr, env.ServerAddr)
	if env.Horizon != nil {
		c.Analysis.Horizon = *env.Horizon
	}
	if env.DipThreshold != nil {
		c.Analysis.DipThreshold = *env.DipThreshold
	}
	if env.FeeRate != nil {
		c.Analysis.FeeRate = *env.FeeRate
	}
	if env.TargetN != nil {
		c.Detector.TargetN = *env.TargetN
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

var validate = validator.New()

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// Params returns the feature pipeline parameters
func (c *Config) Params() feature.Params {
	return feature.Params{
		Horizon:      c.Analysis.Horizon,
		DipThreshold: c.Analysis.DipThreshold,
	}
}
