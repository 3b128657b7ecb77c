package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Data source kinds.
const (
	SourceCSV      = "csv"
	SourceSample   = "sample"
	SourceDatabase = "database"
)

// Config is the process configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Data     DataConfig     `mapstructure:"data"`
	Model    ModelConfig    `mapstructure:"model"`
	Insights InsightsConfig `mapstructure:"insights"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// DataConfig selects where the in-memory table is loaded from at startup.
type DataConfig struct {
	Source                   string `mapstructure:"source"`
	CSVPath                  string `mapstructure:"csv_path"`
	SampleSeed               int64  `mapstructure:"sample_seed"`
	SampleRowsPerCombination int    `mapstructure:"sample_rows_per_combination"`
}

// ModelConfig tunes the per-(region, crop) predictor.
type ModelConfig struct {
	MinRows       int           `mapstructure:"min_rows"`
	ForestMinRows int           `mapstructure:"forest_min_rows"`
	Trees         int           `mapstructure:"trees"`
	Seed          int64         `mapstructure:"seed"`
	MaxDepth      int           `mapstructure:"max_depth"`
	FitTimeout    time.Duration `mapstructure:"fit_timeout"`
}

type InsightsConfig struct {
	StrategyThreshold float64 `mapstructure:"strategy_threshold"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "agri")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "agri_yield.db")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 5*time.Minute)

	v.SetDefault("logging.level", "info")

	v.SetDefault("data.source", SourceCSV)
	v.SetDefault("data.csv_path", "data/crop_yield_dataset.csv")
	v.SetDefault("data.sample_seed", 7)
	v.SetDefault("data.sample_rows_per_combination", 6)

	v.SetDefault("model.min_rows", 10)
	v.SetDefault("model.forest_min_rows", 50)
	v.SetDefault("model.trees", 100)
	v.SetDefault("model.seed", 42)
	v.SetDefault("model.max_depth", 0)
	v.SetDefault("model.fit_timeout", 30*time.Second)

	v.SetDefault("insights.strategy_threshold", 30.0)
}

// LoadConfig reads configuration from defaults, an optional YAML file and
// AGRI_* environment variables. Precedence: env > file > defaults.
// The file is taken from AGRI_CONFIG, else ./config.yaml when present.
func LoadConfig() (*Config, error) {
	return Load(os.Getenv("AGRI_CONFIG"))
}

// Load is LoadConfig with an explicit config file path ("" = search cwd).
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AGRI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

// Validate checks the configuration for values the services cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}

	switch c.Data.Source {
	case SourceCSV:
		if c.Data.CSVPath == "" {
			return errors.New("data.csv_path is required when data.source is csv")
		}
	case SourceSample:
		if c.Data.SampleRowsPerCombination <= 0 {
			return errors.New("data.sample_rows_per_combination must be positive")
		}
	case SourceDatabase:
		if err := c.Database.validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("data.source must be one of csv, sample, database; got %q", c.Data.Source)
	}

	if c.Model.MinRows < 2 {
		return fmt.Errorf("model.min_rows must be at least 2, got %d", c.Model.MinRows)
	}
	if c.Model.ForestMinRows < c.Model.MinRows {
		return fmt.Errorf("model.forest_min_rows (%d) must not be below model.min_rows (%d)", c.Model.ForestMinRows, c.Model.MinRows)
	}
	if c.Model.Trees <= 0 {
		return fmt.Errorf("model.trees must be positive, got %d", c.Model.Trees)
	}
	if c.Model.MaxDepth < 0 {
		return fmt.Errorf("model.max_depth must not be negative, got %d", c.Model.MaxDepth)
	}
	if c.Model.FitTimeout <= 0 {
		return errors.New("model.fit_timeout must be positive")
	}
	if c.Insights.StrategyThreshold < 0 || c.Insights.StrategyThreshold > 100 {
		return fmt.Errorf("insights.strategy_threshold must be in 0..100, got %v", c.Insights.StrategyThreshold)
	}
	return nil
}

// ValidateDatabase checks only the database section, for tools that talk to
// the record store regardless of data.source.
func (c *Config) ValidateDatabase() error {
	return c.Database.validate()
}

func (d DatabaseConfig) validate() error {
	switch d.Driver {
	case "postgres":
		if d.DSN == "" && (d.Host == "" || d.Database == "") {
			return errors.New("database.host and database.database are required for postgres")
		}
	case "sqlite":
		if d.DSN == "" && d.Database == "" {
			return errors.New("database.database (file path) is required for sqlite")
		}
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", d.Driver)
	}
	return nil
}
