package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/diligence-ledger/internal/ledger"
	"github.com/sells-group/diligence-ledger/internal/scoring"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Scoring ScoringConfig `yaml:"scoring" mapstructure:"scoring"`
	Topics  TopicsConfig  `yaml:"topics" mapstructure:"topics"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string            `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string            `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string            `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	Pool        ledger.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// ServerConfig configures the HTTP API server. The rate limiter state is
// process-local; a multi-instance deployment needs an external shared
// limiter instead.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	RateRPS     float64  `yaml:"rate_rps" mapstructure:"rate_rps"`
	RateBurst   int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// ScoringConfig configures adjusted-score credits.
type ScoringConfig struct {
	Credit scoring.CreditConfig `yaml:"credit" mapstructure:"credit"`
}

// TopicsConfig configures red-flag topic inference.
type TopicsConfig struct {
	RulesPath string `yaml:"rules_path" mapstructure:"rules_path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DILIGENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "diligence.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_rps", 20)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("scoring.credit.critical", 15)
	v.SetDefault("scoring.credit.high", 10)
	v.SetDefault("scoring.credit.medium", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks configuration consistency before a command runs. Store
// checks apply only to commands that open the store; pass needsStore false
// for commands that never touch it.
func (c *Config) Validate(needsStore bool) error {
	var problems []string

	if needsStore {
		switch c.Store.Driver {
		case "sqlite":
		case "postgres":
			if c.Store.DatabaseURL == "" {
				problems = append(problems, "store.database_url is required for the postgres driver")
			}
		default:
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, "server.port must be between 1 and 65535")
	}
	if c.Server.RateRPS <= 0 {
		problems = append(problems, "server.rate_rps must be > 0")
	}
	if c.Server.RateBurst <= 0 {
		problems = append(problems, "server.rate_burst must be > 0")
	}
	if c.Scoring.Credit.Critical < 0 || c.Scoring.Credit.High < 0 || c.Scoring.Credit.Medium < 0 {
		problems = append(problems, "scoring.credit values must be >= 0")
	}

	if len(problems) > 0 {
		return eris.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
