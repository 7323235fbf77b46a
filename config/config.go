// Package config loads the service configuration and sets up logging.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jurisflow/calc-engine/index"
)

// EnvPrefix prefixes every environment override, e.g. LEGALCALC_SERVER_PORT.
const EnvPrefix = "LEGALCALC"

// Config holds the full application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Index     IndexConfig     `yaml:"index" mapstructure:"index"`
	Reference ReferenceConfig `yaml:"reference" mapstructure:"reference"`
	CORS      CORSConfig      `yaml:"cors" mapstructure:"cors"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// StoreConfig configures the SQLite store.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// IndexConfig configures the official index series source.
type IndexConfig struct {
	BaseURL           string         `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs       int            `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64        `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Live              bool           `yaml:"live" mapstructure:"live"`
	MonthlySeries     map[string]int `yaml:"monthly_series" mapstructure:"monthly_series"`
}

// Series returns the enabled monthly series keyed by index name.
func (c IndexConfig) Series() (map[index.Name]int, error) {
	out := make(map[index.Name]int, len(c.MonthlySeries))
	for name, code := range c.MonthlySeries {
		n, ok := index.Normalize(name)
		if !ok {
			return nil, eris.Errorf("config: unknown index %q in index.monthly_series", name)
		}
		if code <= 0 {
			return nil, eris.Errorf("config: invalid series code %d for %s", code, n)
		}
		out[n] = code
	}
	return out, nil
}

// ReferenceConfig points at an optional YAML file with reference tables.
type ReferenceConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// CORSConfig configures allowed browser origins.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("store.path", "legalcalc.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("index.base_url", index.DefaultSGSBaseURL)
	v.SetDefault("index.timeout_secs", 10)
	v.SetDefault("index.requests_per_second", 2)
	v.SetDefault("index.live", true)
	v.SetDefault("index.monthly_series", map[string]int{"SELIC": index.SeriesCodes[index.SELIC]})
	v.SetDefault("reference.file", "")
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173", "http://localhost:8080"})

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

// Validate checks the values the service cannot start without.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, "server.port must be between 1 and 65535")
	}
	if c.Store.Path == "" {
		problems = append(problems, "store.path is required")
	}
	if c.Index.TimeoutSecs <= 0 {
		problems = append(problems, "index.timeout_secs must be positive")
	}
	if c.Index.RequestsPerSecond <= 0 {
		problems = append(problems, "index.requests_per_second must be positive")
	}
	if _, err := c.Index.Series(); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
