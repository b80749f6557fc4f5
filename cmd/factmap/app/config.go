package app

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/factmap"
	"github.com/agentstation/factmap/pkg/constants"
	"github.com/agentstation/factmap/pkg/errors"
	"github.com/agentstation/factmap/pkg/records"
	"github.com/agentstation/factmap/pkg/sources"
)

// Config holds the application configuration loaded from various sources
// including config files, environment variables, and .env files.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	// Config file
	ConfigFile string

	// Reconciliation
	StorePath     string
	Restricted    bool
	Allow         []string
	AllowBySource map[string][]string
	SeedSource    string
	MaxPasses     int
	RetryAttempts int
	RetryBackoff  time.Duration
	Provenance    bool
	AnomalyFile   string
	TablesFile    string
	Sources       []SourceEntry

	// MetricsAddr serves Prometheus metrics when set, e.g. ":9090"
	MetricsAddr string

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogOutput string
}

// SourceEntry configures one HTTP source. Empty descriptor fields are taken
// from the built-in descriptor with the same id.
type SourceEntry struct {
	ID                string  `mapstructure:"id" yaml:"id"`
	Name              string  `mapstructure:"name" yaml:"name,omitempty"`
	Property          string  `mapstructure:"property" yaml:"property,omitempty"`
	StatedIn          string  `mapstructure:"stated_in" yaml:"stated_in,omitempty"`
	URLTemplate       string  `mapstructure:"url_template" yaml:"url_template,omitempty"`
	URLPattern        string  `mapstructure:"url_pattern" yaml:"url_pattern,omitempty"`
	Endpoint          string  `mapstructure:"endpoint" yaml:"endpoint"`
	Auth              string  `mapstructure:"auth" yaml:"auth,omitempty"`
	APIKey            string  `mapstructure:"api_key" yaml:"api_key,omitempty"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second,omitempty"`
}

// LoadConfig loads configuration from all sources in order of precedence:
// 1. Command-line flags (handled by cobra)
// 2. Environment variables (FACTMAP_ prefix)
// 3. .env files
// 4. Config file (~/.factmap.yaml or ./.factmap.yaml)
// 5. Defaults
func LoadConfig() (*Config, error) {
	return loadConfig(viper.New(), "")
}

// LoadConfigFile loads configuration with an explicit config file.
func LoadConfigFile(path string) (*Config, error) {
	return loadConfig(viper.New(), path)
}

func loadConfig(v *viper.Viper, configFile string) (*Config, error) {
	loadEnvFiles()

	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.NewConfigError("config", "cannot read "+configFile, err)
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(constants.ConfigFileName)
		// a missing default config file is fine
		_ = v.ReadInConfig()
	}

	config := &Config{
		Verbose:    v.GetBool("verbose"),
		Quiet:      v.GetBool("quiet"),
		NoColor:    v.GetBool("no_color"),
		Format:     v.GetString("format"),
		ConfigFile: v.ConfigFileUsed(),

		StorePath:     v.GetString("store_path"),
		Restricted:    v.GetBool("restricted"),
		Allow:         v.GetStringSlice("allow"),
		AllowBySource: v.GetStringMapStringSlice("allow_by_source"),
		SeedSource:    v.GetString("seed_source"),
		MaxPasses:     v.GetInt("max_passes"),
		RetryAttempts: v.GetInt("retry_attempts"),
		RetryBackoff:  v.GetDuration("retry_backoff"),
		Provenance:    v.GetBool("provenance"),
		AnomalyFile:   v.GetString("anomaly_file"),
		TablesFile:    v.GetString("tables_file"),
		MetricsAddr:   v.GetString("metrics_addr"),

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),
		LogOutput: v.GetString("log_output"),
	}

	if err := v.UnmarshalKey("sources", &config.Sources); err != nil {
		return nil, errors.NewConfigError("sources", "cannot decode source list", err)
	}
	// FACTMAP_<ID>_API_KEY fills keys left out of the config file
	for i := range config.Sources {
		if config.Sources[i].APIKey == "" && config.Sources[i].ID != "" {
			config.Sources[i].APIKey = v.GetString(config.Sources[i].ID + "_api_key")
		}
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("max_passes", constants.MaxPasses)
	v.SetDefault("retry_attempts", constants.MaxRetries)
	v.SetDefault("retry_backoff", constants.RetryBackoff)
	v.SetDefault("log_format", "auto")
	v.SetDefault("log_output", "stderr")
}

// UpdateFromFlags updates config values from parsed command flags.
// This should be called after cobra parses flags to ensure flag
// values take precedence over config file and env vars.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel string) {
	c.Verbose = verbose
	c.Quiet = quiet
	c.NoColor = noColor
	if format != "" {
		c.Format = format
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}

// FactmapOptions converts the configuration into factmap options.
func (c *Config) FactmapOptions() []factmap.Option {
	opts := []factmap.Option{
		factmap.WithRestricted(c.Restricted),
		factmap.WithAllowed(c.Allow...),
		factmap.WithSeedSource(c.SeedSource),
		factmap.WithMaxPasses(c.MaxPasses),
		factmap.WithRetry(c.RetryAttempts, c.RetryBackoff),
		factmap.WithProvenance(c.Provenance),
	}
	for source, patterns := range c.AllowBySource {
		opts = append(opts, factmap.WithSourceAllowed(source, patterns...))
	}
	if c.StorePath != "" {
		opts = append(opts, factmap.WithStorePath(c.StorePath))
	}
	if c.AnomalyFile != "" {
		opts = append(opts, factmap.WithAnomalyFile(c.AnomalyFile))
	}
	if c.TablesFile != "" {
		opts = append(opts, factmap.WithTablesFile(c.TablesFile))
	}
	if len(c.Sources) > 0 {
		cfgs := make([]factmap.SourceConfig, 0, len(c.Sources))
		for _, s := range c.Sources {
			cfgs = append(cfgs, s.SourceConfig())
		}
		opts = append(opts, factmap.WithHTTPSources(cfgs...))
	}
	return opts
}

// SourceConfig converts the entry into a factmap source config.
func (s SourceEntry) SourceConfig() factmap.SourceConfig {
	return factmap.SourceConfig{
		Descriptor: sources.Descriptor{
			SourceID:    s.ID,
			Display:     s.Name,
			IDProperty:  records.PropertyID(s.Property),
			StatedIn:    records.ItemID(s.StatedIn),
			URLTemplate: s.URLTemplate,
			URLPattern:  s.URLPattern,
		},
		Endpoint:          s.Endpoint,
		Auth:              s.Auth,
		APIKey:            s.APIKey,
		RequestsPerSecond: s.RequestsPerSecond,
	}
}

// loadEnvFiles loads environment variables from .env files. Variables
// already set in the environment are kept.
func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}
