package config

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/clarity-bi/clarity/engine"
	"github.com/clarity-bi/clarity/insight"
	"github.com/clarity-bi/clarity/logger"
)

// EnvPrefix prefixes every environment override, e.g. CLARITY_HTTP_PORT.
const EnvPrefix = "CLARITY"

// DefaultSearchPaths are the directories searched for config.toml.
var DefaultSearchPaths = []string{".", "./config", "/etc/clarity"}

// Config holds all application configuration.
type Config struct {
	App    AppConfig
	HTTP   HTTPConfig
	Log    LogConfig
	Engine EngineConfig
	Data   DataConfig
}

// AppConfig holds application identity.
type AppConfig struct {
	Name string
	Env  string
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Host             string
	Port             string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	MaxUploadSize    int64
	CORSAllowOrigins []string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// EngineConfig tunes analytics and insight defaults.
type EngineConfig struct {
	WindowMonths         int     // trailing date window applied after ingest, 0 = none
	TrendEpsilon         float64 // loss-ratio slope treated as stable
	AnomalyZ             float64
	ForecastPeriods      int
	MakeLimit            int
	MakeCorrelationLimit int
	RecentLimit          int
	StatusColors         map[string]string
	DefaultStatusColor   string
}

// DataConfig controls dataset loading.
type DataConfig struct {
	AutoloadPath string // workbook ingested at startup, optional
	SampleSize   int    // rows sampled for type inference, 0 = all
}

// Load reads config.toml from paths (DefaultSearchPaths when none are given)
// and applies environment overrides.
// Priority (highest to lowest):
// 1. Environment variables with CLARITY_ prefix (e.g., CLARITY_HTTP_PORT)
// 2. config.toml
// 3. Built-in defaults
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	if len(paths) == 0 {
		paths = DefaultSearchPaths
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// zero is a valid value for both
	v.SetDefault("engine.trend_epsilon", insight.DefaultTrendEpsilon)
	v.SetDefault("engine.window_months", 6)

	colors, err := parseStatusColors(v.GetStringSlice("engine.status_colors"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		HTTP: HTTPConfig{
			Host:             v.GetString("http.host"),
			Port:             v.GetString("http.port"),
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			MaxUploadSize:    v.GetInt64("http.max_upload_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Engine: EngineConfig{
			WindowMonths:         v.GetInt("engine.window_months"),
			TrendEpsilon:         v.GetFloat64("engine.trend_epsilon"),
			AnomalyZ:             v.GetFloat64("engine.anomaly_z"),
			ForecastPeriods:      v.GetInt("engine.forecast_periods"),
			MakeLimit:            v.GetInt("engine.make_limit"),
			MakeCorrelationLimit: v.GetInt("engine.make_correlation_limit"),
			RecentLimit:          v.GetInt("engine.recent_limit"),
			StatusColors:         colors,
			DefaultStatusColor:   v.GetString("engine.default_status_color"),
		},
		Data: DataConfig{
			AutoloadPath: v.GetString("data.autoload_path"),
			SampleSize:   v.GetInt("data.sample_size"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "clarity"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.HTTP.Port == "" {
		cfg.HTTP.Port = "8000"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 30 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxUploadSize == 0 {
		cfg.HTTP.MaxUploadSize = 50 << 20
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Engine.AnomalyZ == 0 {
		cfg.Engine.AnomalyZ = insight.DefaultAnomalyZ
	}
	if cfg.Engine.ForecastPeriods == 0 {
		cfg.Engine.ForecastPeriods = insight.DefaultForecastPeriods
	}
	if cfg.Engine.MakeLimit == 0 {
		cfg.Engine.MakeLimit = 20
	}
	if cfg.Engine.MakeCorrelationLimit == 0 {
		cfg.Engine.MakeCorrelationLimit = 15
	}
	if cfg.Engine.RecentLimit == 0 {
		cfg.Engine.RecentLimit = engine.DefaultRecentLimit
	}
	if cfg.Engine.DefaultStatusColor == "" {
		cfg.Engine.DefaultStatusColor = engine.DefaultStatusColor
	}
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// validate performs validation on the configuration
func (c *Config) validate() error {
	port, err := strconv.Atoi(c.HTTP.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("http.port must be a port number, got %q", c.HTTP.Port)
	}
	if c.HTTP.MaxUploadSize < 0 {
		return fmt.Errorf("http.max_upload_size cannot be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	if c.Engine.WindowMonths < 0 {
		return fmt.Errorf("engine.window_months cannot be negative")
	}
	if c.Engine.TrendEpsilon < 0 {
		return fmt.Errorf("engine.trend_epsilon cannot be negative")
	}
	if c.Engine.AnomalyZ < 0 {
		return fmt.Errorf("engine.anomaly_z cannot be negative")
	}
	if c.Engine.ForecastPeriods < 1 || c.Engine.ForecastPeriods > 24 {
		return fmt.Errorf("engine.forecast_periods must be between 1 and 24, got %d", c.Engine.ForecastPeriods)
	}
	if c.Engine.MakeLimit < 0 || c.Engine.MakeCorrelationLimit < 0 || c.Engine.RecentLimit < 0 {
		return fmt.Errorf("engine limits cannot be negative")
	}
	if !hexColor.MatchString(c.Engine.DefaultStatusColor) {
		return fmt.Errorf("engine.default_status_color must be #rrggbb, got %q", c.Engine.DefaultStatusColor)
	}
	if c.Data.SampleSize < 0 {
		return fmt.Errorf("data.sample_size cannot be negative")
	}
	return nil
}

// parseStatusColors reads "Status=#rrggbb" entries. Viper lower-cases map
// keys, so colors are configured as a list to keep status names intact.
func parseStatusColors(entries []string) (map[string]string, error) {
	colors := make(map[string]string, len(entries))
	for _, e := range entries {
		status, color, ok := strings.Cut(e, "=")
		status, color = strings.TrimSpace(status), strings.TrimSpace(color)
		if !ok || status == "" || !hexColor.MatchString(color) {
			return nil, fmt.Errorf("engine.status_colors entry %q must look like Status=#rrggbb", e)
		}
		colors[status] = color
	}
	return colors, nil
}

// Addr returns the listen address.
func (h HTTPConfig) Addr() string {
	return h.Host + ":" + h.Port
}

// Logger converts the log section for logger.New.
func (l LogConfig) Logger() logger.Config {
	return logger.Config{Level: l.Level, Format: l.Format, Output: l.Output}
}

// Options converts the engine section into engine options.
func (e EngineConfig) Options() []engine.Option {
	return []engine.Option{
		engine.WithStatusColors(e.StatusColors),
		engine.WithDefaultStatusColor(e.DefaultStatusColor),
		engine.WithMakeLimit(e.MakeLimit),
		engine.WithMakeCorrelationLimit(e.MakeCorrelationLimit),
	}
}
