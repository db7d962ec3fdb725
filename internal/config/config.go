package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment override, e.g. TRAFFIC_API_BASE_URL.
const EnvPrefix = "TRAFFIC"

// Config holds the full dashboard configuration.
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Output  OutputConfig  `mapstructure:"output"`
	Watch   WatchConfig   `mapstructure:"watch"`
	Map     MapConfig     `mapstructure:"map"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// APIConfig points at the prediction backend.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type OutputConfig struct {
	HTML string `mapstructure:"html"`
	Plan string `mapstructure:"plan"`
}

type WatchConfig struct {
	Interval int `mapstructure:"interval"` // seconds
}

// MapConfig carries the map widget constants. Padding and MaxZoom are applied
// whenever the view is fitted to the rendered markers.
type MapConfig struct {
	Padding     int     `mapstructure:"padding"`
	MaxZoom     int     `mapstructure:"max_zoom"`
	CenterLat   float64 `mapstructure:"center_lat"`
	CenterLng   float64 `mapstructure:"center_lng"`
	Zoom        int     `mapstructure:"zoom"`
	TileURL     string  `mapstructure:"tile_url"`
	Attribution string  `mapstructure:"attribution"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// SetDefaults registers every key with its default so env overrides resolve
// during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.timeout", 15*time.Second)

	v.SetDefault("output.html", "traffic.html")
	v.SetDefault("output.plan", "predictions.json")

	v.SetDefault("watch.interval", 300)

	v.SetDefault("map.padding", 50)
	v.SetDefault("map.max_zoom", 15)
	v.SetDefault("map.center_lat", 40.7128)
	v.SetDefault("map.center_lng", -74.0060)
	v.SetDefault("map.zoom", 13)
	v.SetDefault("map.tile_url", "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png")
	v.SetDefault("map.attribution", "&copy; OpenStreetMap contributors")

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "traffic-dashboard")
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

// Load resolves defaults, the optional config file at path, TRAFFIC_* env
// vars and whatever flags the caller already bound on v.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the dashboard cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("config: api.base_url must not be empty")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("config: api.timeout must be positive, got %s", c.API.Timeout)
	}
	if c.Map.Padding < 0 {
		return fmt.Errorf("config: map.padding must not be negative, got %d", c.Map.Padding)
	}
	if c.Map.MaxZoom < 0 || c.Map.MaxZoom > 22 {
		return fmt.Errorf("config: map.max_zoom must be within 0..22, got %d", c.Map.MaxZoom)
	}
	return nil
}
