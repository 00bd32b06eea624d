package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

type PromptMode string

const (
	PromptModeAPI      PromptMode = "api"
	PromptModeTerminal PromptMode = "terminal"
	PromptModeFixed    PromptMode = "fixed"
)

type Config struct {
	LogLevel    string `mapstructure:"log-level" yaml:"log-level" validate:"oneof=debug info warn error"`
	BindAddress string `mapstructure:"bind-address" yaml:"bind-address" validate:"required"`
	Port        int    `mapstructure:"port" yaml:"port" validate:"gte=0,lte=65535"`

	// UpstreamOrigin is the tile service whose tile requests get spoofed.
	UpstreamOrigin string `mapstructure:"upstream-origin" yaml:"upstream-origin" validate:"required,url"`
	// MirrorOrigin is where spoofed tile requests are sent instead.
	MirrorOrigin   string `mapstructure:"mirror-origin" yaml:"mirror-origin" validate:"required,url"`
	TilesConfigURL string `mapstructure:"tiles-config-url" yaml:"tiles-config-url" validate:"required,url"`
	ConfigPath     string `mapstructure:"config-path" yaml:"config-path" validate:"required,startswith=/"`
	PlacementURL   string `mapstructure:"placement-url" yaml:"placement-url" validate:"required,url"`
	DocumentURL    string `mapstructure:"document-url" yaml:"document-url" validate:"omitempty,url"`
	PaintMarker    string `mapstructure:"paint-marker" yaml:"paint-marker" validate:"required"`
	SpoofOnStart   bool   `mapstructure:"spoof-on-start" yaml:"spoof-on-start"`
	UpstreamProxy  string `mapstructure:"upstream-proxy" yaml:"upstream-proxy" validate:"omitempty,url"`

	StatsDumpInterval time.Duration `mapstructure:"stats-dump-interval" yaml:"stats-dump-interval"`

	Prompt PromptConfig `mapstructure:"prompt" yaml:"prompt"`
	API    APIConfig    `mapstructure:"api" yaml:"api"`
	MITM   MITMConfig   `mapstructure:"mitm" yaml:"mitm"`
	Mirror MirrorConfig `mapstructure:"mirror" yaml:"mirror"`
}

type PromptConfig struct {
	Mode       PromptMode    `mapstructure:"mode" yaml:"mode" validate:"oneof=api terminal fixed"`
	FixedCount int           `mapstructure:"fixed-count" yaml:"fixed-count" validate:"gte=0"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type APIConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	BindAddress string `mapstructure:"bind-address" yaml:"bind-address" validate:"required_if=Enabled true"`
	Port        int    `mapstructure:"port" yaml:"port" validate:"gte=0,lte=65535"`
	Secret      string `mapstructure:"secret" yaml:"secret,omitempty"`
}

type MITMConfig struct {
	// Hostname is a comma separated domain[:port] list, see mitm.NewHostnameFilter.
	Hostname   string `mapstructure:"hostname" yaml:"hostname"`
	P12        string `mapstructure:"p12" yaml:"p12,omitempty"`
	Passphrase string `mapstructure:"passphrase" yaml:"passphrase,omitempty"`
}

type MirrorConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	BindAddress    string        `mapstructure:"bind-address" yaml:"bind-address" validate:"required_if=Enabled true"`
	Port           int           `mapstructure:"port" yaml:"port" validate:"gte=0,lte=65535"`
	DataDir        string        `mapstructure:"data-dir" yaml:"data-dir" validate:"required_if=Enabled true"`
	TilesFile      string        `mapstructure:"tiles-file" yaml:"tiles-file"`
	UpdateInterval time.Duration `mapstructure:"update-interval" yaml:"update-interval"`
	CacheTTL       time.Duration `mapstructure:"cache-ttl" yaml:"cache-ttl"`
}

// SetDefaults registers the default value of every key on the global viper.
func SetDefaults() {
	viper.SetDefault("log-level", "info")
	viper.SetDefault("bind-address", "127.0.0.1")
	viper.SetDefault("port", 8080)
	viper.SetDefault("upstream-origin", "https://backend.wplace.live")
	viper.SetDefault("mirror-origin", "http://localhost:8000")
	viper.SetDefault("tiles-config-url", "http://localhost:8000/config.json")
	viper.SetDefault("config-path", "/config.json")
	viper.SetDefault("placement-url", "http://127.0.0.1:8000/colors")
	viper.SetDefault("document-url", "https://wplace.live/")
	viper.SetDefault("paint-marker", "/pixel/")
	viper.SetDefault("stats-dump-interval", "5s")
	viper.SetDefault("prompt.mode", string(PromptModeAPI))
	viper.SetDefault("prompt.timeout", "2m")
	viper.SetDefault("api.enabled", true)
	viper.SetDefault("api.bind-address", "127.0.0.1")
	viper.SetDefault("api.port", 9090)
	viper.SetDefault("mitm.hostname", "backend.wplace.live")
	viper.SetDefault("mirror.enabled", false)
	viper.SetDefault("mirror.bind-address", "0.0.0.0")
	viper.SetDefault("mirror.port", 8000)
	viper.SetDefault("mirror.data-dir", ".")
	viper.SetDefault("mirror.tiles-file", "config.json")
	viper.SetDefault("mirror.update-interval", "60s")
	viper.SetDefault("mirror.cache-ttl", "30s")
}

func BuildConfigFromViper() (*Config, error) {
	cfg := &Config{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := viper.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("viper.Unmarshal: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if _, err := url.Parse(cfg.UpstreamOrigin); err != nil {
		return nil, fmt.Errorf("upstream-origin: %w", err)
	}
	return cfg, nil
}

func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.BindAddress, strconv.Itoa(c.Port))
}

func (c *Config) APIListenAddr() string {
	return net.JoinHostPort(c.API.BindAddress, strconv.Itoa(c.API.Port))
}

func (c *Config) MirrorListenAddr() string {
	return net.JoinHostPort(c.Mirror.BindAddress, strconv.Itoa(c.Mirror.Port))
}

// UpstreamHost returns the hostname of UpstreamOrigin.
func (c *Config) UpstreamHost() string {
	u, err := url.Parse(c.UpstreamOrigin)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("Log Level", c.LogLevel),
		slog.String("Listen Address", c.ListenAddr()),
		slog.String("Upstream Origin", c.UpstreamOrigin),
		slog.String("Mirror Origin", c.MirrorOrigin),
		slog.String("Tiles Config URL", c.TilesConfigURL),
		slog.String("Placement URL", c.PlacementURL),
		slog.String("Paint Marker", c.PaintMarker),
		slog.String("Prompt Mode", string(c.Prompt.Mode)),
		slog.Bool("API", c.API.Enabled),
		slog.Bool("Mirror", c.Mirror.Enabled),
		slog.String("MitM Hostname", c.MITM.Hostname),
	)
}
