// Package config loads canvasgraph settings from a TOML file.
//
// Every field has a default, so an empty or missing file is valid. Example:
//
//	[layout]
//	direction = "LR"
//	auto_layout = true
//
//	[placement]
//	spacing_x = 400
//	spacing_y = 30
//
//	[cache]
//	backend = "redis"
//
//	[redis]
//	addr = "localhost:6379"
//
//	[server]
//	addr = ":8080"
//	transport = "redis"
//	flush_interval = "30s"
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/matzehuels/canvasgraph/pkg/canvas"
	cgerrors "github.com/matzehuels/canvasgraph/pkg/errors"
	"github.com/matzehuels/canvasgraph/pkg/layout"
	"github.com/matzehuels/canvasgraph/pkg/placement"
)

// AppName names the configuration, cache and data directories.
const AppName = "canvasgraph"

// Backend names.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
)

// Config is the root of the configuration file.
type Config struct {
	Layout    LayoutConfig    `toml:"layout"`
	Placement PlacementConfig `toml:"placement"`
	Cache     CacheConfig     `toml:"cache"`
	Store     StoreConfig     `toml:"store"`
	Redis     RedisConfig     `toml:"redis"`
	Mongo     MongoConfig     `toml:"mongo"`
	Server    ServerConfig    `toml:"server"`
}

type LayoutConfig struct {
	Direction  string  `toml:"direction" validate:"oneof=LR TB"`
	NodeSep    float64 `toml:"node_sep" validate:"gte=0"`
	RankSep    float64 `toml:"rank_sep" validate:"gte=0"`
	MarginX    float64 `toml:"margin_x"`
	MarginY    float64 `toml:"margin_y"`
	Iterations int     `toml:"iterations" validate:"gte=1,lte=1000"`
	AutoLayout bool    `toml:"auto_layout"`
}

type PlacementConfig struct {
	SpacingX      float64 `toml:"spacing_x" validate:"gt=0"`
	SpacingY      float64 `toml:"spacing_y" validate:"gte=0"`
	InitialX      float64 `toml:"initial_x"`
	InitialY      float64 `toml:"initial_y"`
	DefaultWidth  float64 `toml:"default_width" validate:"gt=0"`
	DefaultHeight float64 `toml:"default_height" validate:"gt=0"`
}

// CacheConfig selects the layout cache. An empty Dir uses the XDG cache
// directory.
type CacheConfig struct {
	Backend string `toml:"backend" validate:"oneof=none memory file redis"`
	Dir     string `toml:"dir"`
	Prefix  string `toml:"prefix"`
}

// StoreConfig selects where canvases are persisted. An empty Dir uses the
// XDG data directory.
type StoreConfig struct {
	Backend string `toml:"backend" validate:"oneof=memory file mongo"`
	Dir     string `toml:"dir"`
}

type RedisConfig struct {
	Addr     string `toml:"addr" validate:"required_if=Enabled true"`
	Password string `toml:"password"`
	DB       int    `toml:"db" validate:"gte=0"`

	// Enabled is derived from the backends that use Redis.
	Enabled bool `toml:"-"`
}

type MongoConfig struct {
	URI      string `toml:"uri" validate:"required_if=Enabled true"`
	Database string `toml:"database" validate:"required_if=Enabled true"`

	Enabled bool `toml:"-"`
}

type ServerConfig struct {
	Addr            string   `toml:"addr" validate:"required"`
	Transport       string   `toml:"transport" validate:"oneof=memory redis"`
	ReadTimeout     Duration `toml:"read_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
	FlushInterval   Duration `toml:"flush_interval"`
}

// Duration decodes TOML strings such as "30s".
type Duration struct{ time.Duration }

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// Default returns the built-in settings.
func Default() Config {
	lo := layout.DefaultOptions()
	sp := placement.DefaultSpacing()
	return Config{
		Layout: LayoutConfig{
			Direction:  string(lo.Direction),
			NodeSep:    lo.NodeSep,
			RankSep:    lo.RankSep,
			MarginX:    lo.MarginX,
			MarginY:    lo.MarginY,
			Iterations: lo.Iterations,
			AutoLayout: true,
		},
		Placement: PlacementConfig{
			SpacingX:      sp.X,
			SpacingY:      sp.Y,
			InitialX:      placement.InitialX,
			InitialY:      placement.InitialY,
			DefaultWidth:  canvas.DefaultWidth,
			DefaultHeight: canvas.DefaultHeight,
		},
		Cache: CacheConfig{Backend: BackendFile, Prefix: AppName + ":"},
		Store: StoreConfig{Backend: BackendFile},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Mongo: MongoConfig{URI: "mongodb://localhost:27017", Database: AppName},
		Server: ServerConfig{
			Addr:            ":8080",
			Transport:       BackendMemory,
			ReadTimeout:     Duration{10 * time.Second},
			ShutdownTimeout: Duration{5 * time.Second},
			FlushInterval:   Duration{30 * time.Second},
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	md, err := toml.DecodeFile(path, &cfg)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
		return cfg, cfg.Validate()
	}
	if err != nil {
		return Config{}, cgerrors.Wrap(cgerrors.ErrCodeInvalidInput, err, "parse %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, cgerrors.New(cgerrors.ErrCodeInvalidInput, "unknown config key %q in %s", undecoded[0].String(), path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and backend names.
func (c *Config) Validate() error {
	c.Redis.Enabled = c.Cache.Backend == BackendRedis || c.Server.Transport == BackendRedis
	c.Mongo.Enabled = c.Store.Backend == BackendMongo
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return cgerrors.Wrap(cgerrors.ErrCodeInvalidInput, err, "invalid config: %s failed %q", fe.Namespace(), fe.Tag())
		}
		return cgerrors.Wrap(cgerrors.ErrCodeInvalidInput, err, "invalid config")
	}
	return nil
}

// LayoutOptions converts the layout and placement sections.
func (c Config) LayoutOptions() layout.Options {
	opts := layout.DefaultOptions()
	opts.Direction = canvas.Direction(c.Layout.Direction)
	opts.NodeSep = c.Layout.NodeSep
	opts.RankSep = c.Layout.RankSep
	opts.MarginX = c.Layout.MarginX
	opts.MarginY = c.Layout.MarginY
	opts.Iterations = c.Layout.Iterations
	opts.DefaultSize = c.DefaultSize()
	return opts
}

// PlacementOptions converts the placement section.
func (c Config) PlacementOptions() []placement.Option {
	return []placement.Option{
		placement.WithSpacing(c.Spacing()),
		placement.WithDefaultSize(c.DefaultSize()),
		placement.WithInitial(canvas.Position{X: c.Placement.InitialX, Y: c.Placement.InitialY}),
	}
}

func (c Config) Spacing() placement.Spacing {
	return placement.Spacing{X: c.Placement.SpacingX, Y: c.Placement.SpacingY}
}

func (c Config) DefaultSize() canvas.Size {
	return canvas.Size{Width: c.Placement.DefaultWidth, Height: c.Placement.DefaultHeight}
}

// CacheDir returns the layout cache directory: Cache.Dir if set, else
// $XDG_CACHE_HOME/canvasgraph or ~/.cache/canvasgraph.
func (c Config) CacheDir() (string, error) {
	if c.Cache.Dir != "" {
		return c.Cache.Dir, nil
	}
	return xdgDir("XDG_CACHE_HOME", ".cache")
}

// StoreDir returns the canvas directory: Store.Dir if set, else
// $XDG_DATA_HOME/canvasgraph/canvases or ~/.local/share/canvasgraph/canvases.
func (c Config) StoreDir() (string, error) {
	if c.Store.Dir != "" {
		return c.Store.Dir, nil
	}
	dir, err := xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "canvases"), nil
}

// DefaultPath returns $XDG_CONFIG_HOME/canvasgraph/config.toml or
// ~/.config/canvasgraph/config.toml.
func DefaultPath() (string, error) {
	dir, err := xdgDir("XDG_CONFIG_HOME", ".config")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

func xdgDir(env, fallback string) (string, error) {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, fallback, AppName), nil
}
