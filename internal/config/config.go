// Package config loads and persists user settings with viper. Values come
// from defaults, then config.json, then ANIMEBINGE_* environment variables,
// then bound command line flags.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/alvarorichard/animebinge/internal/session"
)

// EnvPrefix is prepended to every environment override
const EnvPrefix = "ANIMEBINGE"

// Keys
const (
	KeySiteBaseURL = "site.base_url"

	KeyWatchStore           = "watch.store"
	KeyWatchStatePath       = "watch.state_path"
	KeyWatchHeadless        = "watch.headless"
	KeyWatchFullscreen      = "watch.fullscreen"
	KeyWatchEndDelay        = "watch.end_delay"
	KeyWatchTransitionDelay = "watch.transition_delay"
	KeyWatchInflightTimeout = "watch.inflight_timeout"
	KeyWatchControlAddr     = "watch.control_addr"
	KeyWatchDiscord         = "watch.discord"
	KeyWatchAllowedOrigins  = "watch.allowed_origins"

	KeyDownloadOutputDir = "download.output_dir"
	KeyDownloadLastGenre = "download.last_genre"
	KeyDownloadLastCount = "download.last_count"
	KeyDownloadMinYear   = "download.min_year"
	KeyDownloadQuality   = "download.quality"
)

// EnvKeyReplacer maps watch.end_delay to ANIMEBINGE_WATCH_END_DELAY
var EnvKeyReplacer = strings.NewReplacer(".", "_")

// Defaults is the factory configuration
func Defaults() map[string]interface{} {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return map[string]interface{}{
		KeySiteBaseURL: "https://9animetv.to",

		KeyWatchStore:           session.BackendSQLite,
		KeyWatchStatePath:       "",
		KeyWatchHeadless:        false,
		KeyWatchFullscreen:      false,
		KeyWatchEndDelay:        2 * time.Second,
		KeyWatchTransitionDelay: 2 * time.Second,
		KeyWatchInflightTimeout: 30 * time.Second,
		KeyWatchControlAddr:     "127.0.0.1:7878",
		KeyWatchDiscord:         false,
		KeyWatchAllowedOrigins:  []string{},

		KeyDownloadOutputDir: filepath.Join(cwd, "anime-downloads"),
		KeyDownloadLastGenre: "Game",
		KeyDownloadLastCount: 5,
		KeyDownloadMinYear:   2020,
		KeyDownloadQuality:   "best",
	}
}

// Config wraps a viper instance bound to one config file
type Config struct {
	v    *viper.Viper
	fs   afero.Fs
	path string
}

// Watch holds the settings of the watch command
type Watch struct {
	Store           string
	StatePath       string
	Headless        bool
	Fullscreen      bool
	EndDelay        time.Duration
	TransitionDelay time.Duration
	InflightTimeout time.Duration
	ControlAddr     string
	Discord         bool
	AllowedOrigins  []string
}

// Download holds the settings of the download commands
type Download struct {
	OutputDir string
	LastGenre string
	LastCount int
	MinYear   int
	Quality   string
}

// DefaultPath is <user config dir>/animebinge/config.json
func DefaultPath() string {
	return filepath.Join(session.DefaultDir(), "config.json")
}

// Load reads path from fs. A missing file is not an error; a malformed one is.
func Load(fs afero.Fs, path string) (*Config, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if path == "" {
		path = DefaultPath()
	}

	v := viper.New()
	v.SetFs(fs)
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(EnvKeyReplacer)
	v.AutomaticEnv()

	v.SetTypeByDefaultValue(true)
	for k, val := range Defaults() {
		v.SetDefault(k, val)
	}

	c := &Config{v: v, fs: fs, path: path}
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat config file")
	}
	if !exists {
		return c, nil
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}
	return c, nil
}

// Path returns the backing file
func (c *Config) Path() string { return c.path }

// BindFlag lets a command line flag override key when it is set
func (c *Config) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return errors.Errorf("no flag to bind for %s", key)
	}
	return c.v.BindPFlag(key, flag)
}

// Get returns the effective value of key
func (c *Config) Get(key string) interface{} { return c.v.Get(key) }

// Set overrides key for this process; call Save to persist it
func (c *Config) Set(key string, value interface{}) { c.v.Set(key, value) }

// Known reports whether key is a recognised setting
func Known(key string) bool {
	_, ok := Defaults()[key]
	return ok
}

// Save writes the effective configuration back to the config file
func (c *Config) Save() error {
	if err := c.fs.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	return errors.Wrap(c.v.WriteConfigAs(c.path), "failed to write config")
}

// BaseURL is the site root used for genre listings
func (c *Config) BaseURL() string {
	return strings.TrimRight(c.v.GetString(KeySiteBaseURL), "/")
}

// Watch returns the watch settings
func (c *Config) Watch() Watch {
	w := Watch{
		Store:           c.v.GetString(KeyWatchStore),
		StatePath:       c.v.GetString(KeyWatchStatePath),
		Headless:        c.v.GetBool(KeyWatchHeadless),
		Fullscreen:      c.v.GetBool(KeyWatchFullscreen),
		EndDelay:        c.v.GetDuration(KeyWatchEndDelay),
		TransitionDelay: c.v.GetDuration(KeyWatchTransitionDelay),
		InflightTimeout: c.v.GetDuration(KeyWatchInflightTimeout),
		ControlAddr:     c.v.GetString(KeyWatchControlAddr),
		Discord:         c.v.GetBool(KeyWatchDiscord),
		AllowedOrigins:  c.v.GetStringSlice(KeyWatchAllowedOrigins),
	}
	if w.StatePath == "" {
		w.StatePath = session.DefaultPath(w.Store)
	}
	return w
}

// Download returns the download settings
func (c *Config) Download() Download {
	return Download{
		OutputDir: c.v.GetString(KeyDownloadOutputDir),
		LastGenre: c.v.GetString(KeyDownloadLastGenre),
		LastCount: c.v.GetInt(KeyDownloadLastCount),
		MinYear:   c.v.GetInt(KeyDownloadMinYear),
		Quality:   c.v.GetString(KeyDownloadQuality),
	}
}

// RememberDownload stores the last random download choice
func (c *Config) RememberDownload(genre string, count int) error {
	c.v.Set(KeyDownloadLastGenre, genre)
	c.v.Set(KeyDownloadLastCount, count)
	return c.Save()
}
