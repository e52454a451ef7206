package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarorichard/animebinge/internal/session"
)

const testPath = "/cfg/animebinge/config.json"

func TestLoadDefaultsWhenMissing(t *testing.T) {
	t.Parallel()

	c, err := Load(afero.NewMemMapFs(), testPath)
	require.NoError(t, err)

	w := c.Watch()
	assert.Equal(t, session.BackendSQLite, w.Store)
	assert.Equal(t, session.DefaultPath(session.BackendSQLite), w.StatePath)
	assert.Equal(t, 2*time.Second, w.EndDelay)
	assert.Equal(t, 2*time.Second, w.TransitionDelay)
	assert.Equal(t, 30*time.Second, w.InflightTimeout)
	assert.Equal(t, "127.0.0.1:7878", w.ControlAddr)

	d := c.Download()
	assert.Equal(t, "Game", d.LastGenre)
	assert.Equal(t, 5, d.LastCount)
	assert.Equal(t, 2020, d.MinYear)
	assert.Equal(t, "best", d.Quality)
	assert.Equal(t, "https://9animetv.to", c.BaseURL())
}

func TestLoadReadsFile(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, testPath, []byte(`{
		"site": {"base_url": "https://mirror.example/"},
		"watch": {"store": "file", "end_delay": "5s", "allowed_origins": ["https://rapid-cloud.co"]},
		"download": {"output_dir": "/videos"}
	}`), 0o600))

	c, err := Load(fs, testPath)
	require.NoError(t, err)

	w := c.Watch()
	assert.Equal(t, session.BackendFile, w.Store)
	assert.Equal(t, session.DefaultPath(session.BackendFile), w.StatePath)
	assert.Equal(t, 5*time.Second, w.EndDelay)
	assert.Equal(t, []string{"https://rapid-cloud.co"}, w.AllowedOrigins)
	assert.Equal(t, "/videos", c.Download().OutputDir)
	assert.Equal(t, "https://mirror.example", c.BaseURL())
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, testPath, []byte(`{"watch": `), 0o600))

	_, err := Load(fs, testPath)
	assert.Error(t, err)
}

func TestRememberDownloadPersists(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	c, err := Load(fs, testPath)
	require.NoError(t, err)
	require.NoError(t, c.RememberDownload("Isekai", 12))

	reloaded, err := Load(fs, testPath)
	require.NoError(t, err)
	assert.Equal(t, "Isekai", reloaded.Download().LastGenre)
	assert.Equal(t, 12, reloaded.Download().LastCount)
	assert.Equal(t, 2*time.Second, reloaded.Watch().EndDelay)
}

func TestBindFlagOverridesFile(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, testPath, []byte(`{"watch": {"headless": false}}`), 0o600))
	c, err := Load(fs, testPath)
	require.NoError(t, err)

	flags := pflag.NewFlagSet("watch", pflag.ContinueOnError)
	flags.Bool("headless", false, "")
	require.NoError(t, c.BindFlag(KeyWatchHeadless, flags.Lookup("headless")))
	assert.False(t, c.Watch().Headless)

	require.NoError(t, flags.Parse([]string{"--headless"}))
	assert.True(t, c.Watch().Headless)

	assert.Error(t, c.BindFlag(KeyWatchFullscreen, flags.Lookup("missing")))
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("ANIMEBINGE_WATCH_CONTROL_ADDR", "127.0.0.1:9999")

	c, err := Load(afero.NewMemMapFs(), testPath)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", c.Watch().ControlAddr)
}

func TestKnown(t *testing.T) {
	t.Parallel()
	assert.True(t, Known(KeyDownloadQuality))
	assert.False(t, Known("download.colour"))
}
