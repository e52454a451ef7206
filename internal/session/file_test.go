package session

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarorichard/animebinge/internal/models"
)

func TestFileStoreLoadMissing(t *testing.T) {
	t.Parallel()

	s := NewFileStore(afero.NewMemMapFs(), "/data/state.json")
	assert.Equal(t, models.DefaultPlaybackState(), s.Load(context.Background()))
}

func TestFileStoreSaveLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fs := afero.NewMemMapFs()
	s := NewFileStore(fs, "/data/state.json")

	state := models.DefaultPlaybackState()
	state.AutoJumpEnabled = true
	state.SelectedGenres = []string{"Action"}
	state.PendingEpisodeQueue = []int{5, 2}
	state.TargetEpisodesInSeries = 3
	state.EpisodesWatchedInSeries = 1
	require.NoError(t, s.Save(ctx, state))

	// a fresh store on the same fs sees the write, like a new page load
	reloaded := NewFileStore(fs, "/data/state.json").Load(ctx)
	assert.Equal(t, state, reloaded)

	entries, err := afero.ReadDir(fs, "/data")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must be renamed away")
}

func TestFileStoreCorruptDocument(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/state.json", []byte("not json"), 0o600))

	s := NewFileStore(fs, "/data/state.json")
	assert.Equal(t, models.DefaultPlaybackState(), s.Load(ctx))

	state := models.DefaultPlaybackState()
	state.Autoplay = false
	require.NoError(t, s.Save(ctx, state))
	assert.False(t, s.Load(ctx).Autoplay)
}

func TestFileStoreKeepsOtherNamespaces(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/state.json", []byte(`{"other":{"x":1}}`), 0o600))

	s := NewFileStore(fs, "/state.json")
	require.NoError(t, s.Save(ctx, models.DefaultPlaybackState()))

	data, err := afero.ReadFile(fs, "/state.json")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"other"`)
	assert.Contains(t, string(data), `"playerState"`)
}

func TestFileStoreReset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewFileStore(afero.NewMemMapFs(), "/state.json")
	require.NoError(t, s.Reset(ctx), "reset without a file is fine")

	state := models.DefaultPlaybackState()
	state.LoopAtEnd = false
	require.NoError(t, s.Save(ctx, state))
	require.NoError(t, s.Reset(ctx))
	assert.True(t, s.Load(ctx).LoopAtEnd)
}

func TestFileStoreClosed(t *testing.T) {
	t.Parallel()

	s := NewFileStore(afero.NewMemMapFs(), "/state.json")
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Save(context.Background(), models.DefaultPlaybackState()), ErrStoreClosed)
}

func TestOpenFileBackend(t *testing.T) {
	t.Parallel()

	s, err := Open(Options{Backend: BackendFile, Path: "/x/state.json", Fs: afero.NewMemMapFs()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = Open(Options{Backend: "redis"})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}
