package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsStreamURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want bool
	}{
		{"https://cdn.example/hls/master.m3u8", true},
		{"https://cdn.example/hls/index.m3u8?token=abc", true},
		{"https://cdn.example/video/ep1.mp4", true},
		{"https://cdn.example/hls/seg-12-v1.mp4", false},
		{"https://cdn.example/hls/seg-3.ts", false},
		{"https://cdn.example/hls/chunk42.ts", false},
		{"https://cdn.example/player.js", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsStreamURL(tt.url), tt.url)
	}
}

func TestPickEmbed(t *testing.T) {
	t.Parallel()

	sources := []string{
		"https://ads.example/frame",
		"https://rapid-cloud.co/embed-6/abc?k=1",
		"https://rapid-cloud.co/embed-6/def",
	}
	assert.Equal(t, "https://rapid-cloud.co/embed-6/abc?k=1", PickEmbed(sources, EmbedHost))
	assert.Empty(t, PickEmbed(sources[:1], EmbedHost))
	assert.Empty(t, PickEmbed(nil, EmbedHost))
}

func TestIsWrapperSite(t *testing.T) {
	t.Parallel()

	assert.True(t, IsWrapperSite("https://anify.to/watch/9952/star-wars-visions/2"))
	assert.False(t, IsWrapperSite("https://9animetv.to/watch/spy-x-family-17977?ep=89506"))
	assert.False(t, IsWrapperSite("::not a url"))
}

func TestPreferDirect(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://cdn/a.mp4", preferDirect("https://cdn/a.mp4", "https://cdn/b.m3u8"))
	assert.Equal(t, "https://cdn/b.m3u8", preferDirect("blob:https://site/1234", "https://cdn/b.m3u8"))
	assert.Equal(t, "https://cdn/b.m3u8", preferDirect("", "https://cdn/b.m3u8"))
	assert.Empty(t, preferDirect("", ""))
}

func TestSnapshotFromMap(t *testing.T) {
	t.Parallel()

	s := snapshotFromMap(map[string]interface{}{
		"current":  float64(1421.5),
		"duration": 1422,
		"paused":   true,
		"ended":    false,
		"src":      "blob:https://rapid-cloud.co/x",
	})
	assert.InDelta(t, 1421.5, s.Current, 1e-9)
	assert.InDelta(t, 1422.0, s.Duration, 1e-9)
	assert.True(t, s.Paused)
	assert.False(t, s.Ended)
	assert.True(t, s.NearEnd())
	assert.Equal(t, "blob:https://rapid-cloud.co/x", s.Src)
}
