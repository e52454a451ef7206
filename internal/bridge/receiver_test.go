package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelope(t *testing.T, origin string, m Message) Envelope {
	t.Helper()
	data, err := Encode(m)
	require.NoError(t, err)
	return Envelope{Origin: origin, Data: data}
}

func TestReceiverDeduplicatesEnded(t *testing.T) {
	t.Parallel()

	r := NewReceiver(ReceiverConfig{}, func() bool { return true })

	first := r.Handle(envelope(t, "https://rapid-cloud.co", Ended{}))
	assert.True(t, first.Advance)
	assert.Equal(t, DefaultEndDelay, first.Delay)

	second := r.Handle(envelope(t, "https://rapid-cloud.co", Ended{}))
	assert.False(t, second.Advance)
	assert.True(t, r.EndedSeen())
}

func TestReceiverAutoplayOff(t *testing.T) {
	t.Parallel()

	autoplay := false
	r := NewReceiver(ReceiverConfig{EndDelay: time.Second}, func() bool { return autoplay })
	out := r.Handle(envelope(t, "", Ended{}))
	assert.False(t, out.Advance)
	assert.Equal(t, Ended{}, out.Message)
}

func TestReceiverOriginAllowList(t *testing.T) {
	t.Parallel()

	r := NewReceiver(ReceiverConfig{AllowedOrigins: []string{"https://rapid-cloud.co/"}}, func() bool { return true })

	out := r.Handle(envelope(t, "https://evil.example", Ended{}))
	assert.Nil(t, out.Message)
	assert.False(t, r.EndedSeen())

	out = r.Handle(envelope(t, "https://evil.example", URL{URL: "x"}))
	assert.Nil(t, out.Message)
	assert.Empty(t, r.LastURL())

	// STATUS carries no authority and is accepted from anywhere
	out = r.Handle(envelope(t, "https://evil.example", Status{Current: 1}))
	assert.NotNil(t, out.Message)

	out = r.Handle(envelope(t, "https://RAPID-CLOUD.co/embed-2/e-1/abc?k=1", Ended{}))
	assert.True(t, out.Advance)

	out = r.Handle(envelope(t, "https://rapid-cloud.co", URL{URL: "https://cdn/x.m3u8"}))
	require.NotNil(t, out.Message)
	assert.Equal(t, "https://cdn/x.m3u8", r.LastURL())
}

func TestReceiverDropsUnknown(t *testing.T) {
	t.Parallel()

	r := NewReceiver(ReceiverConfig{}, func() bool { return true })
	out := r.Handle(Envelope{Origin: "https://x", Data: []byte(`{"type":"VIDEO_ENDED"}`)})
	assert.Nil(t, out.Message)
	assert.False(t, out.Advance)

	out = r.Handle(envelope(t, "https://x", GetURL{}))
	assert.Nil(t, out.Message)
}

func TestReceiverTracksStatusAndFound(t *testing.T) {
	t.Parallel()

	r := NewReceiver(ReceiverConfig{}, nil)
	_, ok := r.LastStatus()
	assert.False(t, ok)

	r.Handle(envelope(t, "", Found{}))
	r.Handle(envelope(t, "", Status{Current: 3, Duration: 10, Remaining: 7}))

	st, ok := r.LastStatus()
	require.True(t, ok)
	assert.Equal(t, 7.0, st.Remaining)
	assert.True(t, r.VideoFound())

	out := r.Handle(envelope(t, "", Ended{}))
	assert.False(t, out.Advance, "nil autoplay reads as off")
}

func TestOriginOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://rapid-cloud.co", OriginOf("https://rapid-cloud.co/embed-2/e-1/x?z=1"))
	assert.Equal(t, "http://127.0.0.1:8080", OriginOf("http://127.0.0.1:8080/a"))
	assert.Empty(t, OriginOf("about:blank"))
}
