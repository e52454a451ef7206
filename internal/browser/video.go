package browser

import (
	"context"

	"github.com/pkg/errors"
	"github.com/playwright-community/playwright-go"

	"github.com/alvarorichard/animebinge/internal/bridge"
	"github.com/alvarorichard/animebinge/internal/util"
)

// ErrVideoGone is returned when the located video element disappeared
var ErrVideoGone = errors.New("video element is gone")

const (
	hasVideoScript = `() => !!document.querySelector('video')`

	snapshotScript = `() => {
		const v = document.querySelector('video');
		if (!v) return null;
		return {
			current: v.currentTime || 0,
			duration: isFinite(v.duration) ? v.duration : 0,
			paused: v.paused,
			ended: v.ended,
			src: v.currentSrc || v.src || ''
		};
	}`

	playScript = `() => {
		const v = document.querySelector('video');
		if (!v) return false;
		const p = v.play();
		if (p && p.catch) p.catch(() => {});
		return true;
	}`
)

// FrameVideo is the first video element of one frame
type FrameVideo struct {
	frame playwright.Frame
}

var _ bridge.Video = (*FrameVideo)(nil)

// Frame returns the frame hosting the video
func (v *FrameVideo) Frame() playwright.Frame { return v.frame }

// Origin returns the scheme and host of the hosting frame
func (v *FrameVideo) Origin() string { return bridge.OriginOf(v.frame.URL()) }

// Snapshot reads the playback position and flags of the video
func (v *FrameVideo) Snapshot(ctx context.Context) (bridge.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return bridge.Snapshot{}, err
	}
	if v.frame.IsDetached() {
		return bridge.Snapshot{}, ErrVideoGone
	}
	res, err := v.frame.Evaluate(snapshotScript)
	if err != nil {
		return bridge.Snapshot{}, errors.Wrap(err, "failed to read video state")
	}
	m, ok := res.(map[string]interface{})
	if !ok {
		return bridge.Snapshot{}, ErrVideoGone
	}
	return snapshotFromMap(m), nil
}

// Play starts playback, ignoring autoplay rejections
func (v *FrameVideo) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := v.frame.Evaluate(playScript)
	return errors.Wrap(err, "failed to start playback")
}

// LocateVideo probes the main frame first and then every other frame for a
// video element. Frames that can't be evaluated are skipped.
func LocateVideo(ctx context.Context, page playwright.Page) (*FrameVideo, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	main := page.MainFrame()
	frames := []playwright.Frame{main}
	for _, f := range page.Frames() {
		if f != main {
			frames = append(frames, f)
		}
	}

	for _, f := range frames {
		if f.IsDetached() {
			continue
		}
		found, err := f.Evaluate(hasVideoScript)
		if err != nil {
			util.Debug("Skipping frame", "url", f.URL(), "error", err)
			continue
		}
		if ok, _ := found.(bool); ok {
			return &FrameVideo{frame: f}, true, nil
		}
	}
	return nil, false, nil
}

func snapshotFromMap(m map[string]interface{}) bridge.Snapshot {
	s := bridge.Snapshot{
		Current:  toFloat(m["current"]),
		Duration: toFloat(m["duration"]),
	}
	s.Paused, _ = m["paused"].(bool)
	s.Ended, _ = m["ended"].(bool)
	s.Src, _ = m["src"].(string)
	return s
}

// toFloat accepts the numeric shapes playwright may hand back for a JS number
func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	default:
		return 0
	}
}
