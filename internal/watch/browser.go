package watch

import (
	"context"

	"github.com/playwright-community/playwright-go"

	"github.com/alvarorichard/animebinge/internal/bridge"
	"github.com/alvarorichard/animebinge/internal/browser"
)

// sessionBrowser adapts a browser session to the runner
type sessionBrowser struct {
	*browser.Session
}

// FromSession wraps a live browser session
func FromSession(s *browser.Session) Browser {
	return sessionBrowser{Session: s}
}

func (b sessionBrowser) LocateVideo(ctx context.Context) (Video, bool, error) {
	v, ok, err := browser.LocateVideo(ctx, b.Page())
	if err != nil || !ok {
		return nil, false, err
	}
	return frameVideo{FrameVideo: v}, true, nil
}

func (b sessionBrowser) OnVideoEvent(fn func(frame any, ev bridge.Event)) {
	b.Session.OnVideoEvent(func(frame playwright.Frame, ev bridge.Event) {
		fn(frame, ev)
	})
}

type frameVideo struct {
	*browser.FrameVideo
}

func (v frameVideo) Key() any { return v.Frame() }
