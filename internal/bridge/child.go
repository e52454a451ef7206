package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/alvarorichard/animebinge/internal/retry"
	"github.com/alvarorichard/animebinge/internal/util"
)

// ErrVideoNotFound is returned by Child.Run when no video element appeared in time
var ErrVideoNotFound = errors.New("video element not found")

// Snapshot is the observable state of a video element
type Snapshot struct {
	Current  float64
	Duration float64
	Paused   bool
	Ended    bool
	Src      string
}

// NearEnd reports whether playback is within one second of the end
func (s Snapshot) NearEnd() bool {
	return s.Duration > 0 && s.Current >= s.Duration-1
}

// Status converts the snapshot to a STATUS message
func (s Snapshot) Status() Status {
	remaining := s.Duration - s.Current
	if remaining < 0 || s.Duration <= 0 {
		remaining = 0
	}
	return Status{
		Current:   s.Current,
		Duration:  s.Duration,
		Remaining: remaining,
		Paused:    s.Paused,
		Ended:     s.Ended,
	}
}

// Video is a handle on a located video element
type Video interface {
	Snapshot(ctx context.Context) (Snapshot, error)
	Play(ctx context.Context) error
}

// LocateFunc probes for the video element once
type LocateFunc func(ctx context.Context) (Video, bool, error)

// Event is a native video event relayed to the child
type Event string

const (
	EventEnded Event = "ended"
	EventPause Event = "pause"
)

// PostFunc delivers a message to the parent
type PostFunc func(ctx context.Context, m Message) error

// ChildConfig holds the child timings
type ChildConfig struct {
	LocateInterval time.Duration
	LocateAttempts int
	StatusInterval time.Duration
	ConfirmDelay   time.Duration
	Autoplay       bool
}

// DefaultChildConfig polls for the video every second for up to two minutes
func DefaultChildConfig() ChildConfig {
	return ChildConfig{
		LocateInterval: time.Second,
		LocateAttempts: 120,
		StatusInterval: time.Second,
		ConfirmDelay:   2 * time.Second,
	}
}

// Child watches one video element and posts its end exactly once
type Child struct {
	cfg      ChildConfig
	locate   LocateFunc
	post     PostFunc
	events   chan Event
	requests chan Message

	endSent bool
}

// NewChild creates a child that finds its video with locate and reports through post
func NewChild(cfg ChildConfig, locate LocateFunc, post PostFunc) *Child {
	return &Child{
		cfg:      cfg,
		locate:   locate,
		post:     post,
		events:   make(chan Event, 16),
		requests: make(chan Message, 4),
	}
}

// Notify relays a native video event. It never blocks; events beyond the
// buffer are dropped because the status poll catches the end anyway.
func (c *Child) Notify(ev Event) {
	select {
	case c.events <- ev:
	default:
		util.Debug("Dropping video event, buffer full", "event", ev)
	}
}

// Deliver hands a parent request (GET_URL) to the child
func (c *Child) Deliver(m Message) {
	if _, ok := m.(GetURL); !ok {
		return
	}
	select {
	case c.requests <- m:
	default:
		util.Debug("Dropping GET_URL, a request is already pending")
	}
}

// Run locates the video, posts FOUND and watches for the end until ctx is done
func (c *Child) Run(ctx context.Context) error {
	video, err := retry.Poll[Video](ctx, c.cfg.LocateInterval, c.cfg.LocateAttempts, c.locate)
	if err != nil {
		if errors.Is(err, retry.ErrTimeout) {
			return ErrVideoNotFound
		}
		return err
	}

	util.Debug("Video element found")
	c.send(ctx, Found{})

	if c.cfg.Autoplay {
		if err := video.Play(ctx); err != nil {
			util.Debug("Autoplay rejected", "error", err)
		}
	}

	status := time.NewTicker(c.cfg.StatusInterval)
	defer status.Stop()

	var confirm <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev := <-c.events:
			switch ev {
			case EventEnded:
				c.signalEnd(ctx)
			case EventPause:
				snap, err := video.Snapshot(ctx)
				if err == nil && snap.NearEnd() && confirm == nil {
					confirm = time.After(c.cfg.ConfirmDelay)
				}
			}

		case <-confirm:
			confirm = nil
			snap, err := video.Snapshot(ctx)
			if err == nil && snap.Paused && snap.NearEnd() {
				c.signalEnd(ctx)
			}

		case <-status.C:
			snap, err := video.Snapshot(ctx)
			if err != nil {
				util.Debug("Video status unavailable", "error", err)
				continue
			}
			c.send(ctx, snap.Status())
			switch {
			case snap.Ended:
				c.signalEnd(ctx)
			case !snap.NearEnd():
				// playback moved away from the end, a new end may be reported
				c.endSent = false
			}

		case <-c.requests:
			snap, err := video.Snapshot(ctx)
			if err != nil {
				util.Debug("Video source unavailable", "error", err)
				continue
			}
			c.send(ctx, URL{URL: snap.Src})
		}
	}
}

func (c *Child) signalEnd(ctx context.Context) {
	if c.endSent {
		return
	}
	c.endSent = true
	util.Debug("Video ended, notifying parent")
	c.send(ctx, Ended{})
}

func (c *Child) send(ctx context.Context, m Message) {
	if err := c.post(ctx, m); err != nil {
		util.Debug("Bridge post failed", "type", m.Type(), "error", err)
	}
}
