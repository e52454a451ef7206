// Package discord mirrors the current episode into Discord Rich Presence
package discord

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tr1xem/go-discordrpc/client"

	"github.com/alvarorichard/animebinge/internal/bridge"
	"github.com/alvarorichard/animebinge/internal/util"
)

// ClientID is the Discord application client ID
const ClientID = "1302721937717334128"

const (
	logoURL = "https://raw.githubusercontent.com/alvarorichard/Goanime/main/docs/assets/goanime-logo.png"
	// keepAlive forces a refresh so Discord doesn't drop an idle activity
	keepAlive = 2 * time.Minute
)

// Playback is what the presence shows
type Playback struct {
	Series    string
	SeriesURL string
	Episode   string
	Ordinal   int
	Total     int
	AutoJump  bool
	Status    *bridge.Status
}

// Source reports the playback to display; ok is false when nothing is playing
type Source func(ctx context.Context) (pb Playback, ok bool)

type activitySetter interface {
	SetActivity(activity client.Activity) error
}

// Presence pushes activities to a logged in Discord client and skips
// updates that would not change what Discord shows
type Presence struct {
	mu       sync.Mutex
	rpc      *client.Client
	setter   activitySetter
	now      func() time.Time
	lastKey  string
	lastSent time.Time
}

// New creates a presence that is not logged in yet
func New() *Presence {
	return &Presence{now: time.Now}
}

// Login connects to the local Discord client
func (p *Presence) Login() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.setter != nil {
		return nil
	}
	rpc := client.NewClient(ClientID)
	if err := rpc.Login(); err != nil {
		return errors.Wrap(err, "discord login failed")
	}
	p.rpc = rpc
	p.setter = rpc
	util.Debug("Discord RPC logged in")
	return nil
}

// Logout disconnects from Discord
func (p *Presence) Logout() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rpc == nil {
		p.setter = nil
		return nil
	}
	err := p.rpc.Logout()
	p.rpc = nil
	p.setter = nil
	p.lastKey = ""
	util.Debug("Discord RPC logged out")
	return errors.Wrap(err, "discord logout failed")
}

// Update sends pb unless it matches the last activity and the keep-alive
// window has not passed. It reports whether an activity was sent.
func (p *Presence) Update(pb Playback) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.setter == nil {
		return false
	}

	now := p.now()
	key := changeKey(pb)
	if key == p.lastKey && now.Sub(p.lastSent) < keepAlive {
		return false
	}

	if err := p.setter.SetActivity(BuildActivity(pb, now)); err != nil {
		util.Debug("Failed to set Discord activity", "error", err)
		return false
	}
	p.lastKey = key
	p.lastSent = now
	return true
}

// Run refreshes the presence from src every freq until ctx is done
func (p *Presence) Run(ctx context.Context, freq time.Duration, src Source) {
	ticker := time.NewTicker(freq)
	defer ticker.Stop()

	refresh := func() {
		if pb, ok := src(ctx); ok {
			p.Update(pb)
		}
	}
	refresh()
	for {
		select {
		case <-ticker.C:
			refresh()
		case <-ctx.Done():
			util.Debug("Rich Presence updater stopped")
			return
		}
	}
}

// changeKey captures the fields whose change must reach Discord at once
func changeKey(pb Playback) string {
	paused := pb.Status != nil && pb.Status.Paused
	return fmt.Sprintf("%s|%s|%d|%t|%t", pb.Series, pb.Episode, pb.Ordinal, paused, pb.AutoJump)
}

// BuildActivity renders pb as a Discord "Watching" activity
func BuildActivity(pb Playback, now time.Time) client.Activity {
	title := SeriesTitle(pb.Series)
	if title == "" {
		title = "animebinge"
	}

	state := fmt.Sprintf("Episode %d", pb.Ordinal+1)
	if pb.Total > 0 {
		state = fmt.Sprintf("Episode %d of %d", pb.Ordinal+1, pb.Total)
	}
	if pb.AutoJump {
		state += " · auto-jump"
	}

	var smallImage, smallText string
	timestamps := &client.Timestamps{}
	if st := pb.Status; st != nil {
		start := now.Add(-time.Duration(st.Current) * time.Second)
		timestamps.Start = &start
		if st.Paused {
			smallImage = "pause-button"
			smallText = "Paused"
		} else if st.Duration > 60 && st.Remaining > 0 {
			end := now.Add(time.Duration(st.Remaining) * time.Second)
			timestamps.End = &end
		}
	} else {
		timestamps.Start = &now
	}

	var buttons []*client.Button
	if pb.SeriesURL != "" {
		buttons = append(buttons, &client.Button{Label: "Open series", Url: pb.SeriesURL})
	}

	return client.Activity{
		Type:       3, // Watching
		Name:       title,
		Details:    title,
		State:      state,
		LargeImage: logoURL,
		LargeText:  title,
		SmallImage: smallImage,
		SmallText:  smallText,
		Timestamps: timestamps,
		Buttons:    buttons,
	}
}

// SeriesTitle strips the site suffix page titles carry, e.g.
// "Watch Frieren English Sub/Dub online Free on 9anime" -> "Frieren"
func SeriesTitle(pageTitle string) string {
	t := strings.TrimSpace(pageTitle)
	t = strings.TrimPrefix(t, "Watch ")
	for _, suffix := range []string{" English Sub/Dub", " online Free", " - 9anime", " | "} {
		if i := strings.Index(t, suffix); i > 0 {
			t = t[:i]
		}
	}
	return strings.TrimSpace(t)
}
