package bridge

import (
	"net/url"
	"strings"
	"time"

	"github.com/alvarorichard/animebinge/internal/util"
)

// DefaultEndDelay lets end-card UI settle before advancing
const DefaultEndDelay = 2 * time.Second

// Outcome tells the page controller what a received message requires
type Outcome struct {
	// Message is the accepted message, nil when the envelope was dropped
	Message Message
	// Advance is set for the first accepted ENDED while autoplay is on
	Advance bool
	Delay   time.Duration
}

// ReceiverConfig configures a Receiver
type ReceiverConfig struct {
	// AllowedOrigins restricts who may send ENDED and URL. Empty allows everyone.
	AllowedOrigins []string
	EndDelay       time.Duration
}

// Receiver is the parent side of the bridge for one page load
type Receiver struct {
	cfg      ReceiverConfig
	autoplay func() bool

	endedSeen  bool
	lastURL    string
	lastStatus *Status
	found      bool
}

// NewReceiver creates a receiver; autoplay is consulted on every ENDED
func NewReceiver(cfg ReceiverConfig, autoplay func() bool) *Receiver {
	if cfg.EndDelay <= 0 {
		cfg.EndDelay = DefaultEndDelay
	}
	return &Receiver{cfg: cfg, autoplay: autoplay}
}

// Handle decodes env and updates the page-load bookkeeping
func (r *Receiver) Handle(env Envelope) Outcome {
	msg, err := Decode(env.Data)
	if err != nil {
		util.Debug("Dropping bridge message", "origin", env.Origin, "error", err)
		return Outcome{}
	}

	switch m := msg.(type) {
	case Ended:
		if !r.trusted(env.Origin) {
			util.Warn("Ignoring ENDED from untrusted origin", "origin", env.Origin)
			return Outcome{}
		}
		if r.endedSeen {
			util.Debug("Duplicate ENDED ignored")
			return Outcome{Message: m}
		}
		r.endedSeen = true
		if r.autoplay == nil || !r.autoplay() {
			util.Info("Episode ended, autoplay is off")
			return Outcome{Message: m}
		}
		util.Info("Episode ended, advancing", "delay", r.cfg.EndDelay)
		return Outcome{Message: m, Advance: true, Delay: r.cfg.EndDelay}

	case URL:
		if !r.trusted(env.Origin) {
			util.Warn("Ignoring URL from untrusted origin", "origin", env.Origin)
			return Outcome{}
		}
		r.lastURL = m.URL
		return Outcome{Message: m}

	case Status:
		r.lastStatus = &m
		if m.Remaining > 0 && m.Remaining <= 5 {
			util.Debug("Less than 5 seconds remaining")
		}
		return Outcome{Message: m}

	case Found:
		r.found = true
		return Outcome{Message: m}

	default:
		// GET_URL flows parent to child only
		return Outcome{}
	}
}

// EndedSeen reports whether this page load already accepted an ENDED
func (r *Receiver) EndedSeen() bool { return r.endedSeen }

// LastURL returns the last reported video source
func (r *Receiver) LastURL() string { return r.lastURL }

// LastStatus returns the last STATUS report, if any
func (r *Receiver) LastStatus() (Status, bool) {
	if r.lastStatus == nil {
		return Status{}, false
	}
	return *r.lastStatus, true
}

// VideoFound reports whether a child announced its video
func (r *Receiver) VideoFound() bool { return r.found }

func (r *Receiver) trusted(origin string) bool {
	if len(r.cfg.AllowedOrigins) == 0 {
		return true
	}
	o := normalizeOrigin(origin)
	for _, allowed := range r.cfg.AllowedOrigins {
		if o == normalizeOrigin(allowed) {
			return true
		}
	}
	return false
}

// OriginOf returns scheme://host[:port] of a frame URL
func OriginOf(frameURL string) string {
	u, err := url.Parse(frameURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func normalizeOrigin(o string) string {
	if origin := OriginOf(o); origin != "" {
		o = origin
	}
	return strings.ToLower(strings.TrimRight(o, "/"))
}
