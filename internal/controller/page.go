// Package controller runs one page load: it restores the playback state,
// feeds bridge messages and user commands to the engine and carries out the
// engine's decisions.
//
// Every mutation happens on the Page event loop. Callers talk to it through
// methods that enqueue closures, so the engine and the receiver never see
// concurrent access.
package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alvarorichard/animebinge/internal/bridge"
	"github.com/alvarorichard/animebinge/internal/engine"
	"github.com/alvarorichard/animebinge/internal/genre"
	"github.com/alvarorichard/animebinge/internal/models"
	"github.com/alvarorichard/animebinge/internal/session"
	"github.com/alvarorichard/animebinge/internal/util"
)

// DefaultInflightTimeout clears a stuck transition
const DefaultInflightTimeout = 30 * time.Second

var (
	// ErrPageClosed is returned by calls made after the page load ended
	ErrPageClosed = errors.New("page controller stopped")
	// ErrTransitionInFlight is returned when a navigation is already pending
	ErrTransitionInFlight = errors.New("a transition is already in flight")
)

// Navigator loads a new page in the browser
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// Selector chooses the next series
type Selector interface {
	SelectNext(ctx context.Context, genres []string) (genre.Selection, error)
}

// ChildLink forwards parent requests to the frame that owns the video
type ChildLink interface {
	Deliver(m bridge.Message)
}

// Config holds the page timings and bridge policy
type Config struct {
	EndDelay time.Duration
	// TransitionDelay overrides the engine's pause before leaving a series
	TransitionDelay time.Duration
	InflightTimeout time.Duration
	AllowedOrigins  []string
}

// Deps are the collaborators of a page
type Deps struct {
	Store     session.Store
	Navigator Navigator
	Selector  Selector
	RNG       engine.RNG
}

// View is a read-only snapshot of a page
type View struct {
	URL          string               `json:"url"`
	State        models.PlaybackState `json:"state"`
	Catalog      []models.Episode     `json:"catalog"`
	CurrentIndex int                  `json:"currentIndex"`
	Mode         string               `json:"mode"`
	Inflight     bool                 `json:"inflight"`
	VideoFound   bool                 `json:"videoFound"`
	EndedSeen    bool                 `json:"endedSeen"`
	LastURL      string               `json:"lastUrl,omitempty"`
	LastStatus   *bridge.Status       `json:"lastStatus,omitempty"`
}

// Settings is a partial update of the user toggles
type Settings struct {
	Autoplay        *bool    `json:"autoplay,omitempty"`
	LoopAtEnd       *bool    `json:"loopAtEnd,omitempty"`
	AutoJumpEnabled *bool    `json:"autoJumpEnabled,omitempty"`
	SelectedGenres  []string `json:"selectedGenres,omitempty"`
}

// Page drives one page load
type Page struct {
	cfg      Config
	deps     Deps
	url      string
	engine   *engine.Engine
	receiver *bridge.Receiver

	cmds    chan func()
	done    chan struct{}
	started sync.Once

	// loop-owned
	ctx          context.Context
	child        ChildLink
	inflight     bool
	inflightStop func() bool
	urlWaiters   []chan string
	onTransition func(engine.Decision)
}

// NewPage restores the stored state and builds the engine for this page load
func NewPage(ctx context.Context, cfg Config, deps Deps, pageURL string, episodes []models.Episode, currentEpisodeID string) *Page {
	if cfg.InflightTimeout <= 0 {
		cfg.InflightTimeout = DefaultInflightTimeout
	}

	p := &Page{
		cfg:  cfg,
		deps: deps,
		url:  pageURL,
		cmds: make(chan func(), 32),
		done: make(chan struct{}),
	}
	p.engine = engine.New(episodes, deps.Store.Load(ctx), currentEpisodeID, deps.RNG)
	p.receiver = bridge.NewReceiver(bridge.ReceiverConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		EndDelay:       cfg.EndDelay,
	}, func() bool { return p.engine.State().Autoplay })
	return p
}

// OnDecision registers a hook called on the loop for every Play or
// SeriesTransition decision. Must be set before Run.
func (p *Page) OnDecision(fn func(engine.Decision)) { p.onTransition = fn }

// Run initializes the engine and processes events until ctx is done. The
// context is expected to end when the browser navigates away.
func (p *Page) Run(ctx context.Context) error {
	err := ErrPageClosed
	p.started.Do(func() {
		err = nil
		p.ctx = ctx
		defer close(p.done)

		d := p.engine.Initialize()
		p.persist()
		util.Info("Page ready",
			"episodes", len(p.engine.Catalog()),
			"current", p.engine.CurrentIndex()+1,
			"mode", p.engine.Mode().String())
		p.execute(d)

		for {
			select {
			case <-ctx.Done():
				p.shutdown()
				return
			case fn := <-p.cmds:
				fn()
			}
		}
	})
	return err
}

// Done is closed when the event loop has exited
func (p *Page) Done() <-chan struct{} { return p.done }

// AttachChild sets the link used to send GET_URL to the video frame
func (p *Page) AttachChild(link ChildLink) {
	p.enqueue(func() { p.child = link })
}

// Post delivers a bridge envelope from a frame
func (p *Page) Post(env bridge.Envelope) {
	p.enqueue(func() { p.handleEnvelope(env) })
}

// Next advances as if the episode had ended
func (p *Page) Next(ctx context.Context) (engine.Decision, error) {
	return p.decide(ctx, p.engine.Advance)
}

// Previous goes back one episode
func (p *Page) Previous(ctx context.Context) (engine.Decision, error) {
	return p.decide(ctx, p.engine.Previous)
}

// PlayIndex plays the episode at index i of the catalog
func (p *Page) PlayIndex(ctx context.Context, i int) (engine.Decision, error) {
	return p.decide(ctx, func() engine.Decision { return p.engine.PlayIndex(i) })
}

// UpdateSettings applies the toggles present in s and persists the result
func (p *Page) UpdateSettings(ctx context.Context, s Settings) (View, error) {
	var view View
	err := p.call(ctx, func() {
		if s.Autoplay != nil {
			p.engine.SetAutoplay(*s.Autoplay)
		}
		if s.LoopAtEnd != nil {
			p.engine.SetLoop(*s.LoopAtEnd)
		}

		var d engine.Decision
		if s.SelectedGenres != nil {
			known, unknown := genre.Normalize(s.SelectedGenres)
			if len(unknown) > 0 {
				util.Warn("Ignoring unknown genres", "genres", unknown)
			}
			d = p.engine.SetGenres(known)
		}
		if s.AutoJumpEnabled != nil && *s.AutoJumpEnabled != p.engine.State().AutoJumpEnabled {
			d = p.engine.SetAutoJump(*s.AutoJumpEnabled)
		}
		p.persist()
		p.execute(d)
		view = p.view()
	})
	return view, err
}

// View returns a snapshot of the page
func (p *Page) View(ctx context.Context) (View, error) {
	var view View
	err := p.call(ctx, func() { view = p.view() })
	return view, err
}

// VideoURL asks the video frame for its current source and waits for the
// answer until ctx is done, falling back to the last reported one.
func (p *Page) VideoURL(ctx context.Context) (string, error) {
	reply := make(chan string, 1)
	var last string
	if err := p.call(ctx, func() {
		last = p.receiver.LastURL()
		if p.child == nil {
			reply <- last
			return
		}
		p.urlWaiters = append(p.urlWaiters, reply)
		p.child.Deliver(bridge.GetURL{})
	}); err != nil {
		return "", err
	}

	select {
	case u, ok := <-reply:
		if !ok {
			return last, nil
		}
		return u, nil
	case <-ctx.Done():
		if last != "" {
			return last, nil
		}
		return "", ctx.Err()
	case <-p.done:
		return last, nil
	}
}

func (p *Page) handleEnvelope(env bridge.Envelope) {
	out := p.receiver.Handle(env)
	if u, ok := out.Message.(bridge.URL); ok {
		for _, w := range p.urlWaiters {
			w <- u.URL
		}
		p.urlWaiters = nil
	}
	if !out.Advance {
		return
	}
	p.after(out.Delay, func() {
		if p.inflight {
			util.Debug("Advance skipped, transition in flight")
			return
		}
		p.apply(p.engine.Advance())
	})
}

// decide runs op on the loop unless a transition is pending
func (p *Page) decide(ctx context.Context, op func() engine.Decision) (engine.Decision, error) {
	var (
		d   engine.Decision
		err error
	)
	callErr := p.call(ctx, func() {
		if p.inflight {
			err = ErrTransitionInFlight
			return
		}
		d = op()
		p.apply(d)
	})
	if callErr != nil {
		return engine.Decision{}, callErr
	}
	return d, err
}

// apply persists the engine state and carries out d
func (p *Page) apply(d engine.Decision) {
	p.persist()
	p.execute(d)
}

func (p *Page) execute(d engine.Decision) {
	if d.Action != engine.Stay && p.inflight {
		util.Debug("Decision dropped, transition in flight", "action", d.Action.String())
		return
	}
	switch d.Action {
	case engine.Stay:
		return
	case engine.Play:
		p.beginTransition(d)
		util.Info("Playing episode", "index", d.Index+1, "title", d.Episode.Title)
		p.navigate(d.Episode.URL)
	case engine.SeriesTransition:
		if p.cfg.TransitionDelay > 0 && d.Delay > 0 {
			d.Delay = p.cfg.TransitionDelay
		}
		p.beginTransition(d)
		util.Info("Leaving series", "delay", d.Delay)
		p.after(d.Delay, p.selectSeries)
	}
}

func (p *Page) beginTransition(d engine.Decision) {
	p.inflight = true
	if p.inflightStop != nil {
		p.inflightStop()
	}
	p.inflightStop = p.after(d.Delay+p.cfg.InflightTimeout, func() {
		if p.inflight {
			util.Warn("Transition did not complete, re-enabling advance", "timeout", p.cfg.InflightTimeout)
			p.endTransition()
		}
	})
	if p.onTransition != nil {
		p.onTransition(d)
	}
}

func (p *Page) endTransition() {
	p.inflight = false
	p.engine.TransitionFailed()
	if p.inflightStop != nil {
		p.inflightStop()
		p.inflightStop = nil
	}
}

func (p *Page) selectSeries() {
	genres := p.engine.State().SelectedGenres
	ctx := p.ctx
	go func() {
		sel, err := p.deps.Selector.SelectNext(ctx, genres)
		p.enqueue(func() { p.finishSelection(sel, err) })
	}()
}

func (p *Page) finishSelection(sel genre.Selection, err error) {
	if err != nil {
		var tfe *genre.TransientFetchError
		switch {
		case errors.Is(err, genre.ErrGenresExhausted):
			util.Error("No series left in the selected genres, automation stopped", "genres", p.engine.State().SelectedGenres)
		case errors.As(err, &tfe):
			util.Error("Genre listing unavailable, staying on this page", "genre", tfe.Genre, "error", tfe.Err)
		default:
			util.Error("Series selection failed", "error", err)
		}
		p.endTransition()
		return
	}

	p.engine.ApplySelection(sel.Remaining)
	p.persist()
	util.Info("Jumping to series", "title", sel.Series.Title, "genre", sel.Genre)
	p.navigate(sel.Series.URL)
}

func (p *Page) navigate(url string) {
	ctx := p.ctx
	go func() {
		if err := p.deps.Navigator.Navigate(ctx, url); err != nil {
			if ctx.Err() != nil {
				return
			}
			util.Error("Navigation failed", "url", url, "error", err)
			p.enqueue(p.endTransition)
		}
	}()
}

func (p *Page) persist() {
	if err := p.deps.Store.Save(p.ctx, p.engine.State()); err != nil {
		util.Warn("Failed to save playback state", "error", err)
	}
}

func (p *Page) view() View {
	v := View{
		URL:          p.url,
		State:        p.engine.State(),
		Catalog:      p.engine.Catalog(),
		CurrentIndex: p.engine.CurrentIndex(),
		Mode:         p.engine.Mode().String(),
		Inflight:     p.inflight,
		VideoFound:   p.receiver.VideoFound(),
		EndedSeen:    p.receiver.EndedSeen(),
		LastURL:      p.receiver.LastURL(),
	}
	if st, ok := p.receiver.LastStatus(); ok {
		v.LastStatus = &st
	}
	return v
}

// after runs fn on the loop once d has elapsed, or right away when d is not
// positive. Must be called from the loop. The returned func cancels it.
func (p *Page) after(d time.Duration, fn func()) func() bool {
	if d <= 0 {
		fn()
		return func() bool { return false }
	}
	t := time.AfterFunc(d, func() { p.enqueue(fn) })
	return t.Stop
}

// enqueue hands fn to the loop; it's dropped once the page is gone
func (p *Page) enqueue(fn func()) {
	select {
	case p.cmds <- fn:
	case <-p.done:
	}
}

// call runs fn on the loop and waits for it
func (p *Page) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}
	select {
	case p.cmds <- wrapped:
	case <-p.done:
		return ErrPageClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-p.done:
		return ErrPageClosed
	}
}

func (p *Page) shutdown() {
	if p.inflightStop != nil {
		p.inflightStop()
	}
	for _, w := range p.urlWaiters {
		close(w)
	}
	p.urlWaiters = nil
}
