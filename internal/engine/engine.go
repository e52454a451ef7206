// Package engine implements playback continuity: which episode plays next,
// the randomized auto-jump plan for a series and when to leave a series.
//
// The engine is a pure state machine. It performs no I/O; every operation
// returns a Decision that the page controller carries out after persisting
// State().
package engine

import (
	"fmt"
	"slices"
	"time"

	"github.com/alvarorichard/animebinge/internal/catalog"
	"github.com/alvarorichard/animebinge/internal/models"
)

const (
	// TransitionDelay separates the last planned episode from the series transition
	TransitionDelay = 2 * time.Second

	minPlanned = 3
	maxPlanned = 8
)

// Action tells the controller what to do with a decision
type Action int

const (
	// Stay keeps the current page
	Stay Action = iota
	// Play navigates to Decision.Episode
	Play
	// SeriesTransition asks the genre selector for a new series
	SeriesTransition
)

func (a Action) String() string {
	switch a {
	case Stay:
		return "stay"
	case Play:
		return "play"
	case SeriesTransition:
		return "series-transition"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Mode is the state the engine reports for the current page load
type Mode int

const (
	ModeSequential Mode = iota
	ModeAutoJump
	ModeSeriesTransition
)

func (m Mode) String() string {
	switch m {
	case ModeSequential:
		return "sequential"
	case ModeAutoJump:
		return "auto-jump"
	case ModeSeriesTransition:
		return "series-transition"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Decision is the outcome of an engine operation
type Decision struct {
	Action  Action
	Index   int
	Episode models.Episode
	// Delay is how long the controller waits before acting
	Delay time.Duration
}

// RNG is the randomness source. *math/rand/v2.Rand satisfies it.
type RNG interface {
	IntN(n int) int
}

// Engine holds one page load worth of playback decisions
type Engine struct {
	catalog       []models.Episode
	state         models.PlaybackState
	current       int
	rng           RNG
	transitioning bool
}

// New builds an engine for the given catalog and restored state. The current
// index is the catalog position of currentEpisodeID, or 0 when absent.
func New(episodes []models.Episode, restored models.PlaybackState, currentEpisodeID string, rng RNG) *Engine {
	e := &Engine{
		catalog: slices.Clone(episodes),
		state:   restored.Clone(),
		rng:     rng,
	}
	if i := catalog.IndexOf(e.catalog, currentEpisodeID); i >= 0 {
		e.current = i
	}
	return e
}

// Initialize repairs the restored state against this catalog and starts the
// auto-jump plan when one is needed.
func (e *Engine) Initialize() Decision {
	e.state.Normalize()
	e.dropOutOfRange()

	if len(e.catalog) == 0 {
		if e.state.AutoJumpEnabled || e.state.Autoplay {
			return e.transition(0)
		}
		return e.stay()
	}

	if e.state.AutoJumpEnabled {
		if len(e.state.SelectedGenres) == 0 {
			e.state.SelectedGenres = []string{models.DefaultGenre}
		}
		if !e.state.HasResumableQueue() {
			return e.InitAutoJump()
		}
	}
	return e.stay()
}

// dropOutOfRange removes queued indices the catalog doesn't have and shrinks
// the target by the same amount so the queue length still matches.
func (e *Engine) dropOutOfRange() {
	q := e.state.PendingEpisodeQueue
	kept := q[:0:0]
	seen := make(map[int]struct{}, len(q))
	for _, idx := range q {
		if idx < 0 || idx >= len(e.catalog) {
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		kept = append(kept, idx)
	}
	if dropped := len(q) - len(kept); dropped > 0 {
		e.state.TargetEpisodesInSeries = max(e.state.TargetEpisodesInSeries-dropped, e.state.EpisodesWatchedInSeries)
	}
	e.state.PendingEpisodeQueue = kept
}

// InitAutoJump draws the episodes to watch in this series. A resumed plan is
// left untouched.
func (e *Engine) InitAutoJump() Decision {
	if e.state.HasResumableQueue() {
		return e.stay()
	}

	n := len(e.catalog)
	e.state.EpisodesWatchedInSeries = 0
	switch {
	case n == 0:
		e.state.ResetSeries()
		return e.transition(0)
	case n == 1:
		e.state.TargetEpisodesInSeries = 1
		e.state.PendingEpisodeQueue = []int{0}
	default:
		target := min(e.rng.IntN(maxPlanned-minPlanned+1)+minPlanned, n)
		e.state.TargetEpisodesInSeries = target
		e.state.PendingEpisodeQueue = e.drawWithoutReplacement(target)
	}
	return e.stay()
}

// drawWithoutReplacement picks count distinct catalog indices
func (e *Engine) drawWithoutReplacement(count int) []int {
	available := make([]int, len(e.catalog))
	for i := range available {
		available[i] = i
	}
	picked := make([]int, 0, count)
	for range min(count, len(available)) {
		j := e.rng.IntN(len(available))
		picked = append(picked, available[j])
		available = slices.Delete(available, j, j+1)
	}
	return picked
}

// Advance moves to whatever comes next: the next planned episode, the next
// series, or the next episode in order.
func (e *Engine) Advance() Decision {
	if e.state.AutoJumpEnabled {
		if len(e.state.PendingEpisodeQueue) == 0 {
			return e.transition(0)
		}

		next := e.state.PendingEpisodeQueue[0]
		e.state.PendingEpisodeQueue = slices.Delete(slices.Clone(e.state.PendingEpisodeQueue), 0, 1)
		e.state.EpisodesWatchedInSeries++
		if e.state.EpisodesWatchedInSeries > e.state.TargetEpisodesInSeries {
			e.state.TargetEpisodesInSeries = e.state.EpisodesWatchedInSeries
		}

		if len(e.state.PendingEpisodeQueue) == 0 {
			return e.transition(TransitionDelay)
		}
		return e.PlayIndex(next)
	}
	return e.PlayIndex(e.current + 1)
}

// Previous steps back one episode. There is no wraparound at the start.
func (e *Engine) Previous() Decision {
	return e.PlayIndex(e.current - 1)
}

// PlayIndex plays the episode at i. Past the end it wraps to 0 when looping
// is on; every other out of range index is a no-op.
func (e *Engine) PlayIndex(i int) Decision {
	if i < 0 || i >= len(e.catalog) {
		if e.state.LoopAtEnd && i >= len(e.catalog) && len(e.catalog) > 0 {
			i = 0
		} else {
			return e.stay()
		}
	}
	e.current = i
	return Decision{Action: Play, Index: i, Episode: e.catalog[i]}
}

// SetAutoJump switches auto-jump. Turning it off discards the plan at once;
// turning it on selects the default genre if needed and draws a plan.
func (e *Engine) SetAutoJump(on bool) Decision {
	e.state.AutoJumpEnabled = on
	if !on {
		e.state.ResetSeries()
		e.transitioning = false
		return e.stay()
	}
	if len(e.state.SelectedGenres) == 0 {
		e.state.SelectedGenres = []string{models.DefaultGenre}
	}
	return e.InitAutoJump()
}

// SetGenres replaces the selected genres. With auto-jump on the plan is redrawn.
func (e *Engine) SetGenres(genres []string) Decision {
	e.state.SelectedGenres = models.UniqueGenres(genres)
	if !e.state.AutoJumpEnabled {
		return e.stay()
	}
	e.state.PendingEpisodeQueue = []int{}
	e.state.TargetEpisodesInSeries = 0
	return e.SetAutoJump(true)
}

// SetAutoplay toggles advancing on end of video
func (e *Engine) SetAutoplay(on bool) { e.state.Autoplay = on }

// SetLoop toggles wrapping to the first episode
func (e *Engine) SetLoop(on bool) { e.state.LoopAtEnd = on }

// ApplySelection records the genres still active after the selector ran and
// clears the plan of the series being left.
func (e *Engine) ApplySelection(remaining []string) {
	e.state.SelectedGenres = models.UniqueGenres(remaining)
	e.state.ResetSeries()
}

// TransitionFailed clears the transition mark so a later trigger can retry
func (e *Engine) TransitionFailed() { e.transitioning = false }

// State returns a copy of the durable state
func (e *Engine) State() models.PlaybackState { return e.state.Clone() }

// Catalog returns a copy of the episodes of this page load
func (e *Engine) Catalog() []models.Episode { return slices.Clone(e.catalog) }

// CurrentIndex returns the position of the episode on screen
func (e *Engine) CurrentIndex() int { return e.current }

// Current returns the episode on screen, if the catalog has one
func (e *Engine) Current() (models.Episode, bool) {
	if e.current < 0 || e.current >= len(e.catalog) {
		return models.Episode{}, false
	}
	return e.catalog[e.current], true
}

// Mode reports the engine state
func (e *Engine) Mode() Mode {
	switch {
	case e.transitioning:
		return ModeSeriesTransition
	case e.state.AutoJumpEnabled:
		return ModeAutoJump
	default:
		return ModeSequential
	}
}

func (e *Engine) stay() Decision {
	d := Decision{Action: Stay, Index: e.current}
	if ep, ok := e.Current(); ok {
		d.Episode = ep
	}
	return d
}

func (e *Engine) transition(delay time.Duration) Decision {
	e.transitioning = true
	return Decision{Action: SeriesTransition, Index: e.current, Delay: delay}
}
