package downloader

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/alvarorichard/animebinge/internal/models"
	"github.com/alvarorichard/animebinge/internal/retry"
	"github.com/alvarorichard/animebinge/internal/util"
)

// MaxBatch caps a random batch
const MaxBatch = 100

// DefaultBatchPause is the gap between two downloads of a batch
const DefaultBatchPause = 2 * time.Second

// ErrNoSeries is returned when the genre listing is empty
var ErrNoSeries = errors.New("no series found for genre")

// Lister returns the series of a genre listing
type Lister interface {
	Listing(ctx context.Context, genre string) ([]models.Series, error)
}

// EpisodeLister returns the episode catalog of a series page
type EpisodeLister interface {
	Episodes(ctx context.Context, seriesURL string) ([]models.Episode, error)
}

// RNG picks the random episode of each series
type RNG interface {
	IntN(n int) int
}

// BatchRequest asks for one random episode from each of Count random series of Genre
type BatchRequest struct {
	Genre     string
	Count     int
	OutputDir string
	Format    string
	Pause     time.Duration
}

// Stage tells a batch observer what just happened
type Stage int

const (
	StageSelected Stage = iota // Total is known
	StageEpisodes              // fetching the episode list of Series
	StageDownloading           // Episode was picked
	StageDone                  // Result is set
	StageSkipped               // Err explains why
)

// BatchEvent is reported for every step of a batch
type BatchEvent struct {
	Stage    Stage
	Index    int
	Total    int
	Series   models.Series
	Episode  models.Episode
	Episodes int
	Result   Result
	Err      error
}

// Batch downloads random episodes of random series
type Batch struct {
	dl       *Downloader
	lister   Lister
	episodes EpisodeLister
	rng      RNG
	shuffle  func([]models.Series) []models.Series
}

// BatchOption customizes a Batch
type BatchOption func(*Batch)

// WithBatchRNG fixes episode picks and the series order for tests
func WithBatchRNG(r RNG) BatchOption {
	return func(b *Batch) {
		b.rng = r
		b.shuffle = func(s []models.Series) []models.Series { return s }
	}
}

// NewBatch creates a batch runner
func NewBatch(dl *Downloader, lister Lister, episodes EpisodeLister, opts ...BatchOption) *Batch {
	b := &Batch{
		dl:       dl,
		lister:   lister,
		episodes: episodes,
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		shuffle:  func(s []models.Series) []models.Series { return lo.Shuffle(s) },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run shuffles the genre listing, takes Count series and downloads one random
// episode of each. Per-series failures are reported and skipped; the returned
// results hold every finished download.
func (b *Batch) Run(ctx context.Context, req BatchRequest, observe func(BatchEvent)) ([]Result, error) {
	if observe == nil {
		observe = func(BatchEvent) {}
	}
	count := req.Count
	if count < 1 {
		return nil, errors.New("must download at least 1 anime")
	}
	if count > MaxBatch {
		return nil, errors.Errorf("maximum %d anime at once", MaxBatch)
	}
	pause := req.Pause
	if pause <= 0 {
		pause = DefaultBatchPause
	}

	series, err := b.lister.Listing(ctx, req.Genre)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s", req.Genre)
	}
	series = lo.Filter(series, func(s models.Series, _ int) bool { return s.Title != "" })
	if len(series) == 0 {
		return nil, ErrNoSeries
	}

	selected := b.shuffle(series)
	if len(selected) > count {
		selected = selected[:count]
	}
	total := len(selected)
	observe(BatchEvent{Stage: StageSelected, Total: total})

	var results []Result
	for i, s := range selected {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		ev := BatchEvent{Index: i, Total: total, Series: s}

		ev.Stage = StageEpisodes
		observe(ev)
		eps, err := b.episodes.Episodes(ctx, s.URL)
		switch {
		case err != nil:
			ev.Stage, ev.Err = StageSkipped, err
			observe(ev)
		case len(eps) == 0:
			ev.Stage, ev.Err = StageSkipped, errors.New("no episodes found")
			observe(ev)
		default:
			ev.Episodes = len(eps)
			ev.Episode = eps[b.rng.IntN(len(eps))]
			ev.Stage = StageDownloading
			observe(ev)

			ev.Result = b.dl.Download(ctx, Request{
				Source:    ev.Episode.URL,
				Title:     s.Title,
				Episode:   ev.Episode.Ordinal + 1,
				OutputDir: req.OutputDir,
				Format:    req.Format,
			})
			ev.Stage, ev.Err = StageDone, ev.Result.Error
			observe(ev)
			if ev.Result.Success {
				results = append(results, ev.Result)
			} else {
				util.Warn("Download failed", "series", s.Title, "error", ev.Result.Error)
			}
		}

		if i < total-1 {
			if err := retry.Sleep(ctx, pause); err != nil {
				return results, err
			}
		}
	}
	return results, nil
}
