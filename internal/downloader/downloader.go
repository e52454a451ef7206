// Package downloader saves episodes to disk with yt-dlp, resolving watch
// pages to stream URLs through a headless browser first.
package downloader

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/alvarorichard/animebinge/internal/util"
)

// UnknownFilename is reported when yt-dlp succeeded but no output file matched
const UnknownFilename = "Unknown"

// DefaultFormat is the yt-dlp format selector used when none is configured
const DefaultFormat = "best"

// StreamResolver turns a watch page into a direct media URL
type StreamResolver interface {
	StreamURL(ctx context.Context, pageURL string) (string, error)
}

// Progress is one progress report of a running download
type Progress struct {
	Downloaded int64
	Total      int64
	Filename   string
}

// Fraction returns the completed share in [0, 1], or 0 when the total is unknown
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	f := float64(p.Downloaded) / float64(p.Total)
	if f > 1 {
		return 1
	}
	return f
}

// ProgressFunc receives progress reports
type ProgressFunc func(Progress)

// Job is what a runner is asked to fetch
type Job struct {
	MediaURL string
	// Template is the yt-dlp output template, ending in .%(ext)s
	Template string
	Format   string
	Referer  string
	Progress ProgressFunc
}

// RunFunc fetches one job; the default is yt-dlp
type RunFunc func(ctx context.Context, job Job) error

// Request describes one download
type Request struct {
	// Source is a watch page, or a media URL when Direct is set
	Source    string
	Direct    bool
	Title     string
	Episode   int
	OutputDir string
	Format    string
	Progress  ProgressFunc
}

// Result is the outcome of one download. Failures are reported here rather
// than as an error so batches keep going.
type Result struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename"`
	Path     string `json:"path,omitempty"`
	Error    error  `json:"-"`
}

// Downloader resolves and downloads episodes
type Downloader struct {
	fs       afero.Fs
	run      RunFunc
	resolver StreamResolver
}

// Option customizes a Downloader
type Option func(*Downloader)

// WithFs sets the filesystem used to create the output directory and find the file
func WithFs(fs afero.Fs) Option { return func(d *Downloader) { d.fs = fs } }

// WithRunner replaces yt-dlp
func WithRunner(run RunFunc) Option { return func(d *Downloader) { d.run = run } }

// New creates a downloader. resolver may be nil when only direct URLs are used.
func New(resolver StreamResolver, opts ...Option) *Downloader {
	d := &Downloader{
		fs:       afero.NewOsFs(),
		run:      RunYtDlp,
		resolver: resolver,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// BaseName is the file name without extension: the sanitized title, plus
// _Episode_<n> when an episode number is given
func BaseName(title string, episode int) string {
	safe := util.SanitizeFilename(title)
	if safe == "" {
		safe = "video"
	}
	if episode > 0 {
		return fmt.Sprintf("%s_Episode_%d", safe, episode)
	}
	return safe
}

// Download resolves req.Source when needed and fetches it into req.OutputDir
func (d *Downloader) Download(ctx context.Context, req Request) Result {
	if req.OutputDir == "" {
		return Result{Error: errors.New("output directory is not set")}
	}

	mediaURL := req.Source
	if !req.Direct {
		if d.resolver == nil {
			return Result{Error: errors.New("no stream resolver configured")}
		}
		u, err := d.resolver.StreamURL(ctx, req.Source)
		if err != nil {
			return Result{Error: errors.Wrap(err, "could not extract video URL from page")}
		}
		mediaURL = u
	}
	util.Debug("Resolved media URL", "source", req.Source, "media", mediaURL)

	if err := d.fs.MkdirAll(req.OutputDir, 0o755); err != nil {
		return Result{Error: errors.Wrap(err, "failed to create output directory")}
	}

	format := req.Format
	if format == "" {
		format = DefaultFormat
	}
	base := BaseName(req.Title, req.Episode)
	job := Job{
		MediaURL: mediaURL,
		Template: filepath.Join(req.OutputDir, base+".%(ext)s"),
		Format:   format,
		Progress: req.Progress,
	}
	if !req.Direct {
		job.Referer = req.Source
	}

	if err := d.run(ctx, job); err != nil {
		return Result{Error: errors.Wrap(err, "download failed")}
	}

	name := d.findOutput(req.OutputDir, base)
	if name == "" {
		util.Warn("Download finished but no file matched", "dir", req.OutputDir, "prefix", base)
		return Result{Success: true, Filename: UnknownFilename}
	}
	return Result{Success: true, Filename: name, Path: filepath.Join(req.OutputDir, name)}
}

// findOutput returns the first finished file in dir named prefix.<ext>
func (d *Downloader) findOutput(dir, prefix string) string {
	entries, err := afero.ReadDir(d.fs, dir)
	if err != nil {
		util.Debug("Failed to list output directory", "dir", dir, "error", err)
		return ""
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		// Show_Episode_1 must not pick up Show_Episode_12.mp4
		if rest := name[len(prefix):]; rest != "" && rest[0] != '.' {
			continue
		}
		if strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".ytdl") {
			continue
		}
		return name
	}
	return ""
}
