package downloader

import (
	"context"
	"net/url"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/pkg/errors"
)

// EnsureYtDlp installs a yt-dlp binary into the go-ytdlp cache when none is available
func EnsureYtDlp(ctx context.Context) error {
	if _, err := ytdlp.Install(ctx, nil); err != nil {
		return errors.Wrap(err, "failed to install yt-dlp")
	}
	return nil
}

// RunYtDlp fetches job with yt-dlp:
// <url> -o <template> --no-playlist --format <format> --no-warnings
func RunYtDlp(ctx context.Context, job Job) error {
	dl := ytdlp.New().
		Output(job.Template).
		NoPlaylist().
		Format(job.Format).
		NoWarnings()

	if job.Referer != "" {
		dl.AddHeaders("Referer:" + job.Referer)
		if parsed, err := url.Parse(job.Referer); err == nil && parsed.Host != "" {
			dl.AddHeaders("Origin:" + parsed.Scheme + "://" + parsed.Host)
		}
	}

	if job.Progress != nil {
		var lastFile string
		dl.ProgressFunc(200*time.Millisecond, func(update ytdlp.ProgressUpdate) {
			if update.Status == ytdlp.ProgressStatusPostProcessing ||
				update.Status == ytdlp.ProgressStatusFinished {
				return
			}
			if update.Filename != "" {
				lastFile = update.Filename
			}
			job.Progress(Progress{
				Downloaded: int64(update.DownloadedBytes),
				Total:      int64(update.TotalBytes),
				Filename:   lastFile,
			})
		})
	}

	if _, err := dl.Run(ctx, job.MediaURL); err != nil {
		return errors.Wrap(err, "yt-dlp failed")
	}
	return nil
}
