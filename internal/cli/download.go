package cli

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/alvarorichard/animebinge/internal/browser"
	"github.com/alvarorichard/animebinge/internal/config"
	"github.com/alvarorichard/animebinge/internal/downloader"
	"github.com/alvarorichard/animebinge/internal/genre"
	"github.com/alvarorichard/animebinge/internal/util"
)

var trailingID = regexp.MustCompile(`-\d+$`)

func (a *app) downloadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download episodes with yt-dlp",
	}
	cmd.PersistentFlags().StringP("output", "o", "", "output directory")
	cmd.PersistentFlags().String("format", "", "yt-dlp format selector")

	cmd.AddCommand(a.downloadURLCommand(), a.downloadRandomCommand())
	return cmd
}

func (a *app) downloadURLCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "url [page-or-stream-url]",
		Short: "Download one episode page or a direct stream URL",
		Args:  cobra.MaximumNArgs(1),
		RunE:  a.runDownloadURL,
	}
	cmd.Flags().String("title", "", "title used for the file name (defaults to the series slug)")
	cmd.Flags().Int("episode", 0, "episode number appended to the file name")
	cmd.Flags().Bool("direct", false, "treat the URL as a stream and skip page extraction")
	return cmd
}

func (a *app) downloadRandomCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "random",
		Short: "Download one random episode from each of several random series of a genre",
		Args:  cobra.NoArgs,
		RunE:  a.runDownloadRandom,
	}
	cmd.Flags().String("genre", "", "genre to draw from (prompted when empty)")
	cmd.Flags().Int("count", 0, "number of series (prompted when zero)")
	lo.Must0(cmd.RegisterFlagCompletionFunc("genre", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return genre.Available, cobra.ShellCompDirectiveNoFileComp
	}))
	return cmd
}

func (a *app) bindDownloadFlags(cmd *cobra.Command) error {
	return a.bindFlags(cmd, map[string]string{
		"output": config.KeyDownloadOutputDir,
		"format": config.KeyDownloadQuality,
	})
}

func (a *app) runDownloadURL(cmd *cobra.Command, args []string) error {
	if err := a.bindDownloadFlags(cmd); err != nil {
		return err
	}
	ctx := cmd.Context()
	d := a.cfg.Download()

	source := ""
	if len(args) == 1 {
		source = args[0]
	} else {
		var err error
		source, err = util.PromptInput("Episode page or stream URL", validateURL)
		if err != nil {
			return err
		}
	}
	if err := validateURL(source); err != nil {
		return err
	}

	direct := lo.Must(cmd.Flags().GetBool("direct")) || browser.IsStreamURL(source)
	title := mustString(cmd, "title")
	if title == "" {
		title = TitleFromURL(source)
	}
	episode := lo.Must(cmd.Flags().GetInt("episode"))

	var resolver downloader.StreamResolver
	if !direct {
		sess, err := launchHeadless()
		if err != nil {
			return err
		}
		defer sess.Close()
		resolver = browser.NewExtractor(sess)
	}
	dl := downloader.New(resolver, downloader.WithFs(a.fs))

	res := downloader.WithProgress(ctx, title, func(ctx context.Context, report downloader.ProgressFunc) downloader.Result {
		return dl.Download(ctx, downloader.Request{
			Source:    source,
			Direct:    direct,
			Title:     title,
			Episode:   episode,
			OutputDir: d.OutputDir,
			Format:    d.Quality,
			Progress:  report,
		})
	})
	if !res.Success {
		return res.Error
	}
	fmt.Println(util.Success("Saved " + lo.Ternary(res.Path != "", res.Path, "to "+d.OutputDir)))
	return nil
}

func (a *app) runDownloadRandom(cmd *cobra.Command, _ []string) error {
	if err := a.bindDownloadFlags(cmd); err != nil {
		return err
	}
	ctx := cmd.Context()
	d := a.cfg.Download()

	chosen := mustString(cmd, "genre")
	count := lo.Must(cmd.Flags().GetInt("count"))
	if chosen == "" || count == 0 {
		var err error
		if chosen, count, err = promptBatch(lo.Ternary(chosen != "", chosen, d.LastGenre), lo.Ternary(count > 0, count, d.LastCount)); err != nil {
			return err
		}
	}
	canonical, ok := genre.Canonical(chosen)
	if !ok {
		return errors.Errorf("unknown genre %q, see `animebinge genres`", chosen)
	}
	if err := validateCount(strconv.Itoa(count)); err != nil {
		return err
	}
	if err := a.cfg.RememberDownload(canonical, count); err != nil {
		util.Warn("Could not save the download choice", "error", err)
	}

	sess, err := launchHeadless()
	if err != nil {
		return err
	}
	defer sess.Close()

	extractor := browser.NewExtractor(sess)
	dl := downloader.New(extractor, downloader.WithFs(a.fs))
	batch := downloader.NewBatch(dl, genre.NewSelector(a.cfg.BaseURL()), extractor)

	fmt.Println(util.Title(fmt.Sprintf("Downloading %d random %s anime", count, canonical)))
	results, err := batch.Run(ctx, downloader.BatchRequest{
		Genre:     canonical,
		Count:     count,
		OutputDir: d.OutputDir,
		Format:    d.Quality,
	}, printBatchEvent)

	fmt.Printf("\n%s %d/%d downloads in %s\n", util.Label("Finished:"), len(results), count, d.OutputDir)
	return err
}

func printBatchEvent(ev downloader.BatchEvent) {
	pos := fmt.Sprintf("[%d/%d]", ev.Index+1, ev.Total)
	switch ev.Stage {
	case downloader.StageSelected:
		fmt.Printf("%s %d series selected\n", util.Label("Listing:"), ev.Total)
	case downloader.StageEpisodes:
		fmt.Printf("\n%s %s\n", util.Label(pos), ev.Series.Title)
	case downloader.StageDownloading:
		fmt.Printf("  %d episodes, picked %s\n", ev.Episodes, ev.Episode.Title)
	case downloader.StageDone:
		if ev.Result.Success {
			fmt.Println("  " + util.Success(ev.Result.Filename))
		} else {
			fmt.Printf("  failed: %v\n", ev.Err)
		}
	case downloader.StageSkipped:
		fmt.Printf("  skipped: %v\n", ev.Err)
	}
}

// promptBatch asks for the genre and the number of series
func promptBatch(defGenre string, defCount int) (string, int, error) {
	chosen := defGenre
	countStr := strconv.Itoa(defCount)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Genre").
				Options(huh.NewOptions(genre.Available...)...).
				Height(12).
				Value(&chosen),
			huh.NewInput().
				Title(fmt.Sprintf("How many anime? (1-%d)", downloader.MaxBatch)).
				Value(&countStr).
				Validate(validateCount),
		),
	)
	if err := form.Run(); err != nil {
		return "", 0, errors.Wrap(err, "prompt cancelled")
	}
	count, _ := strconv.Atoi(strings.TrimSpace(countStr))
	return chosen, count, nil
}

func validateCount(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return errors.New("enter a number")
	}
	if n < 1 || n > downloader.MaxBatch {
		return errors.Errorf("choose between 1 and %d", downloader.MaxBatch)
	}
	return nil
}

func validateURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("enter an http(s) URL")
	}
	return nil
}

// TitleFromURL turns /watch/frieren-beyond-journeys-end-18542 into
// "frieren beyond journeys end". Stream URLs yield their file stem.
func TitleFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return ""
	}
	if ext := path.Ext(base); ext != "" {
		return strings.TrimSuffix(base, ext)
	}
	return strings.ReplaceAll(trailingID.ReplaceAllString(base, ""), "-", " ")
}

func launchHeadless() (*browser.Session, error) {
	opts := browser.DefaultOptions()
	opts.Headless = true

	var (
		sess *browser.Session
		err  error
	)
	_ = spinner.New().
		Title("Starting headless browser...").
		Type(spinner.Dots).
		Action(func() { sess, err = browser.Launch(opts) }).
		Run()
	return sess, err
}
