package cli

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/huh/spinner"
	"github.com/ktr0731/go-fuzzyfinder"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/alvarorichard/animebinge/internal/bridge"
	"github.com/alvarorichard/animebinge/internal/browser"
	"github.com/alvarorichard/animebinge/internal/config"
	"github.com/alvarorichard/animebinge/internal/controller"
	"github.com/alvarorichard/animebinge/internal/discord"
	"github.com/alvarorichard/animebinge/internal/genre"
	"github.com/alvarorichard/animebinge/internal/inspect"
	"github.com/alvarorichard/animebinge/internal/models"
	"github.com/alvarorichard/animebinge/internal/session"
	"github.com/alvarorichard/animebinge/internal/util"
	"github.com/alvarorichard/animebinge/internal/watch"
)

func (a *app) watchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Open the site in a controlled browser and keep the episodes coming",
		Example: "  animebinge watch --url https://9animetv.to/watch/frieren-18542\n" +
			"  animebinge watch --auto-jump --genres Comedy,Drama",
		Args: cobra.NoArgs,
		RunE: a.runWatch,
	}

	f := cmd.Flags()
	f.String("url", "", "page to open first (defaults to the site home)")
	f.Bool("pick", false, "choose the starting episode of --url with a fuzzy finder")
	f.Bool("headless", false, "run the browser without a window")
	f.Bool("fullscreen", false, "start the browser fullscreen")
	f.String("store", "", "session store backend: sqlite or file")
	f.String("state-path", "", "session store location")
	f.String("control-addr", "", "address of the local control API, empty disables it")
	f.Bool("discord", false, "show the playing episode as Discord Rich Presence")
	f.Bool("auto-jump", false, "enable genre auto-jump before starting")
	f.StringSlice("genres", nil, "genres used by auto-jump")

	lo.Must0(cmd.RegisterFlagCompletionFunc("genres", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return genre.Available, cobra.ShellCompDirectiveNoFileComp
	}))
	return cmd
}

func (a *app) runWatch(cmd *cobra.Command, _ []string) error {
	if err := a.bindFlags(cmd, map[string]string{
		"headless":     config.KeyWatchHeadless,
		"fullscreen":   config.KeyWatchFullscreen,
		"store":        config.KeyWatchStore,
		"state-path":   config.KeyWatchStatePath,
		"control-addr": config.KeyWatchControlAddr,
		"discord":      config.KeyWatchDiscord,
	}); err != nil {
		return err
	}
	ctx := cmd.Context()
	w := a.cfg.Watch()

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := applyStartState(ctx, cmd, store); err != nil {
		return err
	}

	opts := browser.DefaultOptions()
	opts.Headless = w.Headless
	opts.Fullscreen = w.Fullscreen

	var sess *browser.Session
	_ = spinner.New().
		Title("Starting browser...").
		Type(spinner.Dots).
		Action(func() { sess, err = browser.Launch(opts) }).
		Run()
	if err != nil {
		return err
	}
	defer sess.Close()

	start := mustString(cmd, "url")
	if start == "" {
		start = a.cfg.BaseURL() + "/home"
	}
	if lo.Must(cmd.Flags().GetBool("pick")) {
		if start, err = pickEpisode(ctx, sess, start); err != nil {
			return err
		}
	}

	var ropts []watch.Option
	if w.Discord {
		presence := discord.New()
		if err := presence.Login(); err != nil {
			util.Warn("Discord Rich Presence unavailable", "error", err)
		} else {
			defer presence.Logout()
			ropts = append(ropts, watch.WithPresence(presence))
		}
	}

	runner := watch.New(watch.FromSession(sess), store, genre.NewSelector(a.cfg.BaseURL()), watch.Options{
		StartURL: start,
		Page: controller.Config{
			EndDelay:        w.EndDelay,
			TransitionDelay: w.TransitionDelay,
			InflightTimeout: w.InflightTimeout,
			AllowedOrigins:  w.AllowedOrigins,
		},
		Child: bridge.DefaultChildConfig(),
	}, ropts...)

	if w.ControlAddr != "" {
		handler := inspect.NewHandler(func() inspect.Controller {
			if page := runner.Current(); page != nil {
				return page
			}
			return nil
		})
		go func() {
			if err := inspect.Serve(ctx, w.ControlAddr, inspect.Router(handler)); err != nil {
				util.Warn("Control API stopped", "error", err)
			}
		}()
	}

	util.Info("Watching", "url", start, "store", w.Store)
	return runner.Run(ctx)
}

// applyStartState writes the auto-jump flags into the stored state before
// the first page load reads it
func applyStartState(ctx context.Context, cmd *cobra.Command, store session.Store) error {
	autoJump := cmd.Flags().Changed("auto-jump")
	genresSet := cmd.Flags().Changed("genres")
	if !autoJump && !genresSet {
		return nil
	}

	state := store.Load(ctx)
	if autoJump {
		state.AutoJumpEnabled = lo.Must(cmd.Flags().GetBool("auto-jump"))
		state.ResetSeries()
	}
	if genresSet {
		known, unknown := genre.Normalize(lo.Must(cmd.Flags().GetStringSlice("genres")))
		if len(unknown) > 0 {
			util.Warn("Ignoring unknown genres", "genres", strings.Join(unknown, ", "))
		}
		state.SelectedGenres = known
	}
	state.Normalize()
	return store.Save(ctx, state)
}

// pickEpisode lists the episodes of seriesURL and lets the user choose where to start
func pickEpisode(ctx context.Context, sess *browser.Session, seriesURL string) (string, error) {
	var (
		episodes []models.Episode
		err      error
	)
	_ = spinner.New().
		Title("Loading episodes...").
		Type(spinner.Dots).
		Action(func() { episodes, err = browser.NewExtractor(sess).Episodes(ctx, seriesURL) }).
		Run()
	if err != nil {
		return "", err
	}
	if len(episodes) == 0 {
		return "", errors.New("no episodes found on " + seriesURL)
	}

	idx, err := fuzzyfinder.Find(
		episodes,
		func(i int) string { return episodes[i].DisplayName() },
		fuzzyfinder.WithPromptString("Start from: "),
	)
	if err != nil {
		return "", err
	}
	util.Debug("Episode picked", "episode", episodes[idx].Title, "url", episodes[idx].URL)
	return episodes[idx].URL, nil
}
