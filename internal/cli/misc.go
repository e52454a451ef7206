package cli

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/huh/spinner"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/alvarorichard/animebinge/internal/browser"
	"github.com/alvarorichard/animebinge/internal/config"
	"github.com/alvarorichard/animebinge/internal/downloader"
	"github.com/alvarorichard/animebinge/internal/genre"
	"github.com/alvarorichard/animebinge/internal/util"
	"github.com/alvarorichard/animebinge/internal/version"
)

func (a *app) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and write configuration keys",
	}

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Print the effective value of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !config.Known(args[0]) {
				return errors.Errorf("unknown key %q", args[0])
			}
			raw, err := json.Marshal(a.cfg.Get(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write a key to the config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !config.Known(args[0]) {
				return errors.Errorf("unknown key %q", args[0])
			}
			a.cfg.Set(args[0], args[1])
			if err := a.cfg.Save(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), util.Success(args[0]+" = "+args[1]))
			return nil
		},
	}

	where := &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), a.cfg.Path())
		},
	}

	cmd.AddCommand(get, set, where)
	return cmd
}

func (a *app) genresCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "genres",
		Short: "List the genres accepted by auto-jump and random downloads",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			withURL := lo.Must(cmd.Flags().GetBool("urls"))
			for _, g := range genre.Available {
				if withURL {
					fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", g, genre.ListingURL(a.cfg.BaseURL(), g))
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), g)
			}
		},
	}
	cmd.Flags().Bool("urls", false, "also print the listing URL of each genre")
	return cmd
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			version.Show(cmd.OutOrStdout())
		},
	}
}

func (a *app) installCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Download the Chromium build and yt-dlp binary used by animebinge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			_ = spinner.New().
				Title("Installing Chromium...").
				Type(spinner.Dots).
				Action(func() { err = browser.Install() }).
				Run()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), util.Success("Chromium ready"))

			_ = spinner.New().
				Title("Installing yt-dlp...").
				Type(spinner.Dots).
				Action(func() { err = downloader.EnsureYtDlp(cmd.Context()) }).
				Run()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), util.Success("yt-dlp ready"))
			return nil
		},
	}
}
