package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/alvarorichard/animebinge/internal/genre"
	"github.com/alvarorichard/animebinge/internal/models"
	"github.com/alvarorichard/animebinge/internal/util"
)

// stateSetters are the user toggles editable from the command line
var stateSetters = map[string]func(*models.PlaybackState, string) error{
	"autoplay": func(s *models.PlaybackState, v string) error {
		b, err := strconv.ParseBool(v)
		s.Autoplay = b
		return err
	},
	"loop": func(s *models.PlaybackState, v string) error {
		b, err := strconv.ParseBool(v)
		s.LoopAtEnd = b
		return err
	},
	"auto-jump": func(s *models.PlaybackState, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		if b != s.AutoJumpEnabled {
			s.ResetSeries()
		}
		s.AutoJumpEnabled = b
		return nil
	},
	"genres": func(s *models.PlaybackState, v string) error {
		known, unknown := genre.Normalize(lo.Map(strings.Split(v, ","), func(g string, _ int) string {
			return strings.TrimSpace(g)
		}))
		if len(unknown) > 0 {
			return errors.Errorf("unknown genres: %s", strings.Join(unknown, ", "))
		}
		s.SelectedGenres = known
		return nil
	},
}

func (a *app) stateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or edit the stored playback state",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the stored playback state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			state := store.Load(cmd.Context())
			if lo.Must(cmd.Flags().GetBool("json")) {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(state)
			}
			printState(cmd, state)
			return nil
		},
	}
	show.Flags().BoolP("json", "j", false, "print the raw JSON record")

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Forget the stored playback state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), util.Success("Playback state reset"))
			return nil
		},
	}

	set := &cobra.Command{
		Use:       "set <key> <value>",
		Short:     "Change one toggle: autoplay, loop, auto-jump or genres",
		Args:      cobra.ExactArgs(2),
		ValidArgs: lo.Keys(stateSetters),
		RunE: func(cmd *cobra.Command, args []string) error {
			apply, ok := stateSetters[args[0]]
			if !ok {
				keys := lo.Keys(stateSetters)
				sort.Strings(keys)
				return errors.Errorf("unknown key %q, expected one of %s", args[0], strings.Join(keys, ", "))
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			state := store.Load(cmd.Context())
			if err := apply(&state, args[1]); err != nil {
				return errors.Wrapf(err, "invalid value for %s", args[0])
			}
			state.Normalize()
			if err := store.Save(cmd.Context(), state); err != nil {
				return err
			}
			printState(cmd, state)
			return nil
		},
	}

	cmd.AddCommand(show, reset, set)
	return cmd
}

func printState(cmd *cobra.Command, s models.PlaybackState) {
	genres := "none (" + models.DefaultGenre + " is used)"
	if len(s.SelectedGenres) > 0 {
		genres = strings.Join(s.SelectedGenres, ", ")
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %t\n", util.Label("Autoplay:"), s.Autoplay)
	fmt.Fprintf(out, "%s %t\n", util.Label("Loop at end:"), s.LoopAtEnd)
	fmt.Fprintf(out, "%s %t\n", util.Label("Auto-jump:"), s.AutoJumpEnabled)
	fmt.Fprintf(out, "%s %s\n", util.Label("Genres:"), genres)
	if s.HasResumableQueue() {
		fmt.Fprintf(out, "%s %d of %d watched, %d queued\n", util.Label("Series plan:"),
			s.EpisodesWatchedInSeries, s.TargetEpisodesInSeries, len(s.PendingEpisodeQueue))
	}
}
