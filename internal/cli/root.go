// Package cli implements the animebinge command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/alvarorichard/animebinge/internal/config"
	"github.com/alvarorichard/animebinge/internal/session"
	"github.com/alvarorichard/animebinge/internal/util"
	"github.com/alvarorichard/animebinge/internal/version"
)

// app carries what every command needs once the root pre-run has loaded
// the configuration
type app struct {
	fs         afero.Fs
	cfg        *config.Config
	configPath string
	debug      bool
}

// NewRootCommand builds the command tree over fs
func NewRootCommand(fs afero.Fs) *cobra.Command {
	a := &app{fs: fs}

	root := &cobra.Command{
		Use:   version.Name,
		Short: "Binge anime in the browser: autoplay, episode continuity and genre auto-jump",
		Long: util.Title(version.Name) + "\n" +
			"Plays a series episode after episode, remembers where it left off across page\n" +
			"loads and can jump to a random series of your favourite genres when one ends.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			util.SetDebugMode(a.debug)
			util.InitLogger()

			cfg, err := config.Load(a.fs, a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			util.Debug("Configuration loaded", "path", cfg.Path(), "command", cmd.Name())
			return nil
		},
	}

	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultPath(), "config file")

	root.AddCommand(
		a.watchCommand(),
		a.downloadCommand(),
		a.stateCommand(),
		a.configCommand(),
		a.genresCommand(),
		a.versionCommand(),
		a.installCommand(),
	)
	return root
}

// Execute runs the command line and returns the process exit code
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand(afero.NewOsFs()).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, util.ErrorHandler(err))
		return 1
	}
	return 0
}

// bindFlags routes the named flags of cmd to config keys so explicit flags
// override the file and the environment
func (a *app) bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for name, key := range keys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			return fmt.Errorf("unknown flag %q", name)
		}
		if err := a.cfg.BindFlag(key, flag); err != nil {
			return err
		}
	}
	return nil
}

// openStore opens the configured session store
func (a *app) openStore() (session.Store, error) {
	w := a.cfg.Watch()
	opts := session.Options{Backend: w.Store, Path: w.StatePath}
	if w.Store == session.BackendFile {
		opts.Fs = a.fs
	}
	return session.Open(opts)
}

func mustString(cmd *cobra.Command, name string) string {
	return lo.Must(cmd.Flags().GetString(name))
}
