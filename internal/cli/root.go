// Package cli implements the command-line interface for nutrisync.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/colthorp/nutrisync-cli-go/internal/app"
	"github.com/colthorp/nutrisync-cli-go/internal/config"
	"github.com/colthorp/nutrisync-cli-go/internal/core"
	"github.com/colthorp/nutrisync-cli-go/internal/logging"
)

// globals holds the persistent flags and the loaded config of one invocation.
type globals struct {
	cfgFile  string
	verbose  bool
	quiet    bool
	raw      bool
	timezone string
	baseURL  string

	v      *viper.Viper
	now    func() time.Time
	cfg    *config.Config
	log    zerolog.Logger
	stderr io.Writer
}

// NewRootCmd builds the full command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{v: viper.New(), now: time.Now, stderr: os.Stderr}

	rootCmd := &cobra.Command{
		Use:           core.AppName,
		Short:         "nutrisync – track food, exercise and water against your daily targets",
		Long:          `A command-line client for the nutrisync backend. Writes show up immediately and are reconciled with the server in the background.`,
		Version:       core.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			g.stderr = cmd.ErrOrStderr()
			return g.load(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.cfgFile, "config", "", "Config file (default: $HOME/.nutrisync.yaml)")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "Verbose debug output to stderr")
	pf.BoolVar(&g.quiet, "quiet", false, "Suppress progress messages")
	pf.BoolVar(&g.raw, "raw", false, "Emit raw JSON instead of markdown")
	pf.StringVar(&g.timezone, "timezone", "", fmt.Sprintf("Timezone for date calculations (default: %s)", core.DefaultTZ))
	pf.StringVar(&g.baseURL, "base-url", "", "Backend URL (overrides api.baseURL)")
	g.v.BindPFlag("timezone", pf.Lookup("timezone"))
	g.v.BindPFlag("api.baseURL", pf.Lookup("base-url"))

	rootCmd.AddCommand(
		newDashboardCmd(g),
		newWeekCmd(g),
		newLogCmd(g),
		newExerciseCmd(g),
		newFoodCmd(g),
		newWaterCmd(g),
		newEstimateCmd(g),
		newChatCmd(g),
		newLoginCmd(g),
		newLogoutCmd(g),
		newMockServerCmd(g),
		newMCPCmd(g),
	)
	for _, period := range []string{"today", "yesterday", "this-week", "last-week", "this-month", "last-month"} {
		rootCmd.AddCommand(newRelativePeriodCmd(g, period))
	}
	return rootCmd
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// load reads the config and installs the logger.
func (g *globals) load(cmd *cobra.Command) error {
	cfg, err := config.Load(g.v, g.cfgFile)
	if err != nil {
		return err
	}
	g.cfg = cfg

	level := cfg.Log.Level
	if g.verbose {
		level = "debug"
	}
	g.log = logging.Setup(level, g.stderr)
	if cfg.File != "" {
		g.log.Debug().Str("file", cfg.File).Msg("config loaded")
	}
	return nil
}

// progress prints a status line unless --quiet is set.
func (g *globals) progress(format string, args ...interface{}) {
	if !g.quiet {
		fmt.Fprintf(g.stderr, format+"\n", args...)
	}
}

// withApp builds the application, runs fn and waits for background work.
func (g *globals) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	a, err := app.New(g.cfg, app.Options{Now: g.now})
	if err != nil {
		return err
	}
	runErr := fn(cmd.Context(), a)
	if err := a.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// resolveDate turns a date spec into YYYY-MM-DD in the configured timezone.
func (g *globals) resolveDate(spec string) (string, error) {
	t, err := core.ParseDateSpecAt(strings.TrimSpace(spec), g.now(), g.cfg.Location())
	if err != nil {
		return "", err
	}
	return core.FormatDate(t), nil
}
