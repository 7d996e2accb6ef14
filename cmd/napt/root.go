package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/RogerCibrian/notapkgtool-sub000/internal/logging"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/output"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/settings"
)

// rootOptions carries the persistent flag values shared by every command.
type rootOptions struct {
	settingsPath string
	recipesPath  string
	outputFormat string
	logLevel     string
	logFormat    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "napt",
		Short: "Track, fetch, and verify new releases of external applications",
		Long: `napt watches a fleet of externally-versioned applications. For each one
it answers: is there a newer release, and if so, fetch and verify the
artifact, without re-downloading or re-probing when nothing changed.

Applications are declared in a Lua recipe file; runtime behavior lives in a
TOML settings file. Run 'napt check' to discover and download, 'napt status'
to inspect the cache, and 'napt history' to review past runs.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.settingsPath, "settings", "", "Settings file (default ~/.config/napt/settings.toml)")
	cmd.PersistentFlags().StringVar(&opts.recipesPath, "recipes", "", "Recipe file declaring tracked applications (overrides settings)")
	cmd.PersistentFlags().StringVarP(&opts.outputFormat, "output", "o", "text", "Output format: text, json, yaml")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides settings)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format: text or json (overrides settings)")

	cmd.AddCommand(newCheckCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))

	_ = cmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// loadSettings reads the settings file, applies flag overrides, and
// configures logging for the run.
func (o *rootOptions) loadSettings() (*settings.Settings, error) {
	s, err := settings.Load(o.settingsPath)
	if err != nil {
		return nil, err
	}

	if o.recipesPath != "" {
		s.RecipePath = o.recipesPath
	}
	if o.logLevel != "" {
		s.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		s.Log.Format = o.logFormat
	}

	level, err := logging.ParseLevel(s.Log.Level)
	if err != nil {
		return nil, err
	}
	logging.Init(level, s.Log.Format)

	return s, nil
}

// writer builds the result writer for w in the selected output format.
func (o *rootOptions) writer(w io.Writer) (*output.Writer, output.Format, error) {
	format, err := output.ParseFormat(o.outputFormat)
	if err != nil {
		return nil, "", err
	}
	return output.NewWriter(w, format), format, nil
}
