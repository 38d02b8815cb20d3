// Package cli assembles the root command and global flags.
package cli

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/stagepass/passctl/internal/appctx"
	"github.com/stagepass/passctl/internal/commands"
	"github.com/stagepass/passctl/internal/config"
	"github.com/stagepass/passctl/internal/output"
	"github.com/stagepass/passctl/internal/version"
)

// NewRootCmd creates the root cobra command.
func NewRootCmd() *cobra.Command {
	var flags appctx.GlobalFlags

	cmd := &cobra.Command{
		Use:           "passctl",
		Short:         "Command-line client for the StagePass platform",
		Long:          "passctl authenticates against the StagePass ticketing platform and gives raw, scriptable access to its API.",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" || cmd.Name() == "completion" {
				return nil
			}

			cfg, err := config.Load(config.FlagOverrides{
				BaseURL:  flags.BaseURL,
				CacheDir: flags.CacheDir,
				Verbose:  flags.Verbose,
				HasVerb:  cmd.Flags().Changed("verbose"),
				Stats:    flags.Stats,
				HasStats: cmd.Flags().Changed("stats"),
			})
			if err != nil {
				return err
			}

			app := appctx.NewApp(cfg)
			app.Flags = flags
			app.ApplyFlags()

			cmd.SetContext(appctx.WithApp(cmd.Context(), app))
			return nil
		},
	}

	// Allow flags anywhere in the command line.
	cmd.Flags().SetInterspersed(true)
	cmd.PersistentFlags().SetInterspersed(true)

	registerGlobalFlags(cmd.PersistentFlags(), &flags)

	cmd.AddCommand(
		commands.NewAuthCmd(),
		commands.NewAPICmd(),
		commands.NewConfigCmd(),
		commands.NewDoctorCmd(),
		commands.NewVersionCmd(),
	)

	return cmd
}

func registerGlobalFlags(fs *pflag.FlagSet, flags *appctx.GlobalFlags) {
	fs.BoolVarP(&flags.JSON, "json", "j", false, "Output as JSON envelope")
	fs.BoolVarP(&flags.Quiet, "quiet", "q", false, "Output data only, no envelope")
	fs.CountVarP(&flags.Verbose, "verbose", "v", "Verbose output (-v for auth/server events, -vv for requests)")
	fs.BoolVar(&flags.Stats, "stats", false, "Show session statistics on stderr")
	fs.StringVar(&flags.BaseURL, "base-url", "", "StagePass API base URL")
	fs.StringVar(&flags.CacheDir, "cache-dir", "", "State directory for credentials and resilience data")
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	cmd := NewRootCmd()

	// ExecuteC exposes the executed subcommand, whose context carries
	// the app.
	executedCmd, err := cmd.ExecuteC()

	app := appctx.FromContext(executedCmd.Context())
	if app != nil {
		defer app.PrintStats()
	}

	if err == nil {
		return output.ExitOK
	}
	if app != nil {
		return app.ReportError(err, executedCmd.CalledAs())
	}
	cmd.PrintErrln("Error:", err)
	return output.ExitUsage
}

// Main is the process entry point.
func Main() {
	os.Exit(Execute())
}
