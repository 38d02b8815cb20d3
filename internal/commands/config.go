package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stagepass/passctl/internal/appctx"
	"github.com/stagepass/passctl/internal/config"
	"github.com/stagepass/passctl/internal/output"
)

// NewConfigCmd creates the config command group.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  "Get, set, and list configuration values. Set values are written to the global config file.",
	}

	cmd.AddCommand(
		newConfigGetCmd(),
		newConfigSetCmd(),
		newConfigUnsetCmd(),
		newConfigListCmd(),
	)

	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Show one configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())

			value, source, ok := app.Config.Value(args[0])
			if !ok {
				return output.ErrUsage(fmt.Sprintf("unknown config key %q (known: %v)", args[0], config.SettableKeys()))
			}
			return app.OKSummary(
				map[string]any{"key": args[0], "value": value, "source": source},
				fmt.Sprintf("%s = %v (%s)", args[0], value, source),
			)
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Persist a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())

			if err := config.SetValue(args[0], args[1]); err != nil {
				return output.ErrUsage(err.Error())
			}
			return app.OKSummary(
				map[string]string{"key": args[0], "value": args[1]},
				fmt.Sprintf("Set %s = %s", args[0], args[1]),
			)
		},
	}
}

func newConfigUnsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())

			if err := config.UnsetValue(args[0]); err != nil {
				return output.ErrUsage(err.Error())
			}
			return app.OKSummary(map[string]string{"key": args[0]}, fmt.Sprintf("Unset %s", args[0]))
		},
	}
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show all configuration values and their sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())

			entries := make(map[string]any, len(config.SettableKeys()))
			for _, key := range config.SettableKeys() {
				value, source, _ := app.Config.Value(key)
				entries[key] = map[string]any{"value": value, "source": source}
			}
			return app.OK(entries)
		},
	}
}
