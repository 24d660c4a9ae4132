// Package cli implements the boothctl command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/boothkit/boothkit/config"
	"github.com/boothkit/boothkit/logging"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	ConfigPath string
	ShowID     string

	cfg *config.Config
}

// Config returns the loaded configuration. Valid after PersistentPreRunE.
func (o *RootOptions) Config() *config.Config { return o.cfg }

// NewRootCommand creates the boothctl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "boothctl",
		Short: "Offline-first lead capture for trade-show booths",
		Long: `boothctl captures and manages trade-show leads against a local
cache that syncs with a remote store. Writes made while the remote is
unreachable queue locally and replay in order on the next sync.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg

			if opts.ConfigPath == "" {
				// No config file: the process environment drives logging.
				logging.Init(logging.GetConfigFromEnv())
			} else {
				logging.Init(logging.Config{
					Level:       cfg.Log.Level,
					Format:      cfg.Log.Format,
					AddSource:   cfg.Log.AddSource,
					Environment: cfg.Environment,
				})
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a boothkit YAML config file")
	cmd.PersistentFlags().StringVar(&opts.ShowID, "show", "", "trade show to operate on")

	cmd.AddCommand(NewLeadCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewUserCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}
