package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSyncCommand drains the mutation queue and refreshes the cache.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push queued changes and refresh from the remote store",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBooth(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer b.Close()

			// SelectShow already synced once; a second pass reports
			// anything that failed mid-drain.
			syncErr := b.Sync(cmd.Context())

			pending, err := b.PendingCount(cmd.Context())
			if err != nil {
				return err
			}
			if pending > 0 {
				if syncErr != nil {
					return fmt.Errorf("%d change(s) still queued: %w", pending, syncErr)
				}
				return fmt.Errorf("%d change(s) still queued", pending)
			}
			if syncErr != nil {
				return syncErr
			}

			last, err := b.LastSync(cmd.Context())
			if err == nil && !last.IsZero() {
				fmt.Fprintf(cmd.OutOrStdout(), "In sync as of %s\n", last.Local().Format("Jan 02 15:04:05"))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "In sync")
			}
			return nil
		},
	}
}
