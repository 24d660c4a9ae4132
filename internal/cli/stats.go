package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewStatsCommand reports lead statistics for a show.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	var detailed bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show lead statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBooth(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer b.Close()

			out := cmd.OutOrStdout()
			s := b.Stats()
			fmt.Fprintf(out, "Total leads: %d\n", s.Total)
			fmt.Fprintf(out, "  hot: %d  warm: %d  browsing: %d\n", s.Hot, s.Warm, s.Browsing)
			if s.Pending > 0 {
				fmt.Fprintf(out, "  pending sync: %d\n", s.Pending)
			}

			if !detailed {
				return nil
			}

			d := b.DetailedStats()
			fmt.Fprintf(out, "\nWith email: %d  phone: %d  voice note: %d\n", d.WithEmail, d.WithPhone, d.WithVoice)
			if len(d.Interests) > 0 {
				fmt.Fprintln(out, "\nTop interests:")
				for _, cs := range d.Interests {
					fmt.Fprintf(out, "  %-20s %3d (%.0f%%)\n", cs.Label, cs.Count, cs.Percent)
				}
			}
			if len(d.States) > 0 {
				fmt.Fprintln(out, "\nBy state:")
				for _, cs := range d.States {
					fmt.Fprintf(out, "  %-20s %3d (%.0f%%)\n", cs.Label, cs.Count, cs.Percent)
				}
			}
			if len(d.Capturers) > 0 {
				fmt.Fprintln(out, "\nBy staff member:")
				for _, cs := range d.Capturers {
					fmt.Fprintf(out, "  %-20s %3d (%.0f%%)\n", cs.Label, cs.Count, cs.Percent)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&detailed, "detailed", false, "include interest, state and staff breakdowns")
	return cmd
}
