package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/boothkit/boothkit/lead"
)

// NewLeadCommand groups the lead subcommands.
func NewLeadCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lead",
		Short: "Capture and manage leads",
	}
	cmd.AddCommand(newLeadAddCommand(rootOpts))
	cmd.AddCommand(newLeadListCommand(rootOpts))
	cmd.AddCommand(newLeadRemoveCommand(rootOpts))
	return cmd
}

type leadAddOptions struct {
	ContactName string
	StoreName   string
	Email       string
	Phone       string
	City        string
	State       string
	ZipCode     string
	Interests   []string
	Temperature string
	Notes       string
	CreatedBy   string
}

func newLeadAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &leadAddOptions{}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Capture a new lead",
		Long: `Capture a new lead for the selected show. When the remote store is
unreachable the lead is cached locally and queued for the next sync.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBooth(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer b.Close()

			created, err := b.AddLead(cmd.Context(), lead.Lead{
				ContactName: opts.ContactName,
				StoreName:   opts.StoreName,
				Email:       opts.Email,
				Phone:       opts.Phone,
				City:        opts.City,
				State:       opts.State,
				ZipCode:     opts.ZipCode,
				Interests:   opts.Interests,
				Temperature: lead.Temperature(opts.Temperature),
				Notes:       opts.Notes,
				CreatedBy:   opts.CreatedBy,
			})
			if err != nil {
				return err
			}

			if created.Synced() {
				fmt.Fprintf(cmd.OutOrStdout(), "Captured lead %s (synced)\n", created.ID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Captured lead %s (queued for sync)\n", created.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.ContactName, "contact", "", "contact name (required)")
	cmd.Flags().StringVar(&opts.StoreName, "store", "", "store name (required)")
	cmd.Flags().StringVar(&opts.Email, "email", "", "contact email")
	cmd.Flags().StringVar(&opts.Phone, "phone", "", "contact phone")
	cmd.Flags().StringVar(&opts.City, "city", "", "city")
	cmd.Flags().StringVar(&opts.State, "state", "", "state")
	cmd.Flags().StringVar(&opts.ZipCode, "zip", "", "zip code")
	cmd.Flags().StringSliceVar(&opts.Interests, "interest", nil, "product interest (repeatable)")
	cmd.Flags().StringVar(&opts.Temperature, "temperature", string(lead.Warm), "lead temperature (hot|warm|browsing)")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "free-form notes")
	cmd.Flags().StringVar(&opts.CreatedBy, "by", "", "staff member capturing the lead")

	return cmd
}

func newLeadListCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		temperature string
		search      string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the show's leads, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBooth(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer b.Close()

			leads := b.FilteredLeads(lead.Temperature(temperature))
			if search != "" {
				leads = b.SearchLeads(search)
			}

			if len(leads) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No leads captured yet.")
				return nil
			}
			for _, l := range leads {
				sync := ""
				if !l.Synced() {
					sync = " [pending]"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-10s %s / %s%s\n",
					l.CreatedAt.Local().Format("Jan 02 15:04"), l.Temperature, l.ContactName, l.StoreName, sync)
			}

			pending, err := b.PendingCount(cmd.Context())
			if err == nil && pending > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "\n%d change(s) waiting to sync\n", pending)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&temperature, "temperature", "", "filter by temperature (hot|warm|browsing)")
	cmd.Flags().StringVar(&search, "search", "", "search by contact, store, email or phone")
	return cmd
}

func newLeadRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <lead-id>",
		Short: "Delete a lead",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBooth(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer b.Close()

			id := strings.TrimSpace(args[0])
			if err := b.RemoveLead(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed lead %s\n", id)
			return nil
		},
	}
}
