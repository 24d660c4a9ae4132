package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewUserCommand groups the staff management subcommands. These write
// straight through to the remote store and fail without connectivity.
func NewUserCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage booth staff",
	}
	cmd.AddCommand(newUserAddCommand(rootOpts))
	cmd.AddCommand(newUserListCommand(rootOpts))
	cmd.AddCommand(newUserRemoveCommand(rootOpts))
	return cmd
}

func newUserAddCommand(rootOpts *RootOptions) *cobra.Command {
	var passcode string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a staff member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBooth(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer b.Close()

			u, err := b.AddUser(cmd.Context(), args[0], passcode)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", u.Name, u.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&passcode, "passcode", "", "4-digit login passcode (required)")
	_ = cmd.MarkFlagRequired("passcode")
	return cmd
}

func newUserListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the show's staff",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBooth(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer b.Close()

			users := b.Users()
			if len(users) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No staff configured.")
				return nil
			}
			for _, u := range users {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", u.ID, u.Name)
			}
			return nil
		},
	}
}

func newUserRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <user-id>",
		Short: "Remove a staff member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBooth(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer b.Close()

			if err := b.DeleteUser(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed user %s\n", args[0])
			return nil
		},
	}
}
