package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/chargemap/internal/cli"
	"github.com/Veraticus/chargemap/internal/engine"
	"github.com/Veraticus/chargemap/internal/tui"
	"github.com/Veraticus/chargemap/internal/tui/themes"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Review pending rules interactively",
		Long: `Open the approval queue. Each pending rule can be previewed against the
customer's stored charges, then approved or rejected.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			customer, _ := cmd.Flags().GetString("customer")

			s, err := currentSettings()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			result, err := tui.Run(ctx,
				tui.WithStore(store),
				tui.WithPreviewer(engine.New(store)),
				tui.WithCustomer(customer),
				tui.WithTheme(themes.ByName(s.Theme)),
			)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(
				fmt.Sprintf("Review finished: %d approved, %d rejected", result.Approved, result.Rejected)))
			return nil
		},
	}

	cmd.Flags().String("customer", "", "Only review rules for this customer")

	return cmd
}
