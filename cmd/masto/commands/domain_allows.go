package commands

import (
	"fmt"

	"github.com/fivetwenty-io/masto/internal/constants"
	"github.com/fivetwenty-io/masto/pkg/masto"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// NewDomainAllowsCommand creates the domain-allows command group
func NewDomainAllowsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "domain-allows",
		Short: "Manage federation allow list",
		Long:  "List, add and remove allowed domains (admin, Mastodon 4.0 and later, limited federation mode)",
	}

	cmd.AddCommand(newDomainAllowsListCommand())
	cmd.AddCommand(newDomainAllowsAddCommand())
	cmd.AddCommand(newDomainAllowsRemoveCommand())

	return cmd
}

func newDomainAllowsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List allowed domains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client, err := newClient(ctx)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			allows, err := client.DomainAllows().List(nil).Collect(ctx, 0)
			if err != nil {
				return fmt.Errorf("failed to list domain allows: %w", err)
			}

			return renderDomainAllows(cmd, allows)
		},
	}
}

func newDomainAllowsAddCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add DOMAIN",
		Short: "Allow federation with a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "" {
				return constants.ErrDomainRequired
			}

			ctx := cmd.Context()

			client, err := newClient(ctx)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			allow, err := client.DomainAllows().Create(ctx, &masto.CreateDomainAllowParams{Domain: args[0]})
			if err != nil {
				return fmt.Errorf("failed to allow %s: %w", args[0], err)
			}

			return renderDomainAllows(cmd, []masto.DomainAllow{*allow})
		},
	}
}

func newDomainAllowsRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove ID",
		Short: "Remove a domain from the allow list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client, err := newClient(ctx)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			err = client.DomainAllows().Delete(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to remove domain allow %s: %w", args[0], err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed domain allow %s\n", args[0])

			return nil
		},
	}
}

func renderDomainAllows(cmd *cobra.Command, allows []masto.DomainAllow) error {
	return render(cmd.OutOrStdout(), outputFormat(), allows, func(table *tablewriter.Table) {
		table.Header("ID", "Domain", "Created")

		for _, allow := range allows {
			_ = table.Append(allow.ID, allow.Domain, formatTime(allow.CreatedAt))
		}
	})
}
