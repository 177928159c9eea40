package commands

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// NewInstanceCommand creates the instance command
func NewInstanceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "instance",
		Short: "Display instance information",
		Long:  "Display the instance metadata and the negotiated server version",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client, err := newClient(ctx)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			info, err := client.Instance().Get(ctx)
			if err != nil {
				return fmt.Errorf("failed to get instance: %w", err)
			}

			server := client.Server()

			return render(cmd.OutOrStdout(), outputFormat(), map[string]any{
				"instance": info,
				"server":   server,
			}, func(table *tablewriter.Table) {
				table.Header("Property", "Value")
				_ = table.Append("Title", info.Title)
				_ = table.Append("URI", info.URI)
				_ = table.Append("Software", server.Software+" "+server.SoftwareVersion)
				_ = table.Append("API Version", server.Version)
				_ = table.Append("Streaming", valueOrNA(server.StreamingURL))
				_ = table.Append("Registrations", fmt.Sprintf("%t", info.Registrations))
				_ = table.Append("Languages", strings.Join(info.Languages, ", "))
				_ = table.Append("Contact", valueOrNA(info.Email))
			})
		},
	}
}
