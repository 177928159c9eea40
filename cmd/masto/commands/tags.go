package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/fivetwenty-io/masto/pkg/masto"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// NewTagsCommand creates the tags command group
func NewTagsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tags",
		Aliases: []string{"tag"},
		Short:   "Manage followed hashtags",
		Long:    "Follow, unfollow and list hashtags (Mastodon 4.0 and later)",
	}

	cmd.AddCommand(newTagFollowCommand("follow", "Follow a hashtag", func(client masto.Client) tagAction {
		return client.Tags().Follow
	}))
	cmd.AddCommand(newTagFollowCommand("unfollow", "Unfollow a hashtag", func(client masto.Client) tagAction {
		return client.Tags().Unfollow
	}))
	cmd.AddCommand(newTagsFollowedCommand())

	return cmd
}

type tagAction = func(ctx context.Context, name string) (*masto.Tag, error)

func newTagFollowCommand(use, short string, action func(masto.Client) tagAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " HASHTAG",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client, err := newClient(ctx)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			tag, err := action(client)(ctx, strings.TrimPrefix(args[0], "#"))
			if err != nil {
				return fmt.Errorf("failed to %s #%s: %w", use, args[0], err)
			}

			return renderTags(cmd, []masto.Tag{*tag})
		},
	}
}

func newTagsFollowedCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "followed",
		Short: "List followed hashtags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client, err := newClient(ctx)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			tags, err := client.FollowedTags().List(&masto.ListParams{Limit: pageSize(limit)}).Collect(ctx, limit)
			if err != nil {
				return fmt.Errorf("failed to list followed hashtags: %w", err)
			}

			return renderTags(cmd, tags)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of hashtags (0 lists all)")

	return cmd
}

func renderTags(cmd *cobra.Command, tags []masto.Tag) error {
	return render(cmd.OutOrStdout(), outputFormat(), tags, func(table *tablewriter.Table) {
		table.Header("Hashtag", "Following", "URL")

		for _, tag := range tags {
			_ = table.Append("#"+tag.Name, fmt.Sprintf("%t", tag.IsFollowing()), tag.URL)
		}
	})
}
