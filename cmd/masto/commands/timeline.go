package commands

import (
	"fmt"

	"github.com/fivetwenty-io/masto/internal/constants"
	"github.com/fivetwenty-io/masto/pkg/masto"
	"github.com/spf13/cobra"
)

type timelineFlags struct {
	limit int
	local bool
	media bool
}

// NewTimelineCommand creates the timeline command group
func NewTimelineCommand() *cobra.Command {
	flags := &timelineFlags{}

	cmd := &cobra.Command{
		Use:     "timeline",
		Aliases: []string{"tl"},
		Short:   "Read timelines",
		Long:    "Read the home, public or hashtag timeline",
	}

	cmd.PersistentFlags().IntVarP(&flags.limit, "limit", "n", constants.DefaultPageSize, "number of statuses to show")
	cmd.PersistentFlags().BoolVar(&flags.local, "local", false, "only statuses from this instance")
	cmd.PersistentFlags().BoolVar(&flags.media, "only-media", false, "only statuses with media")

	cmd.AddCommand(&cobra.Command{
		Use:   "home",
		Short: "Show the home timeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showTimeline(cmd, flags.limit, func(client masto.Client) masto.Paginator[masto.Status] {
				return client.Timelines().Home(&masto.ListParams{Limit: pageSize(flags.limit)})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "public",
		Short: "Show the public timeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showTimeline(cmd, flags.limit, func(client masto.Client) masto.Paginator[masto.Status] {
				return client.Timelines().Public(flags.params())
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "tag HASHTAG",
		Short: "Show a hashtag timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return showTimeline(cmd, flags.limit, func(client masto.Client) masto.Paginator[masto.Status] {
				return client.Timelines().Hashtag(args[0], &masto.HashtagTimelineParams{TimelineParams: *flags.params()})
			})
		},
	})

	return cmd
}

func (f *timelineFlags) params() *masto.TimelineParams {
	return &masto.TimelineParams{
		ListParams: masto.ListParams{Limit: pageSize(f.limit)},
		Local:      f.local,
		OnlyMedia:  f.media,
	}
}

func pageSize(limit int) int {
	if limit <= 0 || limit > constants.MaxPageSize {
		return constants.MaxPageSize
	}

	return limit
}

func showTimeline(cmd *cobra.Command, limit int, timeline func(masto.Client) masto.Paginator[masto.Status]) error {
	ctx := cmd.Context()

	client, err := newClient(ctx)
	if err != nil {
		return err
	}

	defer func() { _ = client.Close() }()

	statuses, err := timeline(client).Collect(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to read timeline: %w", err)
	}

	return renderStatuses(cmd.OutOrStdout(), statuses)
}
