package commands

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/fivetwenty-io/masto/internal/constants"
	"github.com/fivetwenty-io/masto/pkg/masto"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

type postFlags struct {
	visibility  string
	spoiler     string
	sensitive   bool
	replyTo     string
	language    string
	media       []string
	description string
}

// NewPostCommand creates the post command
func NewPostCommand() *cobra.Command {
	return newPostCommand(afero.NewOsFs())
}

func newPostCommand(fs afero.Fs) *cobra.Command {
	flags := &postFlags{}

	cmd := &cobra.Command{
		Use:   "post TEXT",
		Short: "Publish a status",
		Long:  "Publish a status, optionally with media attachments uploaded first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if text == "" && len(flags.media) == 0 {
				return constants.ErrStatusTextRequired
			}

			ctx := cmd.Context()

			client, err := newClient(ctx)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			mediaIDs, err := uploadMedia(ctx, fs, client, flags.media, flags.description)
			if err != nil {
				return err
			}

			status, err := client.Statuses().Create(ctx, &masto.CreateStatusParams{
				Status:      text,
				MediaIDs:    mediaIDs,
				InReplyToID: flags.replyTo,
				Sensitive:   flags.sensitive,
				SpoilerText: flags.spoiler,
				Visibility:  masto.Visibility(flags.visibility),
				Language:    flags.language,
			})
			if err != nil {
				return fmt.Errorf("failed to publish status: %w", err)
			}

			return render(cmd.OutOrStdout(), outputFormat(), status, func(table *tablewriter.Table) {
				table.Header("Property", "Value")
				_ = table.Append("ID", status.ID)
				_ = table.Append("URL", valueOrNA(status.URL))
				_ = table.Append("Visibility", string(status.Visibility))
				_ = table.Append("Media", fmt.Sprintf("%d", len(status.MediaAttachments)))
			})
		},
	}

	cmd.Flags().StringVar(&flags.visibility, "visibility", "", "public, unlisted, private or direct")
	cmd.Flags().StringVar(&flags.spoiler, "spoiler", "", "content warning")
	cmd.Flags().BoolVar(&flags.sensitive, "sensitive", false, "mark media as sensitive")
	cmd.Flags().StringVar(&flags.replyTo, "reply-to", "", "ID of the status to reply to")
	cmd.Flags().StringVar(&flags.language, "language", "", "ISO 639 language code")
	cmd.Flags().StringSliceVarP(&flags.media, "media", "m", nil, "file to attach (repeatable)")
	cmd.Flags().StringVar(&flags.description, "description", "", "alt text for the attached media")

	return cmd
}

func uploadMedia(ctx context.Context, fs afero.Fs, client masto.Client, paths []string, description string) ([]string, error) {
	ids := make([]string, 0, len(paths))

	for _, path := range paths {
		file, err := openMediaFile(fs, path)
		if err != nil {
			return nil, err
		}

		media, err := client.MediaAttachments().Create(ctx, &masto.CreateMediaParams{
			File: masto.File{
				Name:        filepath.Base(path),
				ContentType: mime.TypeByExtension(filepath.Ext(path)),
				Reader:      file,
			},
			Description: description,
		})

		_ = file.Close()

		if err != nil {
			return nil, fmt.Errorf("failed to upload %s: %w", path, err)
		}

		ids = append(ids, media.ID)
	}

	return ids, nil
}

func openMediaFile(fs afero.Fs, path string) (afero.File, error) {
	if strings.Contains(filepath.ToSlash(path), "../") {
		return nil, fmt.Errorf("%w: %s", constants.ErrDirectoryTraversalDetected, path)
	}

	info, err := fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat media file: %w", err)
	}

	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", constants.ErrNotRegularFile, path)
	}

	file, err := fs.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open media file: %w", err)
	}

	return file, nil
}
