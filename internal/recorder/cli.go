package recorder

import (
	"fmt"

	"github.com/spf13/cobra"

	"meetscribe/internal/capture"
)

// Dependencies holds what the CLI commands need.
type Dependencies struct {
	Store    *capture.Store
	Uploader *Uploader
	Config   *Config
}

// NewRootCmd builds the recorder command tree.
func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "recorder",
		Short: "Record meetings and upload them for transcription",
		Long:  "A CLI that stores recordings in a crash-safe local database, uploads them to the meetscribe API, and resumes interrupted uploads.",
	}

	rootCmd.AddCommand(newRecordCmd(deps))
	rootCmd.AddCommand(newResumeCmd(deps))
	rootCmd.AddCommand(newCleanupCmd(deps))

	return rootCmd
}

func newRecordCmd(deps *Dependencies) *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "record <audio-file>",
		Short: "Upload a recording",
		Long:  "Chunk an audio file into the local store, then upload it and start transcription.\nIf the upload is interrupted, 'recorder resume' finishes it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			session, err := deps.Uploader.Ingest(ctx, args[0], title)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Captured %s locally as %s\n", args[0], session.ID)

			result, err := deps.Uploader.Finish(ctx, session.ID)
			if err != nil {
				return fmt.Errorf("upload failed, run 'recorder resume' to retry: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded as session %s\n", result.Session.ID)
			fmt.Fprintf(cmd.OutOrStdout(), "Recording URL: %s\n", result.RecordingURL)
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Session title (defaults to the file name)")
	return cmd
}

func newResumeCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Finish interrupted uploads",
		RunE: func(cmd *cobra.Command, args []string) error {
			finished, err := deps.Uploader.Resume(cmd.Context())
			for _, id := range finished {
				fmt.Fprintf(cmd.OutOrStdout(), "Resumed and uploaded %s\n", id)
			}
			if err != nil {
				return err
			}
			if len(finished) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to resume")
			}
			return nil
		},
	}
}

func newCleanupCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete local recordings older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := deps.Store.CleanupOldSessions(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired sessions\n", removed)
			return nil
		},
	}
}
