package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/teemow/mailreader/internal/gmail"
	"github.com/teemow/mailreader/internal/logging"
)

func newTestConnectionCmd() *cobra.Command {
	var (
		opts      googleOptions
		debugMode bool
	)

	cmd := &cobra.Command{
		Use:   "test-connection",
		Short: "Check that the saved token can reach the mailbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.WithOperation(logging.New(cmd.ErrOrStderr(), debugMode), "test_connection")
			return runTestConnection(cmd.Context(), &opts, logger, cmd.OutOrStdout())
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	return cmd
}

var errConnectionFailed = errors.New("connection test failed")

func runTestConnection(ctx context.Context, opts *googleOptions, logger *slog.Logger, out io.Writer) error {

	authorizer, err := opts.newAuthorizer(logger)
	if err != nil {
		return err
	}
	if !authorizer.Resume() {
		_, _ = color.New(color.FgRed).Fprintln(out, "✗ Not authorized. Run `mailreader auth` first.")
		return errConnectionFailed
	}

	authCtx, err := authorizer.Context()
	if err != nil {
		return err
	}
	api, err := newMailboxAPI(ctx, authCtx.HTTPClient(), nil)
	if err != nil {
		return fmt.Errorf("failed to create Gmail client: %w", err)
	}

	svc := gmail.NewService(api, gmail.Config{Logger: logging.NewSlogAdapter(logger)})
	if !svc.TestConnection(ctx) {
		_, _ = color.New(color.FgRed).Fprintln(out, "✗ Could not reach the Gmail API")
		return errConnectionFailed
	}
	_, _ = color.New(color.FgGreen).Fprintln(out, "✓ Connected to Gmail")
	if profile, err := svc.Profile(ctx); err == nil {
		_, _ = fmt.Fprintf(out, "  Mailbox: %s (%d messages, %d threads)\n", profile.EmailAddress, profile.MessagesTotal, profile.ThreadsTotal)
	}
	return nil
}
