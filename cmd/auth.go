package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/teemow/mailreader/internal/gmail"
	"github.com/teemow/mailreader/internal/google"
	"github.com/teemow/mailreader/internal/logging"
)

func newAuthCmd() *cobra.Command {
	var (
		opts      googleOptions
		debugMode bool
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize read-only Gmail access",
		Long: `Run the OAuth consent flow in the terminal. Open the printed URL, grant
access and paste the authorization code back. The token is saved to the token
file and reused by "mailreader serve". A stored token that Google rejects is
replaced; use --force to replace a working one.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.WithOperation(logging.New(cmd.ErrOrStderr(), debugMode), "auth")
			return runAuth(cmd.Context(), &opts, force, logger, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&force, "force", false, "Run the consent flow even if a stored token works")

	return cmd
}

func runAuth(ctx context.Context, opts *googleOptions, force bool, logger *slog.Logger, in io.Reader, out io.Writer) error {
	info := color.New(color.FgCyan)
	warn := color.New(color.FgYellow)
	success := color.New(color.FgGreen, color.Bold)

	authorizer, err := opts.newAuthorizer(logger, google.WithCodeProvider(consoleCodeProvider(in, out)))
	if err != nil {
		var cfgErr *google.ConfigError
		if errors.As(err, &cfgErr) {
			printCredentialsHelp(out, opts.credentialsPath)
		}
		return err
	}

	if authorizer.Resume() {
		if force {
			authorizer.Reject()
			_, _ = warn.Fprintf(out, "Replacing the existing token in %s\n", opts.tokenPath)
		} else if err := checkStoredToken(authorizer); err != nil {
			_, _ = warn.Fprintf(out, "The existing token in %s was rejected: %v\n", opts.tokenPath, err)
		} else {
			_, _ = info.Fprintf(out, "Using the existing token in %s\n", opts.tokenPath)
		}
	}
	if err := authorizer.Authorize(ctx); err != nil {
		return err
	}

	authCtx, err := authorizer.Context()
	if err != nil {
		return err
	}
	api, err := newMailboxAPI(ctx, authCtx.HTTPClient(), nil)
	if err != nil {
		return fmt.Errorf("failed to create Gmail client: %w", err)
	}
	profile, err := gmail.NewService(api, gmail.Config{Logger: logging.NewSlogAdapter(logger)}).Profile(ctx)
	if err != nil {
		return err
	}

	_, _ = success.Fprintf(out, "✓ Authorized as %s\n", profile.EmailAddress)
	_, _ = fmt.Fprintf(out, "  Total messages: %d\n", profile.MessagesTotal)
	_, _ = fmt.Fprintf(out, "  Token saved to: %s\n", opts.tokenPath)
	return nil
}

// checkStoredToken obtains an access token, refreshing it when it has expired.
// A failed refresh marks the token rejected, so Authorize asks for consent.
func checkStoredToken(authorizer *google.Authorizer) error {
	authCtx, err := authorizer.Context()
	if err != nil {
		return err
	}
	_, err = authCtx.Token()
	return err
}

// consoleCodeProvider prints the consent URL and reads the code from in.
func consoleCodeProvider(in io.Reader, out io.Writer) google.CodeProvider {
	reader := bufio.NewReader(in)
	return google.CodeProviderFunc(func(ctx context.Context, authURL string) (string, error) {
		prompt := color.New(color.FgYellow)
		_, _ = fmt.Fprintln(out, "Open the following URL in your browser and grant access:")
		_, _ = color.New(color.FgCyan, color.Underline).Fprintln(out, authURL)
		_, _ = prompt.Fprint(out, "\nEnter the authorization code: ")

		line, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", fmt.Errorf("failed to read authorization code: %w", err)
		}
		code := strings.TrimSpace(line)
		if code == "" {
			return "", errors.New("no authorization code entered")
		}
		return code, nil
	})
}

func printCredentialsHelp(out io.Writer, path string) {
	warn := color.New(color.FgRed, color.Bold)
	_, _ = warn.Fprintf(out, "No usable OAuth client credentials at %s\n\n", path)
	_, _ = fmt.Fprintln(out, "To create them:")
	_, _ = fmt.Fprintln(out, "  1. Open https://console.cloud.google.com/apis/credentials")
	_, _ = fmt.Fprintln(out, "  2. Enable the Gmail API for your project")
	_, _ = fmt.Fprintln(out, "  3. Create an OAuth client ID and download the JSON file")
	_, _ = fmt.Fprintf(out, "  4. Save it as %s, or point %s at it\n", path, google.EnvCredentialsPath)
}
