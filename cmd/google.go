package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/teemow/mailreader/internal/google"
	"github.com/teemow/mailreader/internal/server"
)

// newMailboxAPI builds the Gmail client used by the auth and test-connection
// commands.
var newMailboxAPI server.APIFactory = server.DefaultAPIFactory

// googleOptions locates the OAuth client credentials and the token file.
type googleOptions struct {
	credentialsPath string
	tokenPath       string
}

func (o *googleOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.credentialsPath, "credentials", "", "Path to the OAuth client credentials file (default: ./credentials.json). Can also use "+google.EnvCredentialsPath+" env var.")
	cmd.Flags().StringVar(&o.tokenPath, "token", "", "Path to the token file (default: ./token.json). Can also use "+google.EnvTokenPath+" env var.")
}

// resolve fills in paths not given as flags from the environment or defaults.
func (o *googleOptions) resolve() {
	if o.credentialsPath == "" {
		o.credentialsPath = google.DefaultCredentialsPath()
	}
	if o.tokenPath == "" {
		o.tokenPath = google.DefaultTokenPath()
	}
}

// newAuthorizer loads the credentials and returns an Authorizer backed by the
// token file. A missing or malformed credentials file is a *google.ConfigError.
func (o *googleOptions) newAuthorizer(logger *slog.Logger, opts ...google.Option) (*google.Authorizer, error) {
	o.resolve()
	creds, err := google.LoadCredentials(o.credentialsPath)
	if err != nil {
		return nil, err
	}
	store := google.NewFileTokenStore(o.tokenPath, logger)
	opts = append([]google.Option{google.WithLogger(logger)}, opts...)
	return google.NewAuthorizer(creds, store, opts...), nil
}
