package google

import (
	"encoding/json"
	"errors"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// EnvCredentialsPath names the client credentials file.
	EnvCredentialsPath = "GMAIL_CREDENTIALS_PATH"
	// EnvTokenPath names the persisted token file.
	EnvTokenPath = "GMAIL_TOKEN_PATH"

	defaultCredentialsPath = "credentials.json"
	defaultTokenPath       = "token.json"
)

// Credentials identifies the OAuth client. It is immutable once loaded.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURI      string
	TokenURI     string
}

type clientSecrets struct {
	Web       *clientConfig `json:"web"`
	Installed *clientConfig `json:"installed"`
}

type clientConfig struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	RedirectURIs []string `json:"redirect_uris"`
	AuthURI      string   `json:"auth_uri"`
	TokenURI     string   `json:"token_uri"`
}

// DefaultCredentialsPath returns $GMAIL_CREDENTIALS_PATH or ./credentials.json.
func DefaultCredentialsPath() string {
	if p := os.Getenv(EnvCredentialsPath); p != "" {
		return p
	}
	return defaultCredentialsPath
}

// DefaultTokenPath returns $GMAIL_TOKEN_PATH or ./token.json.
func DefaultTokenPath() string {
	if p := os.Getenv(EnvTokenPath); p != "" {
		return p
	}
	return defaultTokenPath
}

// LoadCredentials reads a Google client secrets file. Every failure is a *ConfigError.
func LoadCredentials(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, &ConfigError{Path: path, Err: err}
	}
	creds, err := ParseCredentials(data)
	if err != nil {
		return Credentials{}, &ConfigError{Path: path, Err: err}
	}
	return creds, nil
}

// ParseCredentials decodes the "web" or "installed" client configuration.
// "web" wins when both are present. The first redirect URI is used.
func ParseCredentials(data []byte) (Credentials, error) {
	var secrets clientSecrets
	if err := json.Unmarshal(data, &secrets); err != nil {
		return Credentials{}, err
	}

	cfg := secrets.Web
	if cfg == nil {
		cfg = secrets.Installed
	}
	switch {
	case cfg == nil:
		return Credentials{}, errors.New(`neither "web" nor "installed" client configuration found`)
	case cfg.ClientID == "":
		return Credentials{}, errors.New("client_id is missing")
	case cfg.ClientSecret == "":
		return Credentials{}, errors.New("client_secret is missing")
	case len(cfg.RedirectURIs) == 0 || cfg.RedirectURIs[0] == "":
		return Credentials{}, errors.New("redirect_uris is empty")
	}

	return Credentials{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  cfg.RedirectURIs[0],
		AuthURI:      cfg.AuthURI,
		TokenURI:     cfg.TokenURI,
	}, nil
}

// OAuthConfig returns the oauth2 configuration for the read-only mail scope.
// Endpoints from the credentials file override the Google defaults.
func (c Credentials) OAuthConfig() *oauth2.Config {
	endpoint := google.Endpoint
	if c.AuthURI != "" {
		endpoint.AuthURL = c.AuthURI
	}
	if c.TokenURI != "" {
		endpoint.TokenURL = c.TokenURI
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  c.RedirectURI,
		Scopes:       Scopes,
	}
}
