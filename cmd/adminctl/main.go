// Command adminctl runs administrative tasks against the masivos services
// from a terminal: setup checks, list exports, bulk list updates and
// deletes, list sends, dashboard statistics and local template previews.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/masivos/admin-gateway/internal/apiclient"
	"github.com/masivos/admin-gateway/internal/config"
)

var (
	configPath        string
	token             string
	tokenURL          string
	clientCredentials bool
	timeout           time.Duration
)

// rootCmd is the base command
var rootCmd = &cobra.Command{
	Use:   "adminctl",
	Short: "Administer the masivos platform from the command line",
	Long: `adminctl talks to the masivos services with the same client the
admin gateway uses.

Authentication, in order of precedence:
  --token / MASIVOS_TOKEN       a bearer token
  --token-url                   an endpoint answering {"accessToken": "..."}
  --client-credentials          the OAuth client credentials grant`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "Configuration file")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Bearer token (or set MASIVOS_TOKEN env)")
	rootCmd.PersistentFlags().StringVar(&tokenURL, "token-url", "", "Endpoint that hands out access tokens")
	rootCmd.PersistentFlags().BoolVar(&clientCredentials, "client-credentials", false, "Use the OAuth client credentials grant")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")

	rootCmd.AddCommand(checkSetupCmd)
	rootCmd.AddCommand(exportListCmd)
	rootCmd.AddCommand(addToListCmd)
	rootCmd.AddCommand(deleteContactsCmd)
	rootCmd.AddCommand(sendToListsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(previewCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", configPath, err)
	}
	return cfg, nil
}

// tokenProvider picks the token source from the flags.
func tokenProvider(ctx context.Context, cfg *config.Config) (apiclient.TokenProvider, error) {
	if token == "" {
		token = os.Getenv("MASIVOS_TOKEN")
	}
	switch {
	case token != "":
		return apiclient.StaticToken(token), nil
	case tokenURL != "":
		return &apiclient.EndpointToken{URL: tokenURL}, nil
	case cfg.Client.TokenURL != "":
		return &apiclient.EndpointToken{URL: cfg.Client.TokenURL}, nil
	case clientCredentials:
		if cfg.Auth.ClientID == "" || cfg.Auth.ClientSecret == "" {
			return nil, errors.New("--client-credentials needs AUTH0_CLIENT_ID and AUTH0_CLIENT_SECRET")
		}
		cc := &clientcredentials.Config{
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
			TokenURL:     cfg.Auth.TokenURL(),
		}
		if cfg.Auth.Audience != "" {
			cc.EndpointParams = map[string][]string{"audience": {cfg.Auth.Audience}}
		}
		return apiclient.OAuth2Token{Source: cc.TokenSource(ctx)}, nil
	case cfg.Auth.DevToken != "":
		return apiclient.StaticToken(cfg.Auth.DevToken), nil
	}
	return nil, errors.New("no credentials: pass --token, --token-url or --client-credentials")
}

// newClient builds the service client. The returned context carries the
// command timeout.
func newClient(cmd *cobra.Command) (context.Context, context.CancelFunc, *config.Config, *apiclient.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	tokens, err := tokenProvider(ctx, cfg)
	if err != nil {
		cancel()
		return nil, nil, nil, nil, err
	}
	return ctx, cancel, cfg, apiclient.New(cfg, tokens), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
