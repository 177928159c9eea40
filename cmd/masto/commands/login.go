package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fivetwenty-io/masto/internal/auth"
	"github.com/fivetwenty-io/masto/internal/constants"
	"github.com/fivetwenty-io/masto/pkg/masto"
	"github.com/fivetwenty-io/masto/pkg/mastoclient"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// NewLoginCommand creates the login command
func NewLoginCommand() *cobra.Command {
	var (
		clientID     string
		clientSecret string
		scopes       []string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to a Mastodon instance",
		Long: `Save credentials for a Mastodon instance and make it current.

Either paste an access token (prompted when --token is not given) or use an
application's client credentials with --client-id and --client-secret.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			instanceURL := viper.GetString("url")
			if instanceURL == "" {
				return constants.ErrNoInstanceConfigured
			}

			store, err := DefaultConfigStore()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			instance := &InstanceConfig{URL: strings.TrimSuffix(instanceURL, "/")}

			if clientID != "" {
				err = loginWithClientCredentials(ctx, instance, clientID, clientSecret, scopes)
			} else {
				err = loginWithToken(ctx, cmd, instance)
			}

			if err != nil {
				return err
			}

			return saveLogin(cmd.OutOrStdout(), store, instance)
		},
	}

	cmd.Flags().StringVar(&clientID, "client-id", "", "application client ID")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "application client secret")
	cmd.Flags().StringSliceVar(&scopes, "scopes", auth.DefaultScopes, "OAuth scopes to request")

	return cmd
}

func loginWithToken(ctx context.Context, cmd *cobra.Command, instance *InstanceConfig) error {
	token := viper.GetString("token")
	if token == "" {
		var err error

		token, err = promptToken(cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
	}

	client, err := mastoclient.New(ctx, &masto.Config{URL: instance.URL, AccessToken: token})
	if err != nil {
		return err
	}

	defer func() { _ = client.Close() }()

	account, err := client.Accounts().VerifyCredentials(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify credentials: %w", err)
	}

	instance.Token = token
	instance.Account = account.Acct
	instance.StreamingURL = streamingOverride(client.Server(), instance.URL)

	return nil
}

func loginWithClientCredentials(ctx context.Context, instance *InstanceConfig, clientID, clientSecret string, scopes []string) error {
	manager := auth.NewInstanceTokenManager(instance.URL, clientID, clientSecret, scopes...)

	token, err := manager.GetToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain token: %w", err)
	}

	client, err := mastoclient.New(ctx, &masto.Config{URL: instance.URL, TokenSource: manager})
	if err != nil {
		return err
	}

	defer func() { _ = client.Close() }()

	instance.Token = token
	instance.ClientID = clientID
	instance.ClientSecret = clientSecret
	instance.Scopes = scopes
	instance.StreamingURL = streamingOverride(client.Server(), instance.URL)

	if current := manager.Current(); current != nil && !current.ExpiresAt.IsZero() {
		expiresAt := current.ExpiresAt
		instance.TokenExpiresAt = &expiresAt
	}

	return nil
}

// streamingOverride records a streaming URL only when it differs from the
// instance URL, so a later move of the streaming server is picked up.
func streamingOverride(server masto.ServerInfo, instanceURL string) string {
	if server.StreamingURL == instanceURL {
		return ""
	}

	return server.StreamingURL
}

func promptToken(in io.Reader, out io.Writer) (string, error) {
	_, _ = fmt.Fprint(out, "Access token: ")

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		raw, err := term.ReadPassword(int(f.Fd()))

		_, _ = fmt.Fprintln(out)

		if err != nil {
			return "", fmt.Errorf("failed to read token: %w", err)
		}

		return validToken(string(raw))
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read token: %w", err)
	}

	return validToken(line)
}

func validToken(raw string) (string, error) {
	token := strings.TrimSpace(raw)
	if token == "" {
		return "", constants.ErrEmptyToken
	}

	return token, nil
}

func saveLogin(out io.Writer, store *ConfigStore, instance *InstanceConfig) error {
	config, err := store.Load()
	if err != nil {
		return err
	}

	key := instanceKey(instance.URL)
	now := time.Now()
	instance.LastRefreshed = &now

	config.Instances[key] = instance
	config.CurrentInstance = key

	err = store.Save(config)
	if err != nil {
		return err
	}

	if instance.Account != "" {
		_, _ = fmt.Fprintf(out, "Logged in to %s as @%s\n", key, instance.Account)
	} else {
		_, _ = fmt.Fprintf(out, "Logged in to %s with application credentials\n", key)
	}

	return nil
}
