package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/fivetwenty-io/masto/internal/auth"
	"github.com/fivetwenty-io/masto/internal/constants"
	"github.com/fivetwenty-io/masto/pkg/masto"
	"github.com/fivetwenty-io/masto/pkg/mastoclient"
	"github.com/nats-io/nats.go"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// defaultJSONIndent is the indentation used for JSON output.
const defaultJSONIndent = "  "

func outputFormat() string {
	format := viper.GetString("output")
	if format == "" {
		return constants.FormatTable
	}

	return format
}

// render writes v as JSON or YAML, or calls table for the table format.
func render(w io.Writer, format string, v any, table func(*tablewriter.Table)) error {
	switch format {
	case constants.FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", defaultJSONIndent)

		return encoder.Encode(v)
	case constants.FormatYAML:
		return yaml.NewEncoder(w).Encode(v)
	case constants.FormatTable:
		t := tablewriter.NewWriter(w)
		table(t)

		err := t.Render()
		if err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}

		return nil
	default:
		return fmt.Errorf("%w: %s", constants.ErrUnknownFormat, format)
	}
}

func valueOrNA(s string) string {
	if s == "" {
		return constants.NotAvailable
	}

	return s
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// plainText strips markup from status content for table cells.
func plainText(content string) string {
	content = strings.ReplaceAll(content, "</p><p>", " ")
	content = strings.ReplaceAll(content, "<br>", " ")
	content = strings.ReplaceAll(content, "<br />", " ")

	return strings.TrimSpace(html.UnescapeString(htmlTag.ReplaceAllString(content, "")))
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	return string(runes[:limit-1]) + "…"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return constants.NotAvailable
	}

	return t.Local().Format("2006-01-02 15:04")
}

func renderStatuses(w io.Writer, statuses []masto.Status) error {
	return render(w, outputFormat(), statuses, func(table *tablewriter.Table) {
		table.Header("ID", "Account", "Created", "Content")

		for _, s := range statuses {
			content := s.Content
			if s.Reblog != nil {
				content = "RT @" + s.Reblog.Account.Acct + ": " + s.Reblog.Content
			}

			_ = table.Append(s.ID, "@"+s.Account.Acct, formatTime(s.CreatedAt),
				truncate(plainText(content), constants.StringTruncationLimit))
		}
	})
}

// clientOptions are the connection settings resolved from flags, environment
// and the config file, in that order of precedence.
type clientOptions struct {
	instance string
	config   *InstanceConfig
	store    *ConfigStore
}

func resolveClientOptions() (*clientOptions, error) {
	store, err := DefaultConfigStore()
	if err != nil {
		return nil, err
	}

	config, err := store.Load()
	if err != nil {
		return nil, err
	}

	opts := &clientOptions{store: store}

	if url := viper.GetString("url"); url != "" {
		opts.instance = instanceKey(url)
		opts.config = &InstanceConfig{URL: url}

		if saved, ok := config.Instances[opts.instance]; ok {
			copied := *saved
			opts.config = &copied
		}
	} else if current, ok := config.Current(); ok {
		opts.instance = config.CurrentInstance
		opts.config = current
	} else {
		return nil, constants.ErrNoInstanceConfigured
	}

	if token := viper.GetString("token"); token != "" {
		opts.config.Token = token
		opts.config.RefreshToken = ""
		opts.config.ClientID = ""
		opts.config.ClientSecret = ""
	}

	return opts, nil
}

// buildConfig turns resolved options into a client config. Saved refresh
// tokens or app credentials get a token manager that writes renewed tokens
// back to the config file.
func (o *clientOptions) buildConfig() *masto.Config {
	config := &masto.Config{
		URL:          o.config.URL,
		StreamingURL: o.config.StreamingURL,
		Timeout:      constants.DefaultHTTPTimeout,
	}

	if viper.GetBool("verbose") {
		config.Logger = masto.DefaultLogger("debug")
		config.Debug = true
	}

	switch {
	case o.config.ClientID != "" && (o.config.RefreshToken != "" || o.config.ClientSecret != ""):
		var expiry time.Time
		if o.config.TokenExpiresAt != nil {
			expiry = *o.config.TokenExpiresAt
		}

		config.TokenSource = auth.NewConfigTokenManager(&auth.OAuth2Config{
			TokenURL:     strings.TrimSuffix(o.config.URL, "/") + "/oauth/token",
			ClientID:     o.config.ClientID,
			ClientSecret: o.config.ClientSecret,
			Scopes:       o.config.Scopes,
			RefreshToken: o.config.RefreshToken,
		}, o.store, o.instance, o.config.Token, expiry, config.Logger)
	case o.config.Token != "":
		config.AccessToken = o.config.Token
	}

	return config
}

// newClient creates a client for the selected instance. Each configure
// function may adjust the config before the client is built.
func newClient(ctx context.Context, configure ...func(*masto.Config)) (masto.Client, error) {
	opts, err := resolveClientOptions()
	if err != nil {
		return nil, err
	}

	config := opts.buildConfig()
	for _, fn := range configure {
		fn(config)
	}

	cache, err := openServerInfoCache(ctx, viper.GetString("cache"), viper.GetString("cache-nats-url"))
	if err != nil {
		return nil, err
	}

	config.Cache = cache

	// the cache is only read while the server version is negotiated
	if closer, ok := cache.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	client, err := mastoclient.New(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", opts.instance, err)
	}

	return client, nil
}

// openServerInfoCache builds the --cache backend. Without an explicit kind
// the NATS layer is used when natsURL is set.
func openServerInfoCache(ctx context.Context, kind, natsURL string) (masto.Cache, error) {
	cacheType := masto.CacheTypeNone
	if natsURL != "" {
		cacheType = masto.CacheTypeNATS
	}

	if kind != "" {
		var err error

		cacheType, err = masto.ParseCacheType(kind)
		if err != nil {
			return nil, err
		}
	}

	builder := masto.NewCacheBuilder().WithType(cacheType).WithTTL(constants.ServerInfoCacheTTL)

	if cacheType == masto.CacheTypeNATS {
		if natsURL == "" {
			return nil, fmt.Errorf("%w: set --cache-nats-url", masto.ErrNATSConfigRequired)
		}

		builder.WithNATS(&masto.NATSKVConfig{
			URL:     natsURL,
			Bucket:  constants.DefaultNATSBucket,
			Options: []nats.Option{nats.Name("masto-cli"), nats.Timeout(constants.NATSConnectTimeout)},
		})
	}

	cache, err := builder.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open server info cache: %w", err)
	}

	return cache, nil
}
