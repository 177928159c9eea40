package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fivetwenty-io/masto/internal/constants"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the CLI configuration file.
type Config struct {
	Instances       map[string]*InstanceConfig `json:"instances,omitempty"        yaml:"instances,omitempty"`
	CurrentInstance string                     `json:"current_instance,omitempty" yaml:"current_instance,omitempty"`

	Output  string `json:"output,omitempty" yaml:"output,omitempty"`
	NoColor bool   `json:"no_color"         yaml:"no_color"`
}

// InstanceConfig holds credentials and endpoints for one Mastodon instance.
type InstanceConfig struct {
	URL            string     `json:"url"                        yaml:"url"`
	StreamingURL   string     `json:"streaming_url,omitempty"    yaml:"streaming_url,omitempty"`
	Token          string     `json:"token,omitempty"            yaml:"token,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty" yaml:"token_expires_at,omitempty"`
	RefreshToken   string     `json:"refresh_token,omitempty"    yaml:"refresh_token,omitempty"`
	LastRefreshed  *time.Time `json:"last_refreshed,omitempty"   yaml:"last_refreshed,omitempty"`
	ClientID       string     `json:"client_id,omitempty"        yaml:"client_id,omitempty"`
	ClientSecret   string     `json:"client_secret,omitempty"    yaml:"client_secret,omitempty"`
	Scopes         []string   `json:"scopes,omitempty"           yaml:"scopes,omitempty"`
	Account        string     `json:"account,omitempty"          yaml:"account,omitempty"`
}

// Current returns the selected instance, if any.
func (c *Config) Current() (*InstanceConfig, bool) {
	if c.CurrentInstance == "" {
		return nil, false
	}

	instance, ok := c.Instances[c.CurrentInstance]

	return instance, ok
}

// ConfigStore reads and writes the YAML config file.
type ConfigStore struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// NewConfigStore creates a store for path on fs.
func NewConfigStore(fs afero.Fs, path string) *ConfigStore {
	return &ConfigStore{fs: fs, path: path}
}

// DefaultConfigStore uses --config, or $HOME/.masto/config.yml.
func DefaultConfigStore() (*ConfigStore, error) {
	path := viper.GetString("config")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}

		path = filepath.Join(home, ".masto", "config.yml")
	}

	return NewConfigStore(afero.NewOsFs(), path), nil
}

// Path returns the config file location.
func (s *ConfigStore) Path() string {
	return s.path
}

// Load reads the config. A missing file yields an empty config.
func (s *ConfigStore) Load() (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadLocked()
}

func (s *ConfigStore) loadLocked() (*Config, error) {
	config := &Config{Instances: make(map[string]*InstanceConfig)}

	data, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, os.ErrNotExist) {
		return config, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", s.path, err)
	}

	if config.Instances == nil {
		config.Instances = make(map[string]*InstanceConfig)
	}

	return config, nil
}

// Save writes the config with owner-only permissions.
func (s *ConfigStore) Save(config *Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveLocked(config)
}

func (s *ConfigStore) saveLocked(config *Config) error {
	err := s.fs.MkdirAll(filepath.Dir(s.path), constants.ConfigDirPerm)
	if err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	err = afero.WriteFile(s.fs, s.path, data, constants.ConfigFilePerm)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// UpdateInstanceToken implements auth.ConfigPersister.
func (s *ConfigStore) UpdateInstanceToken(instance, token string, expiresAt time.Time, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	config, err := s.loadLocked()
	if err != nil {
		return err
	}

	instanceConfig, ok := config.Instances[instance]
	if !ok {
		return fmt.Errorf("instance configuration for '%s': %w", instance, constants.ErrNoInstanceConfigured)
	}

	instanceConfig.Token = token
	if !expiresAt.IsZero() {
		instanceConfig.TokenExpiresAt = &expiresAt
	}

	if refreshToken != "" {
		instanceConfig.RefreshToken = refreshToken
	}

	now := time.Now()
	instanceConfig.LastRefreshed = &now

	return s.saveLocked(config)
}

// instanceKey names an instance by its host, e.g. "mastodon.social".
func instanceKey(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(rawURL, "https://"), "http://"), "/")
	}

	return parsed.Host
}

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long:  "Show the configured instances and choose the current one",
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigUseCommand())

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  "Display the CLI configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := DefaultConfigStore()
			if err != nil {
				return err
			}

			config, err := store.Load()
			if err != nil {
				return err
			}

			return renderConfig(cmd.OutOrStdout(), outputFormat(), maskSecrets(config))
		},
	}
}

func newConfigUseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "use INSTANCE",
		Short: "Select the current instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := DefaultConfigStore()
			if err != nil {
				return err
			}

			config, err := store.Load()
			if err != nil {
				return err
			}

			key := instanceKey(args[0])
			if _, ok := config.Instances[key]; !ok {
				return fmt.Errorf("instance '%s': %w", key, constants.ErrNoInstanceConfigured)
			}

			config.CurrentInstance = key

			err = store.Save(config)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Current instance is now %s\n", key)

			return nil
		},
	}
}

func maskSecrets(config *Config) *Config {
	masked := *config
	masked.Instances = make(map[string]*InstanceConfig, len(config.Instances))

	for key, instance := range config.Instances {
		copied := *instance
		copied.Token = mask(copied.Token)
		copied.RefreshToken = mask(copied.RefreshToken)
		copied.ClientSecret = mask(copied.ClientSecret)
		masked.Instances[key] = &copied
	}

	return &masked
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}

	return constants.MaskedSecret
}

func renderConfig(w io.Writer, format string, config *Config) error {
	switch format {
	case constants.FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")

		return encoder.Encode(config)
	case constants.FormatYAML:
		return yaml.NewEncoder(w).Encode(config)
	}

	keys := make([]string, 0, len(config.Instances))
	for key := range config.Instances {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	table := tablewriter.NewWriter(w)
	table.Header("Current", "Instance", "URL", "Account", "Token")

	for _, key := range keys {
		instance := config.Instances[key]

		current := ""
		if key == config.CurrentInstance {
			current = constants.CheckMarkSymbol
		}

		token := instance.Token
		if token == "" {
			token = constants.None
		}

		_ = table.Append(current, key, instance.URL, valueOrNA(instance.Account), token)
	}

	err := table.Render()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	return nil
}
