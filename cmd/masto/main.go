package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/fivetwenty-io/masto/cmd/masto/commands"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "masto",
		Short: "Mastodon API CLI",
		Long: `A command-line interface for Mastodon and compatible servers.

Read timelines, publish statuses, follow hashtags, manage the federation
allow list and follow realtime events from the streaming API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if viper.GetBool("no-color") {
				color.NoColor = true
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.masto/config.yml)")
	rootCmd.PersistentFlags().StringP("url", "u", "", "instance URL")
	rootCmd.PersistentFlags().StringP("token", "t", "", "access token")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log HTTP requests")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")
	rootCmd.PersistentFlags().String("cache", "", "server info cache: memory, nats or none (default nats when --cache-nats-url is set, else none)")
	rootCmd.PersistentFlags().String("cache-nats-url", "", "share negotiated server info through this NATS server")

	for _, name := range []string{"config", "url", "token", "output", "verbose", "no-color", "cache", "cache-nats-url"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}

	rootCmd.AddCommand(commands.NewVersionCommand(version, commit, date))
	rootCmd.AddCommand(commands.NewLoginCommand())
	rootCmd.AddCommand(commands.NewConfigCommand())
	rootCmd.AddCommand(commands.NewInstanceCommand())
	rootCmd.AddCommand(commands.NewTimelineCommand())
	rootCmd.AddCommand(commands.NewPostCommand())
	rootCmd.AddCommand(commands.NewStreamCommand())
	rootCmd.AddCommand(commands.NewTagsCommand())
	rootCmd.AddCommand(commands.NewDomainAllowsCommand())

	return rootCmd
}

func initConfig() {
	// MASTO_URL, MASTO_TOKEN, MASTO_OUTPUT, ...
	viper.SetEnvPrefix("MASTO")
	viper.AutomaticEnv()
}

func main() {
	cobra.OnInitialize(initConfig)

	err := newRootCommand().Execute()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
		os.Exit(1)
	}
}
