package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/insight-ai/insight-go/internal/config"
)

var (
	cfgFile string

	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "insight-capture",
	Short: "Screen capture agent for the insight assistant",
	Long: `insight-capture runs in the user's desktop session and takes screenshots
on behalf of the insight client. Requests arrive over a websocket and are
answered one at a time.

Start the agent:
  insight-capture

Start with custom settings:
  insight-capture --listen 127.0.0.1:9000 --command "grim {file}" --token secret

Use environment variables:
  INSIGHT_CAPTURE_LISTEN=127.0.0.1:9000 INSIGHT_CAPTURE_TOKEN=secret insight-capture`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("insight-capture %s\n", Version)
		fmt.Printf("  Commit:     %s\n", Commit)
		fmt.Printf("  Build Date: %s\n", BuildDate)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	rootCmd.Flags().String("listen", "127.0.0.1:8765", "Agent listen address")
	rootCmd.Flags().String("command", "", "Screenshot command, {file} is replaced by the output path (default: auto-detect)")
	rootCmd.Flags().Duration("timeout", 10*time.Second, "Maximum time for one screenshot")
	rootCmd.Flags().Int("queue", 4, "Screenshot requests allowed to wait")
	rootCmd.Flags().Int("max-clients", 4, "Maximum concurrent capture connections")
	rootCmd.Flags().String("token", "", "Shared secret required from clients (empty = no auth)")
	rootCmd.Flags().StringSlice("allowed-origin", nil, "Browser origin allowed to open the capture channel (repeatable)")

	rootCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.Flags().String("log-format", "json", "Log format (json, text)")

	bindFlags()

	rootCmd.AddCommand(versionCmd)
}

func bindFlags() {
	bindings := []struct {
		key  string
		flag string
	}{
		{"capture.listen", "listen"},
		{"capture.command", "command"},
		{"capture.timeout", "timeout"},
		{"capture.queue", "queue"},
		{"capture.max_clients", "max-clients"},
		{"capture.token", "token"},
		{"capture.allowed_origins", "allowed-origin"},
		{"logging.level", "log-level"},
		{"logging.format", "log-format"},
	}

	for _, b := range bindings {
		flag := rootCmd.Flags().Lookup(b.flag)
		if flag == nil {
			continue
		}
		_ = viper.BindPFlag(b.key, flag)
	}
}

func initConfig() {
	// A missing .env is not an error.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath(config.DefaultDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	config.Bind(viper.GetViper())
	viper.SetDefault("logging.format", "json")

	bindFlags()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
