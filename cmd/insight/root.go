package main

import (
	"errors"
	"fmt"
	"os"

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
	Use:   "insight",
	Short: "Ask an assistant about what is on your screen",
	Long: `insight captures the active screen, sends it to the assistant together
with your question and shows (and optionally speaks) the reply.

The screenshot is taken by insight-capture, which must be running in your
desktop session.

Ask a single question:
  insight ask "What is this chart showing?"

Start an interactive conversation:
  insight chat

Use environment variables:
  INSIGHT_BACKEND=https://assistant.example.com insight chat`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "insight %s\n", Version)
		fmt.Fprintf(cmd.OutOrStdout(), "  Commit:     %s\n", Commit)
		fmt.Fprintf(cmd.OutOrStdout(), "  Build Date: %s\n", BuildDate)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	flags.String("backend", "http://127.0.0.1:8000", "Assistant backend URL")
	flags.String("capture-url", "ws://127.0.0.1:8765/ws", "Capture agent websocket URL")
	flags.String("capture-token", "", "Shared secret for the capture agent")
	flags.String("player", "", "Audio player command (default: auto-detect)")
	flags.String("log-level", "warn", "Log level (debug, info, warn, error)")
	flags.String("log-format", "text", "Log format (json, text)")

	bindFlags()

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(prefsCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

func bindFlags() {
	bindings := []struct {
		key  string
		flag string
	}{
		{"backend.url", "backend"},
		{"capture.url", "capture-url"},
		{"capture.token", "capture-token"},
		{"audio.player", "player"},
		{"logging.level", "log-level"},
		{"logging.format", "log-format"},
	}

	for _, b := range bindings {
		flag := rootCmd.PersistentFlags().Lookup(b.flag)
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
	viper.SetDefault("logging.level", "warn")

	bindFlags()

	_ = viper.ReadInConfig()
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errSilent) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
