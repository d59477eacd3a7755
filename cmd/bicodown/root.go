package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"bicodown/pkg/config"
	"bicodown/pkg/logger"
	"bicodown/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile    string
	logLevel      string
	logFile       string
	cookieFlag    string
	accountName   string
	notifications bool
	quiet         bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bicodown",
	Short: "Harvest the comment section of Bilibili videos",
	Long: `bicodown downloads every comment of a Bilibili video, episode or season into
a CSV dataset and aggregates the commenters by IP location.

Features:
  - Cursor-based paging with retries, skipped pages and duplicate filtering
  - Reply trees expanded from the sub-reply endpoint
  - Region statistics and GeoJSON annotation
  - Comment picture download through a rate limited worker pool
  - Resume from checkpoints, Prometheus metrics, interactive terminal UI`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet {
			ui.Output = nopWriter{}
		}
		switch cmd.Name() {
		case "version", "help", "decode", "encode", "show", "list", "checkpoints":
		default:
			if !quiet {
				ui.PrintLogo()
			}
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.Red("Error: "+err.Error()))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ~/.bicodown/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this rotating file")
	rootCmd.PersistentFlags().StringVar(&cookieFlag, "cookie", "", "Bilibili Cookie header (overrides stored accounts)")
	rootCmd.PersistentFlags().StringVarP(&accountName, "account", "a", "", "use a specific stored account")
	rootCmd.PersistentFlags().BoolVar(&notifications, "notifications", false, "send a desktop notification when a harvest ends")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress everything but errors")

	rootCmd.SetVersionTemplate(`bicodown {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig merges the config file, the environment and the flags the user
// set on cmd, then initializes the global logger
func loadConfig(cmd *cobra.Command) (*config.Config, logger.Logger, error) {
	flags := collectFlags(cmd)

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, nil, err
	}
	if quiet || (useTUI && cfg.Logging.File == "") {
		// keep the console writer from drawing over the UI
		cfg.Logging.Level = "error"
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Debug("bicodown starting")
	return cfg, log, nil
}

// collectFlags gathers only the flags that were set explicitly, so config
// file and environment values are not overridden by flag defaults
func collectFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	fs := cmd.Flags()

	strFlag := func(name, key string) {
		if fs.Lookup(name) != nil && fs.Changed(name) {
			v, _ := fs.GetString(name)
			flags[key] = v
		}
	}
	intFlag := func(name, key string) {
		if fs.Lookup(name) != nil && fs.Changed(name) {
			v, _ := fs.GetInt(name)
			flags[key] = v
		}
	}
	boolFlag := func(name, key string) {
		if fs.Lookup(name) != nil && fs.Changed(name) {
			v, _ := fs.GetBool(name)
			flags[key] = v
		}
	}

	strFlag("cookie", "cookie")
	strFlag("log-level", "log-level")
	strFlag("log-file", "log-file")
	strFlag("output", "output")
	strFlag("metrics-addr", "metrics-addr")
	strFlag("geo-template", "geo-template")
	intFlag("sort", "sort")
	intFlag("workers", "workers")
	intFlag("max-retries", "max-retries")
	boolFlag("overwrite", "overwrite")
	boolFlag("images", "images")
	boolFlag("no-mapping", "no-mapping")
	return flags
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
