// Package cmd provides the command-line interface for sitesmith.
//
// Configuration is read from several sources with the usual precedence:
//
//  1. Command-line flags (--config, --root, --log-level, --log-format)
//  2. SITESMITH_CONFIG_FILE, a path to the configuration file
//  3. Individual environment variables (SITESMITH_DEPLOY_HOST, SITESMITH_SERVER_PORT, ...)
//  4. The configuration file (.sitesmith.yml in the working directory)
//
// Environment variables follow the SITESMITH_<SECTION>_<OPTION> pattern.
package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/sitesmith/internal/config"
	"github.com/conneroisu/sitesmith/internal/logging"
)

// envPrefix is shared by every environment variable the CLI reads.
const envPrefix = "SITESMITH"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sitesmith",
	Short: "Build, serve and deploy a static site",
	Long: `sitesmith builds a static site from templates, stylesheets, scripts and
images. Work is organised as named tasks that run their prerequisites first.

Common tasks:
  sitesmith run             Build the development tree, serve it and rebuild on change
  sitesmith run build       Build the development tree once
  sitesmith run pro         Build the minified production tree and its sitemap
  sitesmith run deploy      Upload the production tree
  sitesmith run pd          Build production and deploy only if every task succeeded
  sitesmith tasks           List every task and its prerequisites`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Errors are printed here so main only has to
// set the exit code.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .sitesmith.yml, can also use SITESMITH_CONFIG_FILE env var)")
	flags.String("root", "", "project root (default is the working directory)")
	flags.StringP("log-level", "l", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text, json)")

	bindFlags()
}

// bindFlags maps the global flags onto configuration keys.
func bindFlags() {
	flags := rootCmd.PersistentFlags()
	viper.BindPFlag("root", flags.Lookup("root"))
	viper.BindPFlag("log.level", flags.Lookup("log-level"))
	viper.BindPFlag("log.format", flags.Lookup("log-format"))
}

// initConfig selects the configuration file and enables environment binding.
// A missing default file is not an error; defaults apply.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(envPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".sitesmith")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
}

// loadConfig reads the selected file and returns the validated configuration.
// An explicitly named file must exist and parse.
func loadConfig() (*config.Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !stderrors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	return config.Load()
}

// newLogger builds the process logger from the log section.
func newLogger(cfg *config.Config, out io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Log.Format,
		Output:    out,
		Component: "sitesmith",
	}), nil
}
