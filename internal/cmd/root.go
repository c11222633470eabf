package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/agritutor/agritutor/internal/appid"
	"github.com/agritutor/agritutor/internal/config"
	"github.com/agritutor/agritutor/internal/observability"
	"github.com/agritutor/agritutor/internal/output"
	"github.com/agritutor/agritutor/internal/tutor/driver"
)

var (
	cfgFile      string
	verbose      bool
	traceFile    string
	outputFormat string

	appIdentity *appid.Identity

	// Version info set by main package
	versionInfo = struct {
		Version   string
		Commit    string
		BuildDate string
	}{Version: "dev", Commit: "unknown", BuildDate: "unknown"}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the application identity, loading it on first use.
func GetAppIdentity() *appid.Identity {
	if appIdentity == nil {
		if identity, err := appid.Get(context.Background()); err == nil {
			appIdentity = identity
		}
	}
	return appIdentity
}

var rootCmd = &cobra.Command{
	Use:   filepath.Base(os.Args[0]),
	Short: "Agriculture tutor prompt templates",
	Long: `Browse and fill the AgriTutor prompt catalog, and ask a configured
model for lessons, quizzes and image diagnoses.`,
	SilenceUsage: true,
}

// Execute runs the root command. Called once by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Keep config loading quiet; serve installs the real telemetry system.
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	if identity := GetAppIdentity(); identity != nil {
		rootCmd.Use = identity.BinaryName
		if identity.Description != "" {
			rootCmd.Short = identity.Description
		}
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/agritutor/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	rootCmd.PersistentFlags().StringVar(&traceFile, "trace", "", "trace model requests/responses to NDJSON file")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", string(output.FormatTable), "output format: table, json, markdown")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	identity := GetAppIdentity()
	if identity == nil {
		ExitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to load app identity", nil)
		return
	}

	observability.InitCLILogger(identity.BinaryName, verbose)

	if traceFile != "" {
		if _, err := driver.EnableTracing(traceFile); err != nil {
			observability.CLILogger.Warn("Failed to enable tracing", zap.Error(err))
		} else {
			// The trace file stays open for the life of the process.
			observability.CLILogger.Debug("Model tracing enabled", zap.String("file", traceFile))
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if dir := gfconfig.GetAppConfigDir(identity.ConfigName); dir != "" {
			viper.AddConfigPath(dir)
			viper.SetConfigName("config")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				ExitWithCode(observability.CLILogger, foundry.ExitFileNotFound, "Could not find home directory", err)
			}
			viper.AddConfigPath(home)
			viper.SetConfigName("." + identity.ConfigName)
		}
		viper.AddConfigPath("./config")
		viper.SetConfigType("yaml")
	}

	// viper appends its own separator.
	viper.SetEnvPrefix(strings.TrimSuffix(identity.Prefix(), "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		observability.CLILogger.Debug("Using config file", zap.String("path", viper.ConfigFileUsed()))
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		observability.CLILogger.Debug("No config file found, using defaults and environment variables")
	} else if cfgFile != "" {
		ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, fmt.Sprintf("Cannot read config file %s", cfgFile), err)
	} else {
		observability.CLILogger.Warn("Error reading config file", zap.Error(err))
	}

	config.SetDefaults(viper.GetViper())
}
