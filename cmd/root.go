// Package cmd implements the command line interface of the object store.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"dicom-object-store/app"
	"dicom-object-store/config"
	"dicom-object-store/database"
	"dicom-object-store/logging"

	"github.com/go-pg/pg"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// RootCmd represents the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use:   "dicom-object-store",
	Short: "DICOMweb object store",
	Long: `A DICOM object store: STOW-RS ingestion, WADO-RS retrieval, a
PostgreSQL index with extended query tags and a change feed, and instance
content on local disk or Google Cloud Storage.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./dicom-object-store.yaml)")
	RootCmd.PersistentFlags().String("log-level", "info", "log level")
	RootCmd.PersistentFlags().Bool("log-text", false, "log as text instead of json")
	viper.BindPFlag("log_level", RootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_textlogging", RootCmd.PersistentFlags().Lookup("log-text"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("dicom-object-store")
	}

	viper.SetEnvPrefix("dicom")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setup loads the configuration, connects to the database and wires the
// services. The returned func releases both.
func setup(ctx context.Context) (*app.App, func(), error) {
	logger := logging.NewLogger()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	db, err := database.DBConn()
	if err != nil {
		logger.WithField("module", "database").Error(err)
		return nil, nil, err
	}

	a, err := app.New(ctx, cfg, db, logger)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	return a, func() {
		if err := a.Close(); err != nil {
			logger.WithError(err).Warn("close content store")
		}
		db.Close()
	}, nil
}

// connect opens the database only, for commands that manage the schema.
func connect() (*pg.DB, error) {
	logging.NewLogger()
	return database.DBConn()
}
