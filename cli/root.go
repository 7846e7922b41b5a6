// Package cli provides the command-line interface for the Ontology
// Metadata Service: loading and publishing schema documents, and driving
// the clip extraction/cutting pipeline from the shell.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"oms.heartbeat.dev/common"
	"oms.heartbeat.dev/config"
	"oms.heartbeat.dev/core"
)

// cfgFile is the optional --config YAML file; when set, its keys are
// exported as OMS_-prefixed environment variables before config.LoadOMSConfig
// runs, mirroring the teacher's viper.BindPFlag/AutomaticEnv layering but
// collapsed onto this service's single env-var config surface.
var cfgFile string

// RootCmd is the entry point for the oms binary. Configuration is read
// from OMS_-prefixed environment variables (config.LoadOMSConfig); --config
// optionally overlays a YAML file underneath them.
var RootCmd = &cobra.Command{
	Use:   "oms",
	Short: "Ontology Metadata Service command-line interface",
	Long: `oms manages the Ontology Metadata Service's schema registry and
drives its clip extraction, cutting, and indexing pipeline.

Configuration is read from OMS_-prefixed environment variables
(OMS_RELATIONAL_DSN, OMS_DATA_ROOT, OMS_CLIP_INDEX_PATH, ...); an optional
--config YAML file is loaded first and its keys are exported as the
matching OMS_ variables, so actual environment variables always win.`,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file overlaid under OMS_ environment variables")
	RootCmd.AddCommand(schemaCmd)
	RootCmd.AddCommand(clipCmd)
}

// loadConfigFile exports cfgFile's keys as OMS_<UPPER_KEY> environment
// variables, skipping any already set in the process environment. A no-op
// when --config was not given.
func loadConfigFile() error {
	if cfgFile == "" {
		return nil
	}
	v := viper.New()
	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %s: %w", cfgFile, err)
	}
	for key, val := range v.AllSettings() {
		envKey := "OMS_" + strings.ToUpper(key)
		if os.Getenv(envKey) == "" {
			os.Setenv(envKey, fmt.Sprintf("%v", val))
		}
	}
	return nil
}

// initCore loads configuration and brings up every component the command
// needs, returning a teardown func the caller must defer.
func initCore(ctx context.Context) (*core.Core, func(), error) {
	if err := loadConfigFile(); err != nil {
		return nil, func() {}, err
	}
	cfg := config.LoadOMSConfig()
	c, err := core.Init(ctx, cfg)
	if err != nil {
		return nil, func() {}, err
	}
	return c, c.Close, nil
}

// fatal logs err with the given operation context and exits 1, mirroring
// the rest of the module's logrus-based error reporting.
func fatal(operation string, err error) {
	common.Logger.WithFields(map[string]interface{}{
		"component": "cli",
		"operation": operation,
	}).WithError(err).Error("command failed")
	fmt.Fprintf(os.Stderr, "oms: %s: %v\n", operation, err)
	os.Exit(1)
}
