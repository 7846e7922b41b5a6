// Command oms is the entry point for the Ontology Metadata Service's
// command-line interface: schema registry management and the clip
// extraction/cutting pipeline.
package main

import (
	"os"

	"oms.heartbeat.dev/cli"
	"oms.heartbeat.dev/common"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		common.Logger.WithError(err).Error("command failed")
		os.Exit(1)
	}
}
