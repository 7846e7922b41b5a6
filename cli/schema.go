package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"oms.heartbeat.dev/ontology/model"
	"oms.heartbeat.dev/ontology/validator"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Manage schema documents in the schema registry",
}

var schemaLoadActor string

func init() {
	schemaCmd.AddCommand(schemaValidateCmd)
	schemaCmd.AddCommand(schemaLoadCmd)
	schemaCmd.AddCommand(schemaPublishCmd)

	schemaLoadCmd.Flags().StringVar(&schemaLoadActor, "actor", "cli", "actor id recorded as the loader of this version")
}

var schemaValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a schema document without loading it",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		doc, err := loadDocument(args[0])
		if err != nil {
			fatal("schema validate", err)
		}
		issues := validator.Validate(doc)
		for _, issue := range issues {
			fmt.Println(issue.String())
		}
		if validator.HasErrors(issues) {
			os.Exit(1)
		}
	},
}

var schemaLoadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Validate and load a schema document as a new draft version",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		doc, err := loadDocument(args[0])
		if err != nil {
			fatal("schema load", err)
		}
		issues := validator.Validate(doc)
		for _, issue := range issues {
			fmt.Println(issue.String())
		}
		if validator.HasErrors(issues) {
			fmt.Fprintln(os.Stderr, "oms: schema has validation errors, not loading")
			os.Exit(1)
		}

		c, teardown, err := initCore(cmd.Context())
		if err != nil {
			fatal("schema load", err)
		}
		defer teardown()

		version, err := c.Registry.LoadFromDocument(doc, schemaLoadActor)
		if err != nil {
			fatal("schema load", err)
		}
		fmt.Printf("loaded draft version %s\n", version.Version)
	},
}

var schemaPublishCmd = &cobra.Command{
	Use:   "publish <version>",
	Short: "Publish a draft schema version, making it active",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c, teardown, err := initCore(cmd.Context())
		if err != nil {
			fatal("schema publish", err)
		}
		defer teardown()

		version, err := c.Registry.Publish(args[0], schemaLoadActor)
		if err != nil {
			fatal("schema publish", err)
		}
		fmt.Printf("published version %s\n", version.Version)
	},
}

func loadDocument(path string) (*model.SchemaDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema document: %w", err)
	}
	var doc model.SchemaDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse schema document: %w", err)
	}
	return &doc, nil
}
