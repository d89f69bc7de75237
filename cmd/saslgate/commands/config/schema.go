package config

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/marmos91/saslgate/pkg/config"
)

var (
	schemaOutput  string
	schemaSection string
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the configuration file",
	Long: `Print the JSON schema of config.yaml, keyed by the YAML field names.

Point your editor's YAML language server at the output to get completion
for realm types, LDAP and SQL settings, and trust options. Property
layers are free-form objects: their keys become sasl.Properties once
flattened, so the schema accepts any object there.

--section limits the output to one top-level section, e.g. realm or
negotiation.

Examples:
  # Whole schema to stdout
  saslgate config schema

  # Only the realm section, saved next to the config
  saslgate config schema --section realm --file realm.schema.json`,
	RunE: runSchema,
}

func init() {
	schemaCmd.Flags().StringVarP(&schemaOutput, "file", "f", "", "Output file (default: stdout)")
	schemaCmd.Flags().StringVar(&schemaSection, "section", "", "Top-level section to print (logging, telemetry, metrics, negotiation, realm, trust)")
}

func reflectConfig() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		FieldNameTag:              "yaml",
	}
	schema := reflector.Reflect(&config.Config{})
	schema.Version = "https://json-schema.org/draft/2020-12/schema"
	schema.Title = "saslgate configuration"
	schema.Description = "Negotiation chain, realm and trust settings of saslgate"
	return schema
}

// Schema returns the configuration schema as indented JSON.
func Schema() ([]byte, error) {
	return json.MarshalIndent(reflectConfig(), "", "  ")
}

// SectionSchema returns the schema of one top-level section.
func SectionSchema(section string) ([]byte, error) {
	schema := reflectConfig()
	sub, ok := schema.Properties.Get(section)
	if !ok {
		var known []string
		for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
			known = append(known, pair.Key)
		}
		slices.Sort(known)
		return nil, fmt.Errorf("unknown section %q (known: %s)", section, strings.Join(known, ", "))
	}
	sub.Version = schema.Version
	sub.Title = "saslgate " + section + " section"
	return json.MarshalIndent(sub, "", "  ")
}

func runSchema(cmd *cobra.Command, args []string) error {
	var (
		schemaJSON []byte
		err        error
	)
	if schemaSection != "" {
		schemaJSON, err = SectionSchema(schemaSection)
	} else {
		schemaJSON, err = Schema()
	}
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	if schemaOutput == "" {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(schemaJSON))
		return nil
	}
	if err := os.WriteFile(schemaOutput, schemaJSON, 0o644); err != nil {
		return fmt.Errorf("failed to write schema file: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "JSON schema written to %s\n", schemaOutput)
	return nil
}
