package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/postrun/internal/importer"
)

func newImportCmd() *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Generate a Postman collection from OpenAPI/Swagger or WSDL",
		Args:  cobra.NoArgs,
	}

	openapi := &cobra.Command{
		Use:   "openapi",
		Short: "Import from OpenAPI 3 or Swagger 2",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := importOptions(cmd)
			if err != nil {
				return err
			}
			opts.GroupBy, _ = cmd.Flags().GetString("group-by")
			opts.AllowRemoteRefs, _ = cmd.Flags().GetBool("allow-remote-refs")
			opts.AllowFileRefs, _ = cmd.Flags().GetBool("allow-file-refs")
			opts.Strictness, _ = cmd.Flags().GetString("strictness")
			opts.IncludePaths, _ = cmd.Flags().GetStringSlice("include-path")
			switch opts.GroupBy {
			case "tags", "path", "none":
			default:
				return fmt.Errorf("--group-by must be tags, path or none (got %q)", opts.GroupBy)
			}
			switch opts.Strictness {
			case "loose", "standard", "strict":
			default:
				return fmt.Errorf("--strictness must be loose, standard or strict (got %q)", opts.Strictness)
			}
			_, err = importer.ImportOpenAPI(cmd.Context(), opts)
			return err
		},
	}
	wsdl := &cobra.Command{
		Use:   "wsdl",
		Short: "Import SOAP operations from a WSDL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := importOptions(cmd)
			if err != nil {
				return err
			}
			_, err = importer.ImportWSDL(cmd.Context(), opts)
			return err
		},
	}

	for _, c := range []*cobra.Command{openapi, wsdl} {
		c.Flags().StringP("source", "s", "", "Path or URL to source file")
		c.Flags().StringP("output-file", "f", "", "Collection JSON file to write")
		c.Flags().StringP("environment-file", "e", "", "Also write an environment with baseUrl and auth placeholders")
		c.Flags().StringP("collection-name", "n", "", "Name for the imported collection")
		c.Flags().Bool("insecure", false, "Skip TLS verification when fetching URLs")
		c.Flags().Bool("disable-test-generation", false, "Only generate status checks")
	}
	openapi.Flags().StringP("group-by", "g", "tags", "Folder grouping: tags|path|none")
	openapi.Flags().Bool("allow-remote-refs", false, "Allow following remote $refs inside the OpenAPI document")
	openapi.Flags().Bool("allow-file-refs", false, "Allow local file $refs outside the source directory")
	openapi.Flags().String("strictness", "standard", "Schema assertion strictness: loose|standard|strict")
	openapi.Flags().StringSliceP("include-path", "i", nil, "Only import operations whose path starts with one of these prefixes (repeatable)")

	importCmd.AddCommand(openapi, wsdl)
	return importCmd
}

// importOptions reads the flags shared by every import subcommand.
func importOptions(cmd *cobra.Command) (importer.Options, error) {
	src, _ := cmd.Flags().GetString("source")
	outFile, _ := cmd.Flags().GetString("output-file")
	if src == "" {
		return importer.Options{}, fmt.Errorf("--source is required")
	}
	if outFile == "" {
		return importer.Options{}, fmt.Errorf("--output-file is required")
	}
	opts := importer.Options{
		Source:     src,
		OutputFile: outFile,
		Logger:     loggerFromCmd(cmd),
	}
	opts.EnvironmentFile, _ = cmd.Flags().GetString("environment-file")
	opts.CollectionName, _ = cmd.Flags().GetString("collection-name")
	opts.Insecure, _ = cmd.Flags().GetBool("insecure")
	opts.DisableTests, _ = cmd.Flags().GetBool("disable-test-generation")
	return opts, nil
}
