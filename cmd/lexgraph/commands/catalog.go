package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/OFFIS-RIT/lexgraph/internal/bootstrap"
	"github.com/OFFIS-RIT/lexgraph/internal/config"
	"github.com/OFFIS-RIT/lexgraph/pkg/catalog"
)

var catalogFile string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print or check the type catalog",
}

var catalogSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of catalog files",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := catalog.JSONSchema()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(os.Stdout, string(data))
		return err
	},
}

var catalogCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Load the configured catalog and list its types",
	Long: `Load the type catalog the pipeline would use and print its entity and
relation types. --file checks a catalog file instead of the configured
source.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cc := cfg.Catalog
		if catalogFile != "" {
			cc = config.CatalogConfig{Source: config.CatalogFile, Path: catalogFile}
		}

		var registry *catalog.Registry
		var err error
		if cc.Source == config.CatalogPostgres {
			pool, perr := openPool(ctx)
			if perr != nil {
				return perr
			}
			defer pool.Close()
			registry, err = bootstrap.NewRegistry(ctx, cc, pool)
		} else {
			registry, err = bootstrap.NewRegistry(ctx, cc, nil)
		}
		if err != nil {
			return err
		}

		c := registry.Catalog()
		fmt.Printf("%d entity types, %d relation types\n", len(c.EntityTypes), len(c.RelationTypes))
		for _, et := range c.EntityTypes {
			date := ""
			if et.IsDate {
				date = " (date)"
			}
			fmt.Printf("  %-24s -> %s%s\n", et.Name, registry.ResolveLabel(et.Name), date)
		}
		for _, rt := range c.RelationTypes {
			fmt.Printf("  %-24s -> %s\n", rt.Name, registry.ResolveRelation(rt.Name))
		}
		return nil
	},
}

func init() {
	catalogCheckCmd.Flags().StringVar(&catalogFile, "file", "", "catalog file to check (YAML or JSON)")
	catalogCmd.AddCommand(catalogSchemaCmd, catalogCheckCmd)
}
