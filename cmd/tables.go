package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/avalia-cli/internal/tools"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List declared tables and which ones are loaded",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		an := a.Analyzer()
		if outJSON {
			return emit("", map[string]any{
				"data_dir":  an.Dir(),
				"available": an.AvailableTables(),
				"declared":  an.Registry().Names(),
			}, outputOpts(cmd))
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Data dir: %s\n\n", an.Dir())
		for _, t := range an.Registry().Tables() {
			mark := "✗"
			if an.IsLoaded(t.Name) {
				mark = "✓"
			}
			fmt.Fprintf(out, "%s %-26s %s\n", mark, t.Name, t.Description)
		}
		return nil
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema [table]",
	Short: "Describe all tables, or one table's columns and relationships",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		call := tools.SchemaCall{}
		if len(args) == 1 {
			call.Table = args[0]
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		if outJSON {
			if call.Table == "" {
				return emit("", a.Registry().Tables(), outputOpts(cmd))
			}
			t, ok := a.Registry().Lookup(call.Table)
			if !ok {
				return fmt.Errorf("%s", a.Registry().TableInfo(call.Table))
			}
			return emit("", t, outputOpts(cmd))
		}
		return emit(a.Adapter().Run(cmd.Context(), call), nil, outputOpts(cmd))
	},
}

func init() {
	tablesCmd.Flags().BoolVar(&outJSON, "json", false, "print as JSON")
	schemaCmd.Flags().BoolVar(&outJSON, "json", false, "print as JSON")
	schemaCmd.Flags().StringVarP(&outPath, "output", "o", "", "also write the result to this file")
	rootCmd.AddCommand(tablesCmd)
	rootCmd.AddCommand(schemaCmd)
}
