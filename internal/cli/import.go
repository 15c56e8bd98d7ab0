package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/headline-goat/vwo-pulse/internal/importer"
	"github.com/headline-goat/vwo-pulse/internal/store"
)

var importExperiment string

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import Looker CSV or ZIP data for an experiment",
	Long: `Import visitor, order and revenue counts exported from Looker. Imported
values replace the API numbers for the matching variations (matched by
variation id, then name) until they are overwritten by a later import.

Examples:
  vwop import sessions_by_variation.csv --experiment 222
  vwop import looker-export.zip --experiment 222`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVarP(&importExperiment, "experiment", "e", "", "campaign id the data belongs to")
	_ = importCmd.MarkFlagRequired("experiment")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	return withStore(func(s store.Store) error {
		override, err := importer.Import(context.Background(), s, importExperiment, filepath.Base(path), data)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Imported %s into experiment %s (%d variations with data)\n",
			filepath.Base(path), importExperiment, len(override.Variations))
		return nil
	})
}
