package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openbi/kbic/pkg/convert"
	"github.com/openbi/kbic/pkg/dax"
	"github.com/openbi/kbic/pkg/sqlgen"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List supported conversion paths, dialects and strategies",
	Run:   runFormats,
}

func init() {
	rootCmd.AddCommand(formatsCmd)
}

func runFormats(_ *cobra.Command, _ []string) {
	registry := convert.NewDefaultRegistry(logger)

	fmt.Println("Conversion paths:")

	for _, path := range registry.Paths() {
		fmt.Printf("  %s\n", path)
	}

	fmt.Println("\nSQL dialects:")

	for _, dialect := range sqlgen.Dialects() {
		fmt.Printf("  %s\n", dialect)
	}

	fmt.Println("\nDAX strategies:")

	for _, strategy := range []dax.Strategy{dax.StrategyBasic, dax.StrategySmart, dax.StrategyTree} {
		fmt.Printf("  %s\n", strategy)
	}
}
