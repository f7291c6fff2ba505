package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openbi/kbic/pkg/convert"
	"github.com/openbi/kbic/pkg/kbi"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var validateCmd = &cobra.Command{
	Use:   "validate [files...]",
	Short: "Validate KBI documents without converting them",
	Long: `Validate one or more KBI YAML documents: parse errors, missing
formulas, bad display signs, unresolved variable references and undefined
structure names are reported per file.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	invalid := 0

	for _, path := range args {
		def, err := kbi.ParseFile(path)
		if err != nil {
			fmt.Printf("%s: INVALID\n  error: %v\n", path, err)

			invalid++

			continue
		}

		result := convert.ValidateDefinition(def)

		if result.Valid {
			fmt.Printf("%s: OK (%d kbis)\n", path, len(def.KBIs))
		} else {
			fmt.Printf("%s: INVALID\n", path)

			invalid++
		}

		for _, issue := range result.Errors {
			fmt.Printf("  error: %s: %s\n", issue.Field, issue.Message)
		}

		for _, issue := range result.Warnings {
			fmt.Printf("  warning: %s: %s\n", issue.Field, issue.Message)
		}
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d documents invalid", invalid, len(args))
	}

	return nil
}
