package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProcessCommand(configPath *string) *cobra.Command {
	var excluded []int

	cmd := &cobra.Command{
		Use:   "process <file.csv>",
		Short: "Categorize a bank-statement CSV and persist the results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			processor, err := a.newProcessor()
			if err != nil {
				return err
			}

			result, err := processor.ProcessFile(cmd.Context(), args[0], excluded, func(percent int, stage string) {
				fmt.Printf("[%3d%%] %s\n", percent, stage)
			})
			if err != nil {
				return err
			}

			if len(result.Duplicates) > 0 {
				fmt.Printf("\n%d row(s) look like duplicates of existing transactions; nothing was imported:\n\n", len(result.Duplicates))
				for _, d := range result.Duplicates {
					fmt.Printf("  row %d: %s %s %q matches transaction #%d (%.0f%% similar)\n",
						d.Index, d.Date.Format("2006-01-02"), d.Amount, d.Text, d.ExistingID, d.Similarity*100)
				}
				fmt.Println("\nRe-run with --exclude <row,...> to import flagged rows anyway.")
				return nil
			}

			fmt.Printf("\nProcessed %d transaction(s), %d with a resolved vendor (batch %s)\n",
				result.Processed, result.VendorsMatched, result.BatchID)
			if result.SkippedRows > 0 {
				fmt.Printf("Skipped %d malformed row(s)\n", result.SkippedRows)
			}
			return nil
		},
	}

	cmd.Flags().IntSliceVar(&excluded, "exclude", nil, "row indices to import despite being flagged as duplicates")

	return cmd
}
