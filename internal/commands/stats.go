package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate statistics over the stored transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.repo.GetStats(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("Transactions:  %d (%d categorized)\n", stats.TotalTransactions, stats.CategorizedCount)
			fmt.Printf("Vendors:       %d\n", stats.TotalVendors)
			fmt.Printf("Avg category confidence: %.2f\n", stats.AvgCategoryConfidence)
			fmt.Printf("Avg vendor confidence:   %.2f\n", stats.AvgVendorConfidence)

			if len(stats.Categories) > 0 {
				fmt.Println("\nBy category:")
				for _, c := range stats.Categories {
					fmt.Printf("  %-28s %5d  (%.2f total, %.2f avg confidence)\n",
						c.Category, c.Count, c.TotalAmount, c.AvgConfidence)
				}
			}

			if len(stats.VendorMatchSources) > 0 {
				fmt.Println("\nVendor match sources:")
				for source, count := range stats.VendorMatchSources {
					fmt.Printf("  %-10s %d\n", source, count)
				}
			}
			return nil
		},
	}
}
