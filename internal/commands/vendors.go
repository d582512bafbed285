package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mbirkedal/vendorledger/internal/domain/model"
)

func newVendorsCommand(configPath *string) *cobra.Command {
	vendorsCmd := &cobra.Command{
		Use:   "vendors",
		Short: "Inspect and maintain the vendor registry",
	}
	vendorsCmd.AddCommand(newVendorsListCommand(configPath))
	vendorsCmd.AddCommand(newVendorsDeleteCommand(configPath))
	return vendorsCmd
}

func newVendorsListCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all known vendors",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			vendors, err := a.repo.ListVendors(cmd.Context())
			if err != nil {
				return err
			}

			if len(vendors) == 0 {
				fmt.Println("No vendors yet.")
				return nil
			}

			for _, v := range vendors {
				fmt.Printf("#%-4d %-30s %s\n", v.ID, v.Name, vendorDetails(v))
			}
			fmt.Printf("\n%d vendor(s)\n", len(vendors))
			return nil
		},
	}
}

func vendorDetails(v model.Vendor) string {
	var parts []string
	if v.Domain != "" {
		parts = append(parts, v.Domain)
	}
	if len(v.Nicknames) > 0 {
		parts = append(parts, "aka "+strings.Join(v.Nicknames, ", "))
	}
	return strings.Join(parts, "  ")
}

func newVendorsDeleteCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete vendors; their transactions keep existing without a vendor",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid vendor id %q", arg)
				}
				ids = append(ids, id)
			}

			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			deleted, err := a.repo.DeleteVendors(cmd.Context(), ids)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d vendor(s)\n", deleted)
			return nil
		},
	}
}
