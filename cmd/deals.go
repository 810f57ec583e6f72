package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/diligence-ledger/internal/model"
)

var dealsCmd = &cobra.Command{
	Use:   "deals",
	Short: "Manage deals under evaluation",
}

var dealsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered deals",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		deals, err := st.ListDeals(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCOMPANY\tCREATED")
		for _, d := range deals {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.Name, d.Company, d.CreatedAt.Format("2006-01-02"))
		}
		return w.Flush()
	},
}

var dealsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a new deal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		company, _ := cmd.Flags().GetString("company")
		deal, err := st.CreateDeal(ctx, model.Deal{Name: args[0], Company: company})
		if err != nil {
			return err
		}

		fmt.Printf("created deal %s (%s)\n", deal.ID, deal.Name)
		return nil
	},
}

func init() {
	dealsAddCmd.Flags().String("company", "", "company name")
	dealsCmd.AddCommand(dealsListCmd, dealsAddCmd)
	rootCmd.AddCommand(dealsCmd)
}
