package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/diligence-ledger/internal/ledger"
	"github.com/sells-group/diligence-ledger/internal/model"
)

var reviewsCmd = &cobra.Command{
	Use:   "reviews",
	Short: "Inspect and resolve pending contradiction reviews",
}

var reviewsListCmd = &cobra.Command{
	Use:   "list <deal-id>",
	Short: "List open reviews for a deal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		reviews, err := st.OpenReviews(ctx, args[0])
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFACT\tEXISTING\tCANDIDATE\tSOURCE")
		for _, r := range reviews {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				r.ID, r.FactKey, r.ExistingDisplayValue, r.NewDisplayValue, r.NewSource)
		}
		return w.Flush()
	},
}

var reviewsResolveCmd = &cobra.Command{
	Use:   "resolve <deal-id> <review-id> <decision>",
	Short: "Apply a decision to a pending review",
	Long:  "Decision is one of ACCEPT_NEW, KEEP_EXISTING, or OVERRIDE. OVERRIDE requires --value.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dealID, reviewID, decision := args[0], args[1], args[2]

		reason, _ := cmd.Flags().GetString("reason")
		user, _ := cmd.Flags().GetString("user")
		rawValue, _ := cmd.Flags().GetString("value")

		var override *ledger.OverrideInput
		if rawValue != "" {
			override = &ledger.OverrideInput{Value: model.ParseValue(rawValue)}
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		resolver := ledger.NewResolver(st)
		ev, err := resolver.Resolve(ctx, dealID, reviewID, model.Decision(decision), override, reason, user)
		if err != nil {
			return err
		}

		fmt.Printf("review %s resolved (%s): %s = %s\n", reviewID, decision, ev.FactKey, ev.DisplayValue)
		return nil
	},
}

func init() {
	reviewsResolveCmd.Flags().String("reason", "", "justification for the decision (required)")
	reviewsResolveCmd.Flags().String("user", "", "user id recorded on the event")
	reviewsResolveCmd.Flags().String("value", "", "override value (OVERRIDE decision only)")
	reviewsCmd.AddCommand(reviewsListCmd, reviewsResolveCmd)
	rootCmd.AddCommand(reviewsCmd)
}
