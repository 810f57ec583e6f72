package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/diligence-ledger/internal/ledger"
	"github.com/sells-group/diligence-ledger/internal/model"
)

var factsCmd = &cobra.Command{
	Use:   "facts <deal-id>",
	Short: "Show the current fact projection for a deal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dealID := args[0]

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if _, err := st.GetDeal(ctx, dealID); err != nil {
			return err
		}

		events, err := st.EventsForDeal(ctx, dealID)
		if err != nil {
			return err
		}
		reviews, err := st.OpenReviews(ctx, dealID)
		if err != nil {
			return err
		}

		facts, warnings := ledger.ProjectDeal(events, reviews)
		for _, warning := range warnings {
			zap.L().Warn("projection integrity warning", zap.String("warning", warning))
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return json.NewEncoder(os.Stdout).Encode(facts)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FACT\tCATEGORY\tVALUE\tSOURCE\tCONF\tDISPUTED")
		for _, f := range facts {
			disputed := ""
			if f.IsDisputed {
				disputed = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
				f.FactKey, f.Category, f.CurrentDisplayValue, f.CurrentSource, f.CurrentConfidence, disputed)
		}
		return w.Flush()
	},
}

var factsOverrideCmd = &cobra.Command{
	Use:   "override <deal-id> <fact-key> <value>",
	Short: "Override a fact's current value directly",
	Long:  "Supersedes the current value with a human-authored BA_OVERRIDE event at confidence 100. The value is reparsed: numbers, booleans, and bracketed lists become structured values.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dealID, factKey, raw := args[0], args[1], args[2]

		reason, _ := cmd.Flags().GetString("reason")
		user, _ := cmd.Flags().GetString("user")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		resolver := ledger.NewResolver(st)
		ev, err := resolver.Override(ctx, dealID, factKey, model.ParseValue(raw), "", reason, user)
		if err != nil {
			return err
		}

		fmt.Printf("fact %s overridden: %s (event %s)\n", factKey, ev.DisplayValue, ev.ID)
		return nil
	},
}

func init() {
	factsCmd.Flags().Bool("json", false, "output as JSON")
	factsOverrideCmd.Flags().String("reason", "", "justification for the override (required)")
	factsOverrideCmd.Flags().String("user", "", "user id recorded on the event")
	factsCmd.AddCommand(factsOverrideCmd)
	rootCmd.AddCommand(factsCmd)
}
