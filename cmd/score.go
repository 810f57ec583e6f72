package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sells-group/diligence-ledger/internal/scoring"
)

var scoreCmd = &cobra.Command{
	Use:   "score <deal-id> <original-score>",
	Short: "Recompute a deal score with credit for resolved alerts",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dealID := args[0]

		original, err := strconv.ParseFloat(args[1], 64)
		if err != nil || original < 0 || original > 100 {
			return fmt.Errorf("original score must be a number between 0 and 100")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if _, err := st.GetDeal(ctx, dealID); err != nil {
			return err
		}
		resolutions, err := st.ListResolutions(ctx, dealID)
		if err != nil {
			return err
		}

		result := scoring.ComputeAdjustedScore(original, resolutions, cfg.Scoring.Credit)
		fmt.Printf("original: %.1f\nadjusted: %.1f (%+.1f)\n%s\n",
			result.OriginalScore, result.AdjustedScore, result.Delta, result.Explanation)
		for _, adj := range result.Adjustments {
			title := adj.Title
			if title == "" {
				title = adj.AlertKey
			}
			fmt.Printf("  +%.0f %s (%s, %s)\n", adj.Points, title, adj.Severity, adj.Status)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)
}
