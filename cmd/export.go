package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/diligence-ledger/internal/export"
	"github.com/sells-group/diligence-ledger/internal/ledger"
)

var exportCmd = &cobra.Command{
	Use:   "export <deal-id>",
	Short: "Export a deal's facts, reviews, and resolutions to an XLSX workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dealID := args[0]

		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = fmt.Sprintf("diligence-%s.xlsx", dealID)
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		deal, err := st.GetDeal(ctx, dealID)
		if err != nil {
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
		resolutions, err := st.ListResolutions(ctx, dealID)
		if err != nil {
			return err
		}

		facts, warnings := ledger.ProjectDeal(events, reviews)
		for _, warning := range warnings {
			zap.L().Warn("projection integrity warning", zap.String("warning", warning))
		}

		if err := export.WriteWorkbook(out, *deal, facts, reviews, resolutions); err != nil {
			return err
		}
		fmt.Printf("wrote %s (%d facts, %d open reviews, %d resolutions)\n",
			out, len(facts), len(reviews), len(resolutions))
		return nil
	},
}

func init() {
	exportCmd.Flags().String("out", "", "output path (default diligence-<deal-id>.xlsx)")
	rootCmd.AddCommand(exportCmd)
}
