package main

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/diligence-ledger/internal/ledger"
)

var integrityCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Scan every deal for ledger integrity violations",
	Long:  "Replays each deal's events through the projector and reports facts with more than one live CREATED event.",
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

		concurrency, _ := cmd.Flags().GetInt("concurrency")
		if concurrency <= 0 {
			concurrency = 4
		}

		var mu sync.Mutex
		var findings []string

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)
		for _, deal := range deals {
			deal := deal
			g.Go(func() error {
				events, err := st.EventsForDeal(gctx, deal.ID)
				if err != nil {
					return err
				}
				_, warnings := ledger.ProjectDeal(events, nil)
				if len(warnings) == 0 {
					return nil
				}
				mu.Lock()
				for _, w := range warnings {
					findings = append(findings, fmt.Sprintf("%s (%s): %s", deal.Name, deal.ID, w))
				}
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if len(findings) == 0 {
			fmt.Printf("scanned %d deals, no integrity violations\n", len(deals))
			return nil
		}
		fmt.Printf("scanned %d deals, %d violations:\n", len(deals), len(findings))
		for _, f := range findings {
			fmt.Println("  " + f)
		}
		return nil
	},
}

func init() {
	integrityCmd.Flags().Int("concurrency", 4, "deals scanned in parallel")
	rootCmd.AddCommand(integrityCmd)
}
