package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/diligence-ledger/internal/api"
	"github.com/sells-group/diligence-ledger/internal/consolidate"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ledger HTTP API",
	Long:  "Serves fact projection, claim intake, review resolution, flag consolidation, and alert resolution endpoints. The request rate limiter is process-local: run a single instance, or put a shared limiter in front.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rules := consolidate.DefaultTopicRules()
		if cfg.Topics.RulesPath != "" {
			rules, err = consolidate.LoadTopicRules(cfg.Topics.RulesPath)
			if err != nil {
				return err
			}
		}

		server := api.New(st, rules, cfg.Scoring.Credit, api.Options{
			RateRPS:     cfg.Server.RateRPS,
			RateBurst:   cfg.Server.RateBurst,
			CORSOrigins: cfg.Server.CORSOrigins,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: server.Router(),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
