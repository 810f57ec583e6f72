// Package api serves the reconciliation ledger over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/diligence-ledger/internal/consolidate"
	"github.com/sells-group/diligence-ledger/internal/ledger"
	"github.com/sells-group/diligence-ledger/internal/scoring"
)

// Options tunes server middleware.
type Options struct {
	RateRPS     float64
	RateBurst   int
	CORSOrigins []string
}

// Server wires the ledger services behind the HTTP surface.
type Server struct {
	store    ledger.Store
	detector *ledger.Detector
	resolver *ledger.Resolver
	rules    *consolidate.TopicRules
	credits  scoring.CreditConfig
	opts     Options
}

// New creates a Server. A nil rules falls back to the built-in topic rules;
// zero credits fall back to the default tier table.
func New(store ledger.Store, rules *consolidate.TopicRules, credits scoring.CreditConfig, opts Options) *Server {
	if rules == nil {
		rules = consolidate.DefaultTopicRules()
	}
	if credits == (scoring.CreditConfig{}) {
		credits = scoring.DefaultCredits()
	}
	if opts.RateRPS <= 0 {
		opts.RateRPS = 20
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 40
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{
		store:    store,
		detector: ledger.NewDetector(store),
		resolver: ledger.NewResolver(store),
		rules:    rules,
		credits:  credits,
		opts:     opts,
	}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(newClientLimiter(s.opts.RateRPS, s.opts.RateBurst).middleware)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/deals", s.handleCreateDeal)
	r.Get("/deals", s.handleListDeals)

	r.Route("/facts/{dealID}", func(r chi.Router) {
		r.Get("/", s.handleGetFacts)
		r.Post("/", s.handleOverrideFact)
		r.Post("/claims", s.handleSubmitClaim)
		r.Get("/reviews", s.handleListReviews)
		r.Post("/reviews", s.handleResolveReview)
	})

	r.Route("/deals/{dealID}", func(r chi.Router) {
		r.Post("/flags/consolidate", s.handleConsolidateFlags)
		r.Get("/alerts", s.handleListAlerts)
		r.Put("/alerts/{alertKey}", s.handleResolveAlert)
		r.Delete("/alerts/{alertKey}", s.handleUnresolveAlert)
		r.Post("/score", s.handleAdjustedScore)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("api: encode response", zap.Error(err))
	}
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// writeError maps the ledger error taxonomy onto HTTP statuses: validation
// 400, not-found 404, stale review 409, everything else 500 with the detail
// kept out of the response body.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case ledger.IsValidation(err):
		body := errorBody{Error: err.Error()}
		var ve *ledger.ValidationError
		if errors.As(err, &ve) {
			body.Field = ve.Field
		}
		writeJSON(w, http.StatusBadRequest, body)
	case ledger.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case ledger.IsStaleReview(err):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	default:
		zap.L().Error("api: internal error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}
