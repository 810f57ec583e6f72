package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/diligence-ledger/internal/ledger"
	"github.com/sells-group/diligence-ledger/internal/model"
)

// handleGetFacts serves the current projection for every fact of a deal.
// ?category= filters by category; ?includeHistory=true keeps event history
// in the response.
func (s *Server) handleGetFacts(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "dealID")
	ctx := r.Context()

	if _, err := s.store.GetDeal(ctx, dealID); err != nil {
		writeError(w, err)
		return
	}

	events, err := s.store.EventsForDeal(ctx, dealID)
	if err != nil {
		writeError(w, err)
		return
	}
	reviews, err := s.store.OpenReviews(ctx, dealID)
	if err != nil {
		writeError(w, err)
		return
	}

	facts, warnings := ledger.ProjectDeal(events, reviews)
	for _, warning := range warnings {
		zap.L().Warn("projection integrity warning",
			zap.String("deal_id", dealID),
			zap.String("warning", warning),
		)
	}

	category := model.Category(strings.ToUpper(r.URL.Query().Get("category")))
	includeHistory := r.URL.Query().Get("includeHistory") == "true"

	filtered := facts[:0]
	for _, f := range facts {
		if category != "" && f.Category != category {
			continue
		}
		if !includeHistory {
			f.EventHistory = nil
		}
		filtered = append(filtered, f)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deal_id":     dealID,
		"facts_count": len(filtered),
		"facts":       filtered,
	})
}

type overrideRequest struct {
	FactKey      string          `json:"factKey"`
	Value        json.RawMessage `json:"value"`
	DisplayValue string          `json:"displayValue"`
	Reason       string          `json:"reason"`
	UserID       string          `json:"userId"`
}

// handleOverrideFact applies a direct human override: supersede the current
// event and insert a BA_OVERRIDE event at confidence 100.
func (s *Server) handleOverrideFact(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "dealID")

	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	value, err := decodeValue(req.Value)
	if err != nil {
		badRequest(w, "unparseable value")
		return
	}

	ev, err := s.resolver.Override(r.Context(), dealID, req.FactKey, value, req.DisplayValue, req.Reason, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// handleSubmitClaim runs an agent claim through the contradiction detector.
func (s *Server) handleSubmitClaim(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "dealID")

	var claim ledger.Claim
	if err := json.NewDecoder(r.Body).Decode(&claim); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	outcome, err := s.detector.Evaluate(r.Context(), dealID, claim)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusCreated
	if !outcome.Accepted {
		status = http.StatusAccepted
	}
	writeJSON(w, status, outcome)
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "dealID")
	ctx := r.Context()

	if _, err := s.store.GetDeal(ctx, dealID); err != nil {
		writeError(w, err)
		return
	}
	reviews, err := s.store.OpenReviews(ctx, dealID)
	if err != nil {
		writeError(w, err)
		return
	}
	if reviews == nil {
		reviews = []model.PendingReview{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deal_id": dealID,
		"reviews": reviews,
	})
}

type resolveReviewRequest struct {
	ReviewID             string          `json:"reviewId"`
	Decision             model.Decision  `json:"decision"`
	Reason               string          `json:"reason"`
	OverrideValue        json.RawMessage `json:"overrideValue,omitempty"`
	OverrideDisplayValue string          `json:"overrideDisplayValue,omitempty"`
	UserID               string          `json:"userId"`
}

// handleResolveReview applies a human decision to a pending review.
func (s *Server) handleResolveReview(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "dealID")

	var req resolveReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.ReviewID == "" {
		badRequest(w, "reviewId is required")
		return
	}

	var override *ledger.OverrideInput
	if len(req.OverrideValue) > 0 {
		value, err := decodeValue(req.OverrideValue)
		if err != nil {
			badRequest(w, "unparseable overrideValue")
			return
		}
		override = &ledger.OverrideInput{Value: value, DisplayValue: req.OverrideDisplayValue}
	}

	ev, err := s.resolver.Resolve(r.Context(), dealID, req.ReviewID, req.Decision, override, req.Reason, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// decodeValue accepts any JSON union value. A JSON string is additionally
// reparsed so a human-entered "1,200,000" or "true" round-trips to the
// structural value it represents.
func decodeValue(raw json.RawMessage) (model.FactValue, error) {
	var v model.FactValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return model.FactValue{}, err
	}
	if v.Kind == model.ValueString {
		return model.ParseValue(v.Str), nil
	}
	return v, nil
}
