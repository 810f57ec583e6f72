package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/diligence-ledger/internal/consolidate"
	"github.com/sells-group/diligence-ledger/internal/model"
	"github.com/sells-group/diligence-ledger/internal/scoring"
)

type consolidateRequest struct {
	PerAgent []model.AgentFlags `json:"perAgent"`
}

// handleConsolidateFlags merges per-agent red flags into one alert per topic
// and re-attaches any stored resolutions by alert key. Pure per request:
// nothing is persisted.
func (s *Server) handleConsolidateFlags(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "dealID")
	ctx := r.Context()

	if _, err := s.store.GetDeal(ctx, dealID); err != nil {
		writeError(w, err)
		return
	}

	var req consolidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	flags := consolidate.Consolidate(req.PerAgent, s.rules)
	for i := range flags {
		flags[i].AlertKey = model.AlertKey(model.AlertRedFlag, flags[i].Topic)
		res, err := s.store.GetResolution(ctx, dealID, flags[i].AlertKey)
		if err != nil {
			writeError(w, err)
			return
		}
		flags[i].Resolution = res
	}
	if flags == nil {
		flags = []model.ConsolidatedFlag{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deal_id": dealID,
		"flags":   flags,
	})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "dealID")
	ctx := r.Context()

	if _, err := s.store.GetDeal(ctx, dealID); err != nil {
		writeError(w, err)
		return
	}
	resolutions, err := s.store.ListResolutions(ctx, dealID)
	if err != nil {
		writeError(w, err)
		return
	}
	if resolutions == nil {
		resolutions = []model.AlertResolution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deal_id":     dealID,
		"resolutions": resolutions,
	})
}

type resolveAlertRequest struct {
	Status        model.ResolutionStatus `json:"status"`
	Justification string                 `json:"justification"`
	AlertType     model.AlertType        `json:"alertType"`
	Title         string                 `json:"title,omitempty"`
	Severity      model.Severity         `json:"severity,omitempty"`
	Category      string                 `json:"category,omitempty"`
	UserID        string                 `json:"userId,omitempty"`
}

// handleResolveAlert upserts a resolution for the keyed alert.
func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "dealID")
	alertKey := chi.URLParam(r, "alertKey")
	ctx := r.Context()

	if _, err := s.store.GetDeal(ctx, dealID); err != nil {
		writeError(w, err)
		return
	}

	var req resolveAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	alertType := req.AlertType
	if alertType == "" {
		alertType = model.AlertRedFlag
	}
	res, err := s.store.UpsertResolution(ctx, model.AlertResolution{
		AlertKey:      alertKey,
		DealID:        dealID,
		AlertType:     alertType,
		Status:        req.Status,
		Justification: req.Justification,
		AlertTitle:    req.Title,
		AlertSeverity: req.Severity,
		AlertCategory: req.Category,
		CreatedBy:     req.UserID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleUnresolveAlert hard-deletes a resolution, reverting the alert to
// unresolved. Always permitted.
func (s *Server) handleUnresolveAlert(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "dealID")
	alertKey := chi.URLParam(r, "alertKey")
	ctx := r.Context()

	if _, err := s.store.GetDeal(ctx, dealID); err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.DeleteResolution(ctx, dealID, alertKey); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type scoreRequest struct {
	OriginalScore float64 `json:"originalScore"`
}

// handleAdjustedScore recomputes the deal score with credit for every
// resolved or accepted alert.
func (s *Server) handleAdjustedScore(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "dealID")
	ctx := r.Context()

	if _, err := s.store.GetDeal(ctx, dealID); err != nil {
		writeError(w, err)
		return
	}

	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.OriginalScore < 0 || req.OriginalScore > 100 {
		badRequest(w, "originalScore must be between 0 and 100")
		return
	}

	resolutions, err := s.store.ListResolutions(ctx, dealID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scoring.ComputeAdjustedScore(req.OriginalScore, resolutions, s.credits))
}
