package api

import (
	"encoding/json"
	"net/http"

	"github.com/sells-group/diligence-ledger/internal/model"
)

type createDealRequest struct {
	Name    string `json:"name"`
	Company string `json:"company,omitempty"`
}

func (s *Server) handleCreateDeal(w http.ResponseWriter, r *http.Request) {
	var req createDealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.Name == "" {
		badRequest(w, "name is required")
		return
	}

	deal, err := s.store.CreateDeal(r.Context(), model.Deal{Name: req.Name, Company: req.Company})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, deal)
}

func (s *Server) handleListDeals(w http.ResponseWriter, r *http.Request) {
	deals, err := s.store.ListDeals(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if deals == nil {
		deals = []model.Deal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"deals": deals})
}
