package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/leenbank/leenbank/internal/model"
	"github.com/leenbank/leenbank/internal/store"
)

// AdminHandler exposes the stock overview and counter reconciliation.
type AdminHandler struct {
	DB *sql.DB
}

type reconcileResponse struct {
	Drifts   []model.Drift `json:"drifts"`
	Repaired bool          `json:"repaired"`
}

// Stock handles GET /api/admin/stock.
func (h *AdminHandler) Stock(w http.ResponseWriter, r *http.Request) {
	lines, err := store.ListStock(r.Context(), h.DB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if lines == nil {
		lines = []model.StockLine{}
	}
	jsonResponse(w, http.StatusOK, lines)
}

// Reconcile handles GET /api/admin/reconcile. It only reports.
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	drifts, err := store.Reconcile(r.Context(), h.DB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if drifts == nil {
		drifts = []model.Drift{}
	}
	jsonResponse(w, http.StatusOK, reconcileResponse{Drifts: drifts})
}

// Repair handles POST /api/admin/reconcile.
func (h *AdminHandler) Repair(w http.ResponseWriter, r *http.Request) {
	drifts, err := store.RepairDrift(r.Context(), h.DB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if drifts == nil {
		drifts = []model.Drift{}
	}

	for _, d := range drifts {
		slog.Warn("reserved counter repaired", "user", GetClaims(r.Context()).Username,
			"item_id", d.ItemID, "cached", d.Cached, "computed", d.Computed)
	}
	jsonResponse(w, http.StatusOK, reconcileResponse{Drifts: drifts, Repaired: true})
}
