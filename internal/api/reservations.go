package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/leenbank/leenbank/internal/model"
	"github.com/leenbank/leenbank/internal/reservation"
	"github.com/leenbank/leenbank/internal/store"
)

// ReservationsHandler handles reservation endpoints. Every mutation goes
// through the engine, which also enforces ownership.
type ReservationsHandler struct {
	DB     *sql.DB
	Engine *reservation.Engine
}

type createReservationRequest struct {
	ItemID   int64 `json:"item_id"`
	Quantity int   `json:"quantity"`
}

type updateReservationRequest struct {
	Status   model.Status `json:"status"`
	Quantity *int         `json:"quantity"`
}

// List handles GET /api/reservations. ARCHIVED reservations are left out
// unless ?archived=true; ?status= and ?item_id= narrow the list.
func (h *ReservationsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := viewFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respondViews(w, r, filter)
}

// ListMine handles GET /api/reservations/my.
func (h *ReservationsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	filter, err := viewFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter.UserID = actorFrom(r).UserID
	h.respondViews(w, r, filter)
}

func (h *ReservationsHandler) respondViews(w http.ResponseWriter, r *http.Request, filter store.ViewFilter) {
	views, err := store.ListReservationViews(r.Context(), h.DB, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, views)
}

func viewFilter(r *http.Request) (store.ViewFilter, error) {
	q := r.URL.Query()
	f := store.ViewFilter{Lang: requestLang(r)}

	if s := q.Get("status"); s != "" {
		f.Status = model.Status(s)
		if !f.Status.Valid() {
			return f, model.Invalid("status", "unknown status %q", s)
		}
		// Asking for archived reservations by status implies including them.
		f.IncludeArchived = f.Status == model.StatusArchived
	}
	if a := q.Get("archived"); a != "" {
		include, err := strconv.ParseBool(a)
		if err != nil {
			return f, model.Invalid("archived", "must be true or false")
		}
		f.IncludeArchived = f.IncludeArchived || include
	}
	if id := q.Get("item_id"); id != "" {
		itemID, err := strconv.ParseInt(id, 10, 64)
		if err != nil || itemID <= 0 {
			return f, model.Invalid("item_id", "must be a positive integer")
		}
		f.ItemID = itemID
	}
	return f, nil
}

// Create handles POST /api/reservations.
func (h *ReservationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createReservationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	actor := actorFrom(r)
	res, err := h.Engine.Create(r.Context(), actor, req.ItemID, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("reservation created", "user_id", actor.UserID, "reservation_id", res.ID,
		"item_id", res.ItemID, "quantity", res.Quantity)
	jsonResponse(w, http.StatusCreated, res)
}

// Update handles PATCH /api/reservations/{id}.
func (h *ReservationsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req updateReservationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	actor := actorFrom(r)
	res, err := h.Engine.Update(r.Context(), actor, id, reservation.Patch{Status: req.Status, Quantity: req.Quantity})
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("reservation status changed", "user_id", actor.UserID, "reservation_id", id,
		"status", res.Status, "quantity", res.Quantity)
	jsonResponse(w, http.StatusOK, res)
}

// Archive handles PATCH /api/reservations/{id}/archive.
func (h *ReservationsHandler) Archive(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	actor := actorFrom(r)
	res, err := h.Engine.Archive(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("reservation archived", "user_id", actor.UserID, "reservation_id", id)
	jsonResponse(w, http.StatusOK, res)
}

// Delete handles DELETE /api/reservations/{id}.
func (h *ReservationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	actor := actorFrom(r)
	res, err := h.Engine.Delete(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("reservation deleted", "user_id", actor.UserID, "reservation_id", id,
		"item_id", res.ItemID, "status", res.Status)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "reservation deleted"})
}

// GetHistory handles GET /api/reservations/{id}/history.
func (h *ReservationsHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	events, err := store.ListEvents(r.Context(), h.DB, 0, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if events == nil {
		events = []model.ReservationEvent{}
	}
	jsonResponse(w, http.StatusOK, events)
}
