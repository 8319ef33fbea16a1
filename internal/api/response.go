package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"github.com/leenbank/leenbank/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// errorBody is the shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Field string `json:"field,omitempty"`
}

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, errorBody{Error: message})
}

// domainErrors maps sentinel errors to a status and a stable code.
var domainErrors = []struct {
	err    error
	status int
	code   string
}{
	{model.ErrNotFound, http.StatusNotFound, "not_found"},
	{model.ErrInsufficientStock, http.StatusBadRequest, "insufficient_stock"},
	{model.ErrInvalidTransition, http.StatusBadRequest, "invalid_transition"},
	{model.ErrForbidden, http.StatusForbidden, "forbidden"},
	{model.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
}

// writeError maps a domain error to its HTTP status. Anything unrecognised
// is logged and reported as an internal error without details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		jsonResponse(w, http.StatusBadRequest, errorBody{Error: verr.Error(), Code: "validation", Field: verr.Field})
		return
	}

	for _, d := range domainErrors {
		if errors.Is(err, d.err) {
			jsonResponse(w, d.status, errorBody{Error: err.Error(), Code: d.code})
			return
		}
	}

	slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	jsonResponse(w, http.StatusInternalServerError, errorBody{Error: "internal error", Code: "internal"})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return model.Invalid("", "invalid request body")
	}
	return nil
}

// pathID parses the {id} path value.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, model.Invalid("id", "must be a positive integer")
	}
	return id, nil
}
