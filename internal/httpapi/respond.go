package httpapi

import (
	"encoding/json"
	"net/http"
)

// errorResponse is the error envelope every failing API call returns.
type errorResponse struct {
	Error   string            `json:"error"`
	Fields  map[string]string `json:"fields,omitempty"`
	Upgrade bool              `json:"upgrade,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondUnauthorized never reveals which authentication check failed.
func respondUnauthorized(w http.ResponseWriter) {
	respondJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
}

func respondValidationError(w http.ResponseWriter, fields map[string]string) {
	respondJSON(w, http.StatusBadRequest, errorResponse{Error: "Validation failed", Fields: fields})
}

// respondUpgradeRequired is the quota-exhausted answer, pointing the
// client at a plan upgrade.
func respondUpgradeRequired(w http.ResponseWriter, msg string) {
	respondJSON(w, http.StatusPaymentRequired, errorResponse{Error: msg, Upgrade: true})
}

func respondInternalError(w http.ResponseWriter) {
	respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
}

func respondBadRequest(w http.ResponseWriter, msg string) {
	respondJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}
