// Package httpx carries the JSON response helpers shared by the API handlers.
package httpx

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/orbiterhq/orbiter-saas/platform/go/logging"
)

// Problem is the error payload the API returns, loosely after RFC 7807.
type Problem struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON writes v with the given status. Encoding failures are logged, not
// surfaced: headers are already gone by then.
func JSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromRequest(r).Error("encoding response", zap.Error(err))
	}
}

// Error writes a problem document.
func Error(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(Problem{Title: title, Status: status, Detail: detail}); err != nil {
		logging.FromRequest(r).Error("encoding problem response", zap.Error(err))
	}
}

// Decode parses the request body into v, rejecting unknown fields.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
