// Package v1 wires the HTTP surface of the split service.
// It keeps handlers thin, delegating business rules to the service layer.
package v1

import (
	"encoding/json"
	"net/http"
)

func toJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
