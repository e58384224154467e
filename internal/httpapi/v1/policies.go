package v1

import (
	"net/http"

	"github.com/splitledger/splitledger/internal/dictionary"
)

// listPolicies serves the curated split policy catalog.
func (s *Server) listPolicies(w http.ResponseWriter, r *http.Request) {
	toJSON(w, http.StatusOK, dictionary.Policies())
}
