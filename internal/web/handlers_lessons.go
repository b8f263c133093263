package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/courseimport/internal/core"
)

// handleTranscription returns a lesson's transcription with its course context.
func (s *Server) handleTranscription(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, r, fmt.Errorf("%w: lesson id is required", core.ErrInput), http.StatusBadRequest)
		return
	}
	if s.transcripts == nil {
		respondError(w, r, fmt.Errorf("no store configured"), http.StatusServiceUnavailable)
		return
	}

	tr, err := s.transcripts.Lookup(r.Context(), id)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, tr)
}
