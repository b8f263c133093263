package web

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/courseimport/internal/core"
	"github.com/JonMunkholm/courseimport/internal/logging"
)

// handleImport runs an import of the multipart "csv" upload.
//
// Query flags dry_run and update override the server defaults. The response
// is the judged Outcome: 200 when the success policy passed, 422 otherwise.
// Only one import runs at a time; a second waits briefly and then gets 429.
// Real imports export their artifacts to a fresh directory under
// Options.OutputDir.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	opts := s.deps.Options
	var err error
	if opts.DryRun, err = boolParam(r, "dry_run", opts.DryRun); err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}
	if opts.Update, err = boolParam(r, "update", opts.Update); err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, header, err := r.FormFile("csv")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, fmt.Errorf("%w: file exceeds %d bytes", core.ErrInput, s.maxUpload), http.StatusRequestEntityTooLarge)
			return
		}
		respondError(w, r, fmt.Errorf("%w: multipart field \"csv\": %v", core.ErrInput, err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	if err := s.deps.Limiter.Acquire(r.Context()); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	defer s.deps.Limiter.Release()

	opts.OutputDir = uploadDir(opts.OutputDir, opts.DryRun)

	logger := logging.WithFields(r.Context(), "file", header.Filename, "dry_run", opts.DryRun, "update", opts.Update)
	im := core.NewImporter(s.deps.Store, opts, logger)
	im.Observer = s.deps.Observer

	out, err := im.ProcessAndImportReader(r.Context(), file)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	s.setLast(out)

	status := http.StatusOK
	if !out.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, out)
}

// handleLastImport returns the most recent judged import, or 404.
func (s *Server) handleLastImport(w http.ResponseWriter, r *http.Request) {
	out, ok := s.lastOutcome()
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "no import has run yet", Message: "no import has run yet", Code: "NOT_FOUND"})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// uploadDir gives each upload its own artifact directory under base so an
// upload never replaces the pair a later CLI run would pick up. Dry runs
// export nothing.
func uploadDir(base string, dryRun bool) string {
	if base == "" || dryRun {
		return ""
	}
	return filepath.Join(base, time.Now().UTC().Format("20060102T150405Z")+"-"+uuid.NewString()[:8])
}

func boolParam(r *http.Request, name string, def bool) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%w: query parameter %s=%q is not a boolean", core.ErrInput, name, v)
	}
	return b, nil
}
