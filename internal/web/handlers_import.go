package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/reconcile/internal/core"
	"github.com/JonMunkholm/reconcile/internal/logging"
)

// multipartMemory is how much of an upload ParseMultipartForm keeps in
// memory before spilling to a temp file.
const multipartMemory = 8 << 20

// handleStartImport accepts a multipart upload with fields kind, file and
// optionally mode and dryRun, and starts a session.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	if maxSize > 0 {
		// Leave room for the multipart envelope; the service enforces the
		// exact limit on the file itself.
		r.Body = http.MaxBytesReader(w, r.Body, maxSize+1<<20)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, fmt.Errorf("file too large: limit is %d bytes", maxSize))
			return
		}
		s.respondError(w, r, badRequest("invalid multipart form: %v", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, core.ErrNoFile)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	dryRun, _ := strconv.ParseBool(r.FormValue("dryRun"))
	req := core.ImportRequest{
		Kind:     core.Kind(r.FormValue("kind")),
		FileName: header.Filename,
		Data:     data,
		Mode:     core.WorkflowMode(r.FormValue("mode")),
		DryRun:   dryRun,
	}

	id, err := s.service.StartImport(WithRequestMetadata(r.Context(), r), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/imports/"+id)
	writeJSON(w, http.StatusAccepted, map[string]string{"importId": id})
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.Session(chi.URLParam(r, "importID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleImportProgress streams progress as Server-Sent Events until the
// session ends, then sends a final "complete" event with the session view.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	progressCh, err := s.service.SubscribeProgress(importID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, r, fmt.Errorf("streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	eventID := 0
	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				view, err := s.service.Session(importID)
				var data []byte
				if err == nil {
					data, _ = json.Marshal(view)
				} else {
					data = []byte("{}")
				}
				eventID++
				fmt.Fprintf(w, "id: %d\nevent: complete\ndata: %s\n\n", eventID, data)
				flusher.Flush()
				return
			}
			eventID++
			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", eventID, data)
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

type mappingRequest struct {
	Assignments map[string]core.Field `json:"assignments"`
}

func (s *Server) handleUpdateMapping(w http.ResponseWriter, r *http.Request) {
	var req mappingRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if len(req.Assignments) == 0 {
		s.respondError(w, r, badRequest("assignments must not be empty"))
		return
	}

	view, err := s.service.UpdateMapping(WithRequestMetadata(r.Context(), r), chi.URLParam(r, "importID"), req.Assignments)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.Conflicts(chi.URLParam(r, "importID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if items == nil {
		items = []core.ConflictItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflicts": items, "count": len(items)})
}

func (s *Server) handleClearOverride(w http.ResponseWriter, r *http.Request) {
	released, err := s.service.ClearOverride(
		WithRequestMetadata(r.Context(), r),
		chi.URLParam(r, "importID"),
		chi.URLParam(r, "entityID"),
	)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"released": released})
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	if err := s.service.RequestCommit(chi.URLParam(r, "importID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "committing"})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Cancel(chi.URLParam(r, "importID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// handleUnmatchedCSV downloads the rows that matched no registry entity,
// with their original columns.
func (s *Server) handleUnmatchedCSV(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")
	header, rows, err := s.service.Unmatched(importID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	filename := fmt.Sprintf("unmatched_%s.csv", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	if err := core.WriteUnmatchedCSV(w, header, rows); err != nil {
		// Headers are sent; the client sees a truncated file.
		logging.FromContext(r.Context()).Error("write unmatched csv", "import_id", importID, "error", err)
	}
}

// decodeJSON decodes a bounded JSON body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}
