// Package api serves the administrative HTTP endpoints: pipeline trigger
// configurations and dry-run evaluation.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hooktrigger/pkg/storage"
	"hooktrigger/pkg/trigger"
)

// PipelinesHandler lists, reads and edits pipeline trigger configurations.
//
//	GET    ?provider=&repository=   list enabled pipelines of a repository
//	GET    ?id=                     one pipeline
//	PUT    body: PipelineRecord     create or replace; enabled defaults to true
//	DELETE ?id=                     remove
//
// Writes need a store that implements storage.PipelineWriter.
type PipelinesHandler struct {
	Store  storage.PipelineStore
	Logger zerolog.Logger
}

func (h *PipelinesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		http.Error(w, "storage not configured", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.get(w, r)
	case http.MethodPut, http.MethodPost:
		h.put(w, r)
	case http.MethodDelete:
		h.delete(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *PipelinesHandler) get(w http.ResponseWriter, r *http.Request) {
	if id := strings.TrimSpace(r.URL.Query().Get("id")); id != "" {
		record, err := h.Store.GetPipeline(r.Context(), id)
		if err != nil {
			h.Logger.Error().Err(err).Str("pipeline_id", id).Msg("get pipeline failed")
			http.Error(w, "get pipeline failed", http.StatusInternalServerError)
			return
		}
		if record == nil {
			http.Error(w, "pipeline not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, record)
		return
	}

	provider := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("provider")))
	repository := strings.TrimSpace(r.URL.Query().Get("repository"))
	if provider == "" || repository == "" {
		http.Error(w, "missing provider or repository", http.StatusBadRequest)
		return
	}
	records, err := h.Store.ListPipelines(r.Context(), provider, repository)
	if err != nil {
		h.Logger.Error().Err(err).Str("repository", repository).Msg("list pipelines failed")
		http.Error(w, "list pipelines failed", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []storage.PipelineRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *PipelinesHandler) put(w http.ResponseWriter, r *http.Request) {
	writer, ok := h.Store.(storage.PipelineWriter)
	if !ok {
		http.Error(w, "storage is read-only", http.StatusMethodNotAllowed)
		return
	}
	var body pipelineBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	record := body.PipelineRecord
	record.Enabled = body.Enabled == nil || *body.Enabled
	record.ID = strings.TrimSpace(record.ID)
	record.Provider = strings.ToLower(strings.TrimSpace(record.Provider))
	record.Repository = strings.TrimSpace(record.Repository)
	if record.ID == "" || record.Provider == "" || record.Repository == "" {
		http.Error(w, "id, provider and repository are required", http.StatusBadRequest)
		return
	}
	if _, err := trigger.Compile(record.Trigger); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	if err := writer.UpsertPipeline(r.Context(), record); err != nil {
		if errors.Is(err, trigger.ErrInvalidConfig) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.Logger.Error().Err(err).Str("pipeline_id", record.ID).Msg("upsert pipeline failed")
		http.Error(w, "upsert pipeline failed", http.StatusInternalServerError)
		return
	}
	h.Logger.Info().Str("pipeline_id", record.ID).Str("repository", record.Repository).Msg("pipeline saved")
	writeJSON(w, http.StatusOK, record)
}

func (h *PipelinesHandler) delete(w http.ResponseWriter, r *http.Request) {
	writer, ok := h.Store.(storage.PipelineWriter)
	if !ok {
		http.Error(w, "storage is read-only", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}
	if err := writer.DeletePipeline(r.Context(), id); err != nil {
		h.Logger.Error().Err(err).Str("pipeline_id", id).Msg("delete pipeline failed")
		http.Error(w, "delete pipeline failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pipelineBody defaults enabled to true when the client omits it.
type pipelineBody struct {
	storage.PipelineRecord
	Enabled *bool `json:"enabled"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
