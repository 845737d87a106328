package sync

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/axiopea/mapevents/pkg/common/logger"
	"github.com/axiopea/mapevents/pkg/ingest"
)

type HTTPHandler struct {
	service     *Service
	maxBodySize int64
}

func NewHTTPHandler(service *Service, maxBodySize int64) *HTTPHandler {
	if maxBodySize <= 0 {
		maxBodySize = 16 << 20
	}
	return &HTTPHandler{service: service, maxBodySize: maxBodySize}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/sync", h.handleSync).Methods(http.MethodPost)
	router.HandleFunc("/syncruns", h.handleListRuns).Methods(http.MethodGet)
}

type syncRequest struct {
	Source     string `json:"source"` // serp, ics, scraper, graph
	Query      string `json:"query"`
	URL        string `json:"url"`
	Limit      int    `json:"limit"`
	FutureOnly bool   `json:"futureOnly"`
}

// handleSync triggers a run. JSON bodies drive the remote adapters;
// multipart uploads carry a spreadsheet workbook or an NDJSON file in the
// "file" field with the adapter named by the "kind" field.
func (h *HTTPHandler) handleSync(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		h.handleUploadSync(w, r)
		return
	}

	var body syncRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	switch body.Source {
	case "serp":
		if body.Query == "" {
			http.Error(w, "query is required", http.StatusBadRequest)
			return
		}
		summary, err := h.service.SyncSearch(ctx, body.Query, body.Limit)
		h.respond(w, summary, err)
	case "ics":
		if body.URL == "" {
			http.Error(w, "url is required", http.StatusBadRequest)
			return
		}
		summary, err := h.service.SyncICS(ctx, body.URL, body.Limit, body.FutureOnly)
		h.respond(w, summary, err)
	case "scraper":
		if body.Query == "" {
			http.Error(w, "query is required", http.StatusBadRequest)
			return
		}
		summary, err := h.service.SyncScraper(ctx, body.Query, body.Limit)
		h.respond(w, summary, err)
	case "graph":
		summary, err := h.service.SyncGraph(ctx, body.Limit)
		h.respond(w, summary, err)
	default:
		http.Error(w, "unknown source", http.StatusBadRequest)
	}
}

func (h *HTTPHandler) handleUploadSync(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxBodySize); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	limit := 0
	if v := r.FormValue("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			http.Error(w, "limit is invalid", http.StatusBadRequest)
			return
		}
	}

	switch r.FormValue("kind") {
	case "spreadsheet":
		summary, err := h.service.SyncSpreadsheet(r.Context(), file, header.Filename, limit)
		h.respond(w, summary, err)
	case "ndjson":
		summary, err := h.service.ImportNDJSON(r.Context(), file)
		h.respond(w, summary, err)
	default:
		http.Error(w, "unknown kind", http.StatusBadRequest)
	}
}

func (h *HTTPHandler) respond(w http.ResponseWriter, summary interface{}, err error) {
	if err != nil {
		if errors.Is(err, ingest.ErrSyncAlreadyRunning) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		logger.Log.WithError(err).Error("sync run failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"summary": summary})
}

func (h *HTTPHandler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	runs, err := h.service.ListRuns(r.Context(), limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list sync runs")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"items": runs})
}
