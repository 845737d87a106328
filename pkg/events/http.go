package events

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/axiopea/mapevents/pkg/common/logger"
	"github.com/gorilla/mux"
)

type HTTPHandler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/events", h.handleList).Methods(http.MethodGet)
	router.HandleFunc("/events/{id}", h.handlePatch).Methods(http.MethodPatch)
	router.HandleFunc("/events/{id}", h.handleDelete).Methods(http.MethodDelete)
}

func (h *HTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from := time.Time{}
	to := time.Now().UTC().AddDate(1, 0, 0)
	if v := q.Get("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		from = parsed
	}
	if v := q.Get("to"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid to", http.StatusBadRequest)
			return
		}
		to = parsed
	}

	items, err := h.service.List(r.Context(), from, to, q.Get("status"))
	if err != nil {
		logger.Log.WithError(err).Error("failed to list events")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"items": items})
}

type patchBody struct {
	Status  *string          `json:"status"`
	Title   *string          `json:"title"`
	Place   *string          `json:"place"`
	StartAt *string          `json:"startAt"`
	EndAt   *json.RawMessage `json:"endAt"`
}

func (h *HTTPHandler) handlePatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var body patchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var (
		saved *Event
		err   error
	)

	if body.Status != nil {
		saved, err = h.service.SetStatus(r.Context(), id, *body.Status)
	} else {
		patch := Patch{Title: body.Title, Place: body.Place}

		if body.StartAt != nil {
			parsed, perr := time.Parse(time.RFC3339, *body.StartAt)
			if perr != nil {
				http.Error(w, "startAt is invalid", http.StatusBadRequest)
				return
			}
			patch.StartAt = &parsed
		}

		if body.EndAt != nil {
			raw := string(*body.EndAt)
			if raw == "null" || raw == `""` {
				patch.ClearEndAt = true
			} else {
				var s string
				if json.Unmarshal(*body.EndAt, &s) != nil {
					http.Error(w, "endAt is invalid", http.StatusBadRequest)
					return
				}
				parsed, perr := time.Parse(time.RFC3339, s)
				if perr != nil {
					http.Error(w, "endAt is invalid", http.StatusBadRequest)
					return
				}
				patch.EndAt = &parsed
			}
		}

		saved, err = h.service.Edit(r.Context(), id, patch)
	}

	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			http.Error(w, "not found", http.StatusNotFound)
		case errors.Is(err, ErrStatusLocked):
			http.Error(w, err.Error(), http.StatusConflict)
		case IsValidationError(err):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			logger.Log.WithError(err).Error("failed to patch event")
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"item": saved})
}

func (h *HTTPHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.service.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to delete event")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"ok": true})
}
