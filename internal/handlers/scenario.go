package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jwebster45206/laissez-faire/pkg/storage"
)

type ScenarioHandler struct {
	log     *slog.Logger
	storage storage.Storage
}

func NewScenarioHandler(log *slog.Logger, storage storage.Storage) *ScenarioHandler {
	return &ScenarioHandler{
		log:     log,
		storage: storage,
	}
}

// Register adds the scenario routes to mux.
func (h *ScenarioHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/scenarios", h.handleList)
	mux.HandleFunc("GET /v1/scenarios/{file}", h.handleGet)
}

func (h *ScenarioHandler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.storage.ListScenarios(r.Context())
	if err != nil {
		h.log.Error("Failed to list scenarios", "error", err)
		writeError(w, h.log, http.StatusInternalServerError, "Failed to list scenarios")
		return
	}
	writeJSON(w, h.log, http.StatusOK, list)
}

func (h *ScenarioHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	filename := strings.TrimSpace(r.PathValue("file"))
	if filename == "" || strings.Contains(filename, "..") || strings.ContainsAny(filename, `/\`) {
		writeError(w, h.log, http.StatusBadRequest, "Invalid filename")
		return
	}

	scn, err := h.storage.GetScenario(r.Context(), filename)
	if err != nil {
		if errors.Is(err, storage.ErrScenarioNotFound) {
			writeError(w, h.log, http.StatusNotFound, "Scenario not found")
			return
		}
		h.log.Error("Failed to get scenario", "error", err, "filename", filename)
		writeError(w, h.log, http.StatusInternalServerError, "Failed to retrieve scenario")
		return
	}
	writeJSON(w, h.log, http.StatusOK, scn)
}
