package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"habitcore/internal/core"
	"habitcore/pkg/domain"
)

type createRequest struct {
	Title          string               `json:"title"`
	Description    string               `json:"description"`
	Routine        []domain.RoutineItem `json:"dailyRoutine"`
	TotalDays      int                  `json:"days"`
	StartDate      *domain.Date         `json:"startDate"`
	RolloverOffset domain.TimeOfDay     `json:"refreshTime"`
}

type itemRequest struct {
	Item int `json:"item"`
}

type settingsRequest struct {
	Title          *string           `json:"title"`
	Description    *string           `json:"description"`
	RolloverOffset *domain.TimeOfDay `json:"refreshTime"`
}

type mutationResponse[T any] struct {
	Data     T                  `json:"data"`
	Warnings []domain.Violation `json:"warnings,omitempty"`
}

func respond[T any](w http.ResponseWriter, status int, data T, res domain.Result) {
	writeJSON(w, status, mutationResponse[T]{Data: data, Warnings: res.Violations})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	protocols, err := h.svc.ListProtocols(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if protocols == nil {
		protocols = []domain.Protocol{}
	}
	writeJSON(w, http.StatusOK, protocols)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, res, err := h.svc.CreateProtocol(r.Context(), core.ProtocolDraft{
		Title:          req.Title,
		Description:    req.Description,
		Routine:        req.Routine,
		TotalDays:      req.TotalDays,
		StartDate:      req.StartDate,
		RolloverOffset: req.RolloverOffset,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/protocols/"+p.ID)
	respond(w, http.StatusCreated, p, res)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetProtocol(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, res, err := h.svc.UpdateSettings(r.Context(), chi.URLParam(r, "id"), domain.SettingsPatch{
		Title:          req.Title,
		Description:    req.Description,
		RolloverOffset: req.RolloverOffset,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, p, res)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.DeleteProtocol(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, res, err := h.svc.ToggleItem(r.Context(), chi.URLParam(r, "id"), req.Item)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, p, res)
}

func (h *Handler) handleToggleDay(w http.ResponseWriter, r *http.Request) {
	day, err := intParam(r, "day")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req itemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, res, err := h.svc.ToggleItemOnDay(r.Context(), chi.URLParam(r, "id"), day, req.Item)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, p, res)
}

func (h *Handler) handleOverride(w http.ResponseWriter, r *http.Request) {
	day, err := intParam(r, "day")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	item, err := intParam(r, "item")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var patch domain.Override
	if err := decodeJSON(r, &patch); err != nil {
		h.writeError(w, r, err)
		return
	}
	resolved, res, err := h.svc.ApplyOverride(r.Context(), chi.URLParam(r, "id"), day, item, patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, resolved, res)
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	day, err := intParam(r, "day")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	item, err := intParam(r, "item")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resolved, err := h.svc.ResolveItem(r.Context(), chi.URLParam(r, "id"), day, item)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req domain.RoutineItem
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	item, res, err := h.svc.AddRoutineItem(r.Context(), chi.URLParam(r, "id"), req.Text, req.Time)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, item, res)
}

func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	index, err := intParam(r, "item")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	item, res, err := h.svc.RemoveRoutineItem(r.Context(), chi.URLParam(r, "id"), index)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, item, res)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	p, res, err := h.svc.ResetProtocol(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, p, res)
}

func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.GetAnalytics(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleAgenda(w http.ResponseWriter, r *http.Request) {
	pending := false
	if raw := r.URL.Query().Get("pending"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, r, domain.ValidationError{Field: "pending", Reason: "must be a boolean"})
			return
		}
		pending = v
	}
	agenda, err := h.svc.TodayAgenda(r.Context(), chi.URLParam(r, "id"), pending)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agenda)
}

func (h *Handler) handleListArchives(w http.ResponseWriter, r *http.Request) {
	// archives outlive their protocol, so a missing id is not an error
	archives, err := h.svc.ListArchives(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if archives == nil {
		archives = []core.ArchiveInfo{}
	}
	writeJSON(w, http.StatusOK, archives)
}

func (h *Handler) handleLoadArchive(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.LoadArchive(r.Context(), chi.URLParam(r, "*"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
