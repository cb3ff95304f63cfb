package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"media-relay/internal/database"
	"media-relay/internal/dispatch"
)

// DispatchResponse is returned by a successful dispatch.
type DispatchResponse struct {
	DryRun  bool              `json:"dryRun"`
	Payload *dispatch.Payload `json:"payload"`
	Receipt *dispatch.Receipt `json:"receipt,omitempty"`
}

// Dispatch normalizes an uploaded file and, unless dryRun is set, sends it.
// POST /api/dispatch
func (h *Handlers) Dispatch(w http.ResponseWriter, r *http.Request) {
	up, err := readUpload(w, r, "file", h.maxUploadBytes)
	if err != nil {
		writeJSONError(w, err.Error(), uploadStatus(err))
		return
	}

	recipient := strings.TrimSpace(r.FormValue("recipient"))
	dryRun := formBool(r, "dryRun", recipient == "")
	if !dryRun && recipient == "" {
		writeJSONError(w, "recipient is required unless dryRun is set", http.StatusBadRequest)
		return
	}

	req := dispatch.Request{
		Input: dispatch.Input{
			Data:        up.Data,
			ContentType: up.ContentType,
			Filename:    up.Filename,
		},
		IsRecord: formBool(r, "isRecord", false),
		Caption:  r.FormValue("caption"),
	}

	response := DispatchResponse{DryRun: dryRun}
	if dryRun {
		response.Payload, err = h.dispatcher.Dispatch(r.Context(), req)
	} else {
		response.Payload, response.Receipt, err = h.dispatcher.Send(r.Context(), recipient, req)
	}
	if err != nil {
		writeJSONError(w, err.Error(), dispatchStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, response)
}

// dispatchStatus maps a dispatch failure to a response status.
func dispatchStatus(err error) int {
	if errors.Is(err, dispatch.ErrNoTransport) {
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, dispatch.ErrEmptyInput) {
		return http.StatusBadRequest
	}
	var sendErr *dispatch.SendError
	if errors.As(err, &sendErr) {
		switch sendErr.Stage {
		case dispatch.StageTransport:
			return http.StatusBadGateway
		case dispatch.StageTranscode:
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

// ListDispatches returns recent journal entries, newest first.
// GET /api/dispatches?limit=N
func (h *Handlers) ListDispatches(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSONError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	records, err := h.journal.Recent(r.Context(), limit)
	if err != nil {
		writeJSONError(w, "Failed to read dispatch journal", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []database.DispatchRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]interface{}{
		"dispatches": records,
		"count":      len(records),
	})
}
