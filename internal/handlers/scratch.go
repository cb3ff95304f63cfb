package handlers

import (
	"net/http"

	"media-relay/internal/logging"
	"media-relay/internal/memory"
)

// ClearScratch deletes every artifact in the scratch directory.
// POST /api/scratch/clear
func (h *Handlers) ClearScratch(w http.ResponseWriter, _ *http.Request) {
	freedBytes, err := h.scratch.Clear()
	if err != nil {
		logging.Error("Failed to clear scratch directory: %v", err)
		writeJSONError(w, "Failed to clear scratch directory", http.StatusInternalServerError)
		return
	}

	logging.Info("Scratch directory cleared, freed %s", memory.FormatBytes(freedBytes))

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]interface{}{
		"success":    true,
		"freedBytes": freedBytes,
	})
}
