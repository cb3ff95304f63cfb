package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"media-relay/internal/logging"
	"media-relay/internal/mediatypes"
	"media-relay/internal/normalizer"
)

// Audio processing actions accepted by ProcessAudio.
const (
	actionOptimize       = "optimize"
	actionCompressToSize = "compress-to-size"
	actionDurationOnly   = "duration-only"
)

// ProcessAudio runs one of the recorder actions on an uploaded clip.
// POST /api/audio/process
func (h *Handlers) ProcessAudio(w http.ResponseWriter, r *http.Request) {
	up, err := readUpload(w, r, "audio", h.maxUploadBytes)
	if err != nil {
		writeJSONError(w, err.Error(), uploadStatus(err))
		return
	}

	action := strings.TrimSpace(r.FormValue("action"))
	if action == "" {
		action = actionOptimize
	}
	opts := enhancementOptions(r)
	ext := uploadExtension(up)

	var result *normalizer.Result
	switch action {
	case actionOptimize:
		result, err = h.audio.Optimize(r.Context(), up.Data, ext, opts)
	case actionCompressToSize:
		targetKB, convErr := strconv.Atoi(strings.TrimSpace(r.FormValue("targetSizeKB")))
		if convErr != nil || targetKB <= 0 {
			writeJSONError(w, "targetSizeKB must be a positive integer", http.StatusBadRequest)
			return
		}
		result, err = h.audio.CompressToSize(r.Context(), up.Data, ext, targetKB, opts)
	case actionDurationOnly:
		duration, durErr := h.audio.Duration(r.Context(), up.Data, ext)
		if durErr != nil {
			logging.Error("Audio duration probe failed for %q: %v", up.Filename, durErr)
			writeJSONError(w, durErr.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, map[string]float64{"duration": duration})
		return
	default:
		writeJSONError(w, "unknown action: "+action, http.StatusBadRequest)
		return
	}

	if err != nil {
		logging.Error("Audio %s failed for %q: %v", action, up.Filename, err)
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeAudio(w, result)
}

// ConvertAudio applies the transport voice profile.
// POST /api/audio/convert
func (h *Handlers) ConvertAudio(w http.ResponseWriter, r *http.Request) {
	up, err := readUpload(w, r, "audio", h.maxUploadBytes)
	if err != nil {
		writeJSONError(w, err.Error(), uploadStatus(err))
		return
	}

	result, err := h.audio.ConvertForTransport(r.Context(), up.Data, uploadExtension(up), enhancementOptions(r))
	if err != nil {
		logging.Error("Audio conversion failed for %q: %v", up.Filename, err)
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeAudio(w, result)
}

func enhancementOptions(r *http.Request) normalizer.Options {
	return normalizer.Options{
		Normalize:   formBool(r, "normalize", true),
		RemoveNoise: formBool(r, "removeNoise", true),
	}
}

// uploadExtension picks the extension the engine sees for the input file.
func uploadExtension(up *upload) string {
	head := up.Data
	if len(head) > mediatypes.SniffLength {
		head = head[:mediatypes.SniffLength]
	}
	return mediatypes.Resolve(up.Filename, up.ContentType, head).Extension
}

func writeAudio(w http.ResponseWriter, result *normalizer.Result) {
	w.Header().Set("Content-Type", result.MIME)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.Header().Set("Content-Disposition", `inline; filename="audio`+result.Extension+`"`)
	if result.BitrateKbps > 0 {
		w.Header().Set("X-Audio-Bitrate", strconv.Itoa(result.BitrateKbps))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Data); err != nil {
		logging.Debug("Failed to write audio response: %v", err)
	}
}
