package server

import (
	"log/slog"
	"net/http"

	"github.com/onnwee/streambot/telemetry"
)

// HandleAdminSave flushes the ledger to its store right away.
func (h *Handlers) HandleAdminSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.opts.Bot == nil {
		http.Error(w, "bot not running", http.StatusServiceUnavailable)
		return
	}
	if err := h.opts.Bot.Save(r.Context()); err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("admin save failed", slog.Any("err", err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleAdminSkip skips the playing sound group (target=sound) or song (target=music).
func (h *Handlers) HandleAdminSkip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.opts.Bot == nil {
		http.Error(w, "bot not running", http.StatusServiceUnavailable)
		return
	}
	switch target := r.URL.Query().Get("target"); target {
	case "sound", "":
		n := h.opts.Bot.SkipSound()
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "target": "sound", "skipped": n})
	case "music":
		skipped := h.opts.Bot.SkipSong()
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "target": "music", "skipped": skipped})
	default:
		http.Error(w, "unknown target "+target, http.StatusBadRequest)
	}
}
