package handlers

import (
	"context"
	"encoding/base64"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"mail-tracker/database"
	"mail-tracker/services"
	"mail-tracker/utils"
)

// 1x1 transparent GIF, 43 bytes decoded. Served for every pixel request.
var pixelGIF, _ = base64.StdEncoding.DecodeString(
	"R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAICRAEAOw==")

// OpenRecorder records one open event. Implemented by services.OpenRecorder.
type OpenRecorder interface {
	RecordOpen(trackingID string, oc services.OpenContext)
}

// PingResponse is the /ping liveness probe body.
type PingResponse struct {
	Success         bool      `json:"success"`
	Timestamp       time.Time `json:"timestamp,omitempty"`
	ConnectionState string    `json:"connectionState,omitempty"`
	Error           string    `json:"error,omitempty"`
	Details         string    `json:"details,omitempty"`
}

// TrackingHandler serves the tracking pixel and the liveness probe.
type TrackingHandler struct {
	recorder        OpenRecorder
	manager         *database.Manager
	trustCloudflare bool
}

// NewTrackingHandler creates the handler for the pixel and ping routes.
func NewTrackingHandler(recorder OpenRecorder, manager *database.Manager, trustCloudflare bool) *TrackingHandler {
	return &TrackingHandler{
		recorder:        recorder,
		manager:         manager,
		trustCloudflare: trustCloudflare,
	}
}

// ServePixel handles GET /icon/{trackingId}. The pixel goes out first and
// unconditionally; recording happens afterwards on its own goroutine, so
// response latency never depends on the store and a recording failure can
// never reach the mail client.
func (h *TrackingHandler) ServePixel(w http.ResponseWriter, r *http.Request) {
	// Capture the request context now; the request may be gone by the
	// time the recorder runs.
	oc := services.OpenContext{
		UserAgent: r.UserAgent(),
		IP:        utils.RealIP(r, h.trustCloudflare),
		Timestamp: time.Now().UTC(),
	}
	trackingID := mux.Vars(r)["trackingId"]

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("Content-Length", strconv.Itoa(len(pixelGIF)))
	w.WriteHeader(http.StatusOK)
	w.Write(pixelGIF)

	go h.recorder.RecordOpen(trackingID, oc)
}

// Ping handles GET /ping, the liveness probe used by the load balancer.
// It is the only path that surfaces a connection failure to a client.
func (h *TrackingHandler) Ping(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.manager.Ping(ctx); err != nil {
		respondWithJSON(w, http.StatusInternalServerError, PingResponse{
			Success: false,
			Error:   "database connection failed",
			Details: "could not reach the tracking store",
		})
		return
	}

	respondWithJSON(w, http.StatusOK, PingResponse{
		Success:         true,
		Timestamp:       time.Now().UTC(),
		ConnectionState: h.manager.State(),
	})
}
