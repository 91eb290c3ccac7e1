package services

import (
	"context"
	"errors"
	"log"
	"time"

	"mail-tracker/database"
	"mail-tracker/utils"
)

// OpenContext carries the request context captured before the pixel
// response was written.
type OpenContext struct {
	UserAgent string
	IP        string
	Timestamp time.Time
}

// OpenRecorder applies open events to tracking records after the pixel
// response has already gone out. Every failure is logged and swallowed
// here; nothing on this path can reach the HTTP client.
type OpenRecorder struct {
	manager *database.Manager
	timeout time.Duration
}

// NewOpenRecorder creates a recorder bounded by the given wall-clock
// budget per open event.
func NewOpenRecorder(manager *database.Manager, timeout time.Duration) *OpenRecorder {
	if timeout <= 0 {
		timeout = 4500 * time.Millisecond
	}
	return &OpenRecorder{manager: manager, timeout: timeout}
}

// RecordOpen records one open event against the record matching
// trackingID. An empty trackingID is a no-op. The context deadline races
// the store operation; when the deadline wins the update is abandoned
// (the driver cancels the server-side query best-effort, so a late
// completion may still land — accepted, this path is best-effort, not
// exactly-once).
func (r *OpenRecorder) RecordOpen(trackingID string, oc OpenContext) {
	if trackingID == "" {
		return
	}
	if oc.UserAgent == "" {
		oc.UserAgent = "unknown"
	}
	if oc.IP == "" {
		oc.IP = utils.UnknownIP
	}
	if oc.Timestamp.IsZero() {
		oc.Timestamp = time.Now().UTC()
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	db, err := r.manager.Acquire(ctx)
	if err != nil {
		log.Printf("open not recorded tracking_id=%s kind=connection elapsed=%s err=%v",
			trackingID, time.Since(start), err)
		return
	}

	store := database.NewTrackingStore(db)
	err = store.RecordOpen(ctx, trackingID, database.OpenEvent{
		Timestamp: oc.Timestamp,
		UserAgent: oc.UserAgent,
		IP:        oc.IP,
	})
	switch {
	case err == nil:
		log.Printf("OPEN tracking_id=%s ip=%s ua=%q", trackingID, oc.IP, oc.UserAgent)
	case errors.Is(err, database.ErrNotFound):
		// A miss, not an error: pixels outlive their records.
		log.Printf("open for unknown tracking_id=%s, ignoring", trackingID)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		log.Printf("open not recorded tracking_id=%s kind=timeout elapsed=%s",
			trackingID, time.Since(start))
	default:
		// A rejected update usually means the handle died under us;
		// drop it so the next acquire reconnects.
		r.manager.Invalidate(err)
		log.Printf("open not recorded tracking_id=%s kind=update elapsed=%s err=%v",
			trackingID, time.Since(start), err)
	}
}
