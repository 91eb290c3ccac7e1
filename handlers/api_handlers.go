package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"mail-tracker/config"
	"mail-tracker/database"
	"mail-tracker/services"
	"mail-tracker/utils"
)

// SendMailRequest struct for parsing the JSON payload.
type SendMailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// BounceRequest is the payload the bounce-handling collaborator posts
// back when a delivery fails.
type BounceRequest struct {
	MessageID string `json:"message_id"`
	Details   string `json:"details"`
}

// SendMailHandler sends a tracked email: it creates the tracking record,
// embeds the pixel and hands the message to SMTP.
func SendMailHandler(svc *services.MailService, manager *database.Manager, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SendMailRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errorResponse(w, "Invalid request payload", http.StatusBadRequest)
			return
		}

		if req.To == "" || req.Subject == "" || req.Body == "" {
			errorResponse(w, "Fields 'to', 'subject', and 'body' are required.", http.StatusBadRequest)
			return
		}

		db, err := manager.Acquire(r.Context())
		if err != nil {
			log.Printf("Error acquiring database connection: %v", err)
			errorResponse(w, "Internal server error checking mail limit", http.StatusInternalServerError)
			return
		}

		currentCount, err := utils.GetDailyMailCount(r.Context(), db)
		if err != nil {
			log.Printf("Error getting daily mail count: %v", err)
			errorResponse(w, "Internal server error checking mail limit", http.StatusInternalServerError)
			return
		}
		if currentCount >= cfg.DailyMailLimit {
			errorResponse(w, "Daily mail limit exceeded.", http.StatusForbidden)
			return
		}

		rec, err := svc.SendTracked(r.Context(), req.To, req.Subject, req.Body)
		if err != nil {
			log.Printf("Error sending email to %s: %v", req.To, err)
			errorResponse(w, "Failed to send email: "+err.Error(), http.StatusInternalServerError)
			return
		}

		log.Printf("Email sent successfully to %s", req.To)
		successResponse(w, "Email sent successfully", map[string]string{
			"tracking_id": rec.TrackingID,
			"message_id":  rec.MessageID,
		})
	}
}

// GetRecordsHandler lists the most recent tracking records.
func GetRecordsHandler(manager *database.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
				limit = parsed
			}
		}

		db, err := manager.Acquire(r.Context())
		if err != nil {
			log.Printf("Error acquiring database connection: %v", err)
			errorResponse(w, "Internal server error fetching records", http.StatusInternalServerError)
			return
		}

		recs, err := database.NewTrackingStore(db).List(r.Context(), limit)
		if err != nil {
			log.Printf("Error querying tracking records: %v", err)
			errorResponse(w, "Internal server error fetching records", http.StatusInternalServerError)
			return
		}
		successResponse(w, "Tracking records retrieved successfully", recs)
	}
}

// GetRecordHandler returns one tracking record with its full open history.
func GetRecordHandler(manager *database.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trackingID := mux.Vars(r)["trackingId"]

		db, err := manager.Acquire(r.Context())
		if err != nil {
			log.Printf("Error acquiring database connection: %v", err)
			errorResponse(w, "Internal server error fetching record", http.StatusInternalServerError)
			return
		}

		rec, err := database.NewTrackingStore(db).GetByTrackingID(r.Context(), trackingID)
		if errors.Is(err, database.ErrNotFound) {
			errorResponse(w, "Tracking record not found", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Printf("Error fetching tracking record %s: %v", trackingID, err)
			errorResponse(w, "Internal server error fetching record", http.StatusInternalServerError)
			return
		}
		successResponse(w, "Tracking record retrieved successfully", rec)
	}
}

// BounceWebhookHandler lets the external bounce collaborator mark a
// record bounced by message id.
func BounceWebhookHandler(manager *database.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BounceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errorResponse(w, "Invalid request payload", http.StatusBadRequest)
			return
		}
		if req.MessageID == "" {
			errorResponse(w, "Field 'message_id' is required.", http.StatusBadRequest)
			return
		}

		db, err := manager.Acquire(r.Context())
		if err != nil {
			log.Printf("Error acquiring database connection: %v", err)
			errorResponse(w, "Internal server error recording bounce", http.StatusInternalServerError)
			return
		}

		err = database.NewTrackingStore(db).MarkBounced(r.Context(), req.MessageID, req.Details)
		if errors.Is(err, database.ErrNotFound) {
			errorResponse(w, "No record for that message id", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Printf("Error recording bounce for %s: %v", req.MessageID, err)
			errorResponse(w, "Internal server error recording bounce", http.StatusInternalServerError)
			return
		}
		successResponse(w, "Bounce recorded", nil)
	}
}

// GetDailyLimitHandler reports today's send count against the limit.
func GetDailyLimitHandler(manager *database.Manager, dailyLimit int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, err := manager.Acquire(r.Context())
		if err != nil {
			errorResponse(w, "Internal server error getting daily limit", http.StatusInternalServerError)
			return
		}
		currentCount, err := utils.GetDailyMailCount(r.Context(), db)
		if err != nil {
			errorResponse(w, "Internal server error getting daily limit", http.StatusInternalServerError)
			return
		}
		data := map[string]interface{}{"current_count": currentCount, "limit": dailyLimit, "remaining": dailyLimit - currentCount}
		successResponse(w, "Daily mail limit status retrieved", data)
	}
}

// GetStatsHandler reports today's status distribution (sent/opened/bounced).
func GetStatsHandler(manager *database.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, err := manager.Acquire(r.Context())
		if err != nil {
			errorResponse(w, "Internal server error fetching stats", http.StatusInternalServerError)
			return
		}
		statusCounts, err := utils.GetStatusDistribution(r.Context(), db)
		if err != nil {
			errorResponse(w, "Internal server error fetching stats", http.StatusInternalServerError)
			return
		}
		successResponse(w, "Status distribution retrieved", statusCounts)
	}
}
