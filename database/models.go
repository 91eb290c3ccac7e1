package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Tracking record statuses. A record advances sent -> opened under normal
// flow; bounced is set by the bounce webhook.
const (
	StatusSent    = "sent"
	StatusOpened  = "opened"
	StatusBounced = "bounced"
)

// OpenEvent is one entry in a record's open history.
type OpenEvent struct {
	Timestamp time.Time `json:"timestamp"`
	UserAgent string    `json:"userAgent"`
	IP        string    `json:"ip"`
}

// OpenHistory is the append-only open log, stored as a JSONB array.
type OpenHistory []OpenEvent

// Scan implements sql.Scanner for the JSONB open_history column.
func (h *OpenHistory) Scan(src interface{}) error {
	if src == nil {
		*h = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("open_history: cannot scan %T", src)
	}
	return json.Unmarshal(b, h)
}

// Value implements driver.Valuer for the JSONB open_history column.
func (h OpenHistory) Value() (driver.Value, error) {
	if h == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h)
}

// TrackingRecord represents a row in the tracking_records table, one per
// sent email.
type TrackingRecord struct {
	ID                int         `json:"id"`
	TrackingID        string      `json:"tracking_id"`
	MessageID         string      `json:"message_id"`
	Recipient         string      `json:"recipient"`
	Subject           string      `json:"subject"`
	Body              string      `json:"body,omitempty"`
	Status            string      `json:"status"`
	OpenCount         int         `json:"open_count"`
	LastOpened        *time.Time  `json:"last_opened"`
	ResponseUserAgent *string     `json:"response_user_agent"`
	ResponseIP        *string     `json:"response_ip"`
	OpenHistory       OpenHistory `json:"open_history"`
	BounceDetails     *string     `json:"bounce_details"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}
