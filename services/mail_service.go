package services

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/google/uuid"
	mail "gopkg.in/gomail.v2"

	"mail-tracker/config"
	"mail-tracker/database"
)

// MailService sends tracked emails and creates the tracking record that
// the pixel path updates later.
type MailService struct {
	config  *config.Config
	manager *database.Manager
}

// NewMailService creates a new MailService instance
func NewMailService(cfg *config.Config, manager *database.Manager) *MailService {
	return &MailService{
		config:  cfg,
		manager: manager,
	}
}

// SendTracked persists a fresh tracking record, embeds its pixel into the
// HTML body and hands the message to SMTP. The record is created first so
// an open can never arrive for a record that does not exist yet.
func (s *MailService) SendTracked(ctx context.Context, to, subject, body string) (*database.TrackingRecord, error) {
	rec := &database.TrackingRecord{
		TrackingID: uuid.NewString(),
		MessageID:  uuid.NewString(),
		Recipient:  to,
		Subject:    subject,
		Body:       body,
	}

	db, err := s.manager.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if err := database.NewTrackingStore(db).Create(ctx, rec); err != nil {
		return nil, err
	}

	htmlBody := InjectPixel(body, s.config.TrackingBaseURL, rec.TrackingID)

	host, port, err := splitMailHub(s.config.MailHub)
	if err != nil {
		return nil, err
	}

	from := s.config.FromEmail
	if from == "" {
		from = s.config.AuthUser
	}

	m := mail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	d := mail.NewDialer(host, port, s.config.AuthUser, s.config.AuthPass)
	d.TLSConfig = &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: s.config.SkipTLSVerify,
	}
	if s.config.SkipTLSVerify {
		log.Println("WARNING: TLS certificate verification is DISABLED.")
	}

	if err := d.DialAndSend(m); err != nil {
		return nil, fmt.Errorf("could not send email: %w", err)
	}

	log.Printf("Tracked email sent to %s tracking_id=%s", to, rec.TrackingID)
	return rec, nil
}

// InjectPixel places the 1x1 tracking image into the HTML body, just
// before </body> when present, appended otherwise.
func InjectPixel(html, baseURL, trackingID string) string {
	img := fmt.Sprintf(`<img src="%s/icon/%s" width="1" height="1" alt="" style="display:none">`,
		strings.TrimRight(baseURL, "/"), trackingID)
	lower := strings.ToLower(html)
	if idx := strings.LastIndex(lower, "</body>"); idx >= 0 {
		return html[:idx] + img + html[idx:]
	}
	return html + img
}

func splitMailHub(hub string) (string, int, error) {
	parts := strings.Split(hub, ":")
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("invalid MAILHUB format: %s. Expected host:port", hub)
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in MAILHUB: %v", err)
	}
	return parts[0], port, nil
}
