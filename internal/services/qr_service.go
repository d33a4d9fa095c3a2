package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"time"

	"github.com/debtbook/backend/internal/kvstore"
	"github.com/debtbook/backend/internal/reporting"
	"github.com/skip2/go-qrcode"
)

const (
	reminderPrefix = "qr:"
	reminderTTL    = 7 * 24 * time.Hour
	qrImageSize    = 256
)

var ErrReminderNotFound = errors.New("invalid or expired reminder code")

// Reminder is the payload a debt reminder QR code refers to.
type Reminder struct {
	Code         string `json:"code"`
	DebtID       int64  `json:"debt_id"`
	ContactName  string `json:"contact_name"`
	Amount       string `json:"debt_amount"`
	IsMyDebt     bool   `json:"is_my_debt"`
	DueDate      string `json:"due_date,omitempty"`
	IsOverdue    bool   `json:"is_overdue"`
	DaysUntilDue *int   `json:"days_until_due"`
	Text         string `json:"text"`
}

type QRService struct {
	db         *sql.DB
	store      kvstore.Store
	classifier reporting.Classifier
	now        func() time.Time
	random     io.Reader
}

func NewQRService(db *sql.DB, store kvstore.Store, classifier reporting.Classifier) *QRService {
	return &QRService{
		db:         db,
		store:      store,
		classifier: classifier,
		now:        time.Now,
		random:     rand.Reader,
	}
}

// GenerateReminder renders a QR code for one of the caller's debts and keeps
// its payload resolvable for a week. It returns the reminder and the PNG
// image, base64 encoded.
func (s *QRService) GenerateReminder(ctx context.Context, userID, debtID int64) (*Reminder, string, error) {
	d, err := getDebt(ctx, s.db, userID, debtID)
	if err != nil {
		return nil, "", err
	}
	view := s.classifier.View(d, s.now())

	code, err := s.generateNonce()
	if err != nil {
		return nil, "", err
	}
	rem := &Reminder{
		Code:         code,
		DebtID:       d.ID,
		ContactName:  d.ContactName,
		Amount:       d.Amount.StringFixed(maxAmountDecimals),
		IsMyDebt:     d.IsMyDebt,
		IsOverdue:    view.IsOverdue,
		DaysUntilDue: view.DaysUntilDue,
	}
	if d.DueDate != nil {
		rem.DueDate = d.DueDate.UTC().Format("2006-01-02")
	}
	rem.Text = reminderText(rem)

	payload, err := json.Marshal(rem)
	if err != nil {
		return nil, "", err
	}
	if err := s.store.Set(ctx, reminderPrefix+rem.Code, payload, reminderTTL); err != nil {
		return nil, "", err
	}

	qr, err := qrcode.New(rem.Text+"\nRef: "+rem.Code, qrcode.Medium)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(qrImageSize)); err != nil {
		return nil, "", err
	}

	return rem, base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// ResolveReminder looks up a scanned reminder code.
func (s *QRService) ResolveReminder(ctx context.Context, code string) (*Reminder, error) {
	data, err := s.store.Get(ctx, reminderPrefix+code)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, ErrReminderNotFound
	}
	if err != nil {
		return nil, err
	}

	var rem Reminder
	if err := json.Unmarshal(data, &rem); err != nil {
		return nil, err
	}
	return &rem, nil
}

func reminderText(r *Reminder) string {
	direction := fmt.Sprintf("%s owes you %s", r.ContactName, r.Amount)
	if r.IsMyDebt {
		direction = fmt.Sprintf("You owe %s %s", r.ContactName, r.Amount)
	}
	switch {
	case r.DueDate == "":
		return direction
	case r.IsOverdue:
		return fmt.Sprintf("%s, overdue since %s", direction, r.DueDate)
	default:
		return fmt.Sprintf("%s, due %s", direction, r.DueDate)
	}
}

func (s *QRService) generateNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := io.ReadFull(s.random, b); err != nil {
		return "", fmt.Errorf("generate reminder code: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
