package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/debtbook/backend/internal/audit"
	"github.com/debtbook/backend/internal/models"
	"github.com/debtbook/backend/internal/reporting"
)

type ContactService struct {
	db         *sql.DB
	validator  *ValidationHelper
	audit      *audit.Logger
	classifier reporting.Classifier
	now        func() time.Time
}

// ContactRequest is used to create or update a contact
type ContactRequest struct {
	Fullname    string `json:"fullname" validate:"required,min=2,max=255" example:"Bobur Karimov"`
	PhoneNumber string `json:"phone_number" validate:"required,max=32" example:"+998901112233"`
}

// ContactList is a page of the caller's contacts
type ContactList struct {
	Contacts []models.Contact `json:"contacts"`
	Total    int              `json:"total" example:"12"`
}

// ContactDebts is a contact's debts with their summary
type ContactDebts struct {
	Contact models.Contact    `json:"contact"`
	Debts   []models.DebtView `json:"debts"`
	Summary reporting.Summary `json:"summary"`
}

func NewContactService(db *sql.DB, classifier reporting.Classifier) *ContactService {
	return &ContactService{
		db:         db,
		validator:  NewValidationHelper(),
		audit:      audit.NewLogger(),
		classifier: classifier,
		now:        time.Now,
	}
}

// escapeLike quotes the LIKE wildcards in a user supplied search term.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ListContacts returns the caller's contacts
// @Summary List contacts
// @Description Lists the caller's contacts ordered by name, optionally filtered by a name search
// @Tags contacts
// @Produce json
// @Security BearerAuth
// @Param search query string false "Name contains (case insensitive)"
// @Param limit query int false "Page size (1-100)" default(50)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} map[string]any "{success, data: ContactList}"
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /contacts [get]
func (s *ContactService) ListContacts(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	p, ok := parsePage(w, r)
	if !ok {
		return
	}
	pattern := "%" + escapeLike(strings.TrimSpace(r.URL.Query().Get("search"))) + "%"
	ctx := r.Context()

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contacts WHERE user_id = $1 AND fullname ILIKE $2`,
		userID, pattern).Scan(&total)
	if err != nil {
		log.Printf("[CONTACT] Count failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch contacts", http.StatusInternalServerError, nil)
		return
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, fullname, phone_number, created_at
		FROM contacts
		WHERE user_id = $1 AND fullname ILIKE $2
		ORDER BY fullname, id
		LIMIT $3 OFFSET $4`,
		userID, pattern, p.Limit, p.Offset)
	if err != nil {
		log.Printf("[CONTACT] List failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch contacts", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	contacts := make([]models.Contact, 0)
	for rows.Next() {
		var c models.Contact
		if err := rows.Scan(&c.ID, &c.UserID, &c.Fullname, &c.PhoneNumber, &c.CreatedAt); err != nil {
			log.Printf("[CONTACT] Scan failed for user %d: %v", userID, err)
			SendErrorResponse(w, "Failed to fetch contacts", http.StatusInternalServerError, nil)
			return
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		log.Printf("[CONTACT] Row iteration failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch contacts", http.StatusInternalServerError, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    ContactList{Contacts: contacts, Total: total},
	})
}

// CreateContact adds a contact for the caller
// @Summary Create contact
// @Tags contacts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ContactRequest true "Contact"
// @Success 201 {object} map[string]any "{success, data: {contact}}"
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /contacts [post]
func (s *ContactService) CreateContact(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req ContactRequest
	if !s.validator.decodeJSON(w, r, &req) {
		return
	}

	c := models.Contact{
		UserID:      userID,
		Fullname:    strings.TrimSpace(req.Fullname),
		PhoneNumber: strings.TrimSpace(req.PhoneNumber),
	}
	err := s.db.QueryRowContext(r.Context(),
		`INSERT INTO contacts (user_id, fullname, phone_number) VALUES ($1, $2, $3) RETURNING id, created_at`,
		c.UserID, c.Fullname, c.PhoneNumber).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		log.Printf("[CONTACT] Create failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to create contact", http.StatusInternalServerError, nil)
		return
	}

	s.audit.LogContact("CONTACT_CREATED", userID, c.ID)
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": map[string]any{"contact": c}})
}

// UpdateContact changes a contact's name and phone number
// @Summary Update contact
// @Tags contacts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Contact ID"
// @Param request body ContactRequest true "Contact"
// @Success 200 {object} map[string]any "{success, data: {contact}}"
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /contacts/{id} [put]
func (s *ContactService) UpdateContact(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	contactID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req ContactRequest
	if !s.validator.decodeJSON(w, r, &req) {
		return
	}

	c := models.Contact{ID: contactID, UserID: userID}
	err := s.db.QueryRowContext(r.Context(), `
		UPDATE contacts SET fullname = $1, phone_number = $2
		WHERE id = $3 AND user_id = $4
		RETURNING fullname, phone_number, created_at`,
		strings.TrimSpace(req.Fullname), strings.TrimSpace(req.PhoneNumber), contactID, userID).
		Scan(&c.Fullname, &c.PhoneNumber, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		SendErrorResponse(w, "Contact not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[CONTACT] Update of %d failed: %v", contactID, err)
		SendErrorResponse(w, "Failed to update contact", http.StatusInternalServerError, nil)
		return
	}

	s.audit.LogContact("CONTACT_UPDATED", userID, contactID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"contact": c}})
}

// DeleteContact removes a contact without unpaid debts
// @Summary Delete contact
// @Description Deletes the contact and its settled debts. Refused while any debt with the contact is unpaid.
// @Tags contacts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Contact ID"
// @Success 200 {object} map[string]any "{success, message}"
// @Failure 400 {object} ErrorResponse "Contact has active debts"
// @Failure 404 {object} ErrorResponse "Contact not found"
// @Router /contacts/{id} [delete]
func (s *ContactService) DeleteContact(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	contactID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	err := s.deleteContact(r.Context(), userID, contactID)
	switch {
	case errors.Is(err, ErrContactNotFound):
		SendErrorResponse(w, "Contact not found", http.StatusNotFound, nil)
		return
	case errors.Is(err, ErrActiveDebts):
		SendErrorResponse(w, "Cannot delete contact with active debts", http.StatusBadRequest, nil)
		return
	case err != nil:
		log.Printf("[CONTACT] Delete of %d failed: %v", contactID, err)
		s.audit.LogError("CONTACT_DELETE_FAILED", userID, err)
		SendErrorResponse(w, "Failed to delete contact", http.StatusInternalServerError, nil)
		return
	}

	s.audit.LogContact("CONTACT_DELETED", userID, contactID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Contact deleted successfully"})
}

// deleteContact locks the contact row so no debt can be attached between the
// active-debt check and the delete.
func (s *ContactService) deleteContact(ctx context.Context, userID, contactID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM contacts WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		contactID, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrContactNotFound
	}
	if err != nil {
		return fmt.Errorf("lock contact: %w", err)
	}

	var active int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM debts WHERE contact_id = $1 AND is_paid_back = FALSE`,
		contactID).Scan(&active); err != nil {
		return fmt.Errorf("count active debts: %w", err)
	}
	if active > 0 {
		return ErrActiveDebts
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM contacts WHERE id = $1`, contactID); err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	return tx.Commit()
}

// ContactDebts lists every debt with one contact
// @Summary Debts with a contact
// @Tags contacts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Contact ID"
// @Success 200 {object} map[string]any "{success, data: ContactDebts}"
// @Failure 404 {object} ErrorResponse
// @Router /contacts/{id}/debts [get]
func (s *ContactService) ContactDebts(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	contactID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()

	c := models.Contact{ID: contactID, UserID: userID}
	err := s.db.QueryRowContext(ctx,
		`SELECT fullname, phone_number, created_at FROM contacts WHERE id = $1 AND user_id = $2`,
		contactID, userID).Scan(&c.Fullname, &c.PhoneNumber, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		SendErrorResponse(w, "Contact not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[CONTACT] Lookup of %d failed: %v", contactID, err)
		SendErrorResponse(w, "Failed to fetch contact debts", http.StatusInternalServerError, nil)
		return
	}

	debts, err := listDebts(ctx, s.db, userID, debtFilter{}.where("d.contact_id = $2", contactID), "d.created_at DESC, d.id DESC", nil)
	if err != nil {
		log.Printf("[CONTACT] Debts of %d failed: %v", contactID, err)
		SendErrorResponse(w, "Failed to fetch contact debts", http.StatusInternalServerError, nil)
		return
	}

	views := s.classifier.Views(debts, s.now())
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    ContactDebts{Contact: c, Debts: views, Summary: reporting.Aggregate(views)},
	})
}
