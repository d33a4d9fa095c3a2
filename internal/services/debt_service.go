package services

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/debtbook/backend/internal/audit"
	"github.com/debtbook/backend/internal/models"
	"github.com/debtbook/backend/internal/reporting"
	"github.com/shopspring/decimal"
)

const (
	maxAmountDecimals = 2
	// exponents outside this range are rejected before any rescaling
	maxAmountExponent = 18
)

// maxAmount is the largest value debts.debt_amount NUMERIC(14,2) holds.
var maxAmount = decimal.New(99999999999999, -maxAmountDecimals)

type DebtService struct {
	db         *sql.DB
	validator  *ValidationHelper
	audit      *audit.Logger
	classifier reporting.Classifier
	now        func() time.Time
}

// CreateDebtRequest represents a new debt with one of the caller's contacts
// @Description Debt creation request
type CreateDebtRequest struct {
	Contact     int64            `json:"contact" validate:"required,gt=0" example:"7"`
	Amount      *decimal.Decimal `json:"debt_amount" validate:"required" swaggertype:"string" example:"150.00"`
	Description string           `json:"description" validate:"max=1000" example:"Lunch"`
	IsMyDebt    *bool            `json:"is_my_debt" validate:"required" example:"true"`
	DueDate     *time.Time       `json:"due_date" example:"2026-11-01T00:00:00Z"`
}

// CreatedDebt echoes the stored debt
type CreatedDebt struct {
	ID          int64  `json:"id" example:"12"`
	ContactName string `json:"contact_name" example:"Bobur Karimov"`
	Description string `json:"description" example:"Lunch"`
}

// DebtList is a set of classified debts
type DebtList struct {
	Debts []models.DebtView `json:"debts"`
}

// DebtsWithSummary is a set of classified debts and their totals
type DebtsWithSummary struct {
	Debts   []models.DebtView `json:"debts"`
	Summary reporting.Summary `json:"summary"`
}

func NewDebtService(db *sql.DB, classifier reporting.Classifier) *DebtService {
	return &DebtService{
		db:         db,
		validator:  NewValidationHelper(),
		audit:      audit.NewLogger(),
		classifier: classifier,
		now:        time.Now,
	}
}

// CreateDebt records a debt with one of the caller's contacts
// @Summary Create debt
// @Description debt_amount is a non-negative decimal up to 999999999999.99 with at most two fractional digits
// @Tags debts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateDebtRequest true "Debt"
// @Success 201 {object} map[string]any "{success, data: {user: CreatedDebt}}"
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /debts [post]
func (s *DebtService) CreateDebt(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req CreateDebtRequest
	if !s.validator.decodeJSON(w, r, &req) {
		return
	}

	if msg := checkAmount(*req.Amount); msg != "" {
		SendFieldErrors(w, "Validation failed", http.StatusBadRequest, map[string]string{"debt_amount": msg})
		return
	}
	ctx := r.Context()

	name, err := contactName(ctx, s.db, userID, req.Contact)
	if errors.Is(err, ErrContactNotFound) {
		SendFieldErrors(w, "Validation failed", http.StatusBadRequest, map[string]string{"contact": "Contact not found"})
		return
	}
	if err != nil {
		log.Printf("[DEBT] Contact lookup failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to create debt", http.StatusInternalServerError, nil)
		return
	}

	var dueDate sql.NullTime
	if req.DueDate != nil {
		dueDate = sql.NullTime{Time: req.DueDate.UTC(), Valid: true}
	}
	description := strings.TrimSpace(req.Description)

	var id int64
	var createdAt time.Time
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO debts (contact_id, debt_amount, description, is_my_debt, due_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		req.Contact, req.Amount.StringFixed(maxAmountDecimals), description, *req.IsMyDebt, dueDate).
		Scan(&id, &createdAt)
	if err != nil {
		log.Printf("[DEBT] Insert failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to create debt", http.StatusInternalServerError, nil)
		return
	}

	s.audit.LogDebt("DEBT_CREATED", userID, id, map[string]string{
		"contact_id": strconv.FormatInt(req.Contact, 10),
		"amount":     req.Amount.StringFixed(maxAmountDecimals),
		"is_my_debt": strconv.FormatBool(*req.IsMyDebt),
	})
	log.Printf("[DEBT] Debt %d created for user %d", id, userID)

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"data": map[string]any{
			"user": CreatedDebt{ID: id, ContactName: name, Description: description},
		},
	})
}

// checkAmount returns a field message when amount is not a valid debt amount.
func checkAmount(amount decimal.Decimal) string {
	if e := amount.Exponent(); e < -maxAmountExponent || e > maxAmountExponent {
		return "is not a valid amount"
	}
	if amount.IsNegative() {
		return "must not be negative"
	}
	if amount.GreaterThan(maxAmount) {
		return "must not exceed " + maxAmount.StringFixed(maxAmountDecimals)
	}
	if !amount.Equal(amount.Truncate(maxAmountDecimals)) {
		return "must have at most 2 decimal places"
	}
	return ""
}

// ListDebts returns every debt of the caller
// @Summary List debts
// @Tags debts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]any "{success, data: DebtsWithSummary}"
// @Failure 401 {object} ErrorResponse
// @Router /debts [get]
func (s *DebtService) ListDebts(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	debts, err := listDebts(r.Context(), s.db, userID, debtFilter{}, "d.created_at DESC, d.id DESC", nil)
	if err != nil {
		log.Printf("[DEBT] List failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch debts", http.StatusInternalServerError, nil)
		return
	}

	views := s.classifier.Views(debts, s.now())
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    DebtsWithSummary{Debts: views, Summary: reporting.Aggregate(views)},
	})
}

// MyDebts lists what the caller owes
// @Summary List my debts
// @Description Debts where the caller is the debtor, newest first
// @Tags debts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]any "{success, data: DebtList}"
// @Failure 401 {object} ErrorResponse
// @Router /my-debts [get]
func (s *DebtService) MyDebts(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	debts, err := listDebts(r.Context(), s.db, userID,
		debtFilter{}.where("d.is_my_debt = TRUE"), "d.created_at DESC, d.id DESC", nil)
	if err != nil {
		log.Printf("[DEBT] My debts failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch debts", http.StatusInternalServerError, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    DebtList{Debts: s.classifier.Views(debts, s.now())},
	})
}

// GetDebt returns one classified debt
// @Summary Get debt
// @Tags debts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Debt ID"
// @Success 200 {object} map[string]any "{success, data: {debt}}"
// @Failure 404 {object} ErrorResponse
// @Router /debts/{id} [get]
func (s *DebtService) GetDebt(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	debtID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	d, err := getDebt(r.Context(), s.db, userID, debtID)
	if errors.Is(err, ErrDebtNotFound) {
		SendErrorResponse(w, "Debt not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[DEBT] Get %d failed: %v", debtID, err)
		SendErrorResponse(w, "Failed to fetch debt", http.StatusInternalServerError, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    map[string]any{"debt": s.classifier.View(d, s.now())},
	})
}

// Summary aggregates all debts of the caller
// @Summary Debt summary
// @Description Totals owed in each direction plus active and overdue counts
// @Tags debts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} reporting.Summary
// @Failure 401 {object} ErrorResponse
// @Router /debts/summary [get]
func (s *DebtService) Summary(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	debts, err := listDebts(r.Context(), s.db, userID, debtFilter{}, "d.id", nil)
	if err != nil {
		log.Printf("[DEBT] Summary failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to build summary", http.StatusInternalServerError, nil)
		return
	}

	writeJSON(w, http.StatusOK, reporting.Aggregate(s.classifier.Views(debts, s.now())))
}

// Overdue lists unpaid debts that are due
// @Summary List overdue debts
// @Description Unpaid debts with a due date not after now, earliest due first
// @Tags debts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]any "{success, data: DebtList}"
// @Failure 401 {object} ErrorResponse
// @Router /debts/overdue [post]
// @Router /debts/overdue [get]
func (s *DebtService) Overdue(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	now := s.now()

	filter := debtFilter{}.
		where("d.is_paid_back = FALSE").
		where("d.due_date <= $2", now)
	debts, err := listDebts(r.Context(), s.db, userID, filter, "d.due_date, d.id", nil)
	if err != nil {
		log.Printf("[DEBT] Overdue failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch overdue debts", http.StatusInternalServerError, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    DebtList{Debts: s.classifier.ListOverdue(debts, now)},
	})
}

// MarkPaid sets the paid-back flag, the only change a debt allows
// @Summary Mark debt paid
// @Tags debts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Debt ID"
// @Success 200 {object} map[string]any "{success, data: {debt}}"
// @Failure 404 {object} ErrorResponse
// @Router /debts/{id}/pay [post]
func (s *DebtService) MarkPaid(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	debtID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()

	var id int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE debts d SET is_paid_back = TRUE
		FROM contacts c
		WHERE d.id = $1 AND c.id = d.contact_id AND c.user_id = $2
		RETURNING d.id`, debtID, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		SendErrorResponse(w, "Debt not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[DEBT] Mark paid %d failed: %v", debtID, err)
		SendErrorResponse(w, "Failed to update debt", http.StatusInternalServerError, nil)
		return
	}
	s.audit.LogDebt("DEBT_PAID", userID, id, nil)

	d, err := getDebt(ctx, s.db, userID, id)
	if err != nil {
		log.Printf("[DEBT] Reload of %d failed: %v", id, err)
		SendErrorResponse(w, "Failed to fetch debt", http.StatusInternalServerError, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    map[string]any{"debt": s.classifier.View(d, s.now())},
	})
}
