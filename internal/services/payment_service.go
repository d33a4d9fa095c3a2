package services

import (
	"database/sql"
	"log"
	"net/http"

	"github.com/debtbook/backend/internal/models"
	"github.com/debtbook/backend/internal/reporting"
)

// PaymentService reports on debts that were paid back.
type PaymentService struct {
	db *sql.DB
}

// PaymentPage is one page of settled debts
type PaymentPage struct {
	Payments []models.Debt `json:"payments"`
	Total    int           `json:"total" example:"4"`
}

func NewPaymentService(db *sql.DB) *PaymentService {
	return &PaymentService{db: db}
}

var paidFilter = debtFilter{}.where("d.is_paid_back = TRUE")

// Payments lists the caller's settled debts
// @Summary List payments
// @Tags payments
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size (1-100)" default(50)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} map[string]any "{success, data: PaymentPage}"
// @Failure 400 {object} ErrorResponse
// @Router /payments [get]
func (s *PaymentService) Payments(w http.ResponseWriter, r *http.Request) {
	s.listPayments(w, r, paidFilter)
}

// TheirPayments lists debts the caller's contacts paid back
// @Summary List payments received
// @Tags payments
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size (1-100)" default(50)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} map[string]any "{success, data: PaymentPage}"
// @Failure 400 {object} ErrorResponse
// @Router /payments/their-payments [get]
func (s *PaymentService) TheirPayments(w http.ResponseWriter, r *http.Request) {
	s.listPayments(w, r, paidFilter.where("d.is_my_debt = FALSE"))
}

func (s *PaymentService) listPayments(w http.ResponseWriter, r *http.Request, f debtFilter) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	p, ok := parsePage(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	total, err := countDebts(ctx, s.db, userID, f)
	if err != nil {
		log.Printf("[PAYMENT] Count failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch payments", http.StatusInternalServerError, nil)
		return
	}

	debts, err := listDebts(ctx, s.db, userID, f, "d.created_at DESC, d.id DESC", &p)
	if err != nil {
		log.Printf("[PAYMENT] List failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch payments", http.StatusInternalServerError, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    PaymentPage{Payments: debts, Total: total},
	})
}

// PaymentsAmount totals the caller's settled debts
// @Summary Payment totals
// @Tags payments
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]any "{success, data: reporting.PaymentSummary}"
// @Failure 404 {object} ErrorResponse "No payments"
// @Router /payments/amount [get]
func (s *PaymentService) PaymentsAmount(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	debts, err := listDebts(r.Context(), s.db, userID, paidFilter, "d.id", nil)
	if err != nil {
		log.Printf("[PAYMENT] Totals failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch payments", http.StatusInternalServerError, nil)
		return
	}
	if len(debts) == 0 {
		SendErrorResponse(w, "No payments found", http.StatusNotFound, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    reporting.SummarizePayments(debts),
	})
}
