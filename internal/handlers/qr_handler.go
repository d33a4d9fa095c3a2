package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/debtbook/backend/internal/auth"
	"github.com/debtbook/backend/internal/services"
	"github.com/go-chi/chi/v5"
)

type QRHandler struct {
	service   *services.QRService
	validator *services.ValidationHelper
}

func NewQRHandler(service *services.QRService) *QRHandler {
	return &QRHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// DebtReminder generates a reminder QR code for a debt
// @Summary Debt reminder QR code
// @Description Generate a PNG QR code (base64) carrying a reminder for the debt
// @Tags QR
// @Produce json
// @Security BearerAuth
// @Param id path int true "Debt ID"
// @Success 200 {object} object{success=bool,reminder=services.Reminder,qrImage=string}
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /debts/{id}/qr [get]
func (h *QRHandler) DebtReminder(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	debtID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || debtID <= 0 {
		services.SendErrorResponse(w, "Debt not found", http.StatusNotFound, nil)
		return
	}

	reminder, qrImage, err := h.service.GenerateReminder(r.Context(), userID, debtID)
	if errors.Is(err, services.ErrDebtNotFound) {
		services.SendErrorResponse(w, "Debt not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[QR] Reminder for debt %d failed: %v", debtID, err)
		services.SendErrorResponse(w, "Failed to generate QR code", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":  true,
		"reminder": reminder,
		"qrImage":  qrImage,
	})
}

// ResolveReminder returns the payload behind a scanned reminder code
// @Summary Resolve reminder QR code
// @Tags QR
// @Accept json
// @Produce json
// @Param request body object{code=string} true "Scanned reminder code"
// @Success 200 {object} object{success=bool,data=services.Reminder}
// @Failure 400 {object} services.ErrorResponse
// @Router /qr/resolve [post]
func (h *QRHandler) ResolveReminder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code" validate:"required,max=64"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	reminder, err := h.service.ResolveReminder(r.Context(), req.Code)
	if errors.Is(err, services.ErrReminderNotFound) {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err != nil {
		log.Printf("[QR] Resolve failed: %v", err)
		services.SendErrorResponse(w, "Failed to resolve reminder", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    reminder,
	})
}
