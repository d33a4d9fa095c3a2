package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"strings"

	"github.com/debtbook/backend/internal/audit"
	"github.com/debtbook/backend/internal/auth"
	"github.com/debtbook/backend/internal/config"
	"github.com/debtbook/backend/internal/database"
	"github.com/debtbook/backend/internal/kvstore"
	"github.com/debtbook/backend/internal/mailer"
	"github.com/debtbook/backend/internal/models"
)

const (
	msgInvalidOTP      = "Invalid or expired verification code"
	msgEmailRegistered = "Email already registered"
	resendPrefix       = "resend:"
)

type AuthService struct {
	db          *sql.DB
	store       kvstore.Store
	mailer      mailer.Mailer
	tokens      *auth.TokenIssuer
	argon       auth.Argon2Params
	otp         *config.OTPConfig
	validator   *ValidationHelper
	audit       *audit.Logger
	generateOTP func(length int) (string, error)
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"user@example.com"` // User email
	Password string `json:"password" validate:"required" example:"secret123"`          // User password
}

// RegisterRequest represents the registration request payload
// @Description Registration request structure
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email,max=254" example:"user@example.com"`
	Password    string `json:"password" validate:"required,min=6,max=128" example:"secret123"`
	Fullname    string `json:"fullname" validate:"required,min=2,max=255" example:"Ali Valiyev"`
	PhoneNumber string `json:"phone_number" validate:"required,max=32" example:"+998901234567"`
}

// VerifyEmailRequest completes a pending registration
// @Description Email verification request structure
type VerifyEmailRequest struct {
	Email string `json:"email" validate:"required,email" example:"user@example.com"`
	OTP   string `json:"otp" validate:"required,numeric" example:"123456"`
}

// ResendRequest asks for a fresh verification code
type ResendRequest struct {
	Email string `json:"email" validate:"required,email" example:"user@example.com"`
}

// MessageResponse is returned by the registration endpoints
type MessageResponse struct {
	Message string `json:"message" example:"Verification code sent to email"`
}

// LoginUser is the user part of a login response
type LoginUser struct {
	ID       int64  `json:"id" example:"1"`
	Email    string `json:"email" example:"user@example.com"`
	Fullname string `json:"fullname" example:"Ali Valiyev"`
}

// LoginData carries the issued token
type LoginData struct {
	User  LoginUser `json:"user"`
	Token string    `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
}

// LoginResponse represents the authentication response
type LoginResponse struct {
	Success bool      `json:"success" example:"true"`
	Data    LoginData `json:"data"`
}

func NewAuthService(db *sql.DB, store kvstore.Store, m mailer.Mailer, tokens *auth.TokenIssuer, argon auth.Argon2Params, otp *config.OTPConfig) *AuthService {
	return &AuthService{
		db:          db,
		store:       store,
		mailer:      m,
		tokens:      tokens,
		argon:       argon,
		otp:         otp,
		validator:   NewValidationHelper(),
		audit:       audit.NewLogger(),
		generateOTP: generateOTP,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) pendingKey(email string) string {
	return s.otp.RegisterPrefix + email
}

// Register starts a two-phase signup
// @Summary Register a new user
// @Description Validates the signup fields, stores them as a pending registration and emails a one-time code
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 200 {object} MessageResponse "Verification code sent"
// @Failure 400 {object} ErrorResponse "Invalid fields or email taken"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /auth/register [post]
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	var req RegisterRequest
	if !s.validator.decodeJSON(w, r, &req) {
		return
	}
	email := normalizeEmail(req.Email)
	ctx := r.Context()

	exists, err := s.emailExists(ctx, email)
	if err != nil {
		log.Printf("[AUTH] Registration lookup failed for %s: %v", email, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}
	if exists {
		SendFieldErrors(w, msgEmailRegistered, http.StatusBadRequest, map[string]string{"email": msgEmailRegistered})
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password, s.argon)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed for %s: %v", email, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	pending := models.PendingRegistration{
		Email:        email,
		Fullname:     strings.TrimSpace(req.Fullname),
		PhoneNumber:  strings.TrimSpace(req.PhoneNumber),
		PasswordHash: hashedPassword,
	}
	if err := s.issueCode(ctx, &pending); err != nil {
		log.Printf("[AUTH] Failed to issue verification code for %s: %v", email, err)
		SendErrorResponse(w, "Failed to send verification code", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Pending registration stored for %s", email)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Verification code sent to email"})
}

// issueCode assigns a fresh code to p, stores it with a full TTL and emails it.
// The pending entry is removed again if delivery fails.
func (s *AuthService) issueCode(ctx context.Context, p *models.PendingRegistration) error {
	code, err := s.generateOTP(s.otp.CodeLength)
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	p.OTP = code

	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode pending registration: %w", err)
	}

	key := s.pendingKey(p.Email)
	if err := s.store.Set(ctx, key, payload, s.otp.CodeTimeout); err != nil {
		return err
	}

	body := fmt.Sprintf("Your verification code: %s\nIt expires in %d minutes.", code, int(s.otp.CodeTimeout.Minutes()))
	if err := s.mailer.Send(ctx, p.Email, s.otp.MailSubject, body); err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			log.Printf("[AUTH] Failed to discard pending registration for %s: %v", p.Email, delErr)
		}
		return err
	}
	return nil
}

// VerifyEmail completes a pending registration
// @Summary Verify email
// @Description Confirms the emailed code and creates the user. A wrong code discards the pending registration.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body VerifyEmailRequest true "Verification request"
// @Success 201 {object} MessageResponse "User created"
// @Failure 400 {object} ErrorResponse "Missing, expired or wrong code"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /auth/verify-email [post]
func (s *AuthService) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if !s.validator.decodeJSON(w, r, &req) {
		return
	}
	email := normalizeEmail(req.Email)
	ctx := r.Context()
	key := s.pendingKey(email)

	pending, err := s.loadPending(ctx, email)
	if errors.Is(err, kvstore.ErrNotFound) {
		log.Printf("[AUTH] No pending registration for %s", email)
		SendErrorResponse(w, msgInvalidOTP, http.StatusBadRequest, nil)
		return
	}
	if err != nil {
		log.Printf("[AUTH] Failed to load pending registration for %s: %v", email, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	if subtle.ConstantTimeCompare([]byte(pending.OTP), []byte(req.OTP)) != 1 {
		log.Printf("[AUTH] Wrong verification code for %s, discarding pending registration", email)
		if err := s.store.Delete(ctx, key); err != nil {
			log.Printf("[AUTH] Failed to discard pending registration for %s: %v", email, err)
		}
		SendErrorResponse(w, msgInvalidOTP, http.StatusBadRequest, nil)
		return
	}

	var userID int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO users (email, fullname, phone_number, password) VALUES ($1, $2, $3, $4) RETURNING id`,
		pending.Email, pending.Fullname, pending.PhoneNumber, pending.PasswordHash).Scan(&userID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			if delErr := s.store.Delete(ctx, key); delErr != nil {
				log.Printf("[AUTH] Failed to delete pending registration for %s: %v", email, delErr)
			}
			SendFieldErrors(w, msgEmailRegistered, http.StatusBadRequest, map[string]string{"email": msgEmailRegistered})
			return
		}
		log.Printf("[AUTH] User creation failed for %s: %v", email, err)
		SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}

	if err := s.store.Delete(ctx, key); err != nil {
		log.Printf("[AUTH] Failed to delete pending registration for %s: %v", email, err)
	}

	s.audit.LogUser("USER_REGISTERED", userID, email)
	log.Printf("[AUTH] User created successfully - ID: %d, Email: %s", userID, email)
	writeJSON(w, http.StatusCreated, MessageResponse{Message: "User created successfully"})
}

func (s *AuthService) loadPending(ctx context.Context, email string) (*models.PendingRegistration, error) {
	raw, err := s.store.Get(ctx, s.pendingKey(email))
	if err != nil {
		return nil, err
	}
	var p models.PendingRegistration
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode pending registration: %w", err)
	}
	return &p, nil
}

// Resend issues a new code for a pending registration
// @Summary Resend verification code
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ResendRequest true "Resend request"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /auth/resend [post]
func (s *AuthService) Resend(w http.ResponseWriter, r *http.Request) {
	var req ResendRequest
	if !s.validator.decodeJSON(w, r, &req) {
		return
	}
	email := normalizeEmail(req.Email)
	ctx := r.Context()

	exists, err := s.emailExists(ctx, email)
	if err != nil {
		log.Printf("[AUTH] Resend lookup failed for %s: %v", email, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}
	if exists {
		SendFieldErrors(w, msgEmailRegistered, http.StatusBadRequest, map[string]string{"email": msgEmailRegistered})
		return
	}

	pending, err := s.loadPending(ctx, email)
	if errors.Is(err, kvstore.ErrNotFound) {
		SendErrorResponse(w, "No pending registration for this email", http.StatusBadRequest, nil)
		return
	}
	if err != nil {
		log.Printf("[AUTH] Failed to load pending registration for %s: %v", email, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	cooldownKey := resendPrefix + email
	_, err = s.store.Get(ctx, cooldownKey)
	switch {
	case err == nil:
		SendErrorResponse(w, "Please wait before requesting another code", http.StatusTooManyRequests, nil)
		return
	case !errors.Is(err, kvstore.ErrNotFound):
		log.Printf("[AUTH] Resend cooldown check failed for %s: %v", email, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	if err := s.issueCode(ctx, pending); err != nil {
		log.Printf("[AUTH] Failed to resend verification code for %s: %v", email, err)
		SendErrorResponse(w, "Failed to send verification code", http.StatusInternalServerError, nil)
		return
	}
	if s.otp.ResendCooldown > 0 {
		if err := s.store.Set(ctx, cooldownKey, []byte("1"), s.otp.ResendCooldown); err != nil {
			log.Printf("[AUTH] Failed to set resend cooldown for %s: %v", email, err)
		}
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Verification code sent to email"})
}

// Login handles user authentication
// @Summary Login user
// @Description Authenticate user with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} LoginResponse "Login successful"
// @Failure 400 {object} ErrorResponse "Invalid credentials"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	var req LoginRequest
	if !s.validator.decodeJSON(w, r, &req) {
		return
	}
	email := normalizeEmail(req.Email)

	var user LoginUser
	var hashedPassword string
	err := s.db.QueryRowContext(r.Context(),
		`SELECT id, email, fullname, password FROM users WHERE email = $1`, email).
		Scan(&user.ID, &user.Email, &user.Fullname, &hashedPassword)
	if errors.Is(err, sql.ErrNoRows) {
		log.Printf("[AUTH] User not found for email: %s", email)
		SendErrorResponse(w, "Invalid email or password", http.StatusBadRequest, nil)
		return
	}
	if err != nil {
		log.Printf("[AUTH] Login lookup failed for %s: %v", email, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	if !auth.VerifyPassword(req.Password, hashedPassword, s.argon) {
		log.Printf("[AUTH] Invalid password for user: %s", email)
		SendErrorResponse(w, "Invalid email or password", http.StatusBadRequest, nil)
		return
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		log.Printf("[AUTH] Token generation failed for user %d: %v", user.ID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login successful for user %d", user.ID)
	writeJSON(w, http.StatusOK, LoginResponse{Success: true, Data: LoginData{User: user, Token: token}})
}

// Logout handles user logout
// @Summary Logout user
// @Description Revoke the bearer token until it expires
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]any "Logout successful"
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.BearerToken(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	if err := s.store.Set(r.Context(), auth.RevokedKey(token), []byte("1"), s.tokens.Expiry()); err != nil {
		log.Printf("[AUTH] Failed to revoke token: %v", err)
		SendErrorResponse(w, "Failed to logout", http.StatusInternalServerError, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logout successful"})
}

// Me retrieves the authenticated user's profile
// @Summary Get current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /auth/me [get]
func (s *AuthService) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var user models.User
	err := s.db.QueryRowContext(r.Context(),
		`SELECT id, email, fullname, phone_number, created_at FROM users WHERE id = $1`, userID).
		Scan(&user.ID, &user.Email, &user.Fullname, &user.PhoneNumber, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[AUTH] Failed to fetch user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch user details", http.StatusInternalServerError, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"user": user}})
}

func (s *AuthService) emailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	return exists, err
}

func generateOTP(length int) (string, error) {
	const charset = "0123456789"
	code := make([]byte, length)
	charsetLen := big.NewInt(int64(len(charset)))

	for i := range code {
		n, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			return "", err
		}
		code[i] = charset[n.Int64()]
	}
	return string(code), nil
}
