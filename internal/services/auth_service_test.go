package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/debtbook/backend/internal/auth"
	"github.com/debtbook/backend/internal/config"
	"github.com/debtbook/backend/internal/kvstore"
	"github.com/debtbook/backend/internal/models"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Send(ctx context.Context, to, subject, body string) error {
	args := m.Called(ctx, to, subject, body)
	return args.Error(0)
}

var testArgon = auth.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLength: 32, SaltLength: 16}

const (
	existsQuery     = `SELECT EXISTS\(SELECT 1 FROM users WHERE email = \$1\)`
	registerBody    = `{"email":"New@Example.com","password":"secret123","fullname":"Ali Valiyev","phone_number":"+998901234567"}`
	pendingEmail    = "new@example.com"
	pendingKeyEmail = "register:new@example.com"
)

type authFixture struct {
	svc    *AuthService
	mock   sqlmock.Sqlmock
	store  *kvstore.MemoryStore
	mailer *mockMailer
	tokens *auth.TokenIssuer
	now    time.Time
}

// failingStore wraps a MemoryStore and fails the operations it is told to.
type failingStore struct {
	*kvstore.MemoryStore
	getPrefix string
	getErr    error
	deleteErr error
}

func (s *failingStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.getErr != nil && strings.HasPrefix(key, s.getPrefix) {
		return nil, s.getErr
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *failingStore) Delete(ctx context.Context, key string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.MemoryStore.Delete(ctx, key)
}

func newAuthFixture(t *testing.T) *authFixture {
	db, m := newMockDB(t)
	f := &authFixture{mock: m, now: testNow}
	store := kvstore.NewMemoryStoreWithClock(func() time.Time { return f.now })
	mailer := &mockMailer{}
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)
	otp := &config.OTPConfig{
		CodeLength:     6,
		CodeTimeout:    8 * time.Minute,
		RegisterPrefix: "register:",
		MailSubject:    "Your registration code",
		ResendCooldown: 30 * time.Second,
	}

	svc := NewAuthService(db, store, mailer, tokens, testArgon, otp)
	svc.generateOTP = func(int) (string, error) { return "123456", nil }
	f.svc, f.store, f.mailer, f.tokens = svc, store, mailer, tokens
	return f
}

func (f *authFixture) seedPending(t *testing.T, otp string) {
	t.Helper()
	payload, err := json.Marshal(models.PendingRegistration{
		Email:        pendingEmail,
		Fullname:     "Ali Valiyev",
		PhoneNumber:  "+998901234567",
		PasswordHash: "salt$hash",
		OTP:          otp,
	})
	require.NoError(t, err)
	require.NoError(t, f.store.Set(context.Background(), pendingKeyEmail, payload, 8*time.Minute))
}

func TestAuthService_Register(t *testing.T) {
	t.Run("stores pending registration and mails the code", func(t *testing.T) {
		f := newAuthFixture(t)
		f.mock.ExpectQuery(existsQuery).WithArgs(pendingEmail).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		f.mailer.On("Send", mock.Anything, pendingEmail, "Your registration code",
			mock.MatchedBy(func(body string) bool { return strings.Contains(body, "123456") })).Return(nil)

		rr := serve(http.MethodPost, "/auth/register", "/auth/register", registerBody, 0, f.svc.Register)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "Verification code sent to email", decodeBody(t, rr)["message"])

		raw, err := f.store.Get(context.Background(), pendingKeyEmail)
		require.NoError(t, err)
		var pending models.PendingRegistration
		require.NoError(t, json.Unmarshal(raw, &pending))
		assert.Equal(t, "123456", pending.OTP)
		assert.Equal(t, "Ali Valiyev", pending.Fullname)
		assert.NotEqual(t, "secret123", pending.PasswordHash)
		assert.True(t, auth.VerifyPassword("secret123", pending.PasswordHash, testArgon))

		f.mailer.AssertExpectations(t)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("email already registered", func(t *testing.T) {
		f := newAuthFixture(t)
		f.mock.ExpectQuery(existsQuery).WithArgs(pendingEmail).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		rr := serve(http.MethodPost, "/auth/register", "/auth/register", registerBody, 0, f.svc.Register)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, decodeBody(t, rr)["errors"], "email")
		f.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("invalid fields", func(t *testing.T) {
		f := newAuthFixture(t)
		body := `{"email":"not-an-email","password":"123","fullname":"A","phone_number":""}`

		rr := serve(http.MethodPost, "/auth/register", "/auth/register", body, 0, f.svc.Register)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		errs := decodeBody(t, rr)["errors"].(map[string]any)
		for _, field := range []string{"email", "password", "fullname", "phone_number"} {
			assert.Contains(t, errs, field)
		}
	})

	t.Run("mail failure discards pending entry", func(t *testing.T) {
		f := newAuthFixture(t)
		f.mock.ExpectQuery(existsQuery).WithArgs(pendingEmail).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		f.mailer.On("Send", mock.Anything, pendingEmail, mock.Anything, mock.Anything).
			Return(errors.New("smtp: connection refused"))

		rr := serve(http.MethodPost, "/auth/register", "/auth/register", registerBody, 0, f.svc.Register)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "connection refused")
		_, err := f.store.Get(context.Background(), pendingKeyEmail)
		assert.ErrorIs(t, err, kvstore.ErrNotFound)
	})
}

func TestAuthService_VerifyEmail(t *testing.T) {
	insertUser := regexp.QuoteMeta(`INSERT INTO users (email, fullname, phone_number, password) VALUES ($1, $2, $3, $4) RETURNING id`)

	t.Run("correct code creates the user", func(t *testing.T) {
		f := newAuthFixture(t)
		f.seedPending(t, "123456")
		f.mock.ExpectQuery(insertUser).
			WithArgs(pendingEmail, "Ali Valiyev", "+998901234567", "salt$hash").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

		rr := serve(http.MethodPost, "/auth/verify-email", "/auth/verify-email",
			`{"email":"new@example.com","otp":"123456"}`, 0, f.svc.VerifyEmail)

		assert.Equal(t, http.StatusCreated, rr.Code)
		assert.Equal(t, "User created successfully", decodeBody(t, rr)["message"])
		_, err := f.store.Get(context.Background(), pendingKeyEmail)
		assert.ErrorIs(t, err, kvstore.ErrNotFound)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("wrong code requires restart", func(t *testing.T) {
		f := newAuthFixture(t)
		f.seedPending(t, "123456")

		rr := serve(http.MethodPost, "/auth/verify-email", "/auth/verify-email",
			`{"email":"new@example.com","otp":"654321"}`, 0, f.svc.VerifyEmail)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, msgInvalidOTP, decodeBody(t, rr)["message"])

		rr = serve(http.MethodPost, "/auth/verify-email", "/auth/verify-email",
			`{"email":"new@example.com","otp":"123456"}`, 0, f.svc.VerifyEmail)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, msgInvalidOTP, decodeBody(t, rr)["message"])
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("missing pending entry looks like a wrong code", func(t *testing.T) {
		f := newAuthFixture(t)

		rr := serve(http.MethodPost, "/auth/verify-email", "/auth/verify-email",
			`{"email":"new@example.com","otp":"123456"}`, 0, f.svc.VerifyEmail)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, msgInvalidOTP, decodeBody(t, rr)["message"])
	})

	t.Run("code expires after the timeout", func(t *testing.T) {
		f := newAuthFixture(t)
		f.seedPending(t, "123456")
		f.now = f.now.Add(8*time.Minute + time.Second)

		rr := serve(http.MethodPost, "/auth/verify-email", "/auth/verify-email",
			`{"email":"new@example.com","otp":"123456"}`, 0, f.svc.VerifyEmail)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, msgInvalidOTP, decodeBody(t, rr)["message"])
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("race with another verification", func(t *testing.T) {
		f := newAuthFixture(t)
		f.seedPending(t, "123456")
		f.mock.ExpectQuery(insertUser).WillReturnError(&pq.Error{Code: "23505"})

		rr := serve(http.MethodPost, "/auth/verify-email", "/auth/verify-email",
			`{"email":"new@example.com","otp":"123456"}`, 0, f.svc.VerifyEmail)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, decodeBody(t, rr)["errors"], "email")
	})

	t.Run("race with failing pending cleanup", func(t *testing.T) {
		f := newAuthFixture(t)
		f.seedPending(t, "123456")
		f.svc.store = &failingStore{MemoryStore: f.store, deleteErr: errors.New("store unavailable")}
		f.mock.ExpectQuery(insertUser).WillReturnError(&pq.Error{Code: "23505"})

		rr := serve(http.MethodPost, "/auth/verify-email", "/auth/verify-email",
			`{"email":"new@example.com","otp":"123456"}`, 0, f.svc.VerifyEmail)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, decodeBody(t, rr)["errors"], "email")
		_, err := f.store.Get(context.Background(), pendingKeyEmail)
		assert.NoError(t, err)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})
}

func TestAuthService_Resend(t *testing.T) {
	f := newAuthFixture(t)
	f.seedPending(t, "111111")
	f.mailer.On("Send", mock.Anything, pendingEmail, mock.Anything, mock.Anything).Return(nil).Once()
	for i := 0; i < 2; i++ {
		f.mock.ExpectQuery(existsQuery).WithArgs(pendingEmail).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	}

	rr := serve(http.MethodPost, "/auth/resend", "/auth/resend", `{"email":"new@example.com"}`, 0, f.svc.Resend)
	assert.Equal(t, http.StatusOK, rr.Code)

	pending, err := f.svc.loadPending(context.Background(), pendingEmail)
	require.NoError(t, err)
	assert.Equal(t, "123456", pending.OTP)
	assert.Equal(t, "salt$hash", pending.PasswordHash)

	rr = serve(http.MethodPost, "/auth/resend", "/auth/resend", `{"email":"new@example.com"}`, 0, f.svc.Resend)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	f.mailer.AssertExpectations(t)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAuthService_ResendCooldownLookupFails(t *testing.T) {
	f := newAuthFixture(t)
	f.seedPending(t, "111111")
	f.svc.store = &failingStore{MemoryStore: f.store, getPrefix: "resend:", getErr: errors.New("store unavailable")}
	f.mock.ExpectQuery(existsQuery).WithArgs(pendingEmail).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	rr := serve(http.MethodPost, "/auth/resend", "/auth/resend", `{"email":"new@example.com"}`, 0, f.svc.Resend)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	f.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	pending, err := f.svc.loadPending(context.Background(), pendingEmail)
	require.NoError(t, err)
	assert.Equal(t, "111111", pending.OTP)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAuthService_ResendWithoutPending(t *testing.T) {
	f := newAuthFixture(t)
	f.mock.ExpectQuery(existsQuery).WithArgs(pendingEmail).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	rr := serve(http.MethodPost, "/auth/resend", "/auth/resend", `{"email":"new@example.com"}`, 0, f.svc.Resend)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAuthService_Login(t *testing.T) {
	loginQuery := `SELECT id, email, fullname, password FROM users WHERE email = \$1`
	hashed, err := auth.HashPassword("secret123", testArgon)
	require.NoError(t, err)

	t.Run("valid credentials", func(t *testing.T) {
		f := newAuthFixture(t)
		f.mock.ExpectQuery(loginQuery).WithArgs("user@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "fullname", "password"}).
				AddRow(7, "user@example.com", "Ali Valiyev", hashed))

		rr := serve(http.MethodPost, "/auth/login", "/auth/login",
			`{"email":"User@example.com","password":"secret123"}`, 0, f.svc.Login)

		require.Equal(t, http.StatusOK, rr.Code)
		var resp LoginResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, int64(7), resp.Data.User.ID)

		id, err := f.tokens.Parse(resp.Data.Token)
		require.NoError(t, err)
		assert.Equal(t, int64(7), id)
	})

	t.Run("wrong password", func(t *testing.T) {
		f := newAuthFixture(t)
		f.mock.ExpectQuery(loginQuery).WithArgs("user@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "fullname", "password"}).
				AddRow(7, "user@example.com", "Ali Valiyev", hashed))

		rr := serve(http.MethodPost, "/auth/login", "/auth/login",
			`{"email":"user@example.com","password":"wrong"}`, 0, f.svc.Login)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "Invalid email or password", decodeBody(t, rr)["message"])
	})

	t.Run("unknown email", func(t *testing.T) {
		f := newAuthFixture(t)
		f.mock.ExpectQuery(loginQuery).WithArgs("ghost@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "fullname", "password"}))

		rr := serve(http.MethodPost, "/auth/login", "/auth/login",
			`{"email":"ghost@example.com","password":"secret123"}`, 0, f.svc.Login)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "Invalid email or password", decodeBody(t, rr)["message"])
	})
}

func TestAuthService_Logout(t *testing.T) {
	f := newAuthFixture(t)
	token, err := f.tokens.Issue(7)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	f.svc.Logout(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	_, err = f.store.Get(context.Background(), auth.RevokedKey(token))
	assert.NoError(t, err)
}

func TestAuthService_Me(t *testing.T) {
	meQuery := `SELECT id, email, fullname, phone_number, created_at FROM users WHERE id = \$1`

	t.Run("returns profile", func(t *testing.T) {
		f := newAuthFixture(t)
		f.mock.ExpectQuery(meQuery).WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "fullname", "phone_number", "created_at"}).
				AddRow(7, "user@example.com", "Ali Valiyev", "+998901234567", testNow))

		rr := serve(http.MethodGet, "/auth/me", "/auth/me", "", 7, f.svc.Me)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.NotContains(t, rr.Body.String(), "password")
		user := decodeBody(t, rr)["data"].(map[string]any)["user"].(map[string]any)
		assert.Equal(t, "user@example.com", user["email"])
	})

	t.Run("unauthenticated", func(t *testing.T) {
		f := newAuthFixture(t)
		rr := serve(http.MethodGet, "/auth/me", "/auth/me", "", 0, f.svc.Me)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestGenerateOTP(t *testing.T) {
	code, err := generateOTP(6)
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9]{6}$`, code)
}
