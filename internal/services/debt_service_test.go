package services

import (
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/debtbook/backend/internal/reporting"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const contactLookup = `SELECT fullname FROM contacts WHERE id = \$1 AND user_id = \$2`

func newDebtService(t *testing.T) (*DebtService, sqlmock.Sqlmock) {
	db, mock := newMockDB(t)
	svc := NewDebtService(db, reporting.NewClassifier(reporting.SignedDays))
	svc.now = func() time.Time { return testNow }
	return svc, mock
}

func TestDebtService_CreateDebt(t *testing.T) {
	insert := regexp.QuoteMeta(`INSERT INTO debts (contact_id, debt_amount, description, is_my_debt, due_date)`)

	t.Run("valid debt", func(t *testing.T) {
		svc, mock := newDebtService(t)
		mock.ExpectQuery(contactLookup).WithArgs(int64(7), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"fullname"}).AddRow("Bobur Karimov"))
		mock.ExpectQuery(insert).
			WithArgs(int64(7), "150.50", "Lunch", true, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(12, testNow))

		rr := serve(http.MethodPost, "/debts", "/debts",
			`{"contact":7,"debt_amount":"150.5","description":"Lunch","is_my_debt":true,"due_date":"2026-04-01T00:00:00Z"}`,
			1, svc.CreateDebt)

		require.Equal(t, http.StatusCreated, rr.Code)
		assert.JSONEq(t,
			`{"success":true,"data":{"user":{"id":12,"contact_name":"Bobur Karimov","description":"Lunch"}}}`,
			rr.Body.String())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("numeric amount without due date", func(t *testing.T) {
		svc, mock := newDebtService(t)
		mock.ExpectQuery(contactLookup).WithArgs(int64(7), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"fullname"}).AddRow("Bobur Karimov"))
		mock.ExpectQuery(insert).
			WithArgs(int64(7), "0.00", "", false, nil).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(13, testNow))

		rr := serve(http.MethodPost, "/debts", "/debts",
			`{"contact":7,"debt_amount":0,"is_my_debt":false}`, 1, svc.CreateDebt)

		assert.Equal(t, http.StatusCreated, rr.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	invalid := []struct {
		name  string
		body  string
		field string
	}{
		{"negative amount", `{"contact":7,"debt_amount":"-1","is_my_debt":true}`, "debt_amount"},
		{"too many decimals", `{"contact":7,"debt_amount":"1.005","is_my_debt":true}`, "debt_amount"},
		{"tiny exponent", `{"contact":7,"debt_amount":"1e-400000000","is_my_debt":true}`, "debt_amount"},
		{"huge exponent", `{"contact":7,"debt_amount":"1e2000000000","is_my_debt":true}`, "debt_amount"},
		{"above column maximum", `{"contact":7,"debt_amount":"1000000000000.00","is_my_debt":true}`, "debt_amount"},
		{"missing amount", `{"contact":7,"is_my_debt":true}`, "debt_amount"},
		{"missing direction", `{"contact":7,"debt_amount":"10"}`, "is_my_debt"},
		{"missing contact", `{"debt_amount":"10","is_my_debt":true}`, "contact"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock := newDebtService(t)

			rr := serve(http.MethodPost, "/debts", "/debts", tt.body, 1, svc.CreateDebt)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, decodeBody(t, rr)["errors"], tt.field)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}

	t.Run("contact of another user", func(t *testing.T) {
		svc, mock := newDebtService(t)
		mock.ExpectQuery(contactLookup).WithArgs(int64(7), int64(2)).
			WillReturnRows(sqlmock.NewRows([]string{"fullname"}))

		rr := serve(http.MethodPost, "/debts", "/debts",
			`{"contact":7,"debt_amount":"10","is_my_debt":true}`, 2, svc.CreateDebt)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, decodeBody(t, rr)["errors"], "contact")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCheckAmount(t *testing.T) {
	assert.Empty(t, checkAmount(decimal.RequireFromString("0")))
	assert.Empty(t, checkAmount(decimal.RequireFromString("12.30")))
	assert.NotEmpty(t, checkAmount(decimal.RequireFromString("-0.01")))
	assert.NotEmpty(t, checkAmount(decimal.RequireFromString("0.001")))

	assert.Empty(t, checkAmount(decimal.RequireFromString("999999999999.99")))
	assert.Empty(t, checkAmount(decimal.RequireFromString("1.5e1")))
	assert.NotEmpty(t, checkAmount(decimal.RequireFromString("1000000000000.00")))
	assert.NotEmpty(t, checkAmount(decimal.RequireFromString("1e-400000000")))
	assert.NotEmpty(t, checkAmount(decimal.RequireFromString("1e2000000000")))
	assert.NotEmpty(t, checkAmount(decimal.RequireFromString("-1e2000000000")))
}

func TestDebtService_Summary(t *testing.T) {
	svc, mock := newDebtService(t)

	mock.ExpectQuery(`WHERE c.user_id = \$1 ORDER BY d.id`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(debtColumns).
			AddRow(1, 7, "Bobur", "100.00", "", true, false, days(-1), testNow).
			AddRow(2, 7, "Bobur", "50.00", "", false, true, days(-1), testNow).
			AddRow(3, 8, "Aziz", "20.25", "", true, false, nil, testNow).
			AddRow(4, 8, "Aziz", "0.10", "", false, false, days(3), testNow))

	rr := serve(http.MethodGet, "/debts/summary", "/debts/summary", "", 1, svc.Summary)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t,
		`{"total_i_owe":"120.25","total_they_owe":"50.1","active_debts_count":3,"overdue_debts_count":1}`,
		rr.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDebtService_Summary_NoDebts(t *testing.T) {
	svc, mock := newDebtService(t)
	mock.ExpectQuery(`FROM debts d`).WillReturnRows(sqlmock.NewRows(debtColumns))

	rr := serve(http.MethodGet, "/debts/summary", "/debts/summary", "", 1, svc.Summary)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t,
		`{"total_i_owe":"0","total_they_owe":"0","active_debts_count":0,"overdue_debts_count":0}`,
		rr.Body.String())
}

func TestDebtService_Overdue(t *testing.T) {
	svc, mock := newDebtService(t)

	for range 2 {
		mock.ExpectQuery(`WHERE c.user_id = \$1 AND d.is_paid_back = FALSE AND d.due_date <= \$2 ORDER BY d.due_date, d.id`).
			WithArgs(int64(1), testNow).
			WillReturnRows(sqlmock.NewRows(debtColumns).
				AddRow(5, 7, "Bobur", "10.00", "", true, false, days(-3), testNow).
				AddRow(2, 7, "Bobur", "20.00", "", false, false, days(-3), testNow).
				AddRow(9, 8, "Aziz", "30.00", "", true, false, testNow, testNow))
	}

	for _, method := range []string{http.MethodPost, http.MethodGet} {
		rr := serve(method, "/debts/overdue", "/debts/overdue", "", 1, svc.Overdue)

		require.Equal(t, http.StatusOK, rr.Code)
		debts := decodeBody(t, rr)["data"].(map[string]any)["debts"].([]any)
		require.Len(t, debts, 3)

		var ids []float64
		for _, d := range debts {
			ids = append(ids, d.(map[string]any)["id"].(float64))
		}
		assert.Equal(t, []float64{2, 5, 9}, ids)

		first := debts[0].(map[string]any)
		assert.Equal(t, true, first["is_overdue"])
		assert.Equal(t, float64(-3), first["days_until_due"])

		// due exactly now is listed but not yet overdue
		last := debts[2].(map[string]any)
		assert.Equal(t, false, last["is_overdue"])
		assert.Equal(t, float64(0), last["days_until_due"])
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDebtService_MyDebts(t *testing.T) {
	svc, mock := newDebtService(t)

	mock.ExpectQuery(`WHERE c.user_id = \$1 AND d.is_my_debt = TRUE ORDER BY d.created_at DESC, d.id DESC`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(debtColumns).
			AddRow(3, 7, "Bobur", "10.00", "Taxi", true, false, nil, testNow))

	rr := serve(http.MethodGet, "/my-debts", "/my-debts", "", 1, svc.MyDebts)

	require.Equal(t, http.StatusOK, rr.Code)
	debts := decodeBody(t, rr)["data"].(map[string]any)["debts"].([]any)
	require.Len(t, debts, 1)
	d := debts[0].(map[string]any)
	assert.Equal(t, "Bobur", d["contact_name"])
	assert.Nil(t, d["days_until_due"])
	assert.Nil(t, d["due_date"])
	assert.Equal(t, false, d["is_overdue"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDebtService_ListDebts(t *testing.T) {
	svc, mock := newDebtService(t)

	mock.ExpectQuery(`WHERE c.user_id = \$1 ORDER BY d.created_at DESC, d.id DESC`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(debtColumns).
			AddRow(3, 7, "Bobur", "10.00", "", true, false, days(2), testNow))

	rr := serve(http.MethodGet, "/debts", "/debts", "", 1, svc.ListDebts)

	require.Equal(t, http.StatusOK, rr.Code)
	data := decodeBody(t, rr)["data"].(map[string]any)
	assert.Len(t, data["debts"], 1)
	assert.Equal(t, float64(1), data["summary"].(map[string]any)["active_debts_count"])
}

func TestDebtService_GetDebt(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		svc, mock := newDebtService(t)
		mock.ExpectQuery(`WHERE c.user_id = \$1 AND d.id = \$2`).
			WithArgs(int64(1), int64(3)).
			WillReturnRows(sqlmock.NewRows(debtColumns).
				AddRow(3, 7, "Bobur", "10.00", "", true, false, days(2), testNow))

		rr := serve(http.MethodGet, "/debts/{id:[0-9]+}", "/debts/3", "", 1, svc.GetDebt)

		require.Equal(t, http.StatusOK, rr.Code)
		debt := decodeBody(t, rr)["data"].(map[string]any)["debt"].(map[string]any)
		assert.Equal(t, float64(2), debt["days_until_due"])
	})

	t.Run("other user's debt", func(t *testing.T) {
		svc, mock := newDebtService(t)
		mock.ExpectQuery(`WHERE c.user_id = \$1 AND d.id = \$2`).
			WithArgs(int64(2), int64(3)).
			WillReturnRows(sqlmock.NewRows(debtColumns))

		rr := serve(http.MethodGet, "/debts/{id:[0-9]+}", "/debts/3", "", 2, svc.GetDebt)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestDebtService_MarkPaid(t *testing.T) {
	update := `UPDATE debts d SET is_paid_back = TRUE FROM contacts c WHERE d.id = \$1 AND c.id = d.contact_id AND c.user_id = \$2 RETURNING d.id`

	t.Run("marks the debt paid", func(t *testing.T) {
		svc, mock := newDebtService(t)
		mock.ExpectQuery(update).WithArgs(int64(3), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
		mock.ExpectQuery(`AND d.id = \$2`).WithArgs(int64(1), int64(3)).
			WillReturnRows(sqlmock.NewRows(debtColumns).
				AddRow(3, 7, "Bobur", "10.00", "", true, true, days(-2), testNow))

		rr := serve(http.MethodPost, "/debts/{id:[0-9]+}/pay", "/debts/3/pay", "", 1, svc.MarkPaid)

		require.Equal(t, http.StatusOK, rr.Code)
		debt := decodeBody(t, rr)["data"].(map[string]any)["debt"].(map[string]any)
		assert.Equal(t, true, debt["is_paid_back"])
		assert.Equal(t, false, debt["is_overdue"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown debt", func(t *testing.T) {
		svc, mock := newDebtService(t)
		mock.ExpectQuery(update).WithArgs(int64(3), int64(2)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		rr := serve(http.MethodPost, "/debts/{id:[0-9]+}/pay", "/debts/3/pay", "", 2, svc.MarkPaid)

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
