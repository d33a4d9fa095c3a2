package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/debtbook/backend/internal/models"
)

var (
	ErrContactNotFound = errors.New("contact not found")
	ErrDebtNotFound    = errors.New("debt not found")
	ErrActiveDebts     = errors.New("contact has active debts")
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// debtFilter narrows the caller's debts. Conditions are ANDed onto
// "c.user_id = $1"; their placeholders start at $2.
type debtFilter struct {
	conds []string
	args  []any
}

func (f debtFilter) where(cond string, arg ...any) debtFilter {
	out := debtFilter{
		conds: append(append([]string{}, f.conds...), cond),
		args:  append(append([]any{}, f.args...), arg...),
	}
	return out
}

func (f debtFilter) clause() string {
	if len(f.conds) == 0 {
		return ""
	}
	return " AND " + strings.Join(f.conds, " AND ")
}

const debtSelect = `
	SELECT d.id, d.contact_id, c.fullname, d.debt_amount, d.description,
	       d.is_my_debt, d.is_paid_back, d.due_date, d.created_at
	FROM debts d
	JOIN contacts c ON c.id = d.contact_id
	WHERE c.user_id = $1`

func listDebts(ctx context.Context, q querier, userID int64, f debtFilter, orderBy string, p *page) ([]models.Debt, error) {
	query := debtSelect + f.clause() + " ORDER BY " + orderBy
	args := append([]any{userID}, f.args...)
	if p != nil {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, p.Limit, p.Offset)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query debts: %w", err)
	}
	defer rows.Close()

	debts := make([]models.Debt, 0)
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		debts = append(debts, d)
	}
	return debts, rows.Err()
}

func countDebts(ctx context.Context, q querier, userID int64, f debtFilter) (int, error) {
	query := `SELECT COUNT(*) FROM debts d JOIN contacts c ON c.id = d.contact_id WHERE c.user_id = $1` + f.clause()
	var total int
	if err := q.QueryRowContext(ctx, query, append([]any{userID}, f.args...)...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count debts: %w", err)
	}
	return total, nil
}

func getDebt(ctx context.Context, q querier, userID, debtID int64) (models.Debt, error) {
	debts, err := listDebts(ctx, q, userID, debtFilter{}.where("d.id = $2", debtID), "d.id", nil)
	if err != nil {
		return models.Debt{}, err
	}
	if len(debts) == 0 {
		return models.Debt{}, ErrDebtNotFound
	}
	return debts[0], nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDebt(row rowScanner) (models.Debt, error) {
	var d models.Debt
	var due sql.NullTime
	if err := row.Scan(&d.ID, &d.ContactID, &d.ContactName, &d.Amount, &d.Description,
		&d.IsMyDebt, &d.IsPaidBack, &due, &d.CreatedAt); err != nil {
		return models.Debt{}, fmt.Errorf("scan debt: %w", err)
	}
	if due.Valid {
		t := due.Time
		d.DueDate = &t
	}
	return d, nil
}

// contactName returns the contact's name if it belongs to userID.
func contactName(ctx context.Context, q querier, userID, contactID int64) (string, error) {
	var name string
	err := q.QueryRowContext(ctx, `SELECT fullname FROM contacts WHERE id = $1 AND user_id = $2`,
		contactID, userID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrContactNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load contact %d: %w", contactID, err)
	}
	return name, nil
}
