package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Debt is money owed between the owner of Contact and the contact itself.
// IsMyDebt is true when the owner owes the contact.
type Debt struct {
	ID          int64           `json:"id" db:"id"`
	ContactID   int64           `json:"contact_id" db:"contact_id"`
	ContactName string          `json:"contact_name" db:"fullname"`
	Amount      decimal.Decimal `json:"debt_amount" db:"debt_amount" swaggertype:"string" example:"150.00"`
	Description string          `json:"description" db:"description"`
	IsMyDebt    bool            `json:"is_my_debt" db:"is_my_debt"`
	IsPaidBack  bool            `json:"is_paid_back" db:"is_paid_back"`
	DueDate     *time.Time      `json:"due_date" db:"due_date"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// DebtView is a Debt as rendered by the reporting endpoints.
type DebtView struct {
	Debt
	IsOverdue    bool `json:"is_overdue"`
	DaysUntilDue *int `json:"days_until_due"`
}
