package reporting

import (
	"github.com/debtbook/backend/internal/models"
	"github.com/shopspring/decimal"
)

type Summary struct {
	TotalIOwe         decimal.Decimal `json:"total_i_owe" swaggertype:"string" example:"250.00"`
	TotalTheyOwe      decimal.Decimal `json:"total_they_owe" swaggertype:"string" example:"80.50"`
	ActiveDebtsCount  int             `json:"active_debts_count" example:"3"`
	OverdueDebtsCount int             `json:"overdue_debts_count" example:"1"`
}

// Aggregate totals classified debts. Every debt lands in exactly one of the
// active/overdue counts, and its amount in exactly one of the two totals.
func Aggregate(views []models.DebtView) Summary {
	s := Summary{TotalIOwe: decimal.Zero, TotalTheyOwe: decimal.Zero}

	for _, v := range views {
		if v.IsOverdue {
			s.OverdueDebtsCount++
		} else {
			s.ActiveDebtsCount++
		}

		if v.IsMyDebt {
			s.TotalIOwe = s.TotalIOwe.Add(v.Amount)
		} else {
			s.TotalTheyOwe = s.TotalTheyOwe.Add(v.Amount)
		}
	}

	return s
}

// PaymentSummary totals debts that were paid back.
type PaymentSummary struct {
	TotalPaidByMe      decimal.Decimal `json:"total_paid_by_me" swaggertype:"string"`
	TotalPaidToMe      decimal.Decimal `json:"total_paid_to_me" swaggertype:"string"`
	TotalPaymentsCount int             `json:"total_payments_count"`
}

// SummarizePayments only counts debts with IsPaidBack set.
func SummarizePayments(debts []models.Debt) PaymentSummary {
	p := PaymentSummary{TotalPaidByMe: decimal.Zero, TotalPaidToMe: decimal.Zero}
	for _, d := range debts {
		if !d.IsPaidBack {
			continue
		}
		p.TotalPaymentsCount++
		if d.IsMyDebt {
			p.TotalPaidByMe = p.TotalPaidByMe.Add(d.Amount)
		} else {
			p.TotalPaidToMe = p.TotalPaidToMe.Add(d.Amount)
		}
	}
	return p
}
