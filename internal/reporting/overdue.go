package reporting

import (
	"sort"
	"time"

	"github.com/debtbook/backend/internal/models"
)

// ListOverdue returns the unpaid debts due at or before now, earliest due
// date first. Debts sharing a due date keep ascending id order.
func (c Classifier) ListOverdue(debts []models.Debt, now time.Time) []models.DebtView {
	out := make([]models.DebtView, 0)
	for _, d := range debts {
		if d.IsPaidBack || d.DueDate == nil || d.DueDate.After(now) {
			continue
		}
		out = append(out, c.View(d, now))
	}

	sort.SliceStable(out, func(i, j int) bool {
		di, dj := *out[i].DueDate, *out[j].DueDate
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return out[i].ID < out[j].ID
	})

	return out
}
