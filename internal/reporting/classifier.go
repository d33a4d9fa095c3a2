// Package reporting classifies debts against a point in time and folds them
// into the totals shown on the summary, overdue and per-contact endpoints.
package reporting

import (
	"fmt"
	"time"

	"github.com/debtbook/backend/internal/models"
)

// DayPolicy decides how negative day counts are reported.
type DayPolicy string

const (
	// SignedDays reports past due dates as negative day counts.
	SignedDays DayPolicy = "signed"
	// ClampToZero floors negative day counts to zero.
	ClampToZero DayPolicy = "clamp_to_zero"
)

const day = 24 * time.Hour

// ParseDayPolicy accepts the configured policy name. An empty name selects SignedDays.
func ParseDayPolicy(name string) (DayPolicy, error) {
	switch DayPolicy(name) {
	case "", SignedDays:
		return SignedDays, nil
	case ClampToZero:
		return ClampToZero, nil
	default:
		return "", fmt.Errorf("unknown days-until-due policy %q", name)
	}
}

// Classification is the time-dependent view of a debt.
type Classification struct {
	IsOverdue    bool
	DaysUntilDue *int
}

type Classifier struct {
	Policy DayPolicy
}

func NewClassifier(policy DayPolicy) Classifier {
	return Classifier{Policy: policy}
}

// Classify is pure: the result depends only on d and now.
func (c Classifier) Classify(d models.Debt, now time.Time) Classification {
	if d.DueDate == nil {
		return Classification{}
	}

	days := DaysBetween(now, *d.DueDate)
	if c.Policy == ClampToZero && days < 0 {
		days = 0
	}

	return Classification{
		IsOverdue:    !d.IsPaidBack && d.DueDate.Before(now),
		DaysUntilDue: &days,
	}
}

// View renders d together with its classification.
func (c Classifier) View(d models.Debt, now time.Time) models.DebtView {
	cl := c.Classify(d, now)
	return models.DebtView{Debt: d, IsOverdue: cl.IsOverdue, DaysUntilDue: cl.DaysUntilDue}
}

// Views classifies every debt, keeping input order.
func (c Classifier) Views(debts []models.Debt, now time.Time) []models.DebtView {
	views := make([]models.DebtView, 0, len(debts))
	for _, d := range debts {
		views = append(views, c.View(d, now))
	}
	return views
}

// DaysBetween returns the whole days from now until due, rounded toward
// negative infinity: one hour past due is -1, one hour before due is 0.
func DaysBetween(now, due time.Time) int {
	delta := due.Sub(now)
	days := int(delta / day)
	if delta < 0 && delta%day != 0 {
		days--
	}
	return days
}
