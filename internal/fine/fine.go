package fine

import "time"

// Calculator computes overdue penalties. Linear in whole days overdue;
// partial days round up.
type Calculator struct {
	dailyRate int64 // cents per day
}

func NewCalculator(dailyRate int64) *Calculator {
	return &Calculator{dailyRate: dailyRate}
}

// Amount returns the fine in cents for a loan due at dueAt and settled at
// settledAt. Zero when settled on or before the due date.
func (c *Calculator) Amount(dueAt, settledAt time.Time) int64 {
	if !settledAt.After(dueAt) {
		return 0
	}

	overdue := settledAt.Sub(dueAt)

	days := int64(overdue / (24 * time.Hour))
	if overdue%(24*time.Hour) != 0 {
		days++
	}

	return days * c.dailyRate
}
