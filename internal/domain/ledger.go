package domain

// Read-side projections over a plan snapshot. All of these are pure: they
// never mutate the plan and are safe to call concurrently on a loaded
// document.

// OutstandingBalance sums the amounts of all unpaid installments.
func OutstandingBalance(p *InstallmentPlan) Money {
	balance := FromMinorUnits(0, p.TotalAmount.Scale())
	for i := range p.Rows {
		if !p.Rows[i].IsPaid {
			balance = balance.Add(p.Rows[i].Amount)
		}
	}
	return balance
}

// OverdueRows returns the unpaid installments due strictly before asOf,
// ordered by due date ascending.
func OverdueRows(p *InstallmentPlan, asOf Date) []InstallmentRow {
	var overdue []InstallmentRow
	for i := range p.Rows {
		if !p.Rows[i].IsPaid && p.Rows[i].DueDate.Before(asOf) {
			overdue = append(overdue, p.Rows[i])
		}
	}
	return overdue
}

// NextDue returns the index of the earliest unpaid installment due on or
// after asOf, or false when none remains.
func NextDue(p *InstallmentPlan, asOf Date) (int, bool) {
	for i := range p.Rows {
		if !p.Rows[i].IsPaid && !p.Rows[i].DueDate.Before(asOf) {
			return i, true
		}
	}
	return 0, false
}

// IsSettled reports whether every installment is paid and the plan was not
// cancelled.
func IsSettled(p *InstallmentPlan) bool {
	return p.Status() == PlanStatusSettled
}
