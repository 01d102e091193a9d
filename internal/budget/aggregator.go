package budget

import (
	"time"

	"github.com/shopspring/decimal"
)

// Summarize folds the budget and its non-deleted expenses into a Summary.
// Only approved expenses count as spend; Labor and Materials keep their own
// bucket and every other category lands in Other. TotalSpent is the persisted
// running total, ComputedSpent the re-summed approved expenses.
func Summarize(b ProjectBudget, projectName string, expenses []ExpenseLine) Summary {
	s := Summary{
		ProjectID:         b.ProjectID,
		ProjectName:       projectName,
		BudgetID:          b.ID,
		TotalBudget:       b.TotalBudget,
		TotalSpent:        b.SpentAmount,
		Remaining:         b.RemainingAmount(),
		PercentageUsed:    b.PercentageUsed().Round(2),
		WarningThreshold:  b.WarningThreshold,
		CriticalThreshold: b.CriticalThreshold,
		Labor:             CategorySpend{Budget: b.LaborBudget},
		Materials:         CategorySpend{Budget: b.MaterialBudget},
		Other:             CategorySpend{Budget: b.OtherBudget},
	}
	for _, e := range expenses {
		s.ExpenseCount++
		switch e.Status {
		case expensePending:
			s.PendingCount++
		case expenseRejected:
			s.RejectedCount++
		case expenseApproved:
			s.ApprovedCount++
			s.ComputedSpent = s.ComputedSpent.Add(e.Amount)
			switch e.Category {
			case categoryLabor:
				s.Labor.Spent = s.Labor.Spent.Add(e.Amount)
			case categoryMaterials:
				s.Materials.Spent = s.Materials.Spent.Add(e.Amount)
			default:
				s.Other.Spent = s.Other.Spent.Add(e.Amount)
			}
		}
	}
	s.Drift = s.ComputedSpent.Sub(s.TotalSpent)

	pct := b.PercentageUsed()
	s.HasWarningAlert = pct.GreaterThanOrEqual(b.WarningThreshold.Mul(hundred))
	s.HasCriticalAlert = pct.GreaterThanOrEqual(b.CriticalThreshold.Mul(hundred))
	s.HasExceededBudget = pct.GreaterThanOrEqual(hundred)
	return s
}

// UnknownSummary is returned for projects without a live budget.
func UnknownSummary(projectID int64) Summary {
	return Summary{ProjectID: projectID, ProjectName: UnknownProjectName}
}

// daysSince counts whole days elapsed since start.
func daysSince(start, now time.Time) int {
	if start.IsZero() || now.Before(start) {
		return 0
	}
	return int(now.Sub(start).Hours() / 24)
}

// burnRate is spent per whole day since the budget was created.
func burnRate(b ProjectBudget, now time.Time) decimal.Decimal {
	days := daysSince(b.CreatedAt, now)
	if days <= 0 {
		return decimal.Zero
	}
	return b.SpentAmount.Div(decimal.NewFromInt(int64(days))).Round(2)
}

// daysUntilExhausted is remaining/burnRate in whole days, nil when nothing
// remains or nothing is being spent.
func daysUntilExhausted(b ProjectBudget, now time.Time) *int {
	remaining := b.RemainingAmount()
	if !remaining.IsPositive() {
		return nil
	}
	days := daysSince(b.CreatedAt, now)
	if days <= 0 || !b.SpentAmount.IsPositive() {
		return nil
	}
	rate := b.SpentAmount.Div(decimal.NewFromInt(int64(days)))
	if !rate.IsPositive() {
		return nil
	}
	out := int(remaining.Div(rate).IntPart())
	return &out
}

// ForecastAt builds the forecast of b as of now.
func ForecastAt(b ProjectBudget, now time.Time) Forecast {
	return Forecast{
		ProjectID:            b.ProjectID,
		BurnRate:             burnRate(b, now),
		EstimatedDaysLeft:    daysUntilExhausted(b, now),
		DaysSinceBudgetStart: daysSince(b.CreatedAt, now),
	}
}
