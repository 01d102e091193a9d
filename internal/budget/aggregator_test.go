package budget

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSummarizePartitionsApprovedSpend(t *testing.T) {
	b := budgetWith("1000", "180")
	b.LaborBudget = decimal.NewNullDecimal(decimal.RequireFromString("500"))
	expenses := []ExpenseLine{
		{ID: 1, Category: "Labor", Status: "Approved", Amount: decimal.RequireFromString("100")},
		{ID: 2, Category: "Materials", Status: "Approved", Amount: decimal.RequireFromString("50")},
		{ID: 3, Category: "Travel", Status: "Approved", Amount: decimal.RequireFromString("30")},
		{ID: 4, Category: "Labor", Status: "Pending", Amount: decimal.RequireFromString("20")},
		{ID: 5, Category: "Software", Status: "Rejected", Amount: decimal.RequireFromString("10")},
	}

	s := Summarize(b, "Apollo", expenses)

	require.Equal(t, "Apollo", s.ProjectName)
	require.True(t, s.TotalSpent.Equal(s.ComputedSpent))
	require.True(t, s.Drift.IsZero())
	require.Equal(t, "820", s.Remaining.String())
	require.Equal(t, "18", s.PercentageUsed.String())
	require.Equal(t, "100", s.Labor.Spent.String())
	require.Equal(t, "500", s.Labor.Budget.Decimal.String())
	require.Equal(t, "50", s.Materials.Spent.String())
	require.False(t, s.Materials.Budget.Valid)
	require.Equal(t, "30", s.Other.Spent.String())
	require.Equal(t, 5, s.ExpenseCount)
	require.Equal(t, 3, s.ApprovedCount)
	require.Equal(t, 1, s.PendingCount)
	require.Equal(t, 1, s.RejectedCount)
	require.False(t, s.HasWarningAlert)
}

func TestSummarizeFlags(t *testing.T) {
	s := Summarize(budgetWith("1000", "900"), "Apollo", nil)
	require.True(t, s.HasWarningAlert)
	require.True(t, s.HasCriticalAlert)
	require.False(t, s.HasExceededBudget)

	s = Summarize(budgetWith("1000", "1000"), "Apollo", nil)
	require.True(t, s.HasExceededBudget)
}

func TestSummarizeReportsDrift(t *testing.T) {
	expenses := []ExpenseLine{{ID: 1, Category: "Labor", Status: "Approved", Amount: decimal.RequireFromString("250")}}
	s := Summarize(budgetWith("1000", "200"), "Apollo", expenses)
	require.Equal(t, "50", s.Drift.String())
}

func TestUnknownSummary(t *testing.T) {
	s := UnknownSummary(42)
	require.Equal(t, int64(42), s.ProjectID)
	require.Equal(t, UnknownProjectName, s.ProjectName)
	require.True(t, s.TotalBudget.IsZero())
	require.Zero(t, s.ExpenseCount)
}

func TestForecastAt(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := budgetWith("5000", "1000")
	b.CreatedAt = created

	f := ForecastAt(b, created.Add(10*24*time.Hour+3*time.Hour))
	require.Equal(t, 10, f.DaysSinceBudgetStart)
	require.Equal(t, "100", f.BurnRate.String())
	require.NotNil(t, f.EstimatedDaysLeft)
	require.Equal(t, 40, *f.EstimatedDaysLeft)

	sameDay := ForecastAt(b, created.Add(5*time.Hour))
	require.True(t, sameDay.BurnRate.IsZero())
	require.Nil(t, sameDay.EstimatedDaysLeft)

	spent := budgetWith("1000", "1200")
	spent.CreatedAt = created
	require.Nil(t, ForecastAt(spent, created.Add(48*time.Hour)).EstimatedDaysLeft)
}

func TestForecastFloorsDaysLeft(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := budgetWith("1000", "300")
	b.CreatedAt = created

	f := ForecastAt(b, created.Add(7*24*time.Hour))
	require.Equal(t, "42.86", f.BurnRate.String())
	require.Equal(t, 16, *f.EstimatedDaysLeft)
}
