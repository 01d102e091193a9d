package budget

import (
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var amountPrinter = message.NewPrinter(language.English)

// Evaluate maps the budget's percentage used onto an alert band. Bands are
// checked from Exceeded down to Warning and the first match wins. Budgets
// without a positive total never raise alerts.
func Evaluate(b ProjectBudget) (AlertType, bool) {
	if !b.TotalBudget.IsPositive() {
		return "", false
	}
	pct := b.PercentageUsed()
	switch {
	case pct.GreaterThanOrEqual(hundred):
		return AlertExceeded, true
	case pct.GreaterThanOrEqual(b.CriticalThreshold.Mul(hundred)):
		return AlertCritical, true
	case pct.GreaterThanOrEqual(b.WarningThreshold.Mul(hundred)):
		return AlertWarning, true
	default:
		return "", false
	}
}

// ThresholdAmount is the spend level at which the band starts.
func ThresholdAmount(b ProjectBudget, t AlertType) decimal.Decimal {
	switch t {
	case AlertWarning:
		return b.TotalBudget.Mul(b.WarningThreshold).Round(2)
	case AlertCritical:
		return b.TotalBudget.Mul(b.CriticalThreshold).Round(2)
	default:
		return b.TotalBudget
	}
}

// NewAlert builds an unacknowledged alert for the band.
func NewAlert(b ProjectBudget, t AlertType, now time.Time) BudgetAlert {
	pct := b.PercentageUsed()
	return BudgetAlert{
		ProjectBudgetID: b.ID,
		ProjectID:       b.ProjectID,
		AlertType:       t,
		ThresholdAmount: ThresholdAmount(b, t),
		CurrentAmount:   b.SpentAmount,
		PercentageUsed:  pct.Round(2),
		Message:         AlertMessage(t, pct, b.SpentAmount, b.TotalBudget),
		CreatedAt:       now,
	}
}

// AlertMessage renders the human readable alert text,
// e.g. "Budget warning: 76.0% of budget used (7,600.00 of 10,000.00)".
func AlertMessage(t AlertType, pct, spent, total decimal.Decimal) string {
	label := "warning"
	switch t {
	case AlertCritical:
		label = "critical"
	case AlertExceeded:
		label = "exceeded"
	}
	return amountPrinter.Sprintf("Budget %s: %s%% of budget used (%.2f of %.2f)",
		label, pct.StringFixed(1), spent.InexactFloat64(), total.InexactFloat64())
}
