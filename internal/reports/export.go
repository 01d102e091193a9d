package reports

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/shopspring/decimal"
)

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// WriteFinancialCSV serialises the financial report with a totals row.
func WriteFinancialCSV(w io.Writer, report FinancialReport) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Project ID", "Project", "Client", "Budget", "Spent", "Remaining", "Used %", "Billable Hours", "Billable Amount", "Approved Expenses"}); err != nil {
		return err
	}
	for _, row := range report.Rows {
		if err := writer.Write([]string{
			strconv.FormatInt(row.ProjectID, 10),
			row.ProjectName,
			row.ClientName,
			money(row.Budget),
			money(row.Spent),
			money(row.Remaining),
			money(row.PercentageUsed),
			row.BillableHours.String(),
			money(row.BillableAmount),
			money(row.ApprovedExpenses),
		}); err != nil {
			return err
		}
	}
	t := report.Totals
	if err := writer.Write([]string{"", "Total", "", money(t.Budget), money(t.Spent), money(t.Remaining), "", t.BillableHours.String(), money(t.BillableAmount), money(t.ApprovedExpenses)}); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// WriteProductivityCSV emits one row per developer.
func WriteProductivityCSV(w io.Writer, report ProductivityReport) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Developer", "Total Hours", "Approved Hours", "Pending Hours", "Rejected Hours", "Entries", "Projects", "Active Days", "Avg Hours/Day"}); err != nil {
		return err
	}
	for _, d := range report.Developers {
		if err := writer.Write([]string{
			d.DeveloperID,
			d.TotalHours.String(),
			d.ApprovedHours.String(),
			d.PendingHours.String(),
			d.RejectedHours.String(),
			strconv.Itoa(d.EntryCount),
			strconv.Itoa(d.ProjectCount),
			strconv.Itoa(d.ActiveDays),
			money(d.AvgHoursPerDay),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
