package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pcm/internal/budget"
)

const (
	statusApproved  = "Approved"
	statusSubmitted = "Submitted"
	statusRejected  = "Rejected"
	statusInvoiced  = "Invoiced"
)

var hundred = decimal.NewFromInt(100)

func billable(status string) bool {
	return status == statusApproved || status == statusInvoiced
}

func percentage(spent, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	return spent.Div(total).Mul(hundred).Round(2)
}

// BuildFinancial joins budgets with billable time and approved expenses.
// Billable amounts use each project's current rate.
func BuildFinancial(filter FinancialFilter, projects []ProjectRow, entries []EntryRow, expenses map[int64]decimal.Decimal) FinancialReport {
	report := FinancialReport{Filter: filter, Rows: make([]FinancialRow, 0, len(projects))}

	hours := make(map[int64]decimal.Decimal)
	for _, e := range entries {
		if billable(e.Status) && filter.contains(e.WorkDate) {
			hours[e.ProjectID] = hours[e.ProjectID].Add(e.Hours)
		}
	}

	for _, p := range projects {
		if filter.ClientID > 0 && p.ClientID != filter.ClientID {
			continue
		}
		row := FinancialRow{
			ProjectID:        p.ProjectID,
			ProjectName:      p.ProjectName,
			ClientName:       p.ClientName,
			Budget:           p.TotalBudget,
			Spent:            p.SpentAmount,
			Remaining:        p.TotalBudget.Sub(p.SpentAmount),
			PercentageUsed:   percentage(p.SpentAmount, p.TotalBudget),
			BillableHours:    hours[p.ProjectID],
			BillableAmount:   hours[p.ProjectID].Mul(p.HourlyRate).Round(2),
			ApprovedExpenses: expenses[p.ProjectID],
		}
		report.Rows = append(report.Rows, row)

		report.Totals.Budget = report.Totals.Budget.Add(row.Budget)
		report.Totals.Spent = report.Totals.Spent.Add(row.Spent)
		report.Totals.Remaining = report.Totals.Remaining.Add(row.Remaining)
		report.Totals.BillableHours = report.Totals.BillableHours.Add(row.BillableHours)
		report.Totals.BillableAmount = report.Totals.BillableAmount.Add(row.BillableAmount)
		report.Totals.ApprovedExpenses = report.Totals.ApprovedExpenses.Add(row.ApprovedExpenses)
	}
	sort.Slice(report.Rows, func(i, j int) bool { return report.Rows[i].ProjectID < report.Rows[j].ProjectID })
	return report
}

// BuildProductivity rolls entries up per developer, busiest first.
func BuildProductivity(period Period, entries []EntryRow) ProductivityReport {
	type acc struct {
		row      DeveloperProductivity
		projects map[int64]struct{}
		days     map[time.Time]struct{}
	}
	byDev := make(map[string]*acc)
	report := ProductivityReport{Period: period, Developers: []DeveloperProductivity{}}

	for _, e := range entries {
		if !period.contains(e.WorkDate) {
			continue
		}
		a, ok := byDev[e.DeveloperID]
		if !ok {
			a = &acc{
				row:      DeveloperProductivity{DeveloperID: e.DeveloperID},
				projects: map[int64]struct{}{},
				days:     map[time.Time]struct{}{},
			}
			byDev[e.DeveloperID] = a
		}
		a.row.TotalHours = a.row.TotalHours.Add(e.Hours)
		a.row.EntryCount++
		switch {
		case billable(e.Status):
			a.row.ApprovedHours = a.row.ApprovedHours.Add(e.Hours)
		case e.Status == statusSubmitted:
			a.row.PendingHours = a.row.PendingHours.Add(e.Hours)
		case e.Status == statusRejected:
			a.row.RejectedHours = a.row.RejectedHours.Add(e.Hours)
		}
		a.projects[e.ProjectID] = struct{}{}
		a.days[e.WorkDate.Truncate(24*time.Hour)] = struct{}{}
		report.TotalHours = report.TotalHours.Add(e.Hours)
	}

	for _, a := range byDev {
		a.row.ProjectCount = len(a.projects)
		a.row.ActiveDays = len(a.days)
		if a.row.ActiveDays > 0 {
			a.row.AvgHoursPerDay = a.row.TotalHours.Div(decimal.NewFromInt(int64(a.row.ActiveDays))).Round(2)
		}
		report.Developers = append(report.Developers, a.row)
	}
	sort.Slice(report.Developers, func(i, j int) bool {
		a, b := report.Developers[i], report.Developers[j]
		if !a.TotalHours.Equal(b.TotalHours) {
			return a.TotalHours.GreaterThan(b.TotalHours)
		}
		return a.DeveloperID < b.DeveloperID
	})
	return report
}

// Band classifies a project's budget health.
func Band(p ProjectRow) string {
	if p.BudgetID == nil {
		return BandNoBudget
	}
	t, ok := budget.Evaluate(budget.ProjectBudget{
		TotalBudget:       p.TotalBudget,
		SpentAmount:       p.SpentAmount,
		WarningThreshold:  p.Warning,
		CriticalThreshold: p.Critical,
	})
	if !ok {
		return BandHealthy
	}
	return string(t)
}

// BuildProjectStatus reports health, open alerts and logged hours per project.
func BuildProjectStatus(projects []ProjectRow, entries []EntryRow, openAlerts map[int64]int) ProjectStatusReport {
	hours := make(map[int64]decimal.Decimal)
	for _, e := range entries {
		if e.Status != statusRejected {
			hours[e.ProjectID] = hours[e.ProjectID].Add(e.Hours)
		}
	}
	report := ProjectStatusReport{Projects: make([]ProjectStatusRow, 0, len(projects))}
	for _, p := range projects {
		report.Projects = append(report.Projects, ProjectStatusRow{
			ProjectID:      p.ProjectID,
			ProjectName:    p.ProjectName,
			Status:         p.ProjectStatus,
			TotalBudget:    p.TotalBudget,
			Spent:          p.SpentAmount,
			PercentageUsed: percentage(p.SpentAmount, p.TotalBudget),
			Band:           Band(p),
			OpenAlerts:     openAlerts[p.ProjectID],
			HoursLogged:    hours[p.ProjectID],
		})
	}
	sort.Slice(report.Projects, func(i, j int) bool { return report.Projects[i].ProjectID < report.Projects[j].ProjectID })
	return report
}

// BuildTimeEntries counts entries and hours per status and per project.
func BuildTimeEntries(filter TimeEntryFilter, entries []EntryRow) TimeEntryReport {
	report := TimeEntryReport{Filter: filter, ByStatus: []StatusBucket{}, ByProject: []ProjectBucket{}}
	byStatus := make(map[string]*StatusBucket)
	byProject := make(map[int64]*ProjectBucket)

	for _, e := range entries {
		if !filter.contains(e.WorkDate) {
			continue
		}
		if filter.ProjectID > 0 && e.ProjectID != filter.ProjectID {
			continue
		}
		if filter.DeveloperID != "" && e.DeveloperID != filter.DeveloperID {
			continue
		}
		sb, ok := byStatus[e.Status]
		if !ok {
			sb = &StatusBucket{Status: e.Status}
			byStatus[e.Status] = sb
		}
		sb.Count++
		sb.Hours = sb.Hours.Add(e.Hours)

		pb, ok := byProject[e.ProjectID]
		if !ok {
			pb = &ProjectBucket{ProjectID: e.ProjectID, ProjectName: e.ProjectName}
			byProject[e.ProjectID] = pb
		}
		pb.Count++
		pb.Hours = pb.Hours.Add(e.Hours)

		report.TotalCount++
		report.TotalHours = report.TotalHours.Add(e.Hours)
	}

	for _, sb := range byStatus {
		report.ByStatus = append(report.ByStatus, *sb)
	}
	for _, pb := range byProject {
		report.ByProject = append(report.ByProject, *pb)
	}
	sort.Slice(report.ByStatus, func(i, j int) bool { return report.ByStatus[i].Status < report.ByStatus[j].Status })
	sort.Slice(report.ByProject, func(i, j int) bool { return report.ByProject[i].ProjectID < report.ByProject[j].ProjectID })
	return report
}

// BuildClient summarises the client's projects and invoices.
func BuildClient(clientID int64, clientName string, period Period, projects []ProjectRow, entries []EntryRow, invoices InvoiceTotals) ClientReport {
	report := ClientReport{
		ClientID:      clientID,
		ClientName:    clientName,
		Period:        period,
		Projects:      []ClientProject{},
		InvoiceCount:  invoices.Count,
		TotalInvoiced: invoices.Total,
	}
	hours := make(map[int64]decimal.Decimal)
	for _, e := range entries {
		if billable(e.Status) && period.contains(e.WorkDate) {
			hours[e.ProjectID] = hours[e.ProjectID].Add(e.Hours)
		}
	}
	for _, p := range projects {
		if p.ClientID != clientID {
			continue
		}
		row := ClientProject{
			ProjectID:      p.ProjectID,
			ProjectName:    p.ProjectName,
			Hours:          hours[p.ProjectID],
			BillableAmount: hours[p.ProjectID].Mul(p.HourlyRate).Round(2),
		}
		report.Projects = append(report.Projects, row)
		report.TotalHours = report.TotalHours.Add(row.Hours)
		report.TotalBillable = report.TotalBillable.Add(row.BillableAmount)
	}
	sort.Slice(report.Projects, func(i, j int) bool { return report.Projects[i].ProjectID < report.Projects[j].ProjectID })
	return report
}
