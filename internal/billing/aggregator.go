package billing

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Aggregate groups entries by project. Each line bills its hours at the
// project's current rate; lines are ordered by project id.
func Aggregate(entries []BillableEntry) (items []LineItem, totalHours, totalAmount decimal.Decimal) {
	byProject := make(map[int64]*LineItem)
	for _, e := range entries {
		item, ok := byProject[e.ProjectID]
		if !ok {
			item = &LineItem{
				ProjectID:   e.ProjectID,
				ProjectName: e.ProjectName,
				HourlyRate:  e.HourlyRate,
			}
			byProject[e.ProjectID] = item
		}
		item.TotalHours = item.TotalHours.Add(e.Hours)
		item.EntryCount++
	}

	items = make([]LineItem, 0, len(byProject))
	for _, item := range byProject {
		item.TotalAmount = item.TotalHours.Mul(item.HourlyRate).Round(2)
		totalHours = totalHours.Add(item.TotalHours)
		totalAmount = totalAmount.Add(item.TotalAmount)
		items = append(items, *item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProjectID < items[j].ProjectID })
	return items, totalHours, totalAmount
}

// SumAmount totals hours × rate without building line items.
func SumAmount(entries []BillableEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Hours.Mul(e.HourlyRate))
	}
	return total.Round(2)
}
