// ABOUTME: Terminal dashboard statistics and rendering
// ABOUTME: Summarizes how raw contacts from each account aggregate into contacts
package viz

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/provider"
)

type DashboardStats struct {
	TotalContacts    int
	TotalRawContacts int

	// Contacts backed by more than one raw contact.
	MergedContacts int
	// Contacts whose members all come from a single account.
	SingleSourced int

	ByAccount []AccountStats

	KeepTogether int
	KeepSeparate int
}

type AccountStats struct {
	Account     string
	RawContacts int
}

func GenerateDashboardStats(ctx context.Context, src Source, opts provider.CallOptions) (*DashboardStats, error) {
	contacts, err := NewGraphGenerator(src, opts).contacts(ctx, nil)
	if err != nil {
		return nil, err
	}
	stats := &DashboardStats{TotalContacts: len(contacts)}

	perAccount := make(map[string]int)
	for _, c := range contacts {
		stats.TotalRawContacts += len(c.RawContacts)
		if len(c.RawContacts) > 1 {
			stats.MergedContacts++
		}
		accounts := make(map[string]bool)
		for _, r := range c.RawContacts {
			name := r.Account.String()
			perAccount[name]++
			accounts[name] = true
		}
		if len(accounts) == 1 {
			stats.SingleSourced++
		}
	}
	for name, n := range perAccount {
		stats.ByAccount = append(stats.ByAccount, AccountStats{Account: name, RawContacts: n})
	}
	sort.Slice(stats.ByAccount, func(i, j int) bool {
		a, b := stats.ByAccount[i], stats.ByAccount[j]
		if a.RawContacts != b.RawContacts {
			return a.RawContacts > b.RawContacts
		}
		return a.Account < b.Account
	})

	exceptions, err := src.ListAggregationExceptions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch exceptions: %w", err)
	}
	for _, e := range exceptions {
		switch e.Type {
		case models.ExceptionKeepTogether:
			stats.KeepTogether++
		case models.ExceptionKeepSeparate:
			stats.KeepSeparate++
		}
	}
	return stats, nil
}

func RenderDashboard(stats *DashboardStats) string {
	var out strings.Builder

	out.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	out.WriteString("  ROSTER DASHBOARD\n")
	out.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

	out.WriteString("ACCOUNTS\n")
	renderAccounts(&out, stats.ByAccount)
	out.WriteString("\n")

	out.WriteString("STATS\n")
	out.WriteString(fmt.Sprintf("  %d contacts from %d raw contacts\n", stats.TotalContacts, stats.TotalRawContacts))
	out.WriteString(fmt.Sprintf("  %d merged, %d single-sourced\n\n", stats.MergedContacts, stats.SingleSourced))

	if stats.KeepTogether > 0 || stats.KeepSeparate > 0 {
		out.WriteString("EXCEPTIONS\n")
		out.WriteString(fmt.Sprintf("  %d keep together, %d keep separate\n", stats.KeepTogether, stats.KeepSeparate))
	}

	return out.String()
}

func renderAccounts(out *strings.Builder, accounts []AccountStats) {
	maxCount := 1
	for _, a := range accounts {
		if a.RawContacts > maxCount {
			maxCount = a.RawContacts
		}
	}
	for _, a := range accounts {
		barLength := (a.RawContacts * 10) / maxCount
		bar := strings.Repeat("█", barLength) + strings.Repeat("░", 10-barLength)
		out.WriteString(fmt.Sprintf("  %-24s %s  %d\n", a.Account, bar, a.RawContacts))
	}
}
