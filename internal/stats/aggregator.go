// Package stats computes time-bucketed statistics purely from the current
// entity cache contents, on demand, with no caching of its own.
package stats

import (
	"time"

	"textile-sync/internal/models"
	"textile-sync/internal/store"
)

// CO2SavedPerKg is the environmental-impact factor: kilograms of CO2 avoided
// per kilogram of fabric diverted from waste by a sale.
const CO2SavedPerKg = 2.5

// GrowthMonths is the number of fixed month buckets, ending at the current
// month.
const GrowthMonths = 6

// Summary is the cross-cutting totals view. Records with unparseable dates
// still count here; only growth bucketing excludes them.
type Summary struct {
	ListingCount     int     `json:"listing_count"`
	AccountCount     int     `json:"account_count"`
	TransactionCount int     `json:"transaction_count"`
	TotalQuantityKg  float64 `json:"total_quantity_kg"`
	SoldQuantityKg   float64 `json:"sold_quantity_kg"`
	Revenue          float64 `json:"revenue"`
	PlatformFees     float64 `json:"platform_fees"`
	CO2SavedKg       float64 `json:"co2_saved_kg"`
}

// Summarize computes the totals over a store snapshot.
func Summarize(s *store.Store) Summary {
	var out Summary

	listings := store.Records[models.Listing](s, models.KindListing)
	out.ListingCount = len(listings)
	for _, l := range listings {
		out.TotalQuantityKg += l.Quantity
		if l.Status == models.ListingStatusSold {
			out.SoldQuantityKg += l.Quantity
		}
	}

	txs := store.Records[models.Transaction](s, models.KindTransaction)
	out.TransactionCount = len(txs)
	for _, t := range txs {
		out.Revenue += t.Amount
		out.PlatformFees += t.Commission
	}

	out.AccountCount = s.Len(models.KindAccount)
	out.CO2SavedKg = out.SoldQuantityKg * CO2SavedPerKg
	return out
}

// CategoryHistogram counts listings per fabric type.
func CategoryHistogram(s *store.Store) map[string]int {
	hist := make(map[string]int)
	for _, l := range store.Records[models.Listing](s, models.KindListing) {
		key := l.FabricType
		if key == "" {
			key = "Uncategorized"
		}
		hist[key]++
	}
	return hist
}

// PlatformFeePercent returns the configured platform fee, falling back to
// the canonical default when the settings singleton is absent.
func PlatformFeePercent(s *store.Store) float64 {
	for _, cfg := range store.Records[models.Settings](s, models.KindSettings) {
		if cfg.PlatformFeePercent > 0 {
			return cfg.PlatformFeePercent
		}
	}
	return models.DefaultPlatformFeePercent
}

// MonthStat is one fixed month bucket.
type MonthStat struct {
	Label       string  `json:"label"` // e.g. "2026-09"
	Revenue     float64 `json:"revenue"`
	NewAccounts int     `json:"new_accounts"`
	NewListings int     `json:"new_listings"`
}

// Growth holds month-over-month percentages comparing the current month
// bucket with the previous one.
type Growth struct {
	Months      []MonthStat `json:"months"` // oldest first, GrowthMonths long
	RevenuePct  float64     `json:"revenue_pct"`
	AccountsPct float64     `json:"accounts_pct"`
	ListingsPct float64     `json:"listings_pct"`
}

// MonthlyGrowth builds the fixed month buckets ending at now's calendar
// month and derives the month-over-month growth percentages. Bucket
// membership uses each record's persisted date string; a record with an
// unparseable date is excluded from bucketing.
func MonthlyGrowth(s *store.Store, now time.Time) Growth {
	months := make([]MonthStat, GrowthMonths)
	index := make(map[string]int, GrowthMonths)
	// Walk from the first of the month: AddDate on a day-31 anchor
	// normalizes (May 31 minus one month is "April 31", i.e. May 1) and
	// would collapse adjacent buckets.
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	for i := 0; i < GrowthMonths; i++ {
		m := first.AddDate(0, i-GrowthMonths+1, 0)
		label := m.Format("2006-01")
		months[i] = MonthStat{Label: label}
		index[label] = i
	}

	for _, t := range store.Records[models.Transaction](s, models.KindTransaction) {
		if i, ok := bucketOf(index, t.CreatedAt); ok {
			months[i].Revenue += t.Amount
		}
	}
	for _, a := range store.Records[models.Account](s, models.KindAccount) {
		if i, ok := bucketOf(index, a.JoinDate); ok {
			months[i].NewAccounts++
		}
	}
	for _, l := range store.Records[models.Listing](s, models.KindListing) {
		if i, ok := bucketOf(index, l.CreatedAt); ok {
			months[i].NewListings++
		}
	}

	cur, prev := months[GrowthMonths-1], months[GrowthMonths-2]
	return Growth{
		Months:      months,
		RevenuePct:  GrowthPercent(prev.Revenue, cur.Revenue),
		AccountsPct: GrowthPercent(float64(prev.NewAccounts), float64(cur.NewAccounts)),
		ListingsPct: GrowthPercent(float64(prev.NewListings), float64(cur.NewListings)),
	}
}

// GrowthPercent is (current-previous)/previous*100 with the documented edge
// cases: previous 0 and current 0 is 0%, previous 0 and current > 0 is 100%.
func GrowthPercent(previous, current float64) float64 {
	if previous == 0 {
		if current == 0 {
			return 0
		}
		return 100
	}
	return (current - previous) / previous * 100
}

func bucketOf(index map[string]int, date string) (int, bool) {
	t, ok := parseDate(date)
	if !ok {
		return 0, false
	}
	i, ok := index[t.Format("2006-01")]
	return i, ok
}

// parseDate accepts RFC 3339 and plain dates; anything else is unparseable.
func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
