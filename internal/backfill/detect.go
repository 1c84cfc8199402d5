package backfill

import (
	"time"

	"emlakindex/server/internal/models"
)

// monthRange returns the inclusive "YYYY-MM" keys between two dates, each
// truncated to its month.
func monthRange(start, end time.Time) []string {
	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)

	var keys []string
	for !cur.After(last) {
		keys = append(keys, cur.Format("2006-01"))
		cur = cur.AddDate(0, 1, 0)
	}
	return keys
}

// DetectMissingPeriods computes, for every location present in the
// observations, which months of the configured range have no observed value.
// Locations with full coverage are omitted; no observations at all yields an
// empty map, never an error. Results are computed fresh on every call.
func DetectMissingPeriods(obs []models.PriceObservation, cfg models.BackfillConfig) models.MissingPeriodMap {
	wanted := monthRange(cfg.StartDate, cfg.EndDate)

	observed := make(map[string]map[string]bool)
	for _, o := range obs {
		months, ok := observed[o.LocationCode]
		if !ok {
			months = make(map[string]bool)
			observed[o.LocationCode] = months
		}
		months[o.MonthKey()] = true
	}

	missing := make(models.MissingPeriodMap)
	for loc, months := range observed {
		var gaps []string
		for _, key := range wanted {
			if !months[key] {
				gaps = append(gaps, key)
			}
		}
		if len(gaps) > 0 {
			missing[loc] = gaps
		}
	}
	return missing
}
