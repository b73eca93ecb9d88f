package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var (
	yearPattern    = regexp.MustCompile(`^\d{4}$`)
	quarterPattern = regexp.MustCompile(`Q([1-4])`)
	leadingYear    = regexp.MustCompile(`^(\d{4})`)
)

// DeriveActiveFilters merges the persisted filters with drill context to
// produce the effective filter set queries run against. Persisted state is
// never mutated; drill selections override the overlapping dimensions on a
// copy.
//
// The selected entity deliberately plays no part here. It scopes detail
// lookups only and must not narrow aggregate queries.
func DeriveActiveFilters(filters FilterState, crumbs BreadcrumbTrail, path DrillPath) FilterState {
	return deriveActiveFiltersAt(filters, crumbs, path, time.Now())
}

// deriveActiveFiltersAt is DeriveActiveFilters with an injected clock. The
// clock only matters for the last-resort year fallback when a month-level
// trail carries no usable year.
func deriveActiveFiltersAt(filters FilterState, crumbs BreadcrumbTrail, path DrillPath, now time.Time) FilterState {
	active := filters.Clone()

	switch path.Time {
	case LevelQuarter:
		if r, ok := yearRange(crumbs.Time); ok {
			active.TimeFilter = r
		}
	case LevelMonth:
		if r, ok := quarterRange(crumbs.Time, now); ok {
			active.TimeFilter = r
		}
	}

	if path.Location == LevelDistrict && len(crumbs.Location) > 0 {
		// The first location crumb is the region that was descended
		// through. It replaces any manually picked market segments for
		// as long as the drill is active.
		active.Segments = []string{crumbs.Location[0].Value}
	}

	return active
}

// yearRange resolves a quarter-level time drill to the full year of the year
// crumb. Without a parseable year crumb the persisted time filter stands.
func yearRange(crumbs []Breadcrumb) (TimeFilter, bool) {
	if len(crumbs) == 0 {
		return TimeFilter{}, false
	}
	year := crumbs[0].Value
	if !yearPattern.MatchString(year) {
		return TimeFilter{}, false
	}
	start := year + "-01-01"
	end := year + "-12-31"
	return NewCustomTimeFilter(&start, &end), true
}

// quarterRange resolves a month-level time drill to the three months of the
// quarter crumb. The year comes from the first crumb when the trail has both
// a year and a quarter entry, else from a leading four-digit prefix on the
// quarter crumb, else from now.
func quarterRange(crumbs []Breadcrumb, now time.Time) (TimeFilter, bool) {
	if len(crumbs) == 0 {
		return TimeFilter{}, false
	}
	quarterCrumb := crumbs[len(crumbs)-1].Value
	m := quarterPattern.FindStringSubmatch(quarterCrumb)
	if m == nil {
		return TimeFilter{}, false
	}
	quarter, _ := strconv.Atoi(m[1])

	year := 0
	switch {
	case len(crumbs) >= 2 && yearPattern.MatchString(crumbs[0].Value):
		year, _ = strconv.Atoi(crumbs[0].Value)
	default:
		if ym := leadingYear.FindStringSubmatch(quarterCrumb); ym != nil {
			year, _ = strconv.Atoi(ym[1])
		} else {
			year = now.Year()
		}
	}

	startMonth := time.Month((quarter-1)*3 + 1)
	endMonth := startMonth + 2
	start := fmt.Sprintf("%04d-%02d-01", year, startMonth)
	// Day zero of the following month lands on the quarter's true last
	// day, so February stays correct in leap years.
	endDay := time.Date(year, endMonth+1, 0, 0, 0, 0, 0, time.UTC)
	end := endDay.Format("2006-01-02")
	return NewCustomTimeFilter(&start, &end), true
}
