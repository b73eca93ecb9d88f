package domain

import (
	"reflect"
	"testing"
	"time"
)

func customRange(start, end string) TimeFilter {
	return NewCustomTimeFilter(&start, &end)
}

func TestDeriveQuarterLevelUsesFullYear(t *testing.T) {
	filters := DefaultFilterState()
	crumbs := BreadcrumbTrail{Time: []Breadcrumb{{Value: "2024", Label: "2024"}}}
	path := DrillPath{Time: LevelQuarter, Location: LevelRegion}

	got := DeriveActiveFilters(filters, crumbs, path)

	want := customRange("2024-01-01", "2024-12-31")
	if !reflect.DeepEqual(got.TimeFilter, want) {
		t.Errorf("time filter = %+v, want %+v", got.TimeFilter, want)
	}
}

func TestDeriveMonthLevelQuarterRanges(t *testing.T) {
	now := time.Date(2023, time.May, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		crumbs []Breadcrumb
		want   TimeFilter
	}{
		{
			name:   "year and quarter crumbs",
			crumbs: []Breadcrumb{{Value: "2024"}, {Value: "Q3"}},
			want:   customRange("2024-07-01", "2024-09-30"),
		},
		{
			name:   "first quarter",
			crumbs: []Breadcrumb{{Value: "2024"}, {Value: "Q1"}},
			want:   customRange("2024-01-01", "2024-03-31"),
		},
		{
			name:   "second quarter",
			crumbs: []Breadcrumb{{Value: "2024"}, {Value: "Q2"}},
			want:   customRange("2024-04-01", "2024-06-30"),
		},
		{
			name:   "fourth quarter",
			crumbs: []Breadcrumb{{Value: "2021"}, {Value: "Q4"}},
			want:   customRange("2021-10-01", "2021-12-31"),
		},
		{
			name:   "year embedded in quarter label",
			crumbs: []Breadcrumb{{Value: "2022-Q3"}},
			want:   customRange("2022-07-01", "2022-09-30"),
		},
		{
			name:   "bare quarter falls back to current year",
			crumbs: []Breadcrumb{{Value: "Q2"}},
			want:   customRange("2023-04-01", "2023-06-30"),
		},
	}

	filters := DefaultFilterState()
	path := DrillPath{Time: LevelMonth, Location: LevelRegion}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := deriveActiveFiltersAt(filters, BreadcrumbTrail{Time: tt.crumbs}, path, now)
			if !reflect.DeepEqual(got.TimeFilter, tt.want) {
				t.Errorf("time filter = %+v, want %+v", got.TimeFilter, tt.want)
			}
		})
	}
}

func TestDeriveLeavesFilterWhenTrailUnusable(t *testing.T) {
	persisted := DefaultFilterState()
	persisted.TimeFilter = NewPresetTimeFilter(TimePresetLast5Years)

	tests := []struct {
		name   string
		crumbs BreadcrumbTrail
		path   DrillPath
	}{
		{
			name: "quarter level with no trail",
			path: DrillPath{Time: LevelQuarter, Location: LevelRegion},
		},
		{
			name:   "quarter level with non-year crumb",
			crumbs: BreadcrumbTrail{Time: []Breadcrumb{{Value: "recent"}}},
			path:   DrillPath{Time: LevelQuarter, Location: LevelRegion},
		},
		{
			name:   "month level with no quarter pattern",
			crumbs: BreadcrumbTrail{Time: []Breadcrumb{{Value: "2024"}, {Value: "July"}}},
			path:   DrillPath{Time: LevelMonth, Location: LevelRegion},
		},
		{
			name: "root level ignores trail",
			crumbs: BreadcrumbTrail{
				Time: []Breadcrumb{{Value: "2024"}},
			},
			path: DrillPath{Time: LevelYear, Location: LevelRegion},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveActiveFilters(persisted, tt.crumbs, tt.path)
			if !reflect.DeepEqual(got.TimeFilter, persisted.TimeFilter) {
				t.Errorf("time filter = %+v, want persisted %+v", got.TimeFilter, persisted.TimeFilter)
			}
		})
	}
}

func TestDeriveDistrictLevelOverridesSegments(t *testing.T) {
	persisted := DefaultFilterState()
	persisted.Segments = []string{"RCR", "OCR"}

	crumbs := BreadcrumbTrail{Location: []Breadcrumb{{Value: "CCR", Label: "Core Central"}}}
	path := DrillPath{Time: LevelYear, Location: LevelDistrict}

	got := DeriveActiveFilters(persisted, crumbs, path)
	if !reflect.DeepEqual(got.Segments, []string{"CCR"}) {
		t.Errorf("segments = %v, want [CCR]", got.Segments)
	}

	// Without a region crumb the persisted multi-select stands.
	got = DeriveActiveFilters(persisted, BreadcrumbTrail{}, path)
	if !reflect.DeepEqual(got.Segments, []string{"RCR", "OCR"}) {
		t.Errorf("segments = %v, want persisted selection", got.Segments)
	}
}

func TestDerivePassesOtherFieldsThrough(t *testing.T) {
	saleType := SaleTypeResale
	psfMin := 1200.0

	persisted := DefaultFilterState()
	persisted.Districts = []string{"D01", "D09"}
	persisted.BedroomTypes = []string{"2", "3"}
	persisted.SaleType = &saleType
	persisted.PSFRange = RangeFilter{Min: &psfMin}

	crumbs := BreadcrumbTrail{
		Time:     []Breadcrumb{{Value: "2024"}},
		Location: []Breadcrumb{{Value: "CCR"}},
	}
	path := DrillPath{Time: LevelQuarter, Location: LevelDistrict}

	got := DeriveActiveFilters(persisted, crumbs, path)

	if !reflect.DeepEqual(got.Districts, persisted.Districts) {
		t.Errorf("districts = %v, want %v", got.Districts, persisted.Districts)
	}
	if !reflect.DeepEqual(got.BedroomTypes, persisted.BedroomTypes) {
		t.Errorf("bedroom types = %v, want %v", got.BedroomTypes, persisted.BedroomTypes)
	}
	if got.SaleType == nil || *got.SaleType != saleType {
		t.Errorf("sale type = %v, want %v", got.SaleType, saleType)
	}
	if got.PSFRange.Min == nil || *got.PSFRange.Min != psfMin {
		t.Errorf("psf min = %v, want %v", got.PSFRange.Min, psfMin)
	}
}

func TestDeriveIsDeterministicAndPure(t *testing.T) {
	persisted := DefaultFilterState()
	persisted.Segments = []string{"RCR"}
	snapshot := persisted.Clone()

	crumbs := BreadcrumbTrail{
		Time:     []Breadcrumb{{Value: "2024"}, {Value: "Q3"}},
		Location: []Breadcrumb{{Value: "OCR"}},
	}
	path := DrillPath{Time: LevelMonth, Location: LevelDistrict}

	first := DeriveActiveFilters(persisted, crumbs, path)
	second := DeriveActiveFilters(persisted, crumbs, path)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated derivation differs:\n%+v\n%+v", first, second)
	}
	if !reflect.DeepEqual(persisted, snapshot) {
		t.Errorf("input mutated: %+v, want %+v", persisted, snapshot)
	}
}
