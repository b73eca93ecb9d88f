package domain

import (
	"reflect"
	"testing"
)

func TestBuildAPIParamsEmptyStateDefaults(t *testing.T) {
	state := DefaultFilterState()

	got := BuildAPIParams(state, state, FactFilter{}, nil, ParamOptions{})

	want := map[string]string{"timeframe": "last12Months"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("params = %v, want %v", got, want)
	}
}

func TestBuildAPIParamsTimeVariantsMutuallyExclusive(t *testing.T) {
	start := "2024-01-01"
	end := "2024-06-30"

	tests := []struct {
		name   string
		filter TimeFilter
		want   map[string]string
	}{
		{
			name:   "preset emits timeframe only",
			filter: NewPresetTimeFilter(TimePresetLast2Years),
			want:   map[string]string{"timeframe": "last2Years"},
		},
		{
			name:   "custom emits both dates",
			filter: NewCustomTimeFilter(&start, &end),
			want:   map[string]string{"dateFrom": "2024-01-01", "dateTo": "2024-06-30"},
		},
		{
			name:   "custom with open end emits one date",
			filter: NewCustomTimeFilter(&start, nil),
			want:   map[string]string{"dateFrom": "2024-01-01"},
		},
		{
			name:   "custom fully open emits nothing",
			filter: NewCustomTimeFilter(nil, nil),
			want:   map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := DefaultFilterState()
			state.TimeFilter = tt.filter

			got := BuildAPIParams(state, state, FactFilter{}, nil, ParamOptions{})
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("params = %v, want %v", got, tt.want)
			}

			_, hasTimeframe := got["timeframe"]
			_, hasFrom := got["dateFrom"]
			_, hasTo := got["dateTo"]
			if hasTimeframe && (hasFrom || hasTo) {
				t.Error("output mixes timeframe with explicit dates")
			}
		})
	}
}

func TestBuildAPIParamsJoinsListDimensions(t *testing.T) {
	state := DefaultFilterState()
	state.Districts = []string{"D01", "D09", "D15"}
	state.BedroomTypes = []string{"2", "3"}
	state.Segments = []string{"CCR"}

	got := BuildAPIParams(state, state, FactFilter{}, nil, ParamOptions{})

	if got[ParamDistrict] != "D01,D09,D15" {
		t.Errorf("district = %q, want comma-joined values", got[ParamDistrict])
	}
	if got[ParamBedroomType] != "2,3" {
		t.Errorf("bedroomType = %q, want 2,3", got[ParamBedroomType])
	}
	if got[ParamSegment] != "CCR" {
		t.Errorf("segment = %q, want CCR", got[ParamSegment])
	}
}

func TestBuildAPIParamsExcludeOwnDimension(t *testing.T) {
	state := DefaultFilterState()
	state.Districts = []string{"D01", "D09"}
	state.BedroomTypes = []string{"3"}

	got := BuildAPIParams(state, state, FactFilter{}, nil, ParamOptions{ExcludeOwnDimension: ParamDistrict})

	if _, ok := got[ParamDistrict]; ok {
		t.Errorf("district emitted despite exclusion: %q", got[ParamDistrict])
	}
	if got[ParamBedroomType] != "3" {
		t.Errorf("bedroomType = %q, want unaffected dimension to survive", got[ParamBedroomType])
	}
}

func TestBuildAPIParamsExcludeLocationDrill(t *testing.T) {
	persisted := DefaultFilterState()
	persisted.Segments = []string{"RCR", "OCR"}
	persisted.Districts = []string{"D05"}

	active := persisted.Clone()
	active.Segments = []string{"CCR"}
	active.Districts = []string{"D09"}
	active.BedroomTypes = []string{"4"}

	got := BuildAPIParams(active, persisted, FactFilter{}, nil, ParamOptions{ExcludeLocationDrill: true})

	if got[ParamSegment] != "RCR,OCR" {
		t.Errorf("segment = %q, want persisted RCR,OCR", got[ParamSegment])
	}
	if got[ParamDistrict] != "D05" {
		t.Errorf("district = %q, want persisted D05", got[ParamDistrict])
	}
	if got[ParamBedroomType] != "4" {
		t.Errorf("bedroomType = %q, want active value, drill exclusion is location-only", got[ParamBedroomType])
	}
}

func TestBuildAPIParamsScalarsAndRanges(t *testing.T) {
	saleType := SaleTypeNew
	tenure := TenureFreehold
	bucket := AgeBucket6To10
	project := "The Landmark"
	psfMin, psfMax := 1500.5, 2200.0
	sizeMax := 1200.0
	ageMin := 5.0

	state := DefaultFilterState()
	state.SaleType = &saleType
	state.Tenure = &tenure
	state.PropertyAgeBucket = &bucket
	state.Project = &project
	state.PSFRange = RangeFilter{Min: &psfMin, Max: &psfMax}
	state.SizeRange = RangeFilter{Max: &sizeMax}
	state.PropertyAge = RangeFilter{Min: &ageMin}

	got := BuildAPIParams(state, state, FactFilter{}, nil, ParamOptions{})

	want := map[string]string{
		"timeframe":         "last12Months",
		"saleType":          "new",
		"tenure":            "freehold",
		"propertyAgeBucket": "6-10",
		"project":           "The Landmark",
		"psfMin":            "1500.5",
		"psfMax":            "2200",
		"sizeMax":           "1200",
		"propertyAgeMin":    "5",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("params = %v, want %v", got, want)
	}
}

func TestBuildAPIParamsFactFilterGated(t *testing.T) {
	priceMin, priceMax := 800000.0, 2000000.0
	fact := FactFilter{PriceRange: RangeFilter{Min: &priceMin, Max: &priceMax}}
	state := DefaultFilterState()

	got := BuildAPIParams(state, state, fact, nil, ParamOptions{})
	if _, ok := got["priceMin"]; ok {
		t.Error("fact price range leaked into params without opt-in")
	}

	got = BuildAPIParams(state, state, fact, nil, ParamOptions{IncludeFactFilter: true})
	if got["priceMin"] != "800000" || got["priceMax"] != "2000000" {
		t.Errorf("fact price range = %q..%q, want 800000..2000000", got["priceMin"], got["priceMax"])
	}
}

func TestBuildAPIParamsAdditionalWins(t *testing.T) {
	saleType := SaleTypeResale
	state := DefaultFilterState()
	state.SaleType = &saleType

	got := BuildAPIParams(state, state, FactFilter{}, map[string]string{"saleType": "new"}, ParamOptions{})
	if got["saleType"] != "new" {
		t.Errorf("saleType = %q, want caller-pinned value", got["saleType"])
	}
}

func TestNormalizeParamKeys(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]string
		want map[string]string
	}{
		{
			name: "snake converts to camel",
			in:   map[string]string{"group_by": "district", "sort_order": "desc"},
			want: map[string]string{"groupBy": "district", "sortOrder": "desc"},
		},
		{
			name: "camel form wins over duplicate",
			in:   map[string]string{"group_by": "old", "groupBy": "new"},
			want: map[string]string{"groupBy": "new"},
		},
		{
			name: "plain keys untouched",
			in:   map[string]string{"limit": "50"},
			want: map[string]string{"limit": "50"},
		},
		{
			name: "empty input",
			in:   nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeParamKeys(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeParamKeys(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
