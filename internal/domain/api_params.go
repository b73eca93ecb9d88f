package domain

import (
	"strconv"
	"strings"
)

// Canonical query-parameter names for the multi-select dimensions. Charts
// pass one of these as the dimension to exclude when they render that
// dimension themselves.
const (
	ParamDistrict    = "district"
	ParamBedroomType = "bedroomType"
	ParamSegment     = "segment"
)

// ParamOptions tunes BuildAPIParams for a particular chart's needs.
type ParamOptions struct {
	// IncludeFactFilter opts the measure-level fact constraints into the
	// parameter set. Detail tables set it; aggregates leave it off.
	IncludeFactFilter bool

	// ExcludeLocationDrill substitutes the persisted location dimensions
	// for the drill-derived ones, for charts that render the location
	// hierarchy itself and must not be narrowed by their own drill.
	ExcludeLocationDrill bool

	// ExcludeOwnDimension drops the named multi-select dimension from the
	// output, so a chart grouped by that dimension sees every bucket.
	ExcludeOwnDimension string
}

// BuildAPIParams flattens an effective filter set into the flat string map a
// data endpoint accepts. Unset dimensions produce no key at all. The fact
// filter and extra per-chart parameters are merged in last, with additional
// parameters winning any collision with filter-derived keys.
func BuildAPIParams(active, persisted FilterState, fact FactFilter, additional map[string]string, opts ParamOptions) map[string]string {
	params := make(map[string]string)

	switch {
	case active.TimeFilter.IsPreset():
		params["timeframe"] = string(active.TimeFilter.Preset)
	case active.TimeFilter.IsCustom():
		if active.TimeFilter.Start != nil {
			params["dateFrom"] = *active.TimeFilter.Start
		}
		if active.TimeFilter.End != nil {
			params["dateTo"] = *active.TimeFilter.End
		}
	}

	districts := active.Districts
	segments := active.Segments
	if opts.ExcludeLocationDrill {
		districts = persisted.Districts
		segments = persisted.Segments
	}
	putList(params, ParamDistrict, districts, opts.ExcludeOwnDimension)
	putList(params, ParamBedroomType, active.BedroomTypes, opts.ExcludeOwnDimension)
	putList(params, ParamSegment, segments, opts.ExcludeOwnDimension)

	if active.SaleType != nil {
		params["saleType"] = string(*active.SaleType)
	}
	if active.Tenure != nil {
		params["tenure"] = string(*active.Tenure)
	}
	if active.PropertyAgeBucket != nil {
		params["propertyAgeBucket"] = string(*active.PropertyAgeBucket)
	}
	if active.Project != nil {
		params["project"] = *active.Project
	}

	putRange(params, "psfMin", "psfMax", active.PSFRange)
	putRange(params, "sizeMin", "sizeMax", active.SizeRange)
	putRange(params, "propertyAgeMin", "propertyAgeMax", active.PropertyAge)

	if opts.IncludeFactFilter {
		putRange(params, "priceMin", "priceMax", fact.PriceRange)
	}

	// Additional parameters are merged last so a chart can pin any key,
	// saleType included, regardless of what the filters derived.
	for k, v := range NormalizeParamKeys(additional) {
		params[k] = v
	}

	return params
}

func putList(params map[string]string, name string, values []string, excluded string) {
	if name == excluded || len(values) == 0 {
		return
	}
	params[name] = strings.Join(values, ",")
}

func putRange(params map[string]string, minKey, maxKey string, r RangeFilter) {
	if r.Min != nil {
		params[minKey] = formatNumber(*r.Min)
	}
	if r.Max != nil {
		params[maxKey] = formatNumber(*r.Max)
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// NormalizeParamKeys converts word-separated keys (group_by, group-by) to
// their camelCase form (groupBy). A key already present in camel form wins
// over its word-separated duplicate.
func NormalizeParamKeys(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if k == camelKey(k) {
			out[k] = v
		}
	}
	for k, v := range in {
		ck := camelKey(k)
		if ck == k {
			continue
		}
		if _, exists := out[ck]; exists {
			continue
		}
		out[ck] = v
	}
	return out
}

func camelKey(k string) string {
	if !strings.ContainsAny(k, "_-") {
		return k
	}
	parts := strings.FieldsFunc(k, func(r rune) bool { return r == '_' || r == '-' })
	if len(parts) == 0 {
		return k
	}
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}
