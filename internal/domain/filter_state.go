package domain

// SaleType distinguishes developer sales from the secondary market.
type SaleType string

const (
	SaleTypeNew     SaleType = "new"
	SaleTypeResale  SaleType = "resale"
	SaleTypeSubsale SaleType = "subsale"
)

// Valid reports whether the value is a known sale type.
func (s SaleType) Valid() bool {
	switch s {
	case SaleTypeNew, SaleTypeResale, SaleTypeSubsale:
		return true
	}
	return false
}

// Tenure represents the land-tenure dimension.
type Tenure string

const (
	TenureFreehold     Tenure = "freehold"
	TenureLeasehold99  Tenure = "leasehold99"
	TenureLeasehold999 Tenure = "leasehold999"
)

// Valid reports whether the value is a known tenure.
func (t Tenure) Valid() bool {
	switch t {
	case TenureFreehold, TenureLeasehold99, TenureLeasehold999:
		return true
	}
	return false
}

// AgeBucket is the coarse property-age dimension used alongside the exact
// PropertyAge range.
type AgeBucket string

const (
	AgeBucket0To5   AgeBucket = "0-5"
	AgeBucket6To10  AgeBucket = "6-10"
	AgeBucket11To20 AgeBucket = "11-20"
	AgeBucket21Plus AgeBucket = "21+"
)

// Valid reports whether the value is a known age bucket.
func (a AgeBucket) Valid() bool {
	switch a {
	case AgeBucket0To5, AgeBucket6To10, AgeBucket11To20, AgeBucket21Plus:
		return true
	}
	return false
}

// TimeGrouping is the view-context setting charts group their series by. It is
// persisted next to the dimension filters but never feeds the filter deriver.
type TimeGrouping string

const (
	GroupByMonth   TimeGrouping = "month"
	GroupByQuarter TimeGrouping = "quarter"
	GroupByYear    TimeGrouping = "year"
)

// DefaultTimeGrouping is applied to pages with no persisted state.
const DefaultTimeGrouping = GroupByMonth

// Valid reports whether the value is a known grouping.
func (g TimeGrouping) Valid() bool {
	switch g {
	case GroupByMonth, GroupByQuarter, GroupByYear:
		return true
	}
	return false
}

// RangeFilter bounds a numeric dimension. A nil end means unbounded on that
// side; both nil means the dimension is unset.
type RangeFilter struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

// IsZero reports whether neither bound is set.
func (r RangeFilter) IsZero() bool {
	return r.Min == nil && r.Max == nil
}

// FilterState holds the persisted dimension filters for one page. Absence is
// always expressed structurally: nil pointers for scalars, empty slices for
// collections. No field ever carries an "all"/"any" sentinel string, so every
// consumer can branch on nil/len alone.
type FilterState struct {
	TimeFilter        TimeFilter  `json:"timeFilter"`
	Districts         []string    `json:"districts"`
	BedroomTypes      []string    `json:"bedroomTypes"`
	Segments          []string    `json:"segments"`
	SaleType          *SaleType   `json:"saleType"`
	PSFRange          RangeFilter `json:"psfRange"`
	SizeRange         RangeFilter `json:"sizeRange"`
	PropertyAge       RangeFilter `json:"propertyAge"`
	Tenure            *Tenure     `json:"tenure"`
	PropertyAgeBucket *AgeBucket  `json:"propertyAgeBucket"`
	Project           *string     `json:"project"`
}

// DefaultFilterState returns the state a page starts from before any user
// interaction: the default time preset and every other dimension unset.
func DefaultFilterState() FilterState {
	return FilterState{
		TimeFilter:   NewPresetTimeFilter(DefaultTimePreset),
		Districts:    []string{},
		BedroomTypes: []string{},
		Segments:     []string{},
	}
}

// Clone returns a copy that shares no mutable memory with the receiver, so
// derived filter sets can be overwritten without touching persisted state.
func (f FilterState) Clone() FilterState {
	out := f
	out.Districts = append([]string(nil), f.Districts...)
	out.BedroomTypes = append([]string(nil), f.BedroomTypes...)
	out.Segments = append([]string(nil), f.Segments...)
	out.SaleType = clonePtr(f.SaleType)
	out.Tenure = clonePtr(f.Tenure)
	out.PropertyAgeBucket = clonePtr(f.PropertyAgeBucket)
	out.Project = clonePtr(f.Project)
	out.PSFRange = f.PSFRange.clone()
	out.SizeRange = f.SizeRange.clone()
	out.PropertyAge = f.PropertyAge.clone()
	out.TimeFilter = f.TimeFilter.clone()
	return out
}

// Normalized replaces nil collections with empty ones. Unmarshaling a payload
// that omits a list field leaves it nil; the invariant everywhere else is
// "unset collection is empty".
func (f FilterState) Normalized() FilterState {
	out := f
	if out.Districts == nil {
		out.Districts = []string{}
	}
	if out.BedroomTypes == nil {
		out.BedroomTypes = []string{}
	}
	if out.Segments == nil {
		out.Segments = []string{}
	}
	if out.TimeFilter.Type == "" {
		out.TimeFilter = NewPresetTimeFilter(DefaultTimePreset)
	}
	return out
}

func (r RangeFilter) clone() RangeFilter {
	return RangeFilter{Min: clonePtr(r.Min), Max: clonePtr(r.Max)}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
