package domain

// Axis names one of the two independent drill hierarchies.
type Axis string

const (
	AxisTime     Axis = "time"
	AxisLocation Axis = "location"
)

// Valid reports whether the value is a known axis.
func (a Axis) Valid() bool {
	return a == AxisTime || a == AxisLocation
}

// DrillLevel is one rung of a drill hierarchy.
type DrillLevel string

const (
	LevelYear     DrillLevel = "year"
	LevelQuarter  DrillLevel = "quarter"
	LevelMonth    DrillLevel = "month"
	LevelRegion   DrillLevel = "region"
	LevelDistrict DrillLevel = "district"
)

var (
	timeLevels     = []DrillLevel{LevelYear, LevelQuarter, LevelMonth}
	locationLevels = []DrillLevel{LevelRegion, LevelDistrict}
)

// LevelsFor returns the ordered levels of an axis, shallowest first.
func LevelsFor(axis Axis) []DrillLevel {
	switch axis {
	case AxisTime:
		return append([]DrillLevel(nil), timeLevels...)
	case AxisLocation:
		return append([]DrillLevel(nil), locationLevels...)
	}
	return nil
}

// LevelIndex returns the position of level within its axis, or -1 when the
// level does not belong to the axis.
func LevelIndex(axis Axis, level DrillLevel) int {
	for i, l := range levelsFor(axis) {
		if l == level {
			return i
		}
	}
	return -1
}

func levelsFor(axis Axis) []DrillLevel {
	switch axis {
	case AxisTime:
		return timeLevels
	case AxisLocation:
		return locationLevels
	}
	return nil
}

// DrillPath records the current level on each axis.
type DrillPath struct {
	Time     DrillLevel `json:"time"`
	Location DrillLevel `json:"location"`
}

// Breadcrumb is one selection made on the way down a hierarchy. Value is the
// machine identity used by the filter deriver; Label is the display text.
type Breadcrumb struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// BreadcrumbTrail holds the per-axis selection trails.
type BreadcrumbTrail struct {
	Time     []Breadcrumb `json:"time"`
	Location []Breadcrumb `json:"location"`
}

// SelectedEntity is the row highlighted in a detail table. It scopes
// entity-detail requests only and never feeds the filter deriver.
type SelectedEntity struct {
	Name     *string `json:"name"`
	District *string `json:"district"`
}

// IsZero reports whether nothing is selected.
func (s SelectedEntity) IsZero() bool {
	return s.Name == nil && s.District == nil
}

// FactFilter carries measure-level constraints that scope detail tables but
// are excluded from aggregate queries unless explicitly requested.
type FactFilter struct {
	PriceRange RangeFilter `json:"priceRange"`
}

// DrillState bundles the transient navigation state a page accumulates on
// top of its persisted filters. Transitions return a new value; the receiver
// is never mutated.
type DrillState struct {
	Path        DrillPath       `json:"drillPath"`
	Breadcrumbs BreadcrumbTrail `json:"breadcrumbs"`
	Selected    SelectedEntity  `json:"selectedEntity"`
}

// DefaultDrillState returns both axes at their shallowest level with empty
// trails and no selection.
func DefaultDrillState() DrillState {
	return DrillState{
		Path: DrillPath{Time: LevelYear, Location: LevelRegion},
		Breadcrumbs: BreadcrumbTrail{
			Time:     []Breadcrumb{},
			Location: []Breadcrumb{},
		},
	}
}

// Clone returns a copy sharing no mutable memory with the receiver.
func (d DrillState) Clone() DrillState {
	out := d
	out.Breadcrumbs.Time = append([]Breadcrumb(nil), d.Breadcrumbs.Time...)
	out.Breadcrumbs.Location = append([]Breadcrumb(nil), d.Breadcrumbs.Location...)
	out.Selected.Name = clonePtr(d.Selected.Name)
	out.Selected.District = clonePtr(d.Selected.District)
	return out
}

func (d DrillPath) level(axis Axis) DrillLevel {
	if axis == AxisLocation {
		return d.Location
	}
	return d.Time
}

func (d *DrillPath) setLevel(axis Axis, level DrillLevel) {
	if axis == AxisLocation {
		d.Location = level
	} else {
		d.Time = level
	}
}

func (b BreadcrumbTrail) forAxis(axis Axis) []Breadcrumb {
	if axis == AxisLocation {
		return b.Location
	}
	return b.Time
}

func (b *BreadcrumbTrail) setForAxis(axis Axis, crumbs []Breadcrumb) {
	if axis == AxisLocation {
		b.Location = crumbs
	} else {
		b.Time = crumbs
	}
}

// DrillDown advances one level on the axis and records the selection that was
// clicked. At the deepest level it is a no-op. An empty value advances the
// level without appending a breadcrumb, for charts that descend without a
// concrete selection.
func (d DrillState) DrillDown(axis Axis, value, label string) DrillState {
	levels := levelsFor(axis)
	idx := LevelIndex(axis, d.Path.level(axis))
	if idx < 0 || idx >= len(levels)-1 {
		return d
	}
	out := d.Clone()
	out.Path.setLevel(axis, levels[idx+1])
	if value != "" {
		if label == "" {
			label = value
		}
		crumbs := append(out.Breadcrumbs.forAxis(axis), Breadcrumb{Value: value, Label: label})
		out.Breadcrumbs.setForAxis(axis, crumbs)
	}
	return out
}

// DrillUp retreats one level on the axis and pops the most recent breadcrumb.
// At the shallowest level it is a no-op. Leaving a location level always
// clears the selected entity, which belongs to the scope being left.
func (d DrillState) DrillUp(axis Axis) DrillState {
	levels := levelsFor(axis)
	idx := LevelIndex(axis, d.Path.level(axis))
	if idx <= 0 {
		return d
	}
	out := d.Clone()
	out.Path.setLevel(axis, levels[idx-1])
	if crumbs := out.Breadcrumbs.forAxis(axis); len(crumbs) > 0 {
		out.Breadcrumbs.setForAxis(axis, crumbs[:len(crumbs)-1])
	}
	if axis == AxisLocation {
		out.Selected = SelectedEntity{}
	}
	return out
}

// NavigateToBreadcrumb jumps directly to the level at index within the axis
// and truncates the trail so exactly index selections remain. Index zero is
// the root. A breadcrumb click can only target an existing entry or the
// root, so out-of-range indexes clamp to the trail, keeping trail length and
// level in lockstep for any input.
func (d DrillState) NavigateToBreadcrumb(axis Axis, index int) DrillState {
	levels := levelsFor(axis)
	if len(levels) == 0 {
		return d
	}
	crumbs := d.Breadcrumbs.forAxis(axis)
	if index < 0 {
		index = 0
	}
	if index > len(levels)-1 {
		index = len(levels) - 1
	}
	if index > len(crumbs) {
		index = len(crumbs)
	}
	out := d.Clone()
	out.Path.setLevel(axis, levels[index])
	out.Breadcrumbs.setForAxis(axis, out.Breadcrumbs.forAxis(axis)[:index])
	if axis == AxisLocation {
		out.Selected = SelectedEntity{}
	}
	return out
}

// WithSelectedEntity returns a copy with the detail-table selection replaced.
func (d DrillState) WithSelectedEntity(name, district *string) DrillState {
	out := d.Clone()
	out.Selected = SelectedEntity{Name: clonePtr(name), District: clonePtr(district)}
	return out
}

// WithoutSelectedEntity returns a copy with no detail-table selection.
func (d DrillState) WithoutSelectedEntity() DrillState {
	out := d.Clone()
	out.Selected = SelectedEntity{}
	return out
}
