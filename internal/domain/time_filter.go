package domain

import (
	"encoding/json"
	"fmt"
)

// TimeFilterType discriminates the two time-filter variants.
type TimeFilterType string

const (
	TimeFilterPreset TimeFilterType = "preset"
	TimeFilterCustom TimeFilterType = "custom"
)

// TimePreset is a named rolling window resolved by the upstream query layer.
type TimePreset string

const (
	TimePresetLast3Months  TimePreset = "last3Months"
	TimePresetLast6Months  TimePreset = "last6Months"
	TimePresetLast12Months TimePreset = "last12Months"
	TimePresetLast2Years   TimePreset = "last2Years"
	TimePresetLast5Years   TimePreset = "last5Years"
	TimePresetLast10Years  TimePreset = "last10Years"
	TimePresetAllTime      TimePreset = "allTime"
)

// DefaultTimePreset is the window applied when no state has been saved yet.
const DefaultTimePreset = TimePresetLast12Months

// Valid reports whether the value is a known preset.
func (p TimePreset) Valid() bool {
	switch p {
	case TimePresetLast3Months, TimePresetLast6Months, TimePresetLast12Months,
		TimePresetLast2Years, TimePresetLast5Years, TimePresetLast10Years,
		TimePresetAllTime:
		return true
	}
	return false
}

// TimeFilter is a tagged union: either a named preset window or a custom
// date range. Exactly one variant's fields are populated at a time; the
// JSON codec enforces the shape on both directions.
type TimeFilter struct {
	Type   TimeFilterType
	Preset TimePreset
	Start  *string
	End    *string
}

// NewPresetTimeFilter builds the preset variant.
func NewPresetTimeFilter(p TimePreset) TimeFilter {
	return TimeFilter{Type: TimeFilterPreset, Preset: p}
}

// NewCustomTimeFilter builds the custom variant. A nil bound leaves that side
// of the range open.
func NewCustomTimeFilter(start, end *string) TimeFilter {
	return TimeFilter{Type: TimeFilterCustom, Start: clonePtr(start), End: clonePtr(end)}
}

// Valid reports whether the filter is one of the two well-formed variants.
// A preset variant must carry a known preset name; a custom variant may have
// either bound open but must not smuggle preset fields.
func (t TimeFilter) Valid() bool {
	switch t.Type {
	case TimeFilterPreset:
		return t.Preset.Valid() && t.Start == nil && t.End == nil
	case TimeFilterCustom:
		return t.Preset == ""
	}
	return false
}

// IsPreset reports whether the filter is the preset variant.
func (t TimeFilter) IsPreset() bool { return t.Type == TimeFilterPreset }

// IsCustom reports whether the filter is the custom variant.
func (t TimeFilter) IsCustom() bool { return t.Type == TimeFilterCustom }

func (t TimeFilter) clone() TimeFilter {
	out := t
	out.Start = clonePtr(t.Start)
	out.End = clonePtr(t.End)
	return out
}

type presetTimeFilterJSON struct {
	Type  TimeFilterType `json:"type"`
	Value TimePreset     `json:"value"`
}

type customTimeFilterJSON struct {
	Type  TimeFilterType `json:"type"`
	Start *string        `json:"start"`
	End   *string        `json:"end"`
}

// MarshalJSON writes {"type":"preset","value":...} or
// {"type":"custom","start":...,"end":...}.
func (t TimeFilter) MarshalJSON() ([]byte, error) {
	switch t.Type {
	case TimeFilterPreset:
		return json.Marshal(presetTimeFilterJSON{Type: TimeFilterPreset, Value: t.Preset})
	case TimeFilterCustom:
		return json.Marshal(customTimeFilterJSON{Type: TimeFilterCustom, Start: t.Start, End: t.End})
	}
	return nil, fmt.Errorf("marshal time filter: unknown type %q", t.Type)
}

// UnmarshalJSON parses either variant and rejects anything else, including a
// preset variant with a missing or unknown preset name. Callers that tolerate
// malformed stored payloads (the snapshot migrator) map the error to "absent".
func (t *TimeFilter) UnmarshalJSON(data []byte) error {
	var head struct {
		Type TimeFilterType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("unmarshal time filter: %w", err)
	}
	switch head.Type {
	case TimeFilterPreset:
		var p presetTimeFilterJSON
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("unmarshal preset time filter: %w", err)
		}
		if !p.Value.Valid() {
			return fmt.Errorf("unmarshal preset time filter: unknown preset %q", p.Value)
		}
		*t = NewPresetTimeFilter(p.Value)
		return nil
	case TimeFilterCustom:
		var c customTimeFilterJSON
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("unmarshal custom time filter: %w", err)
		}
		*t = NewCustomTimeFilter(c.Start, c.End)
		return nil
	}
	return fmt.Errorf("unmarshal time filter: unknown type %q", head.Type)
}
