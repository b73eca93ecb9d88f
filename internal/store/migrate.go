package store

import (
	json "github.com/goccy/go-json"

	"github.com/rpattn/dashlens/internal/domain"
)

// SchemaVersion is the current persisted snapshot schema. Version 1 kept the
// time selection in two fields (datePreset + dateRange); version 2 unified
// them into the tagged timeFilter.
const SchemaVersion = 2

// Legacy v1 field names, stripped on every migration pass.
const (
	legacyPresetField = "datePreset"
	legacyRangeField  = "dateRange"
)

type legacyDateRange struct {
	Start *string `json:"start"`
	End   *string `json:"end"`
}

// MigrateSnapshot normalizes a raw stored payload of any vintage to the
// current schema. It is idempotent and total: nil input, non-object JSON,
// legacy shapes, and partially corrupt fields all come out as a well-formed
// snapshot, with defaults filling whatever could not be interpreted.
func MigrateSnapshot(raw []byte) Snapshot {
	snap := DefaultSnapshot()
	if len(raw) == 0 {
		return snap
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope == nil {
		return snap
	}

	if rawGrouping, ok := envelope["timeGrouping"]; ok {
		var g domain.TimeGrouping
		if err := json.Unmarshal(rawGrouping, &g); err == nil && g.Valid() {
			snap.TimeGrouping = g
		}
	}

	var filtersObj map[string]json.RawMessage
	if rawFilters, ok := envelope["filters"]; ok {
		if err := json.Unmarshal(rawFilters, &filtersObj); err != nil {
			filtersObj = nil
		}
	}
	snap.Filters = migrateFilters(filtersObj)
	return snap
}

// RawSchemaVersion extracts the version tag from a stored payload, or zero
// when it is absent or unreadable. Used only to decide whether a load is
// worth a migration log line.
func RawSchemaVersion(raw []byte) int {
	var env struct {
		SchemaVersion int `json:"schemaVersion"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return 0
	}
	return env.SchemaVersion
}

func migrateFilters(obj map[string]json.RawMessage) domain.FilterState {
	filters := domain.DefaultFilterState()
	if obj == nil {
		return filters
	}

	filters.TimeFilter = resolveTimeFilter(obj)

	decodeField(obj, "districts", &filters.Districts)
	decodeField(obj, "bedroomTypes", &filters.BedroomTypes)
	decodeField(obj, "segments", &filters.Segments)
	decodeField(obj, "saleType", &filters.SaleType)
	decodeField(obj, "psfRange", &filters.PSFRange)
	decodeField(obj, "sizeRange", &filters.SizeRange)
	decodeField(obj, "propertyAge", &filters.PropertyAge)
	decodeField(obj, "tenure", &filters.Tenure)
	decodeField(obj, "propertyAgeBucket", &filters.PropertyAgeBucket)
	decodeField(obj, "project", &filters.Project)

	// Scalar enums outside their value set cannot be confidently
	// interpreted and revert to unset.
	if filters.SaleType != nil && !filters.SaleType.Valid() {
		filters.SaleType = nil
	}
	if filters.Tenure != nil && !filters.Tenure.Valid() {
		filters.Tenure = nil
	}
	if filters.PropertyAgeBucket != nil && !filters.PropertyAgeBucket.Valid() {
		filters.PropertyAgeBucket = nil
	}

	return filters.Normalized()
}

// resolveTimeFilter keeps the unified time filter when the stored one is
// well formed, otherwise rebuilds it from the legacy two-field shape, and
// falls back to the default preset when neither is usable. The legacy
// "custom" preset marker is not a preset; it pointed at dateRange.
func resolveTimeFilter(obj map[string]json.RawMessage) domain.TimeFilter {
	if raw, ok := obj["timeFilter"]; ok {
		var tf domain.TimeFilter
		if err := json.Unmarshal(raw, &tf); err == nil && tf.Valid() {
			return tf
		}
	}

	if raw, ok := obj[legacyPresetField]; ok {
		var preset string
		if err := json.Unmarshal(raw, &preset); err == nil &&
			preset != "custom" && domain.TimePreset(preset).Valid() {
			return domain.NewPresetTimeFilter(domain.TimePreset(preset))
		}
	}

	if raw, ok := obj[legacyRangeField]; ok {
		var lr legacyDateRange
		if err := json.Unmarshal(raw, &lr); err == nil && (lr.Start != nil || lr.End != nil) {
			return domain.NewCustomTimeFilter(lr.Start, lr.End)
		}
	}

	return domain.NewPresetTimeFilter(domain.DefaultTimePreset)
}

// decodeField overwrites dst only when the field is present and decodes
// cleanly; anything else keeps the default already in dst.
func decodeField[T any](obj map[string]json.RawMessage, key string, dst *T) {
	raw, ok := obj[key]
	if !ok {
		return
	}
	var v T
	if err := json.Unmarshal(raw, &v); err == nil {
		*dst = v
	}
}
