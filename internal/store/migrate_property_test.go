package store

import (
	"reflect"
	"testing"

	json "github.com/goccy/go-json"
	"pgregory.net/rapid"
)

// storedPayload generates stored payloads across the whole input space the
// migrator must absorb: garbage bytes, JSON scalars, and envelopes mixing
// legacy fields, current fields, and corrupt values.
func storedPayload() *rapid.Generator[[]byte] {
	return rapid.Custom(func(t *rapid.T) []byte {
		switch rapid.IntRange(0, 4).Draw(t, "shape") {
		case 0:
			return rapid.SliceOfN(rapid.Byte(), 0, 64).Draw(t, "garbage")
		case 1:
			return []byte(rapid.SampledFrom([]string{
				`null`, `42`, `"last12Months"`, `[]`, `true`,
			}).Draw(t, "scalar"))
		default:
			env := map[string]any{}
			if rapid.Bool().Draw(t, "hasVersion") {
				env["schemaVersion"] = rapid.IntRange(0, 3).Draw(t, "version")
			}
			if rapid.Bool().Draw(t, "hasGrouping") {
				env["timeGrouping"] = rapid.SampledFrom([]string{
					"month", "quarter", "year", "weekly", "",
				}).Draw(t, "grouping")
			}
			if rapid.Bool().Draw(t, "hasFilters") {
				env["filters"] = storedFilters(t)
			}
			raw, err := json.Marshal(env)
			if err != nil {
				t.Fatalf("marshal generated envelope: %v", err)
			}
			return raw
		}
	})
}

func storedFilters(t *rapid.T) map[string]any {
	filters := map[string]any{}

	if rapid.Bool().Draw(t, "legacyPreset") {
		filters["datePreset"] = rapid.SampledFrom([]string{
			"last3Months", "last12Months", "allTime", "custom", "lastCentury", "",
		}).Draw(t, "legacyPresetValue")
	}
	if rapid.Bool().Draw(t, "legacyRange") {
		dateRange := map[string]any{}
		if rapid.Bool().Draw(t, "legacyStart") {
			dateRange["start"] = "2020-01-01"
		}
		if rapid.Bool().Draw(t, "legacyEnd") {
			dateRange["end"] = "2021-12-31"
		}
		filters["dateRange"] = dateRange
	}
	if rapid.Bool().Draw(t, "hasTimeFilter") {
		switch rapid.IntRange(0, 3).Draw(t, "timeFilterShape") {
		case 0:
			filters["timeFilter"] = map[string]any{"type": "preset", "value": "last6Months"}
		case 1:
			filters["timeFilter"] = map[string]any{"type": "custom", "start": "2022-01-01", "end": nil}
		case 2:
			filters["timeFilter"] = map[string]any{"type": "preset"}
		default:
			filters["timeFilter"] = "last6Months"
		}
	}
	if rapid.Bool().Draw(t, "hasDistricts") {
		if rapid.Bool().Draw(t, "districtsValid") {
			filters["districts"] = rapid.SliceOfN(
				rapid.SampledFrom([]string{"D01", "D09", "D15", "D19"}), 0, 4,
			).Draw(t, "districtValues")
		} else {
			filters["districts"] = 42
		}
	}
	if rapid.Bool().Draw(t, "hasSaleType") {
		filters["saleType"] = rapid.SampledFrom([]string{
			"new", "resale", "subsale", "auction",
		}).Draw(t, "saleTypeValue")
	}
	if rapid.Bool().Draw(t, "hasPSF") {
		if rapid.Bool().Draw(t, "psfValid") {
			filters["psfRange"] = map[string]any{
				"min": rapid.Float64Range(0, 5000).Draw(t, "psfMin"),
			}
		} else {
			filters["psfRange"] = map[string]any{"min": "cheap"}
		}
	}
	if rapid.Bool().Draw(t, "hasProject") {
		filters["project"] = rapid.SampledFrom([]any{"The Landmark", 7, nil}).Draw(t, "projectValue")
	}
	return filters
}

func TestMigrateSnapshotProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		raw := storedPayload().Draw(rt, "payload")

		once := MigrateSnapshot(raw)

		if once.SchemaVersion != SchemaVersion {
			rt.Fatalf("schema version = %d, want %d", once.SchemaVersion, SchemaVersion)
		}
		if !once.Filters.TimeFilter.Valid() {
			rt.Fatalf("migrated time filter invalid: %+v", once.Filters.TimeFilter)
		}
		if !once.TimeGrouping.Valid() {
			rt.Fatalf("migrated grouping invalid: %q", once.TimeGrouping)
		}
		if once.Filters.Districts == nil || once.Filters.BedroomTypes == nil || once.Filters.Segments == nil {
			rt.Fatalf("migrated collections contain nil: %+v", once.Filters)
		}
		if once.Filters.SaleType != nil && !once.Filters.SaleType.Valid() {
			rt.Fatalf("migrated sale type invalid: %q", *once.Filters.SaleType)
		}

		encoded, err := json.Marshal(once)
		if err != nil {
			rt.Fatalf("marshal migrated snapshot: %v", err)
		}
		twice := MigrateSnapshot(encoded)
		if !reflect.DeepEqual(once, twice) {
			rt.Fatalf("not idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
		}
	})
}
