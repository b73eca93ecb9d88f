package store

import "github.com/rpattn/dashlens/internal/domain"

// Snapshot is the durable envelope for one page's persisted state: the
// dimension filters plus the view-context grouping, tagged with the schema
// version that wrote it. Navigation state never appears here.
type Snapshot struct {
	Filters       domain.FilterState  `json:"filters"`
	TimeGrouping  domain.TimeGrouping `json:"timeGrouping"`
	SchemaVersion int                 `json:"schemaVersion"`
}

// DefaultSnapshot returns the current-schema snapshot for a page that has
// never been saved.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		Filters:       domain.DefaultFilterState(),
		TimeGrouping:  domain.DefaultTimeGrouping,
		SchemaVersion: SchemaVersion,
	}
}
