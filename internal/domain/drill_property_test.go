package domain

import (
	"testing"

	"pgregory.net/rapid"
)

// Randomized drill sessions hold the structural invariants: the level always
// belongs to its axis, the trail length always matches the level index when
// every descent carries a value, and boundary moves never corrupt state.
func TestDrillStateInvariants(t *testing.T) {
	axes := []Axis{AxisTime, AxisLocation}

	rapid.Check(t, func(rt *rapid.T) {
		s := DefaultDrillState()
		steps := rapid.IntRange(0, 40).Draw(rt, "steps")

		for i := 0; i < steps; i++ {
			axis := rapid.SampledFrom(axes).Draw(rt, "axis")
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0:
				value := rapid.SampledFrom([]string{"2023", "2024", "Q1", "Q3", "CCR", "OCR", "D09"}).Draw(rt, "value")
				s = s.DrillDown(axis, value, value)
			case 1:
				s = s.DrillUp(axis)
			case 2:
				index := rapid.IntRange(-1, 4).Draw(rt, "index")
				s = s.NavigateToBreadcrumb(axis, index)
			}

			for _, a := range axes {
				level := s.Path.Time
				if a == AxisLocation {
					level = s.Path.Location
				}
				idx := LevelIndex(a, level)
				if idx < 0 {
					rt.Fatalf("level %q not in %s hierarchy", level, a)
				}
				if got := len(s.Breadcrumbs.forAxis(a)); got != idx {
					rt.Fatalf("%s trail length %d out of step with level index %d", a, got, idx)
				}
			}
		}
	})
}
