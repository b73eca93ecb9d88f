package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rpattn/dashlens/internal/domain"
	"github.com/rpattn/dashlens/internal/store"
)

// actionEnvelope is the wire shape of a state mutation: a named action plus
// an action-specific payload.
type actionEnvelope struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

type valuesPayload struct {
	Values []string `json:"values"`
}

type valuePayload struct {
	Value *string `json:"value"`
}

type rangePayload struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

type drillPayload struct {
	Axis  domain.Axis `json:"axis"`
	Value string      `json:"value"`
	Label string      `json:"label"`
	Index int         `json:"index"`
}

type selectEntityPayload struct {
	Name     *string `json:"name"`
	District *string `json:"district"`
}

// handleActions applies one named mutation to a page's state and returns the
// updated view. Unknown actions and malformed payloads are rejected before
// any state changes.
func (h *Handler) handleActions(w http.ResponseWriter, r *http.Request, pageID string) {
	defer r.Body.Close()
	var envelope actionEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	if envelope.Action == "" {
		http.Error(w, "action is required", http.StatusBadRequest)
		return
	}

	pageStore := h.registry.Store(r.Context(), pageID)
	if err := applyAction(pageStore, envelope); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, pageStore.View())
}

func applyAction(s *store.Store, envelope actionEnvelope) error {
	switch envelope.Action {
	case "setTimeFilter":
		var tf domain.TimeFilter
		if err := decodePayload(envelope, &tf); err != nil {
			return err
		}
		s.SetTimeFilter(tf)

	case "setDistricts":
		return applyValues(envelope, s.SetDistricts)
	case "setBedroomTypes":
		return applyValues(envelope, s.SetBedroomTypes)
	case "setSegments":
		return applyValues(envelope, s.SetSegments)

	case "setSaleType":
		var p valuePayload
		if err := decodePayload(envelope, &p); err != nil {
			return err
		}
		if p.Value == nil {
			s.SetSaleType(nil)
			return nil
		}
		t := domain.SaleType(*p.Value)
		if !t.Valid() {
			return fmt.Errorf("setSaleType: unknown value %q", *p.Value)
		}
		s.SetSaleType(&t)

	case "setTenure":
		var p valuePayload
		if err := decodePayload(envelope, &p); err != nil {
			return err
		}
		if p.Value == nil {
			s.SetTenure(nil)
			return nil
		}
		t := domain.Tenure(*p.Value)
		if !t.Valid() {
			return fmt.Errorf("setTenure: unknown value %q", *p.Value)
		}
		s.SetTenure(&t)

	case "setPropertyAgeBucket":
		var p valuePayload
		if err := decodePayload(envelope, &p); err != nil {
			return err
		}
		if p.Value == nil {
			s.SetPropertyAgeBucket(nil)
			return nil
		}
		b := domain.AgeBucket(*p.Value)
		if !b.Valid() {
			return fmt.Errorf("setPropertyAgeBucket: unknown value %q", *p.Value)
		}
		s.SetPropertyAgeBucket(&b)

	case "setProject":
		var p valuePayload
		if err := decodePayload(envelope, &p); err != nil {
			return err
		}
		s.SetProject(p.Value)

	case "setPsfRange":
		return applyRange(envelope, s.SetPSFRange)
	case "setSizeRange":
		return applyRange(envelope, s.SetSizeRange)
	case "setPropertyAge":
		return applyRange(envelope, s.SetPropertyAge)
	case "setFactPriceRange":
		return applyRange(envelope, s.SetFactPriceRange)

	case "setTimeGrouping":
		var p valuePayload
		if err := decodePayload(envelope, &p); err != nil {
			return err
		}
		if p.Value == nil {
			return fmt.Errorf("setTimeGrouping: value is required")
		}
		g := domain.TimeGrouping(*p.Value)
		if !g.Valid() {
			return fmt.Errorf("setTimeGrouping: unknown grouping %q", *p.Value)
		}
		s.SetTimeGrouping(g)

	case "resetFilters":
		s.ResetFilters()

	case "drillDown":
		var p drillPayload
		if err := decodePayload(envelope, &p); err != nil {
			return err
		}
		if !p.Axis.Valid() {
			return fmt.Errorf("drillDown: unknown axis %q", p.Axis)
		}
		s.DrillDown(p.Axis, p.Value, p.Label)

	case "drillUp":
		var p drillPayload
		if err := decodePayload(envelope, &p); err != nil {
			return err
		}
		if !p.Axis.Valid() {
			return fmt.Errorf("drillUp: unknown axis %q", p.Axis)
		}
		s.DrillUp(p.Axis)

	case "navigateToBreadcrumb":
		var p drillPayload
		if err := decodePayload(envelope, &p); err != nil {
			return err
		}
		if !p.Axis.Valid() {
			return fmt.Errorf("navigateToBreadcrumb: unknown axis %q", p.Axis)
		}
		s.NavigateToBreadcrumb(p.Axis, p.Index)

	case "selectEntity":
		var p selectEntityPayload
		if err := decodePayload(envelope, &p); err != nil {
			return err
		}
		s.SelectEntity(p.Name, p.District)

	case "clearSelectedEntity":
		s.ClearSelectedEntity()

	default:
		return fmt.Errorf("unknown action %q", envelope.Action)
	}
	return nil
}

func decodePayload(envelope actionEnvelope, dst any) error {
	if len(envelope.Payload) == 0 {
		return fmt.Errorf("%s: payload is required", envelope.Action)
	}
	if err := json.Unmarshal(envelope.Payload, dst); err != nil {
		return fmt.Errorf("%s: invalid payload: %w", envelope.Action, err)
	}
	return nil
}

func applyValues(envelope actionEnvelope, set func([]string)) error {
	var p valuesPayload
	if err := decodePayload(envelope, &p); err != nil {
		return err
	}
	set(p.Values)
	return nil
}

func applyRange(envelope actionEnvelope, set func(domain.RangeFilter)) error {
	var p rangePayload
	if err := decodePayload(envelope, &p); err != nil {
		return err
	}
	set(domain.RangeFilter{Min: p.Min, Max: p.Max})
	return nil
}
