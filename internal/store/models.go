package store

import (
	"strconv"
	"time"
)

// VariationOverride replaces individual counters of one variation. A nil
// field leaves the API value in place.
type VariationOverride struct {
	Visitors    *int64   `json:"visitors,omitempty"`
	Conversions *int64   `json:"conversions,omitempty"`
	Revenue     *float64 `json:"revenue,omitempty"`
}

// IsZero reports whether no field is set.
func (v VariationOverride) IsZero() bool {
	return v.Visitors == nil && v.Conversions == nil && v.Revenue == nil
}

// Merge returns v with every field set in next copied over.
func (v VariationOverride) Merge(next VariationOverride) VariationOverride {
	if next.Visitors != nil {
		v.Visitors = next.Visitors
	}
	if next.Conversions != nil {
		v.Conversions = next.Conversions
	}
	if next.Revenue != nil {
		v.Revenue = next.Revenue
	}
	return v
}

// ExperimentOverride holds the imported counters for one experiment, keyed
// by variation id or variation name.
type ExperimentOverride struct {
	Variations map[string]VariationOverride `json:"variations"`
	UpdatedAt  time.Time                    `json:"updatedAt"`
	FileName   string                       `json:"fileName"`
}

// Lookup finds the override for a variation by id first, then by name.
func (e *ExperimentOverride) Lookup(variationID int64, name string) (VariationOverride, bool) {
	if e == nil {
		return VariationOverride{}, false
	}
	if v, ok := e.Variations[strconv.FormatInt(variationID, 10)]; ok {
		return v, true
	}
	v, ok := e.Variations[name]
	return v, ok
}

func (e *ExperimentOverride) clone() *ExperimentOverride {
	out := &ExperimentOverride{
		Variations: make(map[string]VariationOverride, len(e.Variations)),
		UpdatedAt:  e.UpdatedAt,
		FileName:   e.FileName,
	}
	for k, v := range e.Variations {
		out.Variations[k] = v
	}
	return out
}

// Overlay is a point-in-time copy of every override, keyed by experiment id.
type Overlay map[string]*ExperimentOverride

// For returns the override for an experiment id, or nil.
func (o Overlay) For(experimentID int64) *ExperimentOverride {
	if o == nil {
		return nil
	}
	return o[strconv.FormatInt(experimentID, 10)]
}

// Int64 and Float64 return pointers for literal override values.
func Int64(v int64) *int64 { return &v }

func Float64(v float64) *float64 { return &v }
