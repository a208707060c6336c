package features

import (
	"sort"
	"strconv"
)

// Value is a scalar feature value: either a number or a category label.
type Value struct {
	Kind Kind
	Num  float64
	Text string
}

func Number(v float64) Value { return Value{Kind: Numeric, Num: v} }

func Text(s string) Value { return Value{Kind: Categorical, Text: s} }

// Any returns the value as float64 or string.
func (v Value) Any() any {
	if v.Kind == Categorical {
		return v.Text
	}
	return v.Num
}

func (v Value) String() string {
	if v.Kind == Categorical {
		return v.Text
	}
	return strconv.FormatFloat(v.Num, 'f', -1, 64)
}

// Vector is an insertion-ordered feature mapping. Derived features remember
// the inputs they were computed from; extras are names outside the vocabulary.
type Vector struct {
	names   []string
	values  map[string]Value
	lineage map[string][]string
	extras  map[string]bool
}

func NewVector() *Vector {
	return &Vector{
		values:  make(map[string]Value),
		lineage: make(map[string][]string),
		extras:  make(map[string]bool),
	}
}

// Set stores a value, keeping the original position when name already exists.
func (v *Vector) Set(name string, value Value) {
	if _, ok := v.values[name]; !ok {
		v.names = append(v.names, name)
		if _, known := vocabularyIndex[name]; !known {
			v.extras[name] = true
		}
	}
	v.values[name] = value
}

// SetDefault stores value only when name is absent, recording its inputs.
// It reports whether the value was stored.
func (v *Vector) SetDefault(name string, value Value, inputs ...string) bool {
	if v.Has(name) {
		return false
	}
	v.Set(name, value)
	if len(inputs) > 0 {
		v.lineage[name] = append([]string(nil), inputs...)
	}
	return true
}

func (v *Vector) Get(name string) (Value, bool) {
	value, ok := v.values[name]
	return value, ok
}

// Num returns the numeric value for name, or 0 when it is absent or categorical.
func (v *Vector) Num(name string) float64 {
	value, ok := v.values[name]
	if !ok || value.Kind != Numeric {
		return 0
	}
	return value.Num
}

// Lookup returns the numeric value and whether a numeric value is present.
func (v *Vector) Lookup(name string) (float64, bool) {
	value, ok := v.values[name]
	if !ok || value.Kind != Numeric {
		return 0, false
	}
	return value.Num, true
}

func (v *Vector) Has(name string) bool {
	_, ok := v.values[name]
	return ok
}

func (v *Vector) Delete(name string) {
	if _, ok := v.values[name]; !ok {
		return
	}
	delete(v.values, name)
	delete(v.lineage, name)
	delete(v.extras, name)
	for i, n := range v.names {
		if n == name {
			v.names = append(v.names[:i], v.names[i+1:]...)
			break
		}
	}
}

func (v *Vector) Len() int { return len(v.names) }

// Names returns feature names in insertion order.
func (v *Vector) Names() []string {
	return append([]string(nil), v.names...)
}

// Lineage returns the inputs a derived feature was computed from.
func (v *Vector) Lineage(name string) []string {
	return append([]string(nil), v.lineage[name]...)
}

// Extras returns the pass-through names outside the vocabulary, sorted.
func (v *Vector) Extras() []string {
	out := make([]string, 0, len(v.extras))
	for name := range v.extras {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Map returns a plain map view suitable for hashing or JSON output.
func (v *Vector) Map() map[string]any {
	out := make(map[string]any, len(v.values))
	for name, value := range v.values {
		out[name] = value.Any()
	}
	return out
}

func (v *Vector) Clone() *Vector {
	out := NewVector()
	for _, name := range v.names {
		out.Set(name, v.values[name])
	}
	for name, inputs := range v.lineage {
		out.lineage[name] = append([]string(nil), inputs...)
	}
	return out
}
