// Package treatment holds the closed set of treatment types that schedule
// blocks, assignments, appointments and medication orders are keyed by.
package treatment

import (
	"fmt"
	"strings"
)

type Type string

const (
	WeightLoss     Type = "weight_loss"
	HormoneTherapy Type = "hormone_therapy"
	MentalHealth   Type = "mental_health"
	PrimaryCare    Type = "primary_care"
	Dermatology    Type = "dermatology"
)

var all = []Type{WeightLoss, HormoneTherapy, MentalHealth, PrimaryCare, Dermatology}

// All returns every known treatment type in a stable order.
func All() []Type {
	out := make([]Type, len(all))
	copy(out, all)
	return out
}

func (t Type) Valid() bool {
	for _, k := range all {
		if t == k {
			return true
		}
	}
	return false
}

func (t Type) String() string { return string(t) }

// Parse normalizes s and rejects values outside the known set.
func Parse(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown treatment type %q", s)
	}
	return t, nil
}

// ParseList parses every entry of ss, dropping duplicates.
func ParseList(ss []string) ([]Type, error) {
	out := make([]Type, 0, len(ss))
	seen := make(map[Type]bool, len(ss))
	for _, s := range ss {
		t, err := Parse(s)
		if err != nil {
			return nil, err
		}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out, nil
}

// Contains reports whether t is in set.
func Contains(set []Type, t Type) bool {
	for _, s := range set {
		if s == t {
			return true
		}
	}
	return false
}

// Strings converts set for storage in a TEXT[] column.
func Strings(set []Type) []string {
	out := make([]string, len(set))
	for i, t := range set {
		out[i] = string(t)
	}
	return out
}

// FromStrings converts a TEXT[] column back. Unknown values are kept so a
// stale row still round-trips; Valid reports them.
func FromStrings(ss []string) []Type {
	if ss == nil {
		return nil
	}
	out := make([]Type, len(ss))
	for i, s := range ss {
		out[i] = Type(s)
	}
	return out
}
