package scheduling

import (
	"sort"
	"time"

	"github.com/telecare/telecare/internal/domain/treatment"
)

// DefaultSlotMinutes slices additions when the provider carries no
// granularity of its own.
const DefaultSlotMinutes = 30

// ResolveInput is everything Resolve needs, already loaded. Blocks,
// Overrides and Appointments may include rows for other providers or
// dates; Resolve filters them.
type ResolveInput struct {
	Provider      *ProviderRef
	Start         Date
	End           Date
	TreatmentType treatment.Type
	Blocks        []ScheduleBlock
	Overrides     []AvailabilityOverride
	Appointments  []Appointment

	// NotBefore drops slots starting before this instant. Zero disables it.
	NotBefore time.Time
	// Location is the practice time zone that slot wall-clock times are in.
	Location *time.Location
}

// Resolve computes the bookable slots for one provider over [Start, End].
//
// Per date, overrides apply in a fixed order regardless of row order: a
// full-day block empties the date; additions whose treatment types are empty
// or include the requested type inject slots at the provider's granularity;
// partial blocks then remove every slot intersecting their window, so a
// block always beats an addition. Remaining candidates are de-overlapped
// with schedule slots taking priority, and anything intersecting a live
// appointment is dropped.
func Resolve(in ResolveInput) []Slot {
	p := in.Provider
	if p == nil || !p.Active || in.End.Before(in.Start) {
		return []Slot{}
	}
	addMinutes := p.DefaultSlotMinutes
	if addMinutes <= 0 {
		addMinutes = DefaultSlotMinutes
	}

	// Keyed by the YYYY-MM-DD form so equality never depends on time.Time
	// internals.
	overrides := make(map[string][]AvailabilityOverride)
	for _, o := range in.Overrides {
		if o.ProviderID == p.ID {
			overrides[o.Date.String()] = append(overrides[o.Date.String()], o)
		}
	}
	booked := make(map[string][]Appointment)
	for _, a := range in.Appointments {
		if a.ProviderID == p.ID && a.Status != StatusCancelled {
			booked[a.Date.String()] = append(booked[a.Date.String()], a)
		}
	}

	out := []Slot{}
	for d := in.Start; !in.End.Before(d); d = d.AddDays(1) {
		key := d.String()
		out = append(out, resolveDate(in, p, d, addMinutes, overrides[key], booked[key])...)
	}
	return out
}

func resolveDate(in ResolveInput, p *ProviderRef, d Date, addMinutes int, overrides []AvailabilityOverride, booked []Appointment) []Slot {
	var additions, blocks []AvailabilityOverride
	for _, o := range overrides {
		switch o.Kind() {
		case FullDayBlock:
			return nil
		case PartialBlock:
			blocks = append(blocks, o)
		case Addition:
			if len(o.TreatmentTypes) == 0 || treatment.Contains(o.TreatmentTypes, in.TreatmentType) {
				additions = append(additions, o)
			}
		}
	}

	var base []Slot
	weekday := int(d.Weekday())
	for _, b := range in.Blocks {
		if b.ProviderID != p.ID || !b.Active || b.DayOfWeek != weekday {
			continue
		}
		if !treatment.Contains(b.TreatmentTypes, in.TreatmentType) {
			continue
		}
		base = append(base, slice(p, d, in.TreatmentType, b.StartTime, b.EndTime, b.SlotDurationMinutes, SourceSchedule)...)
	}
	var added []Slot
	for _, o := range additions {
		added = append(added, slice(p, d, in.TreatmentType, *o.StartTime, *o.EndTime, addMinutes, SourceOverride)...)
	}

	base = removeBlocked(base, blocks)
	added = removeBlocked(added, blocks)

	accepted := dedupe(base, added)

	out := accepted[:0]
	for _, s := range accepted {
		if collides(s, booked) {
			continue
		}
		if !in.NotBefore.IsZero() && d.At(s.StartTime, in.Location).Before(in.NotBefore) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// slice cuts [start, end) into consecutive slots of minutes length. A
// trailing remainder shorter than minutes is dropped.
func slice(p *ProviderRef, d Date, tt treatment.Type, start, end ClockTime, minutes int, source string) []Slot {
	if minutes <= 0 {
		return nil
	}
	var out []Slot
	for t := start; t.Add(minutes) <= end && t.Add(minutes) <= minutesPerDay; t = t.Add(minutes) {
		out = append(out, Slot{
			ProviderID:      p.ID,
			Date:            d,
			StartTime:       t,
			EndTime:         t.Add(minutes),
			DurationMinutes: minutes,
			TreatmentType:   tt,
			Source:          source,
		})
	}
	return out
}

func removeBlocked(slots []Slot, blocks []AvailabilityOverride) []Slot {
	if len(blocks) == 0 {
		return slots
	}
	out := slots[:0]
	for _, s := range slots {
		blocked := false
		for _, b := range blocks {
			if s.overlaps(*b.StartTime, *b.EndTime) {
				blocked = true
				break
			}
		}
		if !blocked {
			out = append(out, s)
		}
	}
	return out
}

// dedupe accepts base slots greedily by earliest start, then admits
// additions that overlap nothing already accepted. The result is sorted.
func dedupe(base, added []Slot) []Slot {
	byStart := func(s []Slot) {
		sort.SliceStable(s, func(i, j int) bool {
			if s[i].StartTime != s[j].StartTime {
				return s[i].StartTime < s[j].StartTime
			}
			return s[i].EndTime < s[j].EndTime
		})
	}
	byStart(base)
	byStart(added)

	var accepted []Slot
	for _, s := range base {
		if n := len(accepted); n > 0 && s.StartTime < accepted[n-1].EndTime {
			continue
		}
		accepted = append(accepted, s)
	}
	for _, s := range added {
		clash := false
		for _, a := range accepted {
			if s.overlaps(a.StartTime, a.EndTime) {
				clash = true
				break
			}
		}
		if !clash {
			accepted = append(accepted, s)
		}
	}
	byStart(accepted)
	return accepted
}

func collides(s Slot, booked []Appointment) bool {
	for i := range booked {
		if s.overlaps(booked[i].StartTime, booked[i].EndTime()) {
			return true
		}
	}
	return false
}
