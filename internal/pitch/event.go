package pitch

import (
	"encoding/json"
	"maps"
)

// Event is the value of a scheduled trigger: sound name, pitch and
// playback parameters keyed by control name
type Event map[string]any

// Pitch fields consumed by AdjustEvent
const (
	FieldFreq     = "freq"
	FieldNote     = "note"
	FieldMidiNote = "midinote"
	FieldIndex    = "n"
	FieldSpeed    = "speed"
)

// ResolveTargetMidi reads the pitch an event asks for, with the engine's
// precedence: freq, numeric note, note name, midinote, then DefaultMidi.
func ResolveTargetMidi(ev Event) float64 {
	if f, ok := number(ev[FieldFreq]); ok && f > 0 {
		return FreqToMidi(f)
	}

	switch v := ev[FieldNote].(type) {
	case string:
		if n, ok := NoteToMidi(v); ok {
			return float64(n)
		}
	default:
		if n, ok := number(v); ok {
			return n
		}
	}

	if n, ok := number(ev[FieldMidiNote]); ok {
		return n
	}
	return DefaultMidi
}

// AdjustEvent rewrites a copy of ev for a pitched bank: n becomes the
// nearest sample, speed is multiplied by the residual shift and the pitch
// fields are removed. Events for other banks come back untouched with
// ok false.
func (r *Registry) AdjustEvent(bank string, ev Event) (Event, bool) {
	index, speed, ok := r.NearestSampleAndSpeed(bank, ResolveTargetMidi(ev))
	if !ok {
		return ev, false
	}

	out := maps.Clone(ev)
	if out == nil {
		out = Event{}
	}
	if prev, ok := number(out[FieldSpeed]); ok {
		speed *= prev
	}
	out[FieldIndex] = index
	out[FieldSpeed] = speed
	delete(out, FieldFreq)
	delete(out, FieldNote)
	delete(out, FieldMidiNote)
	return out, true
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
