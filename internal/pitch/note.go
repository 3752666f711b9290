package pitch

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"gitlab.com/gomidi/midi/v2"
)

// DefaultMidi is the target pitch used when an event carries none
const DefaultMidi = 36

var semitones = map[byte]int{
	'c': 0, 'd': 2, 'e': 4, 'f': 5, 'g': 7, 'a': 9, 'b': 11,
}

// Bank keys: letter, optional # / b / s accidental, signed octave
var noteKeyPattern = regexp.MustCompile(`^([A-Ga-g])([#bs]?)(-?\d+)$`)

// Free-form names in events: any run of accidentals, octave optional
var looseNotePattern = regexp.MustCompile(`^([A-Ga-g])([#bsf]*)(-?\d*)$`)

// ParseNote parses a bank key such as "A0", "C#4", "Eb2" or "Ds1" (trailing
// s before the octave means sharp) into a MIDI number.
func ParseNote(key string) (int, bool) {
	m := noteKeyPattern.FindStringSubmatch(key)
	if m == nil {
		return 0, false
	}
	octave, err := strconv.Atoi(m[3])
	if err != nil {
		return 0, false
	}

	n := (octave+1)*12 + semitones[lower(m[1][0])]
	switch m[2] {
	case "#", "s":
		n++
	case "b":
		n--
	}
	return n, true
}

// parseLooseNote accepts stacked accidentals (#, s sharp; b, f flat) and a
// missing octave, which defaults to 3
func parseLooseNote(name string) (int, bool) {
	m := looseNotePattern.FindStringSubmatch(strings.TrimSpace(name))
	if m == nil {
		return 0, false
	}

	octave := 3
	switch m[3] {
	case "":
	case "-":
		return 0, false
	default:
		o, err := strconv.Atoi(m[3])
		if err != nil {
			return 0, false
		}
		octave = o
	}

	n := (octave+1)*12 + semitones[lower(m[1][0])]
	for _, acc := range m[2] {
		switch acc {
		case '#', 's':
			n++
		case 'b', 'f':
			n--
		}
	}
	return n, true
}

// NoteToMidi parses a note name with the bank-key grammar first and the
// looser event grammar second
func NoteToMidi(name string) (int, bool) {
	if n, ok := ParseNote(name); ok {
		return n, true
	}
	return parseLooseNote(name)
}

// FreqToMidi converts a frequency in Hz to the nearest MIDI note
func FreqToMidi(freq float64) float64 {
	return math.Round(12*math.Log2(freq/440) + 69)
}

// SpeedFor returns the playback-rate ratio that shifts sample to target
func SpeedFor(target, sample float64) float64 {
	return math.Pow(2, (target-sample)/12)
}

// NoteName renders a MIDI number as a display name, e.g. 60 -> "C4"
func NoteName(n int) string {
	if n < 0 || n > 127 {
		return strconv.Itoa(n)
	}
	return midi.Note(uint8(n)).Name() + strconv.Itoa(n/12-1)
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}
