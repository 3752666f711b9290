package pitch

import (
	"math"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/dygy/strudel-samples/internal/manifest"
)

func keyed(pairs ...string) manifest.Samples {
	s := manifest.Samples{Notes: []manifest.NoteFile{}}
	for i := 0; i+1 < len(pairs); i += 2 {
		s.Notes = append(s.Notes, manifest.NoteFile{Key: pairs[i], File: pairs[i+1]})
	}
	return s
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name    string
		samples manifest.Samples
		pitched bool
		midi    []int
		count   int
	}{
		{
			name:    "flat list",
			samples: manifest.Samples{Files: []string{"kick.wav", "snare.wav"}},
			count:   2,
		},
		{
			name:    "note keyed sorted ascending",
			samples: keyed("C1", "c1.mp3", "A0", "a0.mp3", "Ds1", "ds1.mp3"),
			pitched: true,
			midi:    []int{21, 24, 27},
			count:   3,
		},
		{
			name:    "unparsable keys dropped",
			samples: keyed("A0", "a0.mp3", "A1", "a1.mp3", "A2", "a2.mp3", "loop", "loop.wav"),
			pitched: true,
			midi:    []int{21, 33, 45},
			count:   3,
		},
		{
			name:    "half parse is not enough",
			samples: keyed("A0", "a0.mp3", "A1", "a1.mp3", "kick", "k.wav", "snare", "s.wav"),
			count:   4,
		},
		{
			name:    "single parsed key",
			samples: keyed("A0", "a0.mp3"),
			count:   1,
		},
		{
			name:    "underscore keys ignored",
			samples: keyed("_meta", "x", "A0", "a0.mp3", "A1", "a1.mp3"),
			pitched: true,
			midi:    []int{21, 33},
			count:   2,
		},
		{
			name:    "opaque keys",
			samples: keyed("kick", "kick.wav", "snare", "snare.wav"),
			count:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			meta := r.Register("bank", tt.samples)

			if meta.IsPitched != tt.pitched {
				t.Errorf("IsPitched = %v, want %v", meta.IsPitched, tt.pitched)
			}
			if meta.SampleCount != tt.count {
				t.Errorf("SampleCount = %d, want %d", meta.SampleCount, tt.count)
			}
			if len(meta.SampleMidiNotes) != len(tt.midi) {
				t.Fatalf("SampleMidiNotes = %v, want %v", meta.SampleMidiNotes, tt.midi)
			}
			for i := range tt.midi {
				if meta.SampleMidiNotes[i] != tt.midi[i] {
					t.Errorf("SampleMidiNotes = %v, want %v", meta.SampleMidiNotes, tt.midi)
					break
				}
			}
			if got, ok := r.Get("bank"); !ok || got.SampleCount != meta.SampleCount {
				t.Errorf("Get() = %+v, %v", got, ok)
			}
		})
	}
}

func TestOrderPutsUnparsedLast(t *testing.T) {
	entries, pitched := Order(keyed("C2", "c2.wav", "fx", "fx.wav", "C1", "c1.wav", "C3", "c3.wav"))
	if !pitched {
		t.Fatal("expected pitched bank")
	}
	want := []string{"c1.wav", "c2.wav", "c3.wav", "fx.wav"}
	for i, e := range entries {
		if e.File != want[i] {
			t.Errorf("entries[%d] = %s, want %s", i, e.File, want[i])
		}
	}
}

func TestRegisterFromFilenames(t *testing.T) {
	r := NewRegistry()

	meta, ok := r.RegisterFromFilenames("gm_piano", []string{
		"000_note021.wav", "001_note033.wav", "002_note045.wav", "notes.txt",
	})
	if !ok {
		t.Fatal("expected registration")
	}
	if !meta.IsSoundfont || !meta.IsPitched || meta.SampleCount != 3 {
		t.Errorf("meta = %+v", meta)
	}
	if meta.SampleMidiNotes[2] != 45 {
		t.Errorf("SampleMidiNotes = %v", meta.SampleMidiNotes)
	}

	if _, ok := r.RegisterFromFilenames("one", []string{"000_note021.wav"}); ok {
		t.Error("a single file must not register")
	}
	if _, ok := r.RegisterFromFilenames("plain", []string{"000_kick.wav", "001_snare.wav"}); ok {
		t.Error("positional names must not register")
	}
	if _, ok := r.Get("plain"); ok {
		t.Error("failed registration stored metadata")
	}
}

func TestNearestSampleAndSpeed(t *testing.T) {
	r := NewRegistry()
	r.Put(BankMetadata{Name: "piano", IsPitched: true, SampleMidiNotes: []int{21, 33, 45}, SampleCount: 3})
	r.Put(BankMetadata{Name: "tie", IsPitched: true, SampleMidiNotes: []int{40, 44}, SampleCount: 2})
	r.Put(BankMetadata{Name: "drums", SampleCount: 4})

	index, speed, ok := r.NearestSampleAndSpeed("piano", 39)
	if !ok || index != 1 {
		t.Fatalf("piano/39 = %d, %v, %v; want index 1", index, speed, ok)
	}
	if math.Abs(speed-math.Sqrt2) > 1e-4 {
		t.Errorf("speed = %v, want ~1.4142", speed)
	}

	index, speed, ok = r.NearestSampleAndSpeed("tie", 42)
	if !ok || index != 0 {
		t.Errorf("tie/42 = %d, want first index 0", index)
	}
	if math.Abs(speed-SpeedFor(42, 40)) > 1e-9 {
		t.Errorf("tie speed = %v", speed)
	}

	if _, _, ok := r.NearestSampleAndSpeed("drums", 60); ok {
		t.Error("unpitched bank should not map")
	}
	if _, _, ok := r.NearestSampleAndSpeed("missing", 60); ok {
		t.Error("unknown bank should not map")
	}
}

func TestReset(t *testing.T) {
	r := NewRegistry()
	r.Register("bd", manifest.Samples{Files: []string{"a.wav"}})
	r.Reset()
	if len(r.Banks()) != 0 {
		t.Errorf("Banks() after Reset = %v", r.Banks())
	}
}

func TestNearestSampleProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("chosen sample is the first at minimal distance", prop.ForAll(
		func(notes []int, target int) bool {
			sort.Ints(notes)
			r := NewRegistry()
			r.Put(BankMetadata{Name: "b", IsPitched: true, SampleMidiNotes: notes, SampleCount: len(notes)})

			index, _, ok := r.NearestSampleAndSpeed("b", float64(target))
			if !ok {
				return false
			}
			d := abs(notes[index] - target)
			for i, n := range notes {
				if abs(n-target) < d || (abs(n-target) == d && i < index) {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(6, gen.IntRange(0, 127)),
		gen.IntRange(0, 127),
	))

	properties.Property("speed restores the target pitch", prop.ForAll(
		func(notes []int, target int) bool {
			sort.Ints(notes)
			r := NewRegistry()
			r.Put(BankMetadata{Name: "b", IsPitched: true, SampleMidiNotes: notes, SampleCount: len(notes)})

			index, speed, _ := r.NearestSampleAndSpeed("b", float64(target))
			shifted := float64(notes[index]) + 12*math.Log2(speed)
			return math.Abs(shifted-float64(target)) < 1e-9
		},
		gen.SliceOfN(4, gen.IntRange(0, 127)),
		gen.IntRange(0, 127),
	))

	properties.TestingRun(t)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
