package scan

import (
	"strings"
	"testing"
)

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestExtractSoundNames(t *testing.T) {
	tests := []struct {
		name string
		code string
		want []string
	}{
		{
			name: "index suffix and brackets",
			code: `s("bd sd:2 [hh*2]").bank("tr909")`,
			want: []string{"bd", "hh", "sd"},
		},
		{
			name: "method form and quote styles",
			code: "note(\"c e g\").sound('gm_piano')\n$: n(\"0 1\").s(`jazz casio:3`)",
			want: []string{"casio", "gm_piano", "jazz"},
		},
		{
			name: "alternation and euclid",
			code: `s("<bd sd>(3,8), ~ hh!2 cp@3 oh?")`,
			want: []string{"bd", "cp", "hh", "oh", "sd"},
		},
		{
			name: "duplicates collapse",
			code: `s("bd bd bd"); sound("bd")`,
			want: []string{"bd"},
		},
		{
			name: "digits lead names but are not names",
			code: `s("808bd 808 3")`,
			want: []string{"808bd"},
		},
		{
			name: "other calls ignored",
			code: `samples("github:tidalcycles/dirt-samples"); bass("x"); note("c3")`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractSoundNames(tt.code); !equal(got, tt.want) {
				t.Errorf("ExtractSoundNames() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractBankUsage(t *testing.T) {
	got := ExtractBankUsage(`s("bd sd:2 [hh*2]").bank("tr909")`)
	if len(got) != 1 {
		t.Fatalf("ExtractBankUsage() = %v, want one usage", got)
	}
	if got[0].Bank != "tr909" || !equal(got[0].Sounds, []string{"bd", "sd", "hh"}) {
		t.Errorf("usage = %+v, want (tr909, [bd sd hh])", got[0])
	}
}

func TestExtractBankUsageMergesSameBank(t *testing.T) {
	code := `stack(s("bd*4").bank('RolandTR808'), s("cp").bank('RolandTR808'))`
	got := ExtractBankUsage(code)
	if len(got) != 1 || got[0].Bank != "RolandTR808" {
		t.Fatalf("ExtractBankUsage() = %v", got)
	}
	if !equal(got[0].Sounds, []string{"bd", "cp"}) {
		t.Errorf("sounds = %v", got[0].Sounds)
	}
}

// The window is a heuristic: sounds far from bank() are not associated
func TestExtractBankUsageWindow(t *testing.T) {
	code := `s("hh")` + strings.Repeat(" ", 300) + `.bank("tr808")`
	got := ExtractBankUsage(code)
	if len(got) != 1 || len(got[0].Sounds) != 0 {
		t.Errorf("ExtractBankUsage() = %+v, want bank with no sounds", got)
	}

	wide := Heuristic{Window: 400}.ExtractBankUsage(code)
	if len(wide) != 1 || !equal(wide[0].Sounds, []string{"hh"}) {
		t.Errorf("wide window = %+v", wide)
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("bd:3 [sd, hh*2] <cp ~> rim/2 {lt mt}%4")
	want := []string{"bd", "sd", "hh", "cp", "rim", "lt", "mt"}
	if !equal(got, want) {
		t.Errorf("Tokens() = %v, want %v", got, want)
	}
}
