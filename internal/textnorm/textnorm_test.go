package textnorm

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "whitespace only", in: "   \t ", want: ""},
		{name: "bare quotes", in: `""`, want: ""},
		{name: "plain", in: "Game Night", want: "game night"},
		{name: "padding", in: "  Game Night  ", want: "game night"},
		{name: "straight double quotes", in: `"Game Night"`, want: "game night"},
		{name: "straight single quotes", in: `'Game Night'`, want: "game night"},
		{name: "curly double quotes", in: "“Game Night”", want: "game night"},
		{name: "curly single quotes", in: "‘Game Night’", want: "game night"},
		{name: "mixed curly and straight", in: "“Game Night\"", want: "game night"},
		{name: "padding inside quotes", in: `"  Game Night "`, want: "game night"},
		{name: "only one layer stripped", in: `""Game""`, want: `"game"`},
		{name: "unmatched quote kept", in: `"Game Night`, want: `"game night`},
		{name: "apostrophe inside kept", in: "Tom's Party", want: "tom's party"},
		{name: "full case folding", in: "STRASSE Straße", want: "strasse strasse"},
		{name: "greek final sigma folds", in: "ΟΔΟΣ", want: "οδοσ"},
		{name: "compatibility forms", in: "Ｇａｍｅ", want: "game"},
		{name: "composed vs decomposed", in: "Café", want: "café"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.in); got != tc.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeEquivalences(t *testing.T) {
	variants := []string{
		"Game Night",
		"game night",
		"GAME NIGHT",
		"  Game Night\t",
		`"Game Night"`,
		`'game night'`,
		"“Game Night”",
		"‘GAME NIGHT’",
	}
	want := Normalize(variants[0])
	for _, v := range variants[1:] {
		if got := Normalize(v); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", v, got, want)
		}
	}
}

func TestEqual(t *testing.T) {
	if !Equal(`"Game Night"`, "game night") {
		t.Fatalf("expected quoted and unquoted names to be equal")
	}
	if Equal("", "") {
		t.Fatalf("empty strings must never be equal")
	}
	if Equal("Game", "Game Night") {
		t.Fatalf("substring must not be equal")
	}
}
