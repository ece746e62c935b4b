package lock

import (
	"testing"
)

var allModes = []LockMode{ModeNone, ModeIS, ModeIX, ModeS, ModeX}

func TestCompatibility(t *testing.T) {
	compatible := map[[2]LockMode]bool{
		{ModeIS, ModeIS}: true,
		{ModeIS, ModeIX}: true,
		{ModeIS, ModeS}:  true,
		{ModeIS, ModeX}:  false,
		{ModeIX, ModeIX}: true,
		{ModeIX, ModeS}:  false,
		{ModeIX, ModeX}:  false,
		{ModeS, ModeS}:   true,
		{ModeS, ModeX}:   false,
		{ModeX, ModeX}:   false,
	}

	for pair, want := range compatible {
		a, b := pair[0], pair[1]
		if got := a.Compatible(b); got != want {
			t.Errorf("%s.Compatible(%s) = %v, want %v", a, b, got, want)
		}
		// the relation is symmetric
		if got := b.Compatible(a); got != want {
			t.Errorf("%s.Compatible(%s) = %v, want %v", b, a, got, want)
		}
	}

	// NONE conflicts with nothing
	for _, m := range allModes {
		if !ModeNone.Compatible(m) || !m.Compatible(ModeNone) {
			t.Errorf("NONE must be compatible with %s", m)
		}
	}
}

func TestCovers(t *testing.T) {
	covers := map[LockMode][]LockMode{
		ModeNone: {ModeNone},
		ModeIS:   {ModeNone, ModeIS},
		ModeIX:   {ModeNone, ModeIS, ModeIX},
		ModeS:    {ModeNone, ModeIS, ModeS},
		ModeX:    {ModeNone, ModeIS, ModeIX, ModeS, ModeX},
	}

	for held, coveredList := range covers {
		covered := make(map[LockMode]bool)
		for _, m := range coveredList {
			covered[m] = true
		}
		for _, m := range allModes {
			if got := held.Covers(m); got != covered[m] {
				t.Errorf("%s.Covers(%s) = %v, want %v", held, m, got, covered[m])
			}
		}
	}

	// S and IX are incomparable in both directions
	if ModeS.Covers(ModeIX) || ModeIX.Covers(ModeS) {
		t.Errorf("S and IX must not cover each other")
	}
}

func TestIntentOf(t *testing.T) {
	cases := map[LockMode]LockMode{
		ModeIS: ModeIS,
		ModeS:  ModeIS,
		ModeIX: ModeIX,
		ModeX:  ModeIX,
	}
	for m, want := range cases {
		if got := m.IntentOf(); got != want {
			t.Errorf("%s.IntentOf() = %s, want %s", m, got, want)
		}
	}
	if got := ModeNone.IntentOf(); got != ModeNone {
		t.Errorf("NONE.IntentOf() = %s, want NONE", got)
	}
}

func TestModePredicates(t *testing.T) {
	for _, m := range allModes {
		wantIntent := m == ModeIS || m == ModeIX
		if got := m.IsIntent(); got != wantIntent {
			t.Errorf("%s.IsIntent() = %v, want %v", m, got, wantIntent)
		}
		wantShared := m == ModeIS || m == ModeS
		if got := m.IsShared(); got != wantShared {
			t.Errorf("%s.IsShared() = %v, want %v", m, got, wantShared)
		}
	}
}

func TestModeString(t *testing.T) {
	want := map[LockMode]string{
		ModeNone: "NONE",
		ModeIS:   "IS",
		ModeIX:   "IX",
		ModeS:    "S",
		ModeX:    "X",
	}
	for m, s := range want {
		if got := m.String(); got != s {
			t.Errorf("String() = %q, want %q", got, s)
		}
	}
	if got := LockMode(99).String(); got != "INVALID" {
		t.Errorf("String() of an out-of-range mode = %q, want INVALID", got)
	}
}
