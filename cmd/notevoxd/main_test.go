package main

import "testing"

func TestNoteForKey(t *testing.T) {
	cases := []struct {
		key  rune
		note int
		ok   bool
	}{
		{'0', 48, true},
		{'9', 57, true},
		{'a', 60, true},
		{'c', 62, true},
		{'z', 85, true},
		{'P', 0, false},
		{' ', 0, false},
		{'!', 0, false},
	}
	for _, c := range cases {
		note, ok := noteForKey(c.key)
		if ok != c.ok || note != c.note {
			t.Fatalf("key %q: got (%d, %v), want (%d, %v)", c.key, note, ok, c.note, c.ok)
		}
	}
}
