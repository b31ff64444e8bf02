package textutil_test

import (
	"testing"

	"granth/internal/textutil"
)

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Adhyatma Prakasha", "adhyatma-prakasha"},
		{"  Vedanta -- An Introduction  ", "vedanta-an-introduction"},
		{"Prashnottara (Q&A)", "prashnottara-qa"},
		{"already-sluggy", "already-sluggy"},
		{"", ""},
		{"---", ""},
	}
	for _, tc := range cases {
		if got := textutil.Slugify(tc.in); got != tc.want {
			t.Errorf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeKeyEquivalence(t *testing.T) {
	pairs := [][2]string{
		{"Gita", "gita"},
		{"  Gita   Bhashya ", "gita bhashya"},
		{"GITA\tBHASHYA", "Gita Bhashya"},
		// NFD vs NFC composition of é
		{"café", "café"},
	}
	for _, pair := range pairs {
		a := textutil.NormalizeKey(pair[0])
		b := textutil.NormalizeKey(pair[1])
		if a != b {
			t.Errorf("NormalizeKey(%q)=%q differs from NormalizeKey(%q)=%q", pair[0], a, pair[1], b)
		}
	}
}

func TestNormalizeKeyDistinct(t *testing.T) {
	if textutil.NormalizeKey("Gita") == textutil.NormalizeKey("Gita Bhashya") {
		t.Fatal("distinct strings must not collide")
	}
}

func TestPadIdentifier(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"7", "007"},
		{"42", "042"},
		{"123", "123"},
		{"1234", "1234"},
		{"12A", "012A"},
		{"", ""},
		{"abc", "abc"},
	}
	for _, tc := range cases {
		if got := textutil.PadIdentifier(tc.in, 3); got != tc.want {
			t.Errorf("PadIdentifier(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
