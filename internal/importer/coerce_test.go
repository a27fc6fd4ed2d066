package importer

import (
	"testing"
	"time"
)

func TestParseDateFullLayouts(t *testing.T) {
	now := time.Date(2025, time.October, 5, 12, 0, 0, 0, time.UTC)
	def := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		raw  string
		want time.Time
	}{
		{"2025-03-18", time.Date(2025, time.March, 18, 0, 0, 0, 0, time.UTC)},
		{"2025/03/18", time.Date(2025, time.March, 18, 0, 0, 0, 0, time.UTC)},
		{"12/03/2025", time.Date(2025, time.March, 12, 0, 0, 0, 0, time.UTC)},
		{"2-1-2025", time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, ok := ParseDate(tc.raw, def, now)
		if !ok {
			t.Fatalf("expected %q to parse", tc.raw)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("ParseDate(%q) = %s, want %s", tc.raw, got, tc.want)
		}
	}
}

func TestParseDateCompactDayMonth(t *testing.T) {
	now := time.Date(2025, time.October, 5, 12, 0, 0, 0, time.UTC)

	got, ok := ParseDate("1-Sep", time.Time{}, now)
	if !ok {
		t.Fatalf("expected 1-Sep to parse")
	}
	want := time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("ParseDate(1-Sep) = %s, want %s", got, want)
	}

	if _, ok := ParseDate("31-Feb", time.Time{}, now); ok {
		t.Fatalf("expected 31-Feb to fail, day overflows the month")
	}
}

func TestParseDateFallsBackToDefault(t *testing.T) {
	now := time.Date(2025, time.October, 5, 0, 0, 0, 0, time.UTC)
	def := time.Date(2025, time.October, 4, 0, 0, 0, 0, time.UTC)

	got, ok := ParseDate("not-a-date", def, now)
	if ok {
		t.Fatalf("expected not-a-date to report a parse failure")
	}
	if !got.Equal(def) {
		t.Fatalf("expected default %s, got %s", def, got)
	}

	got, ok = ParseDate("", def, now)
	if !ok {
		t.Fatalf("blank input is a clean default, not a parse failure")
	}
	if !got.Equal(def) {
		t.Fatalf("expected default %s for blank input, got %s", def, got)
	}
}

func TestParseCount(t *testing.T) {
	cases := []struct {
		raw    string
		want   int
		wantOK bool
	}{
		{"", 0, true},
		{"42", 42, true},
		{"42.0", 42, true},
		{"abc", 0, false},
		{"3.5", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseCount(tc.raw)
		if got != tc.want || ok != tc.wantOK {
			t.Fatalf("ParseCount(%q) = (%d, %t), want (%d, %t)", tc.raw, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestParseDecimal(t *testing.T) {
	got, ok := ParseDecimal("26.32556")
	if !ok || got != 26.32556 {
		t.Fatalf("ParseDecimal(26.32556) = (%v, %t)", got, ok)
	}
	if got, ok := ParseDecimal(""); got != 0 || !ok {
		t.Fatalf("blank decimal should default cleanly, got (%v, %t)", got, ok)
	}
	if got, ok := ParseDecimal("north"); got != 0 || ok {
		t.Fatalf("unparseable decimal should report failure, got (%v, %t)", got, ok)
	}
}

func TestParseTruthy(t *testing.T) {
	if !ParseTruthy("Yes") || !ParseTruthy(" TRUE ") {
		t.Fatalf("expected yes/true to be truthy")
	}
	if ParseTruthy("no") || ParseTruthy("") || ParseTruthy("1") {
		t.Fatalf("expected everything else to be falsy")
	}
}

func TestNormalizePhone(t *testing.T) {
	profile := DefaultPhoneProfile()

	cases := []struct {
		raw  string
		want string
	}{
		{"533871699", "+966533871699"},
		{"0533871699", "+966533871699"},
		{"966533871699", "+966533871699"},
		{"+966533871699", "+966533871699"},
		{"053 387 1699", "+966533871699"},
		{"٠٥٣٣٨٧١٦٩٩", "+966533871699"},
		{"", ""},
		{"12345", "12345"},
	}
	for _, tc := range cases {
		if got := NormalizePhone(tc.raw, profile); got != tc.want {
			t.Fatalf("NormalizePhone(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}
