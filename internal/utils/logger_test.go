package utils

import "testing"

func TestFormatEvent(t *testing.T) {
	got := formatEvent(" req-1 ", "ticket", "create", "trip_id=7 seat=A1")
	want := "[TICKET] action=create request_id=req-1 msg=trip_id=7 seat=A1"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFormatEventKeepsOneLine(t *testing.T) {
	got := formatEvent("", "jobs", "sweep", "a\nb\r\nc")
	want := "[JOBS] action=sweep request_id=- msg=a b  c"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestNormalizeSeat(t *testing.T) {
	cases := map[string]string{" a1": "A1", "b 2 ": "B2", "": "", "C10": "C10"}
	for in, want := range cases {
		if got := NormalizeSeat(in); got != want {
			t.Fatalf("NormalizeSeat(%q) = %q, want %q", in, got, want)
		}
	}
	if got := NormalizeSpace("  Panama   City "); got != "Panama City" {
		t.Fatalf("NormalizeSpace = %q", got)
	}
}
