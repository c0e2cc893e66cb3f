package util

import "testing"

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "report.pdf", want: "report.pdf"},
		{in: "  q2 earnings.pdf ", want: "q2 earnings.pdf"},
		{in: "a/b\\c.pdf", want: "a_b_c.pdf"},
		{in: "../../etc/passwd", wantErr: true},
		{in: "   ", wantErr: true},
	}
	for _, tc := range cases {
		got, err := SanitizeFileName(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("SanitizeFileName(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("SanitizeFileName(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("SanitizeFileName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestHashOwnerKeyIsStableAndSafe(t *testing.T) {
	a := HashOwnerKey("user-1")
	b := HashOwnerKey("user-1")
	if a != b {
		t.Fatal("expected stable hash")
	}
	if a == HashOwnerKey("user-2") {
		t.Fatal("expected distinct hashes for distinct owners")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}
