package repository

import (
	"strings"
	"testing"
)

func TestNewCouponCode(t *testing.T) {
	seen := make(map[string]struct{})
	for range 1000 {
		code, err := NewCouponCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != 9 || code[4] != '-' {
			t.Fatalf("bad format %q", code)
		}
		for _, r := range strings.ReplaceAll(code, "-", "") {
			if !strings.ContainsRune(codeAlphabet, r) {
				t.Fatalf("code %q has symbol %q outside the alphabet", code, r)
			}
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 990 {
		t.Fatalf("too many duplicates: %d unique of 1000", len(seen))
	}
}

func TestNormalizeCode(t *testing.T) {
	cases := map[string]string{
		"abcd-efgh":  "ABCD-EFGH",
		" abcdefgh ": "ABCD-EFGH",
		"ABCD-EFGH":  "ABCD-EFGH",
		"short":      "SHORT",
	}
	for in, want := range cases {
		if got := NormalizeCode(in); got != want {
			t.Errorf("NormalizeCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFileDSN(t *testing.T) {
	if _, err := FileDSN("  "); err != ErrPathRequired {
		t.Fatalf("empty path: %v", err)
	}
	dsn, err := FileDSN("data/attest.db")
	if err != nil || !strings.HasPrefix(dsn, "file:/") || !strings.Contains(dsn, "journal_mode(WAL)") {
		t.Fatalf("dsn: %q, %v", dsn, err)
	}
	if dsn, _ := FileDSN(MemoryDSN); !strings.HasPrefix(dsn, "file::memory:") {
		t.Fatalf("memory dsn: %q", dsn)
	}
}
