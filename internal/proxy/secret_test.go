package proxy

import (
	"encoding/hex"
	"strings"
	"testing"
)

// domainSecret builds an ee-flavored secret: marker, 16 key bytes, then the
// domain in ASCII.
func domainSecret(domain string) string {
	b := append([]byte{0xee}, make([]byte, 16)...)
	for i := 1; i < 17; i++ {
		b[i] = byte(i)
	}
	b = append(b, domain...)
	return hex.EncodeToString(b)
}

func TestIsDomainSecret(t *testing.T) {
	cases := []struct {
		name   string
		secret string
		want   bool
	}{
		{"embedded domain", domainSecret("example.com"), true},
		{"dd secret", "dd" + strings.Repeat("00", 16), false},
		{"ee but too short", "ee0011223344", false},
		{"ee but no dot", hex.EncodeToString(append(append([]byte{0xee}, make([]byte, 16)...), "nodothere"...)), false},
		{"plain secret", strings.Repeat("ab", 16), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsDomainSecret(tc.secret); got != tc.want {
				t.Fatalf("IsDomainSecret(%q) = %v, want %v", tc.secret, got, tc.want)
			}
		})
	}
}

func TestExtractDomain(t *testing.T) {
	s := domainSecret("example.com")
	domain, ok := ExtractDomain(s)
	if !ok || domain != "example.com" {
		t.Fatalf("ExtractDomain = %q, %v; want example.com", domain, ok)
	}
}

func TestExtractDomainTrimsJunk(t *testing.T) {
	// Non-hostname bytes around the domain must be filtered, and stray
	// leading/trailing separators trimmed.
	b := append([]byte{0xee}, make([]byte, 16)...)
	b = append(b, 0x01, '.', 'w', 'e', 'b', '.', 'e', 'x', 'a', 'm', 'p', 'l', 'e', 0x07, '-')
	domain, ok := ExtractDomain(hex.EncodeToString(b))
	if !ok || domain != "web.example" {
		t.Fatalf("ExtractDomain = %q, %v; want web.example", domain, ok)
	}
}

func TestExtractDomainRequiresDot(t *testing.T) {
	b := append(append([]byte{0xee}, make([]byte, 16)...), "localhost"...)
	if _, ok := ExtractDomain(hex.EncodeToString(b)); ok {
		t.Fatal("expected no domain without a dot")
	}
}

func TestVariantsOrderAndContent(t *testing.T) {
	s := "ee" + strings.Repeat("0102", 8) + "01020304"
	got := Variants(s)

	wantLabels := []string{"orig", "strip_prefix", "ee_to_dd"}
	if len(got) != len(wantLabels) {
		t.Fatalf("got %d variants, want %d: %+v", len(got), len(wantLabels), got)
	}
	for i, label := range wantLabels {
		if got[i].Label != label {
			t.Fatalf("variant %d label = %q, want %q", i, got[i].Label, label)
		}
	}
	if got[1].Hex != s[2:] {
		t.Fatalf("strip_prefix = %q", got[1].Hex)
	}
	if got[2].Hex != "dd"+s[2:] {
		t.Fatalf("ee_to_dd = %q", got[2].Hex)
	}
}

func TestVariantsDDSwap(t *testing.T) {
	s := "dd" + strings.Repeat("ab", 17)
	got := Variants(s)
	last := got[len(got)-1]
	if last.Label != "dd_to_ee" || last.Hex != "ee"+s[2:] {
		t.Fatalf("expected dd_to_ee swap, got %+v", got)
	}
}

func TestVariantsShortSecretSkipsSwaps(t *testing.T) {
	// 34 hex digits is the cutoff: marker swaps need strictly more.
	s := "ee" + strings.Repeat("00", 16)
	for _, v := range Variants(s) {
		if v.Label == "ee_to_dd" || v.Label == "dd_to_ee" {
			t.Fatalf("swap variant generated for short secret: %+v", v)
		}
	}
}

func TestVariantsAlwaysValidHexAndUnique(t *testing.T) {
	inputs := []string{
		"ee" + strings.Repeat("0102", 10),
		"dd" + strings.Repeat("beef", 9),
		strings.Repeat("aa", 16),
		domainSecret("decoy.example.org"),
	}
	for _, in := range inputs {
		seen := map[string]bool{}
		for _, v := range Variants(in) {
			if len(v.Hex)%2 != 0 {
				t.Fatalf("odd-length variant %q from %q", v.Hex, in)
			}
			if _, err := hex.DecodeString(v.Hex); err != nil {
				t.Fatalf("non-hex variant %q from %q", v.Hex, in)
			}
			if seen[v.Hex] {
				t.Fatalf("duplicate variant %q from %q", v.Hex, in)
			}
			seen[v.Hex] = true
		}
	}
}

func TestVariantsDedupe(t *testing.T) {
	// dd + all-identical tail: strip and swap can collide with each other
	// only through the dedupe guard, which must hold regardless.
	s := "dddd" + strings.Repeat("dd", 16)
	got := Variants(s)
	seen := map[string]bool{}
	for _, v := range got {
		if seen[v.Hex] {
			t.Fatalf("duplicate %q in %+v", v.Hex, got)
		}
		seen[v.Hex] = true
	}
}
