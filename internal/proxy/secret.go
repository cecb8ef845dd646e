package proxy

import (
	"encoding/hex"
	"strings"
)

// MTProto secret markers. A dd marker asks clients for the padded transport,
// an ee marker carries a fake-TLS domain after the 16-byte key.
const (
	markerPadded  = "dd"
	markerFakeTLS = "ee"
)

// headerLen is the number of secret bytes preceding the embedded domain in
// an ee-flavored secret (1 marker byte + 16 key bytes).
const headerLen = 17

// Variant is one candidate reinterpretation of a proxy secret, tried in
// generation order during the protocol probe.
type Variant struct {
	Label string
	Hex   string
}

// IsDomainSecret reports whether the canonical hex secret looks like an
// ee-flavored secret with an embedded decoy domain: ee marker, at least 40
// hex digits, and printable bytes past the key header containing a dot and
// a letter.
func IsDomainSecret(secretHex string) bool {
	s := strings.ToLower(strings.TrimSpace(secretHex))
	if !strings.HasPrefix(s, markerFakeTLS) || len(s) < 40 {
		return false
	}
	b, err := hex.DecodeString(s)
	if err != nil || len(b) <= headerLen {
		return false
	}

	hasDot, hasLetter := false, false
	for _, c := range b[headerLen:] {
		if c < 32 || c > 126 {
			continue
		}
		if c == '.' {
			hasDot = true
		}
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			hasLetter = true
		}
	}
	return hasDot && hasLetter
}

// ExtractDomain recovers the decoy hostname embedded past the key header of
// an ee-flavored secret. Returns false when no plausible domain is present.
func ExtractDomain(secretHex string) (string, bool) {
	b, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(secretHex)))
	if err != nil || len(b) <= headerLen {
		return "", false
	}

	var sb strings.Builder
	for _, c := range b[headerLen:] {
		if c < 32 || c > 126 {
			continue
		}
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '.' || c == '-' {
			sb.WriteByte(c)
		}
	}

	domain := strings.Trim(sb.String(), ".-")
	if !strings.Contains(domain, ".") {
		return "", false
	}
	return domain, true
}

// Variants generates the ordered secret reinterpretations tried by the
// protocol probe. Candidates with odd length or non-hex characters are
// dropped; duplicates are suppressed. Order matters downstream: the first
// variant that establishes a session wins.
func Variants(secretHex string) []Variant {
	s := strings.ToLower(strings.TrimSpace(secretHex))

	var out []Variant
	add := func(label, val string) {
		if val == "" || len(val)%2 != 0 {
			return
		}
		if _, err := hex.DecodeString(val); err != nil {
			return
		}
		for _, v := range out {
			if v.Hex == val {
				return
			}
		}
		out = append(out, Variant{Label: label, Hex: val})
	}

	add("orig", s)

	if len(s) >= 4 && (strings.HasPrefix(s, markerFakeTLS) || strings.HasPrefix(s, markerPadded)) {
		add("strip_prefix", s[2:])
	}
	if strings.HasPrefix(s, markerFakeTLS) && len(s) > 34 {
		add("ee_to_dd", markerPadded+s[2:])
	}
	if strings.HasPrefix(s, markerPadded) && len(s) > 34 {
		add("dd_to_ee", markerFakeTLS+s[2:])
	}
	return out
}
