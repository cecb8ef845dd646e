package probe

// Mode is one of the fixed transport framings spoken by MTProto proxies.
// The zero value is not a valid mode.
type Mode int

const (
	// ModePaddedIntermediate is the randomized intermediate framing
	// required by dd-flavored secrets. Highest priority.
	ModePaddedIntermediate Mode = iota + 1
	ModeIntermediate
	ModeAbridged
)

// Modes lists every framing in probe priority order. Iteration over this
// slice must stay sequential; first session establishment wins.
var Modes = []Mode{ModePaddedIntermediate, ModeIntermediate, ModeAbridged}

func (m Mode) String() string {
	switch m {
	case ModePaddedIntermediate:
		return "padded-intermediate"
	case ModeIntermediate:
		return "intermediate"
	case ModeAbridged:
		return "abridged"
	default:
		return "unknown"
	}
}

// tag returns the 4-byte protocol marker placed at offset 56 of the
// obfuscated transport init block.
func (m Mode) tag() [4]byte {
	switch m {
	case ModePaddedIntermediate:
		return [4]byte{0xdd, 0xdd, 0xdd, 0xdd}
	case ModeIntermediate:
		return [4]byte{0xee, 0xee, 0xee, 0xee}
	default:
		return [4]byte{0xef, 0xef, 0xef, 0xef}
	}
}

// ModeNames returns the framing names in priority order, for snapshot meta.
func ModeNames() []string {
	names := make([]string, len(Modes))
	for i, m := range Modes {
		names[i] = m.String()
	}
	return names
}
