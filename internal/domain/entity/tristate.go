package entity

// Tristate is the result of a historical state query. Indeterminate means
// the remote query could not confirm either answer (transport failure,
// pruned state, rate limit). It is evidence about the provider, not about
// the chain, and must never be folded into True or False.
type Tristate int

const (
	Indeterminate Tristate = iota
	False
	True
)

// FromBool converts a confirmed answer to a Tristate.
func FromBool(v bool) Tristate {
	if v {
		return True
	}
	return False
}

func (t Tristate) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "indeterminate"
	}
}

// Known reports whether the value is a confirmed True or False.
func (t Tristate) Known() bool {
	return t == True || t == False
}

// MarshalText implements encoding.TextMarshaler so Tristate fields render
// as their name in JSON reports instead of a bare integer.
func (t Tristate) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}
