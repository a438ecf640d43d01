package entity

// FieldValue is the outcome of one probed contract field. Known=false means
// the individual query failed; it is deliberately distinct from a zero
// value, which is a confirmed answer.
type FieldValue struct {
	Known bool `json:"known"`
	Value any  `json:"value,omitempty"`
}

// Unknown is the sentinel for a field whose query failed.
func Unknown() FieldValue {
	return FieldValue{}
}

// KnownValue wraps a confirmed field value.
func KnownValue(v any) FieldValue {
	return FieldValue{Known: true, Value: v}
}

// ProbeResult maps field names to their probed values. Fields are queried
// in isolation, so any mix of Known and Unknown entries is possible.
type ProbeResult map[string]FieldValue

// Known returns the field's value and whether it was confirmed.
func (p ProbeResult) Known(name string) (any, bool) {
	fv, ok := p[name]
	if !ok || !fv.Known {
		return nil, false
	}
	return fv.Value, true
}

// Bool returns a confirmed boolean field. The second return is false when
// the field is Unknown, missing, or not a bool.
func (p ProbeResult) Bool(name string) (bool, bool) {
	v, ok := p.Known(name)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// UnknownFields lists the names of fields whose queries failed.
func (p ProbeResult) UnknownFields() []string {
	var names []string
	for name, fv := range p {
		if !fv.Known {
			names = append(names, name)
		}
	}
	return names
}
