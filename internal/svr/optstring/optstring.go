// Package optstring parses the option-string grammar of spec §6:
//
//	name[:key=value[,key=value...]]
//
// The canonical key for the codec name inside the options map is "%name"
// (spec §6), mirrored into Descriptor.Name for convenient access.
package optstring

import "fmt"

// NameKey is the canonical options-map key carrying the codec name.
const NameKey = "%name"

// Descriptor is a parsed option string.
type Descriptor struct {
	Name    string
	Options map[string]string
}

// ParseError reports the byte offset of the offending character, per spec §6.
type ParseError struct {
	Offset int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("optstring: %s at offset %d", e.Msg, e.Offset)
}

// Parse decodes s into a Descriptor.
func Parse(s string) (Descriptor, error) {
	if s == "" {
		return Descriptor{}, &ParseError{Offset: 0, Msg: "empty option string"}
	}

	colon := -1
	for i, r := range s {
		if r == ':' {
			colon = i
			break
		}
	}

	name := s
	rest := ""
	if colon >= 0 {
		name = s[:colon]
		rest = s[colon+1:]
	}
	if name == "" {
		return Descriptor{}, &ParseError{Offset: 0, Msg: "empty codec name"}
	}

	opts := map[string]string{NameKey: name}
	if rest == "" {
		return Descriptor{Name: name, Options: opts}, nil
	}

	base := colon + 1
	pairs := splitTopLevel(rest, ',')
	pos := base
	for _, pair := range pairs {
		eq := indexByte(pair, '=')
		if eq < 0 {
			return Descriptor{}, &ParseError{Offset: pos, Msg: fmt.Sprintf("missing '=' in %q", pair)}
		}
		key := pair[:eq]
		val := pair[eq+1:]
		if key == "" {
			return Descriptor{}, &ParseError{Offset: pos, Msg: "empty option key"}
		}
		if key[0] == '%' {
			return Descriptor{}, &ParseError{Offset: pos, Msg: fmt.Sprintf("reserved key %q", key)}
		}
		opts[key] = val
		pos += len(pair) + 1 // +1 accounts for the consumed separator
	}

	return Descriptor{Name: name, Options: opts}, nil
}

// Equiv reports whether two option maps describe compatible encodings for
// the DirectCopy reencoder fast path (spec §4.7): same name, same options
// (ignoring the canonical name key which is implied by equality of Name).
func Equiv(a, b Descriptor) bool {
	if a.Name != b.Name {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, v := range a.Options {
		if k == NameKey {
			continue
		}
		if bv, ok := b.Options[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func splitTopLevel(s string, sep byte) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
