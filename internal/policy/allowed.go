package policy

import "strings"

// Wildcard accepts any value in an AllowedSet.
const Wildcard = "*"

// AllowedSet is either a wildcard or an explicit, case-insensitive list of tokens.
// The zero value is a wildcard.
type AllowedSet struct {
	items []string
}

// ParseAllowed parses "*", "" or a "|" / "," separated list such as "jpg|png".
func ParseAllowed(raw string) AllowedSet {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == Wildcard {
		return AllowedSet{}
	}
	return AllowedOf(strings.FieldsFunc(raw, func(r rune) bool { return r == '|' || r == ',' })...)
}

// AllowedOf builds an explicit set. A "*" entry turns the set into a wildcard.
func AllowedOf(tokens ...string) AllowedSet {
	items := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tok), "."))
		if tok == Wildcard {
			return AllowedSet{}
		}
		if tok != "" {
			items = append(items, tok)
		}
	}
	return AllowedSet{items: items}
}

// Any reports whether the set is a wildcard.
func (s AllowedSet) Any() bool {
	return len(s.items) == 0
}

// Items returns a copy of the explicit tokens.
func (s AllowedSet) Items() []string {
	return append([]string(nil), s.items...)
}

// Contains reports whether ext (with or without a leading dot) is an exact member.
func (s AllowedSet) Contains(ext string) bool {
	if s.Any() {
		return true
	}
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, item := range s.items {
		if item == ext {
			return true
		}
	}
	return false
}

// Match reports whether name contains at least one token, ignoring case.
func (s AllowedSet) Match(name string) bool {
	if s.Any() {
		return true
	}
	name = strings.ToLower(name)
	for _, item := range s.items {
		if strings.Contains(name, item) {
			return true
		}
	}
	return false
}

func (s AllowedSet) String() string {
	if s.Any() {
		return Wildcard
	}
	return strings.Join(s.items, "|")
}
