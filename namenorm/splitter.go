// ABOUTME: Default name and postal address splitters
// ABOUTME: Derive structured parts from a single formatted value and back
package namenorm

import (
	"strings"
)

// Name is a structured personal name.
type Name struct {
	Prefix string
	Given  string
	Middle string
	Family string
	Suffix string
}

func (n Name) IsEmpty() bool {
	return n.Prefix == "" && n.Given == "" && n.Middle == "" && n.Family == "" && n.Suffix == ""
}

// NameSplitter converts between a formatted display name and its parts.
type NameSplitter interface {
	Split(displayName string) Name
	// Join formats n; givenFirst selects "Given Family" over "Family, Given".
	Join(n Name, givenFirst bool) string
}

var (
	namePrefixes = map[string]bool{"mr": true, "mrs": true, "ms": true, "miss": true, "dr": true, "prof": true, "sir": true, "rev": true}
	nameSuffixes = map[string]bool{"jr": true, "sr": true, "ii": true, "iii": true, "iv": true, "phd": true, "md": true, "esq": true}
)

// SimpleNameSplitter handles western "Prefix Given Middle Family Suffix" and
// "Family, Given Middle" forms.
type SimpleNameSplitter struct{}

func (SimpleNameSplitter) Split(displayName string) Name {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return Name{}
	}

	if family, rest, ok := strings.Cut(displayName, ","); ok {
		n := splitGivenFirst(strings.Fields(rest))
		// "Smith, Jr." is a suffix, not a reversed name.
		if n.Family == "" && n.Middle == "" && nameSuffixes[Normalize(n.Given)] {
			return Name{Family: strings.TrimSpace(family), Suffix: n.Given}
		}
		if n.Family != "" {
			n.Middle = strings.TrimSpace(n.Middle + " " + n.Family)
		}
		n.Family = strings.TrimSpace(family)
		return n
	}
	return splitGivenFirst(strings.Fields(displayName))
}

func splitGivenFirst(tokens []string) Name {
	var n Name
	if len(tokens) > 1 && namePrefixes[Normalize(tokens[0])] {
		n.Prefix = tokens[0]
		tokens = tokens[1:]
	}
	if len(tokens) > 1 && nameSuffixes[Normalize(tokens[len(tokens)-1])] {
		n.Suffix = tokens[len(tokens)-1]
		tokens = tokens[:len(tokens)-1]
	}
	switch len(tokens) {
	case 0:
	case 1:
		n.Given = tokens[0]
	default:
		n.Given = tokens[0]
		n.Family = tokens[len(tokens)-1]
		n.Middle = strings.Join(tokens[1:len(tokens)-1], " ")
	}
	return n
}

func (SimpleNameSplitter) Join(n Name, givenFirst bool) string {
	if givenFirst {
		return joinNonEmpty(" ", n.Prefix, n.Given, n.Middle, n.Family, n.Suffix)
	}
	given := joinNonEmpty(" ", n.Prefix, n.Given, n.Middle, n.Suffix)
	if n.Family == "" {
		return given
	}
	if given == "" {
		return n.Family
	}
	return n.Family + ", " + given
}

func joinNonEmpty(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}

// PostalAddress is a structured postal address.
type PostalAddress struct {
	Street       string
	POBox        string
	Neighborhood string
	City         string
	Region       string
	Postcode     string
	Country      string
}

func (a PostalAddress) IsEmpty() bool {
	return a == PostalAddress{}
}

// PostalSplitter converts between a formatted address and its parts.
type PostalSplitter interface {
	Split(formatted string) PostalAddress
	Join(a PostalAddress) string
}

// SimplePostalSplitter reads one component per line:
// street, then "City, Region Postcode", then country.
type SimplePostalSplitter struct{}

func (SimplePostalSplitter) Split(formatted string) PostalAddress {
	var lines []string
	for _, l := range strings.Split(formatted, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	var a PostalAddress
	if len(lines) == 0 {
		return a
	}
	a.Street = lines[0]
	if len(lines) > 1 {
		city, rest, ok := strings.Cut(lines[1], ",")
		a.City = strings.TrimSpace(city)
		if ok {
			fields := strings.Fields(rest)
			if len(fields) > 0 {
				a.Region = fields[0]
			}
			if len(fields) > 1 {
				a.Postcode = strings.Join(fields[1:], " ")
			}
		}
	}
	if len(lines) > 2 {
		a.Country = strings.Join(lines[2:], " ")
	}
	return a
}

func (SimplePostalSplitter) Join(a PostalAddress) string {
	cityLine := a.City
	if tail := joinNonEmpty(" ", a.Region, a.Postcode); tail != "" {
		if cityLine != "" {
			cityLine += ", "
		}
		cityLine += tail
	}
	return joinNonEmpty("\n", joinNonEmpty(" ", a.Street, a.POBox), a.Neighborhood, cityLine, a.Country)
}
