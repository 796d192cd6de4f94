// Package symbol translates between the three representations a symbol takes
// as it moves through the pipeline: the operator-facing input, the wire form
// sent to the upstream HTTP endpoint, and the file form used for the output
// CSV filename.
package symbol

import "strings"

// Normalized holds the three representations derived from one input symbol.
type Normalized struct {
	Input   string // as supplied by the operator/universe provider, e.g. "BRK.B"
	Wire    string // as sent upstream, e.g. "BRK-B"
	File    string // as used in the output filename, e.g. "BRK_B"
	IsIndex bool   // true when Input carries the leading '^' index marker
}

// Normalize derives the wire and file forms of s and classifies it as an
// index when it begins with '^'.
func Normalize(s string) Normalized {
	n := Normalized{
		Input:   s,
		IsIndex: strings.HasPrefix(s, "^"),
	}
	n.Wire = WireForm(s)
	n.File = FileForm(s)
	return n
}

// WireForm replaces '.' with '-' for use in the upstream URL, preserving any
// leading '^'.
func WireForm(s string) string {
	return strings.ReplaceAll(s, ".", "-")
}

// FileForm replaces '.' with '_' and the leading '^' (if any) with the safe
// character 'I' for use as a filesystem-legal filename stem.
func FileForm(s string) string {
	s = strings.ReplaceAll(s, ".", "_")
	if strings.HasPrefix(s, "^") {
		s = "I" + strings.TrimPrefix(s, "^")
	}
	return s
}
