package signup

import "strings"

// SplitDisplayName splits on the first space. A single word is used as both
// first and last name.
func SplitDisplayName(displayName string) (first, last string) {
	name := strings.TrimSpace(displayName)
	first, last, found := strings.Cut(name, " ")
	if !found {
		return name, name
	}
	last = strings.TrimSpace(last)
	if last == "" {
		return first, first
	}
	return first, last
}
