package acquire

import (
	"regexp"
	"strings"
)

// Entry is one materialized result-list row: an index into the current list
// snapshot plus the extracted visible text. Handles behind an Entry are only
// valid until the next reload.
type Entry struct {
	Title   string
	Address string
}

// LocateResult is the explicit outcome of a locator scan. "Not found" is a
// value, never an error: the state machine branches on it.
type LocateResult struct {
	Found bool
	Index int
}

// partialAddrPattern parses a target partial address of the form
// "<street>, <number><optional letter-suffix>", e.g. "Гурьянова, 30" or
// "Ленина, 12А".
var partialAddrPattern = regexp.MustCompile(`^(.+),\s*([0-9]+\p{L}?)$`)

// ParsePartialAddress splits a partial address into its street and
// house-number parts. ok is false when the text does not follow the
// comma+number pattern; the locator then matches nothing (fail safe).
func ParsePartialAddress(partial string) (street, house string, ok bool) {
	m := partialAddrPattern.FindStringSubmatch(strings.TrimSpace(partial))
	if m == nil {
		return "", "", false
	}
	return strings.TrimSpace(m[1]), m[2], true
}

// Locate scans entries for the first one matching the target name and
// partial address and returns its index.
//
// The name must match exactly after case folding and trimming. The address
// matches when the candidate text contains, case-insensitively, both the
// parsed street substring and the house-number substring — anywhere in the
// text. The looseness is deliberate: formatting drift between the search
// input and the snippet text is recovered by retrying from different entry
// points, not by fuzzier matching, and a rare false positive is acceptable
// in this domain.
func Locate(entries []Entry, targetName, partialAddress string) LocateResult {
	street, house, ok := ParsePartialAddress(partialAddress)
	if !ok {
		return LocateResult{}
	}

	wantName := foldTrim(targetName)
	wantStreet := strings.ToLower(street)
	wantHouse := strings.ToLower(house)

	for i, e := range entries {
		if foldTrim(e.Title) != wantName {
			continue
		}
		addr := strings.ToLower(e.Address)
		if strings.Contains(addr, wantStreet) && strings.Contains(addr, wantHouse) {
			return LocateResult{Found: true, Index: i}
		}
	}
	return LocateResult{}
}

func foldTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
