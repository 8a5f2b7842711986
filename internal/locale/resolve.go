package locale

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Language pairs an ISO 639-1 code with its English display name.
type Language struct {
	Code string
	Name string
}

// DefaultCode is the language the widget mounts with.
const DefaultCode = "en"

// Supported lists every language the concierge can run in, in display order.
var Supported = []Language{
	{Code: "en", Name: "English"},
	{Code: "es", Name: "Spanish"},
	{Code: "fr", Name: "French"},
	{Code: "de", Name: "German"},
}

// maxNameDistance bounds the fuzzy match: anything further than two edits
// from a supported name is treated as unknown rather than guessed at.
const maxNameDistance = 2

// DisplayName returns the English display name for a supported code.
// Unknown codes fall back to the default language's name.
func DisplayName(code string) string {
	for _, l := range Supported {
		if strings.EqualFold(l.Code, code) {
			return l.Name
		}
	}
	return Supported[0].Name
}

// Resolve maps a host-supplied language string to a supported ISO code.
// It accepts exact codes ("es"), region-qualified codes ("es-MX"), display
// names in any case ("Spanish"), and slightly misspelled names ("Spansh")
// via Levenshtein distance. Unresolvable input reports ok == false.
func Resolve(input string) (code string, ok bool) {
	in := strings.TrimSpace(input)
	if in == "" {
		return "", false
	}

	for _, l := range Supported {
		if strings.EqualFold(in, l.Code) || strings.EqualFold(in, l.Name) {
			return l.Code, true
		}
	}

	// Region-qualified codes resolve on their primary subtag.
	if base, _, found := strings.Cut(in, "-"); found {
		for _, l := range Supported {
			if strings.EqualFold(base, l.Code) {
				return l.Code, true
			}
		}
	}

	// Last resort: nearest display name within the edit-distance bound.
	lower := strings.ToLower(in)
	best, bestDist := "", maxNameDistance+1
	for _, l := range Supported {
		if d := matchr.Levenshtein(lower, strings.ToLower(l.Name)); d < bestDist {
			best, bestDist = l.Code, d
		}
	}
	if best != "" {
		return best, true
	}
	return "", false
}
