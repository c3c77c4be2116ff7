package convention

import "strings"

// Pluralize returns the plural form of a word.
// Rules are checked in a fixed order and the first match wins:
// irregulars, consonant+y, sibilants, -fe, -f, then a plain "s".
func Pluralize(word string) string {
	if word == "" {
		return ""
	}

	lower := strings.ToLower(word)

	if plural, ok := irregularPlurals[lower]; ok {
		return plural
	}

	// city -> cities, but day -> days
	if strings.HasSuffix(lower, "y") && !hasAnySuffix(lower, "ay", "ey", "oy", "uy") {
		return word[:len(word)-1] + "ies"
	}

	if hasAnySuffix(lower, "s", "sh", "ch", "x", "z") {
		return word + "es"
	}

	if strings.HasSuffix(lower, "fe") {
		return word[:len(word)-2] + "ves"
	}
	if strings.HasSuffix(lower, "f") {
		return word[:len(word)-1] + "ves"
	}

	return word + "s"
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

// Irregular plurals, keyed by lowercase singular.
var irregularPlurals = map[string]string{
	"person": "people",
	"child":  "children",
	"man":    "men",
	"woman":  "women",
	"tooth":  "teeth",
	"foot":   "feet",
	"mouse":  "mice",
	"goose":  "geese",
}
