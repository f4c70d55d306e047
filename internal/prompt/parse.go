package prompt

import (
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"
)

// fuzzyThreshold is the minimum Jaro-Winkler score accepted for a name that
// matched no alias exactly.
const fuzzyThreshold = 0.85

var languageAliases = map[string]Language{
	"telugu":  Telugu,
	"te":      Telugu,
	"తెలుగు":  Telugu,
	"hindi":   Hindi,
	"hi":      Hindi,
	"हिन्दी":  Hindi,
	"हिंदी":   Hindi,
	"english": English,
	"en":      English,
}

var serviceAliases = map[string]Service{
	"farming":            ServiceFarming,
	"crops":              ServiceFarming,
	"animal health":      ServiceAnimalHealth,
	"animals":            ServiceAnimalHealth,
	"livestock":          ServiceAnimalHealth,
	"government schemes": ServiceSchemes,
	"schemes":            ServiceSchemes,
	"general queries":    ServiceGeneral,
	"general":            ServiceGeneral,
}

// ParseLanguage resolves a user-supplied language name. It accepts the
// English names, ISO codes, native script names and close misspellings.
func ParseLanguage(s string) (Language, error) {
	key := normalize(s)
	if l, ok := languageAliases[key]; ok {
		return l, nil
	}
	if l, ok := closest(key, languageAliases); ok {
		return l, nil
	}
	return "", fmt.Errorf("prompt: unknown language %q", s)
}

// ParseService resolves a user-supplied service name. Underscores and dashes
// are treated as spaces and close misspellings are accepted.
func ParseService(s string) (Service, error) {
	key := normalize(s)
	if svc, ok := serviceAliases[key]; ok {
		return svc, nil
	}
	if svc, ok := closest(key, serviceAliases); ok {
		return svc, nil
	}
	return "", fmt.Errorf("prompt: unknown service %q", s)
}

func normalize(s string) string {
	s = strings.NewReplacer("_", " ", "-", " ").Replace(strings.ToLower(s))
	return strings.Join(strings.Fields(s), " ")
}

// closest returns the alias value whose key is most similar to key. Keys
// sharing a Double Metaphone code with the input win over plain string
// similarity.
func closest[T any](key string, aliases map[string]T) (T, bool) {
	var (
		zero      T
		best      T
		bestScore float64
		bestCode  bool
	)
	if len(key) < 3 {
		return zero, false
	}
	kp, ks := matchr.DoubleMetaphone(key)
	for alias, v := range aliases {
		if len(alias) < 3 {
			continue
		}
		score := matchr.JaroWinkler(key, alias, false)
		if score < fuzzyThreshold {
			continue
		}
		ap, as := matchr.DoubleMetaphone(alias)
		code := kp != "" && (kp == ap || kp == as || (ks != "" && (ks == ap || ks == as)))
		if (code && !bestCode) || (code == bestCode && score > bestScore) {
			best, bestScore, bestCode = v, score, code
		}
	}
	if bestScore == 0 {
		return zero, false
	}
	return best, true
}
