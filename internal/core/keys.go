package core

import (
	"strings"
	"unicode"
)

// MatchKey is a normalized composite address key. Equality on MatchKey is
// the only basis for resolving a row to a registry entity.
type MatchKey string

// lowerMojibakeReplacer repairs mojibake after lower-casing, where "ÃŸ"
// has already become "ãÿ".
var lowerMojibakeReplacer = func() *strings.Replacer {
	pairs := make([]string, len(mojibakeRepairs))
	for i, s := range mojibakeRepairs {
		pairs[i] = strings.ToLower(s)
	}
	return strings.NewReplacer(pairs...)
}()

var transliterator = strings.NewReplacer("ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss")

// streetSuffixes are spellings of "street" rewritten to "strasse", longest
// first so "strasse" is never cut down to "str".
var streetSuffixes = []string{"straße", "strasse", "strase", "str."}

const canonicalStreet = "strasse"

// NormalizeText produces the spelling- and encoding-insensitive form of an
// address component.
func NormalizeText(s string) string {
	s = strings.ToLower(s)
	s = collapseSpaces(s)
	s = lowerMojibakeReplacer.Replace(s)
	s = repairLoneEszett(s)
	s = expandStreet(s)
	s = transliterator.Replace(s)
	s = stripPunctuation(s)
	return collapseSpaces(s)
}

// NormalizeHouseNumber lower-cases a house number and removes whitespace,
// so "5 A" and "5a" compare equal.
func NormalizeHouseNumber(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "")
}

// BuildMatchKeys returns the postal-code and city variants of a record's
// key. A variant is empty when its distinguishing component is empty, and
// both are empty without a street and house number.
func BuildMatchKeys(street, house, postal, city string) (byPostal, byCity MatchKey) {
	s := NormalizeText(street)
	h := NormalizeHouseNumber(house)
	if s == "" || h == "" {
		return "", ""
	}
	if p := strings.TrimSpace(postal); p != "" {
		byPostal = MatchKey(s + "|" + h + "|" + p)
	}
	if c := NormalizeText(city); c != "" {
		byCity = MatchKey(s + "|" + h + "|" + c)
	}
	return byPostal, byCity
}

// BuildingKeys returns both key variants of b.
func BuildingKeys(b Building) (byPostal, byCity MatchKey) {
	return BuildMatchKeys(b.Street, b.HouseNumber, b.PostalCode, b.City)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// repairLoneEszett replaces a '?' or U+FFFD sitting between two letters
// with 'ß', the character most often lost that way in German addresses.
func repairLoneEszett(s string) string {
	if !strings.ContainsAny(s, "?\uFFFD") {
		return s
	}
	runes := []rune(s)
	for i := 1; i < len(runes)-1; i++ {
		if (runes[i] == '?' || runes[i] == '\uFFFD') &&
			unicode.IsLetter(runes[i-1]) && unicode.IsLetter(runes[i+1]) {
			runes[i] = 'ß'
		}
	}
	return string(runes)
}

// expandStreet rewrites street spellings to "strasse", both as suffixes
// ("hauptstr.") and as standalone words. A standalone word is joined to the
// word before it, so "berliner str." and "berlinerstraße" agree.
func expandStreet(s string) string {
	tokens := strings.Fields(s)
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = expandStreetToken(tok)
		if tok == canonicalStreet && len(out) > 0 {
			out[len(out)-1] += canonicalStreet
			continue
		}
		out = append(out, tok)
	}
	return strings.Join(out, " ")
}

func expandStreetToken(tok string) string {
	for _, suffix := range streetSuffixes {
		if strings.HasSuffix(tok, suffix) {
			return strings.TrimSuffix(tok, suffix) + canonicalStreet
		}
	}
	// Bare "str" only as a word ending, never inside "strasse".
	if strings.HasSuffix(tok, "str") {
		return strings.TrimSuffix(tok, "str") + canonicalStreet
	}
	return tok
}

func stripPunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, s)
}
