// Package match implements the listing-to-catalog matching cascade: text
// normalization, exact identifier lookup, weighted fuzzy scoring and
// embedding-based semantic scoring.
package match

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/dmiguens/arbscout/internal/domain"
)

// NormalizedListing is a SourceListing prepared for matching: folded title and
// brand, title token set, and a checksum-validated identifier.
type NormalizedListing struct {
	Listing domain.SourceListing
	Title   string   // lowercased, folded, stop words removed
	Tokens  []string // sorted unique title tokens
	Brand   string   // lowercased, folded; empty when the listing has none
	EAN     string   // valid EAN-13 or EAN-8; empty when absent or invalid
}

// stopWords are marketplace noise tokens that carry no product identity.
// Mixed-language because source listings come from European retailers.
var stopWords = map[string]struct{}{
	"neu": {}, "new": {}, "nuevo": {}, "ovp": {},
	"original": {}, "originalverpackt": {},
	"angebot": {}, "aktion": {}, "sale": {}, "oferta": {},
	"versandkostenfrei": {}, "garantie": {}, "warranty": {},
	"inkl": {}, "inc": {}, "incl": {},
}

// punct matches everything that is not a letter, digit or whitespace.
var punct = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// Normalizer folds listing text into a canonical matching form. The zero
// value is not usable; construct with NewNormalizer.
type Normalizer struct{}

func NewNormalizer() *Normalizer { return &Normalizer{} }

// Normalize prepares a listing for the cascade. Malformed identifiers are
// dropped silently: an invalid EAN means the exact stage is skipped, it is not
// an error.
func (n *Normalizer) Normalize(l domain.SourceListing) NormalizedListing {
	title := NormalizeText(l.Title)
	nl := NormalizedListing{
		Listing: l,
		Title:   title,
		Tokens:  tokenSet(title),
		Brand:   NormalizeText(l.Brand),
	}
	if ean, ok := NormalizeEAN(l.EAN); ok {
		nl.EAN = ean
	}
	return nl
}

// NormalizeText lowercases, folds diacritics, strips punctuation, removes
// stop words and collapses whitespace.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToLower(s)
	s = foldDiacritics(s)
	s = punct.ReplaceAllString(s, " ")

	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if _, skip := stopWords[f]; skip {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

// foldDiacritics decomposes to NFD, strips combining marks and recomposes, so
// "série" and "serie" normalize identically.
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// tokenSet returns the sorted unique tokens of a normalized string.
func tokenSet(s string) []string {
	if s == "" {
		return nil
	}
	seen := make(map[string]struct{})
	for _, f := range strings.Fields(s) {
		seen[f] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
