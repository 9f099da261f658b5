package match

import (
	"context"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmiguens/arbscout/internal/domain"
)

// FuzzyConfig holds the weights and thresholds of the fuzzy scorer.
type FuzzyConfig struct {
	MinScore       float64 // composite score required to emit a candidate
	TokenWeight    float64
	EditWeight     float64
	BrandBonus     float64
	TieEpsilon     float64 // scores closer than this are a tie
	CandidateLimit int
}

// fuzzyMaxConfidence keeps fuzzy candidates strictly below any plausible
// exact-identifier confidence.
const fuzzyMaxConfidence = 0.99

// Bonuses for shared model and capacity designators. These tokens survive
// across marketplace languages when the surrounding words do not, so a
// "128GB Preto" listing can still clear the threshold against the catalog's
// "128GB Black" wording.
const (
	modelEqualBonus    = 0.20
	modelNearBonus     = 0.10
	modelNearMin       = 0.80
	capacityEqualBonus = 0.10
)

var (
	// modelPatterns are tried in order against the normalized title; the
	// first hit wins. They cover compact designators (rtx3080), numeric-first
	// variants (3080ti) and spaced word-number pairs (iphone 15).
	modelPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b[a-z]{1,3}\d{3,6}[a-z]*\b`),
		regexp.MustCompile(`\b\d{3,4}[a-z]{1,3}\b`),
		regexp.MustCompile(`\b[a-z]+ ?\d+[a-z]*\b`),
	}
	capacityPattern = regexp.MustCompile(`\b(\d+) ?(gb|tb|mb)\b`)
)

// FuzzyMatcher scores a listing against a bounded catalog candidate set with
// a weighted blend of token overlap and edit-distance similarity.
type FuzzyMatcher struct {
	catalog domain.CatalogStore
	cfg     FuzzyConfig
}

func NewFuzzyMatcher(catalog domain.CatalogStore, cfg FuzzyConfig) *FuzzyMatcher {
	return &FuzzyMatcher{catalog: catalog, cfg: cfg}
}

func (m *FuzzyMatcher) Method() domain.MatchMethod { return domain.MatchMethodFuzzy }

type scoredEntry struct {
	entry      domain.CatalogEntry
	score      float64
	tokenScore float64
	editScore  float64
	bonus      float64
	brandEqual bool
}

// Match fetches candidates filtered by category and brand, scores each and
// returns the winner when it clears the threshold. Near-equal top scores are
// tie-broken by brand equality, then by smallest reference-price delta; a tie
// that survives both is refused as a DataQualityError rather than guessed.
func (m *FuzzyMatcher) Match(ctx context.Context, nl NormalizedListing) (*domain.MatchCandidate, error) {
	if nl.Title == "" {
		return nil, nil
	}
	entries, err := m.catalog.ListCandidates(ctx, nl.Listing.Category, nl.Listing.Brand, m.cfg.CandidateLimit)
	if err != nil {
		return nil, &domain.DependencyError{Dependency: "catalog", Err: err}
	}
	if len(entries) == 0 {
		return nil, nil
	}

	scored := make([]scoredEntry, 0, len(entries))
	for _, e := range entries {
		scored = append(scored, m.score(nl, e))
	}

	best := scored[0]
	for _, s := range scored[1:] {
		if s.score > best.score {
			best = s
		}
	}
	if best.score < m.cfg.MinScore {
		return nil, nil
	}

	tied := make([]scoredEntry, 0, 2)
	for _, s := range scored {
		if best.score-s.score < m.cfg.TieEpsilon {
			tied = append(tied, s)
		}
	}
	winner, ok := m.breakTie(nl, tied)
	if !ok {
		return nil, &domain.DataQualityError{
			Reason:    "fuzzy tie between near-equal catalog entries",
			ListingID: nl.Listing.ID,
		}
	}

	return &domain.MatchCandidate{
		ListingID:  nl.Listing.ID,
		EntryID:    winner.entry.ID,
		Confidence: math.Min(winner.score, fuzzyMaxConfidence),
		Method:     domain.MatchMethodFuzzy,
		Detail: map[string]any{
			"token_score":      winner.tokenScore,
			"edit_score":       winner.editScore,
			"brand_equal":      winner.brandEqual,
			"designator_bonus": winner.bonus,
			"candidates":       len(entries),
		},
		CreatedAt: time.Now().UTC(),
	}, nil
}

// score computes the composite similarity for one catalog entry.
func (m *FuzzyMatcher) score(nl NormalizedListing, e domain.CatalogEntry) scoredEntry {
	entryTitle := NormalizeText(e.Title)
	entryBrand := NormalizeText(e.Brand)

	s := scoredEntry{
		entry:      e,
		tokenScore: tokenOverlap(nl.Tokens, tokenSet(entryTitle)),
		editScore:  editSimilarity(tokenSortJoin(nl.Tokens), entryTitle),
		brandEqual: nl.Brand != "" && nl.Brand == entryBrand,
	}
	s.score = m.cfg.TokenWeight*s.tokenScore + m.cfg.EditWeight*s.editScore
	if s.brandEqual {
		s.score += m.cfg.BrandBonus
	}
	s.bonus = designatorBonus(nl.Title, entryTitle)
	s.score += s.bonus
	if s.score > 1.0 {
		s.score = 1.0
	}
	return s
}

// designatorBonus rewards titles that agree on their model and capacity
// designators even when the rest of the wording diverges.
func designatorBonus(a, b string) float64 {
	bonus := 0.0
	am, bm := modelKey(a), modelKey(b)
	if am != "" && bm != "" {
		switch {
		case am == bm:
			bonus += modelEqualBonus
		case editSimilarity(am, bm) > modelNearMin:
			bonus += modelNearBonus
		}
	}
	ac, bc := capacityKey(a), capacityKey(b)
	if ac != "" && ac == bc {
		bonus += capacityEqualBonus
	}
	return bonus
}

// modelKey extracts the first model designator from a normalized title.
func modelKey(title string) string {
	for _, re := range modelPatterns {
		if m := re.FindString(title); m != "" {
			return strings.ReplaceAll(m, " ", "")
		}
	}
	return ""
}

// capacityKey extracts the first storage-capacity designator, collapsing
// "128 gb" and "128gb" to the same key.
func capacityKey(title string) string {
	m := capacityPattern.FindStringSubmatch(title)
	if m == nil {
		return ""
	}
	return m[1] + m[2]
}

// breakTie resolves a set of near-equal candidates. Exactly one brand match
// wins outright; otherwise the unique smallest listing-to-reference price
// delta wins; anything still ambiguous is refused.
func (m *FuzzyMatcher) breakTie(nl NormalizedListing, tied []scoredEntry) (scoredEntry, bool) {
	if len(tied) == 1 {
		return tied[0], true
	}

	var brandMatches []scoredEntry
	for _, s := range tied {
		if s.brandEqual {
			brandMatches = append(brandMatches, s)
		}
	}
	if len(brandMatches) == 1 {
		return brandMatches[0], true
	}
	if len(brandMatches) > 1 {
		tied = brandMatches
	}

	var best scoredEntry
	var bestDelta decimal.Decimal
	have, unique := false, false
	for _, s := range tied {
		if !s.entry.ReferencePrice.IsPositive() {
			continue
		}
		delta := s.entry.ReferencePrice.Sub(nl.Listing.Price).Abs()
		switch {
		case !have || delta.LessThan(bestDelta):
			best, bestDelta = s, delta
			have, unique = true, true
		case delta.Equal(bestDelta):
			unique = false
		}
	}
	if unique {
		return best, true
	}
	return scoredEntry{}, false
}

// tokenOverlap is the overlap coefficient of two sorted token sets:
// |A ∩ B| / min(|A|, |B|). Forgiving toward titles that are a subset of a
// longer catalog title.
func tokenOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			inter++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	m := len(a)
	if len(b) < m {
		m = len(b)
	}
	return float64(inter) / float64(m)
}

// tokenSortJoin joins an already-sorted token set into a comparison string.
func tokenSortJoin(tokens []string) string {
	return strings.Join(tokens, " ")
}

// editSimilarity is the normalized Damerau-Levenshtein similarity of two
// token-sorted strings, in [0, 1].
func editSimilarity(a, b string) float64 {
	b = tokenSortJoin(tokenSet(b))
	if a == "" && b == "" {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	d := damerauLevenshtein(a, b)
	la, lb := len([]rune(a)), len([]rune(b))
	m := la
	if lb > m {
		m = lb
	}
	return 1 - float64(d)/float64(m)
}

// damerauLevenshtein computes edit distance with adjacent transpositions.
func damerauLevenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	al, bl := len(ra), len(rb)

	dp := make([][]int, al+1)
	for i := 0; i <= al; i++ {
		dp[i] = make([]int, bl+1)
		dp[i][0] = i
	}
	for j := 0; j <= bl; j++ {
		dp[0][j] = j
	}

	for i := 1; i <= al; i++ {
		for j := 1; j <= bl; j++ {
			cost := 0
			if ra[i-1] != rb[j-1] {
				cost = 1
			}
			dp[i][j] = min3(dp[i-1][j]+1, dp[i][j-1]+1, dp[i-1][j-1]+cost)

			if i > 1 && j > 1 && ra[i-1] == rb[j-2] && ra[i-2] == rb[j-1] {
				if v := dp[i-2][j-2] + 1; v < dp[i][j] {
					dp[i][j] = v
				}
			}
		}
	}
	return dp[al][bl]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
