package verify

import "strings"

// Stance is one source's judgement of a claim.
type Stance int

const (
	StanceNeutral Stance = iota
	StanceCorroborates
	StanceConflicts
)

// Analyzer judges a fetched body against a claim. Implementations must
// be safe for concurrent use; the executor calls Judge from its fetch
// workers.
type Analyzer interface {
	Judge(claim, body string) Stance
}

// LexicalAnalyzer is the default heuristic: token overlap between the
// normalized claim and the body decides corroboration, and explicit
// refutation markers near claim vocabulary decide conflict. It is
// deliberately crude; the Analyzer seam exists so deployments can plug
// in something smarter without touching the executor.
type LexicalAnalyzer struct{}

var _ Analyzer = LexicalAnalyzer{}

var refutationMarkers = []string{
	"false", "debunked", "myth", "incorrect", "untrue", "hoax", "misleading",
}

// Judge implements Analyzer.
func (LexicalAnalyzer) Judge(claim, body string) Stance {
	tokens := claimTokens(claim)
	if len(tokens) == 0 {
		return StanceNeutral
	}
	lower := strings.ToLower(body)

	matched := 0
	for _, tok := range tokens {
		if strings.Contains(lower, tok) {
			matched++
		}
	}
	overlap := float64(matched) / float64(len(tokens))
	if overlap < 0.3 {
		return StanceNeutral
	}

	for _, marker := range refutationMarkers {
		if strings.Contains(lower, marker) {
			return StanceConflicts
		}
	}
	if overlap >= 0.5 {
		return StanceCorroborates
	}
	return StanceNeutral
}

// claimTokens extracts the discriminating vocabulary: words of four or
// more characters from the normalized claim.
func claimTokens(claim string) []string {
	fields := strings.Fields(NormalizeClaim(claim))
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) >= 4 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
