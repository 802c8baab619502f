package qa

import (
	"strings"

	"go.uber.org/zap"

	"github.com/chapter-agent/backend/pkg/config"
	"github.com/chapter-agent/backend/pkg/logger"
)

// Resolver detects pairwise contradictions between evidence points and
// resolves them by the configured policy. A pair conflicts when it
// shares at least one domain concept and contains an opposing term pair.
// This is a deliberately blunt lexical heuristic: it both under- and
// over-detects real contradictions, and that documented behavior is kept
// as-is. Losing statements are never dropped, only marked superseded.
type Resolver struct {
	pairs    [][2]string
	concepts []string
	policy   ConflictPolicy
}

func NewResolver(h config.HeuristicsConfig, policy ConflictPolicy) *Resolver {
	return &Resolver{
		pairs:    h.OpposingTermPairs(),
		concepts: lowerAll(h.DomainConcepts),
		policy:   policy,
	}
}

// Resolve returns detected conflicts plus the full statement list with
// losers marked. Input count always equals output count.
func (r *Resolver) Resolve(points []EvidencePoint) ([]Conflict, []EvidencePoint) {
	resolved := make([]EvidencePoint, len(points))
	copy(resolved, points)

	var conflicts []Conflict

	for i := 0; i < len(resolved); i++ {
		for j := i + 1; j < len(resolved); j++ {
			concept := r.sharedConcept(resolved[i].Statement, resolved[j].Statement)
			if concept == "" {
				continue
			}

			pair, ok := r.opposingPair(resolved[i].Statement, resolved[j].Statement)
			if !ok {
				continue
			}

			conflict := Conflict{
				StatementA: resolved[i],
				StatementB: resolved[j],
				TermPair:   pair,
				Concept:    concept,
			}

			winner, reason := r.pickWinner(resolved[i], resolved[j])
			if winner >= 0 {
				conflict.Resolved = true
				conflict.Reason = reason

				winnerIdx, loserIdx := i, j
				if winner == 1 {
					winnerIdx, loserIdx = j, i
				}
				conflict.WinnerSource = resolved[winnerIdx].SourceID
				resolved[loserIdx].SupersededBy = resolved[winnerIdx].SourceID
			} else {
				conflict.Reason = ReasonManualFlag
			}

			conflicts = append(conflicts, conflict)

			logger.Debug("Conflict detected",
				zap.String("concept", concept),
				zap.String("term_a", pair[0]),
				zap.String("term_b", pair[1]),
				zap.Bool("resolved", conflict.Resolved),
			)
		}
	}

	return conflicts, resolved
}

func (r *Resolver) sharedConcept(a, b string) string {
	lowerA := strings.ToLower(a)
	lowerB := strings.ToLower(b)

	for _, concept := range r.concepts {
		if strings.Contains(lowerA, concept) && strings.Contains(lowerB, concept) {
			return concept
		}
	}
	return ""
}

func (r *Resolver) opposingPair(a, b string) ([2]string, bool) {
	lowerA := strings.ToLower(a)
	lowerB := strings.ToLower(b)

	for _, pair := range r.pairs {
		if strings.Contains(lowerA, pair[0]) && strings.Contains(lowerB, pair[1]) {
			return pair, true
		}
		if strings.Contains(lowerA, pair[1]) && strings.Contains(lowerB, pair[0]) {
			return [2]string{pair[1], pair[0]}, true
		}
	}
	return [2]string{}, false
}

// pickWinner returns 0 or 1 for the winning statement, -1 when the
// policy leaves the conflict unresolved.
func (r *Resolver) pickWinner(a, b EvidencePoint) (int, ConflictReason) {
	switch r.policy {
	case PolicyPreferQuality:
		wa, wb := a.Tier.Weight(), b.Tier.Weight()
		if wa > wb {
			return 0, ReasonHigherCredibility
		}
		if wb > wa {
			return 1, ReasonHigherCredibility
		}
		// Equal tiers fall through to recency.
		if a.Year > b.Year {
			return 0, ReasonMoreRecent
		}
		if b.Year > a.Year {
			return 1, ReasonMoreRecent
		}
		return -1, ReasonManualFlag
	case PolicyPreferRecent:
		if a.Year > b.Year {
			return 0, ReasonMoreRecent
		}
		if b.Year > a.Year {
			return 1, ReasonMoreRecent
		}
		return -1, ReasonManualFlag
	default:
		return -1, ReasonManualFlag
	}
}
