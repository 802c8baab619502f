package evidence

// Tier is the coarse credibility ranking of a source, from systematic
// reviews down to sources with no recognizable study-type signal.
type Tier string

const (
	TierGoldStandard Tier = "gold_standard"
	TierHigh         Tier = "high"
	TierModerate     Tier = "moderate"
	TierLow          Tier = "low"
	TierUncertain    Tier = "uncertain"
)

// Weight maps a tier to its ranking multiplier. Uncertain sources carry
// weight 0: they may be displayed but never anchor a composed answer.
func (t Tier) Weight() float64 {
	switch t {
	case TierGoldStandard:
		return 1.0
	case TierHigh:
		return 0.9
	case TierModerate:
		return 0.7
	case TierLow:
		return 0.5
	default:
		return 0
	}
}

// RawHit is what a backend returns before scoring.
type RawHit struct {
	SourceID string
	Title    string
	Abstract string
	Year     int
	Keywords []string
	DOI      string
	PMID     string
	Backend  string
}

// Item is a scored, ranked search result. CombinedScore is always
// recomputed from current relevance and tier, never cached across
// searches.
type Item struct {
	SourceID      string
	Title         string
	Snippet       string
	Year          int
	DOI           string
	PMID          string
	Backend       string
	Tier          Tier
	Relevance     float64
	CombinedScore float64
}
