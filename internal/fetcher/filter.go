package fetcher

import "rankfetcher/internal/rankapi"

// Filter decides whether a decoded payload is kept.
type Filter struct {
	// Threshold is the minimum rank a payload must have to be kept
	Threshold float64
}

// Accept keeps payloads without a rank and payloads whose rank is at least
// the threshold. The reason is empty for accepted payloads.
func (f Filter) Accept(p *rankapi.Payload) (bool, string) {
	if !p.HasRank() {
		return true, ""
	}
	if *p.Rank < f.Threshold {
		return false, LowRankReason(*p.Rank)
	}
	return true, ""
}

// HighRank reports whether p carries a rank at or above the threshold.
func (f Filter) HighRank(p *rankapi.Payload) bool {
	return p.HasRank() && *p.Rank >= f.Threshold
}
