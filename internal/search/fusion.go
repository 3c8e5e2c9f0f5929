package search

import "sort"

// Fusion defaults. The rank-damping constant follows the original RRF
// paper; the weights favor semantic matches while still letting exact
// keyword hits surface.
const (
	DefaultRRFK          = 60
	DefaultVectorWeight  = 0.65
	DefaultKeywordWeight = 0.35
)

// FusionConfig tunes reciprocal rank fusion.
type FusionConfig struct {
	K             int
	VectorWeight  float64
	KeywordWeight float64
}

// DefaultFusionConfig returns the standard fusion parameters.
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		K:             DefaultRRFK,
		VectorWeight:  DefaultVectorWeight,
		KeywordWeight: DefaultKeywordWeight,
	}
}

// FusedHit is one chunk after fusion. Ranks are 1-based; 0 means the
// chunk was absent from that list.
type FusedHit struct {
	ID          string
	Score       float64
	VectorRank  int
	KeywordRank int
}

// Fuse merges a vector-ranked and a keyword-ranked ID list with
// reciprocal rank fusion: each list contributes weight/(k+rank) per
// item, so a chunk present in both lists accumulates both terms and
// can never rank below its best single-list position. Ties break by
// vector rank, then ID, keeping output deterministic.
func Fuse(cfg FusionConfig, vectorIDs, keywordIDs []string, limit int) []FusedHit {
	if cfg.K <= 0 {
		cfg.K = DefaultRRFK
	}

	hits := make(map[string]*FusedHit, len(vectorIDs)+len(keywordIDs))
	for i, id := range vectorIDs {
		rank := i + 1
		hits[id] = &FusedHit{
			ID:         id,
			Score:      cfg.VectorWeight / float64(cfg.K+rank),
			VectorRank: rank,
		}
	}
	for i, id := range keywordIDs {
		rank := i + 1
		if hit, ok := hits[id]; ok {
			hit.Score += cfg.KeywordWeight / float64(cfg.K+rank)
			hit.KeywordRank = rank
			continue
		}
		hits[id] = &FusedHit{
			ID:          id,
			Score:       cfg.KeywordWeight / float64(cfg.K+rank),
			KeywordRank: rank,
		}
	}

	fused := make([]FusedHit, 0, len(hits))
	for _, hit := range hits {
		fused = append(fused, *hit)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		ri, rj := fused[i].VectorRank, fused[j].VectorRank
		if ri != rj {
			// absent (0) sorts after any real rank
			if ri == 0 {
				return false
			}
			if rj == 0 {
				return true
			}
			return ri < rj
		}
		return fused[i].ID < fused[j].ID
	})

	if limit > 0 && len(fused) > limit {
		fused = fused[:limit]
	}
	return fused
}
