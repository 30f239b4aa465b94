package knowledge

// PromotionLevel is a document's declared importance tier. It influences
// retrieval ranking via score boosting and, for critical documents,
// unconditional inclusion in assembled contexts.
type PromotionLevel string

const (
	// PromotionStandard is the default tier with no ranking boost.
	PromotionStandard PromotionLevel = "standard"

	// PromotionImportant receives a moderate ranking boost.
	PromotionImportant PromotionLevel = "important"

	// PromotionCritical receives the largest ranking boost and is eligible
	// for unconditional critical injection.
	PromotionCritical PromotionLevel = "critical"
)

// promotionRanks orders levels for floor comparisons. Higher rank = more
// important.
var promotionRanks = map[PromotionLevel]int{
	PromotionStandard:  0,
	PromotionImportant: 1,
	PromotionCritical:  2,
}

// ParsePromotionLevel parses a stored promotion tag. The second return value
// reports whether the tag was recognized; callers are expected to fall back
// to PromotionStandard (with a logged warning) when it is false, so a
// malformed tag on a stored document never aborts a query.
func ParsePromotionLevel(s string) (PromotionLevel, bool) {
	switch PromotionLevel(s) {
	case PromotionStandard, PromotionImportant, PromotionCritical:
		return PromotionLevel(s), true
	default:
		return PromotionStandard, false
	}
}

// Valid reports whether p is one of the known promotion levels.
func (p PromotionLevel) Valid() bool {
	_, ok := promotionRanks[p]
	return ok
}

// AtLeast reports whether p is at or above the given floor. Unknown levels
// rank below standard.
func (p PromotionLevel) AtLeast(floor PromotionLevel) bool {
	pr, ok := promotionRanks[p]
	if !ok {
		pr = -1
	}
	fr, ok := promotionRanks[floor]
	if !ok {
		fr = 0
	}
	return pr >= fr
}

// PromotionsAtOrAbove returns every level at or above the floor, ordered from
// lowest to highest. Used to build storage-side promotion filters.
func PromotionsAtOrAbove(floor PromotionLevel) []PromotionLevel {
	all := []PromotionLevel{PromotionStandard, PromotionImportant, PromotionCritical}
	out := make([]PromotionLevel, 0, len(all))
	for _, p := range all {
		if p.AtLeast(floor) {
			out = append(out, p)
		}
	}
	return out
}
