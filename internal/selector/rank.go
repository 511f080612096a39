package selector

// RankTable maps a provider quality id to its perceptual rank. The table
// is injected from configuration because the ordering is provider-defined
// and not monotonic in the raw id (a "highest" id can rank above 4K/HDR
// variants depending on the provider scheme).
type RankTable map[int]int

// Compare returns >0 when a ranks above b, <0 when below, 0 when equal.
// Ids absent from the table rank below every listed id and order among
// themselves by raw id.
func (r RankTable) Compare(a, b int) int {
	ra, oka := r[a]
	rb, okb := r[b]
	switch {
	case oka && okb:
		return ra - rb
	case oka:
		return 1
	case okb:
		return -1
	default:
		return a - b
	}
}

// Best returns the highest-ranked id in ids, or 0 for an empty slice.
func (r RankTable) Best(ids []int) int {
	if len(ids) == 0 {
		return 0
	}
	best := ids[0]
	for _, id := range ids[1:] {
		if r.Compare(id, best) > 0 {
			best = id
		}
	}
	return best
}
