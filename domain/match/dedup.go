package match

// Dedupe suppresses near-duplicate detections of one template. candidates
// must already be sorted by descending confidence. Each candidate's rounded
// absolute center is accepted only if, against every center accepted so far,
// |dx| or |dy| reaches max(templateW, templateH). The pass is greedy and
// order dependent.
func Dedupe(candidates []MatchCandidate, templateW, templateH int, origin Point) []Point {
	minDistance := max(templateW, templateH)
	accepted := make([]Point, 0, len(candidates))
	for _, c := range candidates {
		p := c.Absolute(origin)
		if overlapsAny(p, accepted, minDistance) {
			continue
		}
		accepted = append(accepted, p)
	}
	return accepted
}

func overlapsAny(p Point, accepted []Point, minDistance int) bool {
	for _, a := range accepted {
		if absInt(p.X-a.X) < minDistance && absInt(p.Y-a.Y) < minDistance {
			return true
		}
	}
	return false
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
