package confidence

// Ratio returns a character-sequence similarity in [0,1] computed from
// longest matching blocks (SequenceMatcher semantics, not Levenshtein).
// It is the single similarity primitive shared by the confidence
// calculator, the vendor matcher and the duplicate detector, so all three
// agree on what "similar" means.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}
	return 2.0 * float64(matchingRunes(ra, rb)) / float64(total)
}

type block struct {
	alo, ahi, blo, bhi int
}

// matchingRunes counts the total number of runes covered by matching blocks
// between a and b: find the longest common block, then recurse on the
// pieces to its left and right.
func matchingRunes(a, b []rune) int {
	// Positions of each rune in b, in ascending order.
	b2j := make(map[rune][]int, len(b))
	for j, r := range b {
		b2j[r] = append(b2j[r], j)
	}

	matches := 0
	queue := []block{{0, len(a), 0, len(b)}}
	for len(queue) > 0 {
		reg := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		besti, bestj, bestsize := longestMatch(a, b2j, reg)
		if bestsize == 0 {
			continue
		}
		matches += bestsize
		queue = append(queue,
			block{reg.alo, besti, reg.blo, bestj},
			block{besti + bestsize, reg.ahi, bestj + bestsize, reg.bhi},
		)
	}
	return matches
}

// longestMatch finds the longest block of equal runes within the region,
// preferring the earliest such block on ties.
func longestMatch(a []rune, b2j map[rune][]int, reg block) (besti, bestj, bestsize int) {
	besti, bestj = reg.alo, reg.blo
	// j2len[j] is the length of the longest match ending at a[i-1], b[j].
	j2len := make(map[int]int)
	for i := reg.alo; i < reg.ahi; i++ {
		newj2len := make(map[int]int)
		for _, j := range b2j[a[i]] {
			if j < reg.blo {
				continue
			}
			if j >= reg.bhi {
				break
			}
			k := j2len[j-1] + 1
			newj2len[j] = k
			if k > bestsize {
				besti, bestj, bestsize = i-k+1, j-k+1, k
			}
		}
		j2len = newj2len
	}
	return besti, bestj, bestsize
}
