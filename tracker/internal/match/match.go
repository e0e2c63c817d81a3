// Package match implements the fuzzy title/author matching used to decide
// whether a scraped listing refers to a tracked book.
//
// All functions are pure. Scores are in [0,1]. The combined score weights
// the title at 0.7 and the author at 0.3: the title is the primary identity
// signal, the author is corroborating evidence for common titles.
package match

import (
	"regexp"
	"strings"
)

// Threshold tiers. Callers apply these to the raw score: a listing below
// CandidateFloor is discarded at extraction, one above NotifyFloor warrants
// a notification, and DefaultThreshold decides IsMatch.
const (
	DefaultThreshold = 0.6
	CandidateFloor   = 0.3
	NotifyFloor      = 0.5
)

var (
	spaceRe = regexp.MustCompile(`\s+`)
	parenRe = regexp.MustCompile(`\([^)]*\)`)
)

// Normalize prepares raw scraped text for comparison: whitespace runs
// collapse to a single space, parenthetical asides are dropped, the result
// is trimmed and lower-cased. Idempotent; empty input yields empty output.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = spaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
	s = parenRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
	return strings.ToLower(s)
}

// Similarity returns the matching-block ratio 2·M/T between the two strings
// (case-insensitive), where M is the total length of the greedy longest
// matching blocks and T the combined length. Symmetric, deterministic.
// Two empty strings are identical (ratio 1).
func Similarity(a, b string) float64 {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))
	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}
	return 2.0 * float64(matchedRunes(ra, rb)) / float64(total)
}

type block struct{ a, b, size int }

// matchedRunes sums the sizes of all matching blocks found by recursively
// splitting around the longest match, the way sequence alignment diffing
// does it.
func matchedRunes(a, b []rune) int {
	b2j := make(map[rune][]int, len(b))
	for j, r := range b {
		b2j[r] = append(b2j[r], j)
	}

	matched := 0
	type span struct{ alo, ahi, blo, bhi int }
	queue := []span{{0, len(a), 0, len(b)}}
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		m := longestMatch(a, s.alo, s.ahi, s.blo, s.bhi, b2j)
		if m.size == 0 {
			continue
		}
		matched += m.size
		queue = append(queue,
			span{s.alo, m.a, s.blo, m.b},
			span{m.a + m.size, s.ahi, m.b + m.size, s.bhi})
	}
	return matched
}

// longestMatch finds the longest block of equal runes within
// a[alo:ahi] × b[blo:bhi], preferring the earliest in a, then in b.
func longestMatch(a []rune, alo, ahi, blo, bhi int, b2j map[rune][]int) block {
	best := block{alo, blo, 0}
	j2len := map[int]int{}
	for i := alo; i < ahi; i++ {
		next := map[int]int{}
		for _, j := range b2j[a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			k := j2len[j-1] + 1
			next[j] = k
			if k > best.size {
				best = block{i - k + 1, j - k + 1, k}
			}
		}
		j2len = next
	}
	return best
}

// Result is the outcome of scoring one listing against a tracked book.
type Result struct {
	IsMatch bool
	Score   float64
}

// Score computes the combined title+author match score for a listing title.
// threshold <= 0 falls back to DefaultThreshold. The raw score is returned
// alongside the boolean so callers can apply their own secondary tiers.
func Score(listingTitle, searchTitle, searchAuthor string, threshold float64) Result {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	listing := Normalize(listingTitle)
	title := Normalize(searchTitle)
	author := Normalize(searchAuthor)

	titleScore := Similarity(listing, title)

	authorScore := 0.0
	if author != "" {
		listingWords := strings.Fields(listing)
		for _, part := range strings.Fields(author) {
			if len([]rune(part)) <= 2 {
				continue
			}
			if strings.Contains(listing, part) {
				authorScore = max(authorScore, 0.8)
				continue
			}
			for _, word := range listingWords {
				if s := Similarity(word, part); s > 0.7 {
					authorScore = max(authorScore, s)
				}
			}
		}
	}

	score := titleScore*0.7 + authorScore*0.3
	return Result{IsMatch: score >= threshold, Score: score}
}
