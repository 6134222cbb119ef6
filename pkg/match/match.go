// Package match implements fuzzy text-to-emotion retrieval over a registry
// snapshot. Tag similarity is normalized Levenshtein distance: the tag
// vocabulary is short free-text phrases, so character-level distance is
// cheap and discriminative enough without a vector index.
package match

import (
	"math/rand"
	"sort"

	"emojid/pkg/models"
)

// topCandidates is how many of the best-scoring records the final pick is
// drawn from. Randomizing among near-equal scores adds retrieval variety.
const topCandidates = 10

// Result is one matched record with its best tag and similarity.
type Result struct {
	Record     models.EmojiRecord
	Similarity float64
	Tag        string
}

// ByEmotion scores every active record with at least one emotion tag
// against query and returns a uniformly random pick from the top
// candidates. ok is false when no record's best tag strictly exceeds
// threshold; that is a normal negative result, not an error.
func ByEmotion(records []models.EmojiRecord, query string, threshold float64) (Result, bool) {
	candidates := rank(records, query, threshold)
	if len(candidates) == 0 {
		return Result{}, false
	}
	return candidates[rand.Intn(len(candidates))], true
}

// rank returns the qualifying records ordered by similarity descending,
// capped at topCandidates.
func rank(records []models.EmojiRecord, query string, threshold float64) []Result {
	results := make([]Result, 0, len(records))
	for _, rec := range records {
		if rec.Deleted || len(rec.EmotionTags) == 0 {
			continue
		}
		best := -1.0
		bestTag := ""
		for _, tag := range rec.EmotionTags {
			if s := Similarity(query, tag); s > best {
				best = s
				bestTag = tag
			}
		}
		if best > threshold {
			results = append(results, Result{Record: rec, Similarity: best, Tag: bestTag})
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > topCandidates {
		results = results[:topCandidates]
	}
	return results
}

// Similarity is 1 - distance/maxLen over runes. Two empty strings have
// similarity 0: maxLen is 0 there and the division is undefined, so the
// pair is defined as no-signal rather than a perfect match.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 0
	}
	return 1 - float64(Levenshtein(a, b))/float64(maxLen)
}

// Levenshtein computes the classic edit distance between two strings over
// runes, with a rolling single-row table.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i, ca := range ra {
		curr[0] = i + 1
		for j, cb := range rb {
			ins := prev[j+1] + 1
			del := curr[j] + 1
			sub := prev[j]
			if ca != cb {
				sub++
			}
			m := ins
			if del < m {
				m = del
			}
			if sub < m {
				m = sub
			}
			curr[j+1] = m
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
