// Package fuzzy implements the per-string matcher shared by the ranker and
// the grep engine's fuzzy mode: smart-case subsequence scoring with match
// ranges, a bounded typo allowance, and multi-part matching for queries
// that split on whitespace.
package fuzzy

import (
	"strings"

	"github.com/hbollon/go-edlib"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Range is a byte-offset pair marking a highlighted region.
type Range struct {
	Start int
	End   int
}

// Match is the result of scoring a needle against a haystack.
type Match struct {
	Score  int
	Ranges []Range
}

const (
	bonusExactCase   = 16
	bonusFoldCase    = 8
	bonusConsecutive = 10
	bonusWordStart   = 24
	bonusPrefix      = 20
	bonusSuffix      = 6
	penaltyPathCross = 4
	bonusSameOrder   = 12
	bonusExactMatch  = 80

	// typoSimilarityFloor bounds how much edit distance is tolerated: the
	// spec allows roughly one insert/delete per 8 needle characters, so
	// the minimum acceptable normalized similarity is 1 - 1/8.
	typoSimilarityFloor = 0.875
)

// IsLower reports whether s contains no uppercase letters, the smart-case
// test: an all-lowercase needle folds case when matching.
func IsLower(s string) bool {
	return s == strings.ToLower(s)
}

// MatchString scores needle against haystack. It returns ok=false when no
// acceptable match exists (including the bounded typo-tolerant fallback).
func MatchString(needle, haystack string) (Match, bool) {
	if needle == "" {
		return Match{}, false
	}
	fold := IsLower(needle)

	if positions, ok := twoPassSubsequence(needle, haystack, fold); ok {
		return score(needle, haystack, positions, fold), true
	}

	if positions, ok := typoTolerant(needle, haystack, fold); ok {
		return score(needle, haystack, positions, fold), true
	}
	return Match{}, false
}

// MatchParts scores a multi-part needle (from a space-split query) against
// haystack: every part must match independently, and the overall score is
// the sum of part scores plus a bonus when parts matched in the order they
// were given.
func MatchParts(parts []string, haystack string) (Match, bool) {
	if len(parts) == 0 {
		return Match{}, false
	}
	if len(parts) == 1 {
		return MatchString(parts[0], haystack)
	}

	var total int
	var ranges []Range
	lastStart := -1
	inOrder := true

	for _, p := range parts {
		m, ok := MatchString(p, haystack)
		if !ok {
			return Match{}, false
		}
		total += m.Score
		ranges = append(ranges, m.Ranges...)
		if len(m.Ranges) > 0 {
			if m.Ranges[0].Start < lastStart {
				inOrder = false
			}
			lastStart = m.Ranges[0].Start
		}
	}
	if inOrder {
		total += bonusSameOrder
	}
	return Match{Score: total, Ranges: mergeRanges(ranges)}, true
}

// twoPassSubsequence finds the positions of needle's characters within
// haystack as an ordered subsequence. The forward pass finds the earliest
// valid alignment; the backward pass then tightens it from the end, which
// in practice yields denser runs and better word-boundary bonuses than a
// single greedy forward scan (the simplified fzf technique).
func twoPassSubsequence(needle, haystack string, fold bool) ([]int, bool) {
	if fold {
		if !fuzzy.MatchFold(needle, haystack) {
			return nil, false
		}
	} else if !fuzzy.Match(needle, haystack) {
		return nil, false
	}

	n, h := []byte(needle), []byte(haystack)

	fwd := make([]int, len(n))
	hi := 0
	for i := range n {
		pos := indexFrom(h, n[i], hi, fold)
		if pos < 0 {
			return nil, false
		}
		fwd[i] = pos
		hi = pos + 1
	}

	// Backward tighten: starting just past the last forward match, walk
	// backward looking for the latest valid alignment.
	back := make([]int, len(n))
	hi = fwd[len(n)-1] + 1
	for i := len(n) - 1; i >= 0; i-- {
		pos := lastIndexBefore(h, n[i], hi, fold)
		if pos < 0 {
			// Should not happen since forward succeeded; fall back.
			return fwd, true
		}
		back[i] = pos
		hi = pos
	}
	return back, true
}

func indexFrom(h []byte, c byte, from int, fold bool) int {
	for i := from; i < len(h); i++ {
		if byteEq(h[i], c, fold) {
			return i
		}
	}
	return -1
}

func lastIndexBefore(h []byte, c byte, before int, fold bool) int {
	for i := before - 1; i >= 0; i-- {
		if byteEq(h[i], c, fold) {
			return i
		}
	}
	return -1
}

func byteEq(a, b byte, fold bool) bool {
	if !fold {
		return a == b
	}
	return toLower(a) == toLower(b)
}

func toLower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

// typoTolerant accepts needle against haystack when a sliding window of
// haystack near the best approximate location is within the bounded edit
// budget, and the first character still matches (typos are never allowed
// on the first character). The match range degrades to the whole window
// since exact per-character alignment under edits isn't reconstructed.
func typoTolerant(needle, haystack string, fold bool) ([]int, bool) {
	if len(needle) < 3 {
		return nil, false
	}
	maxTypos := len(needle) / 8
	if maxTypos == 0 {
		return nil, false
	}

	cmpNeedle := needle
	if fold {
		cmpNeedle = strings.ToLower(needle)
	}

	best := -1.0
	bestStart, bestEnd := -1, -1
	lo, hi := len(needle)-maxTypos, len(needle)+maxTypos
	if lo < 1 {
		lo = 1
	}
	for start := 0; start+1 <= len(haystack); start++ {
		if fold {
			if toLower(haystack[start]) != cmpNeedle[0] {
				continue
			}
		} else if haystack[start] != cmpNeedle[0] {
			continue
		}
		for wl := lo; wl <= hi; wl++ {
			end := start + wl
			if end > len(haystack) {
				break
			}
			window := haystack[start:end]
			if fold {
				window = strings.ToLower(window)
			}
			sim, err := edlib.StringsSimilarity(cmpNeedle, window, edlib.Levenshtein)
			if err != nil {
				continue
			}
			if float64(sim) > best {
				best = float64(sim)
				bestStart, bestEnd = start, end
			}
		}
	}
	if best < typoSimilarityFloor {
		return nil, false
	}
	positions := make([]int, bestEnd-bestStart)
	for i := range positions {
		positions[i] = bestStart + i
	}
	return positions, true
}

// score computes the total match score and collapses ascending positions
// into contiguous ranges.
func score(needle, haystack string, positions []int, fold bool) Match {
	n, h := []byte(needle), []byte(haystack)
	total := 0

	for i, pos := range positions {
		if !fold && pos < len(h) && positionIdx(i, n) == h[pos] {
			total += bonusExactCase
		} else {
			total += bonusFoldCase
		}

		if i > 0 {
			if pos == positions[i-1]+1 {
				total += bonusConsecutive
				if crossesPathSeparator(h, positions[i-1], pos) {
					total -= penaltyPathCross
				}
			}
		}

		if isWordStart(h, pos) {
			total += bonusWordStart
		}
	}

	if positions[0] == 0 {
		total += bonusPrefix
	}
	if positions[len(positions)-1] == len(h)-1 {
		total += bonusSuffix
	}
	if len(positions) == len(h) {
		total += bonusExactMatch
	}

	return Match{Score: total, Ranges: collapseRanges(positions)}
}

func positionIdx(i int, n []byte) byte {
	if i < len(n) {
		return n[i]
	}
	return 0
}

func isWordStart(h []byte, pos int) bool {
	if pos == 0 {
		return true
	}
	switch h[pos-1] {
	case '_', '-', '.', '/':
		return true
	}
	prevUpper := h[pos-1] >= 'A' && h[pos-1] <= 'Z'
	curUpper := h[pos] >= 'A' && h[pos] <= 'Z'
	return !prevUpper && curUpper
}

func crossesPathSeparator(h []byte, from, to int) bool {
	for i := from; i < to; i++ {
		if h[i] == '/' {
			return true
		}
	}
	return false
}

func collapseRanges(positions []int) []Range {
	if len(positions) == 0 {
		return nil
	}
	var out []Range
	start := positions[0]
	prev := positions[0]
	for _, p := range positions[1:] {
		if p == prev+1 {
			prev = p
			continue
		}
		out = append(out, Range{Start: start, End: prev + 1})
		start = p
		prev = p
	}
	out = append(out, Range{Start: start, End: prev + 1})
	return out
}

func mergeRanges(ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}
	sorted := make([]Range, len(ranges))
	copy(sorted, ranges)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].Start > sorted[j].Start; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	var out []Range
	for _, r := range sorted {
		if len(out) > 0 && r.Start <= out[len(out)-1].End {
			if r.End > out[len(out)-1].End {
				out[len(out)-1].End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}
