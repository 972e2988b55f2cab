// Package fingerprint pairs before and after job photos of the same spot by comparing short
// scene descriptions.
package fingerprint

import (
	"hash/fnv"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	MinMessy      = 5
	MinClean      = 5
	MinSimilarity = 0.3
)

// Photo is an analyzed image. Messy and Clean are independent 0-10 scores.
type Photo struct {
	ID          string `json:"id"`
	URL         string `json:"url,omitempty"`
	Fingerprint string `json:"fingerprint"`
	Messy       int    `json:"messy"`
	Clean       int    `json:"clean"`
}

type Pair struct {
	Before      Photo   `json:"before"`
	After       Photo   `json:"after"`
	Fingerprint string  `json:"fingerprint"`
	Similarity  float64 `json:"similarity"`
	Score       float64 `json:"score"`
}

var lower = cases.Lower(language.Und)

// Normalize lower-cases fp, drops everything but letters, digits and spaces, and sorts tokens.
func Normalize(fp string) string {
	folded := lower.String(fp)
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, folded)
	tokens := strings.Fields(cleaned)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// Similarity is the Jaccard index of the normalized token sets. Empty fingerprints score 0.
func Similarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	shared := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(setA)+len(setB)-shared)
}

func tokenSet(fp string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(Normalize(fp)) {
		set[tok] = struct{}{}
	}
	return set
}

// Match greedily pairs photos. Befores are taken in descending messy order; each picks the
// unused after with the highest similarity, keeping the first one seen on ties.
func Match(photos []Photo) []Pair {
	byMessy := make([]Photo, len(photos))
	copy(byMessy, photos)
	sort.SliceStable(byMessy, func(i, j int) bool { return byMessy[i].Messy > byMessy[j].Messy })

	used := make(map[string]bool, len(photos))
	var pairs []Pair

	for _, before := range byMessy {
		if used[before.ID] || before.Messy < MinMessy {
			continue
		}

		bestIdx := -1
		bestSim := 0.0
		for i, after := range photos {
			if after.ID == before.ID || used[after.ID] || after.Clean < MinClean {
				continue
			}
			sim := Similarity(before.Fingerprint, after.Fingerprint)
			if sim > MinSimilarity && sim > bestSim {
				bestSim = sim
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			continue
		}

		after := photos[bestIdx]
		pairs = append(pairs, Pair{
			Before:      before,
			After:       after,
			Fingerprint: before.Fingerprint,
			Similarity:  bestSim,
			Score:       Quality(before.Messy, after.Clean, bestSim),
		})
		used[before.ID] = true
		used[after.ID] = true
	}

	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Score > pairs[j].Score })
	return pairs
}

func Quality(messy, clean int, similarity float64) float64 {
	return (float64(messy) + float64(clean) + similarity*10) / 3
}

var captions = []string{
	"Same property. Different day.",
	"The transformation speaks for itself.",
	"Before and after. That's the difference.",
	"From overgrown to outstanding.",
	"Clean lines, fresh start.",
	"What a difference proper care makes.",
}

// Caption picks a stock caption for the pair, stable for a given before/after combination.
func Caption(p Pair) string {
	h := fnv.New32a()
	h.Write([]byte(p.Before.ID))
	h.Write([]byte{0})
	h.Write([]byte(p.After.ID))
	return captions[h.Sum32()%uint32(len(captions))]
}
