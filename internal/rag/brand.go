package rag

import "strings"

// KnownBrands are the brand values present in passage metadata.
var KnownBrands = []string{
	"pepsi",
	"pürsu",
	"doğanay",
	"kızılay",
	"pınar",
	"golf",
	"lipton",
	"fruko",
	"erikli",
	"fritolay",
	"yedigün",
}

// DefaultBrand is the filter value for queries that name no known brand.
const DefaultBrand = "sirket_genel"

// BrandMatchThreshold is the minimum similarity (0-100) for a word to count
// as a brand mention.
const BrandMatchThreshold = 84.0

// DetectBrand returns the first known brand that a word of query fuzzily
// matches, or DefaultBrand. Within one word the best-scoring brand wins and
// ties keep list order.
func DetectBrand(query string) string {
	for _, word := range strings.Fields(strings.ToLower(query)) {
		best, bestScore := "", 0.0
		for _, brand := range KnownBrands {
			if score := similarity(word, brand); score >= BrandMatchThreshold && score > bestScore {
				best, bestScore = brand, score
			}
		}
		if best != "" {
			return best
		}
	}
	return DefaultBrand
}

// similarity is the normalized insertion/deletion similarity of a and b,
// 200*LCS/(len(a)+len(b)), measured in runes.
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 100
	}
	return 200 * float64(lcs(ra, rb)) / float64(total)
}

func lcs(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
