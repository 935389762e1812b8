package agent

import (
	"regexp"
	"strconv"

	"github.com/54b3r/shopai-go/internal/rag"
)

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// Citations returns the bracketed product ids in text, in order of first
// appearance, without duplicates.
func Citations(text string) []int64 {
	var (
		out  []int64
		seen = map[int64]bool{}
	)
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// unknownCitations returns the cited ids that are not among sources.
func unknownCitations(cited []int64, sources []rag.FusedResult) []int64 {
	known := make(map[int64]bool, len(sources))
	for _, s := range sources {
		known[s.ProductID] = true
	}
	var out []int64
	for _, id := range cited {
		if !known[id] {
			out = append(out, id)
		}
	}
	return out
}
