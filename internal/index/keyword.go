package index

import (
	"regexp"
	"sort"
	"strings"

	"github.com/maibvn/pal/internal/model"
)

var queryWordSplit = regexp.MustCompile(`[^A-Za-z0-9_]+`)

func queryWords(query string) []string {
	var out []string
	for _, w := range queryWordSplit.Split(strings.ToLower(query), -1) {
		if len(w) > 2 {
			out = append(out, w)
		}
	}
	return out
}

// keywordSearch scores each chunk by occurrences of the query words divided by the word count.
func keywordSearch(entries []*model.Chunk, query string, limit int) []*model.ScoredChunk {
	words := queryWords(query)
	if len(words) == 0 {
		return nil
	}
	var out []*model.ScoredChunk
	for _, c := range entries {
		content := strings.ToLower(c.Content)
		hits := 0
		for _, w := range words {
			hits += strings.Count(content, w)
		}
		if hits == 0 {
			continue
		}
		out = append(out, &model.ScoredChunk{Chunk: *c, Similarity: float64(hits) / float64(len(words))})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
