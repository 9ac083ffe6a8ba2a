package search

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/pders01/rdt/internal/model"
)

// Engine scores loaded posts directly without an index.
type Engine struct {
	source ItemSource
}

// NewEngine creates a scanning engine over source.
func NewEngine(source ItemSource) *Engine {
	return &Engine{source: source}
}

// Search scores every loaded post against query.
func (e *Engine) Search(query string, limit int) ([]*Result, error) {
	if len(strings.TrimSpace(query)) < 2 || e.source == nil {
		return []*Result{}, nil
	}

	terms := tokenize(query)
	if len(terms) == 0 {
		return []*Result{}, nil
	}

	results := []*Result{}
	for _, it := range e.source.LoadedItems() {
		if r := scoreItem(it, terms); r != nil {
			results = append(results, r)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// SearchInItem searches within a single post.
func (e *Engine) SearchInItem(item *model.FeedItem, query string) ([]*Result, error) {
	return searchInItem(item, query), nil
}

func searchInItem(item *model.FeedItem, query string) []*Result {
	if len(strings.TrimSpace(query)) < 2 || item == nil {
		return []*Result{}
	}
	terms := tokenize(query)
	if len(terms) == 0 {
		return []*Result{}
	}
	if r := scoreItem(*item, terms); r != nil {
		return []*Result{r}
	}
	return []*Result{}
}

func scoreItem(it model.FeedItem, terms []string) *Result {
	var matches []Match
	var total float64

	if s := scoreField(it.Title, terms, 4.0); s > 0 {
		matches = append(matches, Match{Field: "title", Text: it.Title, Weight: s})
		total += s
	}
	if s := scoreField(it.SelfText, terms, 1.5); s > 0 {
		matches = append(matches, Match{
			Field:  "selftext",
			Text:   findBestSnippet(it.SelfText, terms, 200),
			Weight: s,
		})
		total += s
	}
	if s := scoreField(it.Author, terms, 1.0); s > 0 {
		matches = append(matches, Match{Field: "author", Text: it.Author, Weight: s})
		total += s
	}

	if total == 0 {
		return nil
	}
	return &Result{Item: it, Score: total, Matches: matches}
}

// RankSubreddits returns the subreddits whose name or title matches query,
// best match first. An empty query returns subs unchanged.
func RankSubreddits(subs []model.Subreddit, query string) []model.Subreddit {
	terms := tokenize(query)
	if len(terms) == 0 {
		return subs
	}

	type scored struct {
		sub   model.Subreddit
		score float64
	}
	var hits []scored
	for _, s := range subs {
		score := scoreField(s.Name, terms, 3.0) + scoreField(s.Title, terms, 1.0)
		if score > 0 {
			hits = append(hits, scored{s, score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].score > hits[j].score
	})

	out := make([]model.Subreddit, len(hits))
	for i, h := range hits {
		out[i] = h.sub
	}
	return out
}

// scoreField calculates relevance score for a field
func scoreField(text string, terms []string, weight float64) float64 {
	if text == "" {
		return 0
	}

	lower := strings.ToLower(text)
	words := tokenize(text)
	if len(words) == 0 {
		words = []string{lower}
	}

	var score float64
	matched := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			score += 2.0
			matched++
		}
		for _, word := range words {
			switch {
			case word == term:
				score += 1.5
				matched++
			case strings.HasPrefix(word, term) || strings.HasSuffix(word, term):
				score += 1.0
				matched++
			case strings.Contains(word, term):
				score += 0.5
				matched++
			}
		}
	}
	if matched == 0 {
		return 0
	}

	if len(terms) > 1 && matched > 1 {
		score *= 1.0 + float64(matched)/float64(len(terms))
	}

	tf := float64(matched) / float64(len(words))
	score *= 1.0 + math.Log(1.0+tf)

	return score * weight
}

// findBestSnippet finds the window of text holding the most search terms.
func findBestSnippet(text string, terms []string, maxLength int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	window := maxLength / 8
	if window >= len(words) {
		return truncate(text, maxLength)
	}

	best, bestStart := 0, 0
	for i := 0; i <= len(words)-window; i++ {
		chunk := strings.ToLower(strings.Join(words[i:i+window], " "))
		n := 0
		for _, term := range terms {
			if strings.Contains(chunk, term) {
				n++
			}
		}
		if n > best {
			best, bestStart = n, i
		}
	}

	return truncate(strings.Join(words[bestStart:bestStart+window], " "), maxLength)
}

// tokenize breaks text into lowercase terms, dropping single characters.
func tokenize(text string) []string {
	var terms []string
	var current strings.Builder

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			current.WriteRune(unicode.ToLower(r))
		} else if current.Len() > 0 {
			if term := current.String(); len(term) > 1 {
				terms = append(terms, term)
			}
			current.Reset()
		}
	}
	if current.Len() > 1 {
		terms = append(terms, current.String())
	}
	return terms
}

// truncate limits text length with ellipsis
func truncate(text string, maxLen int) string {
	r := []rune(text)
	if len(r) <= maxLen {
		return text
	}
	return string(r[:maxLen-1]) + "…"
}
