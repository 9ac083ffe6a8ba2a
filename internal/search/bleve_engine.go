package search

import (
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/pders01/rdt/internal/debuglog"
	"github.com/pders01/rdt/internal/model"
)

// BleveEngine keeps an in-memory index of every post loaded this session.
type BleveEngine struct {
	idx bleve.Index

	mu    sync.RWMutex
	items map[string]model.FeedItem
}

// NewBleveEngine creates an empty memory-only index.
func NewBleveEngine() (*BleveEngine, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, err
	}
	return &BleveEngine{idx: idx, items: make(map[string]model.FeedItem)}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	dm := bleve.NewDocumentMapping()

	title := bleve.NewTextFieldMapping()
	title.Analyzer = standard.Name
	title.Store = true
	title.IncludeTermVectors = true

	selftext := bleve.NewTextFieldMapping()
	selftext.Analyzer = standard.Name
	selftext.Store = false

	author := bleve.NewTextFieldMapping()
	author.Analyzer = standard.Name
	author.Store = true

	subreddit := bleve.NewTextFieldMapping()
	subreddit.Analyzer = keyword.Name
	subreddit.Store = true

	feed := bleve.NewTextFieldMapping()
	feed.Analyzer = keyword.Name

	dm.AddFieldMappingsAt("title", title)
	dm.AddFieldMappingsAt("selftext", selftext)
	dm.AddFieldMappingsAt("author", author)
	dm.AddFieldMappingsAt("subreddit", subreddit)
	dm.AddFieldMappingsAt("feed", feed)

	im.DefaultMapping = dm
	return im
}

func itemDoc(it model.FeedItem, feed string) map[string]any {
	return map[string]any{
		"title":     it.Title,
		"selftext":  it.SelfText,
		"author":    it.Author,
		"subreddit": strings.ToLower(it.Subreddit),
		"feed":      strings.ToLower(feed),
	}
}

// OnItemsLoaded indexes posts committed to a feed. Reindexing an item
// replaces its previous document.
func (b *BleveEngine) OnItemsLoaded(feed string, items []model.FeedItem) {
	if len(items) == 0 {
		return
	}
	batch := b.idx.NewBatch()
	b.mu.Lock()
	for _, it := range items {
		if err := batch.Index(docIDForItem(it.ID), itemDoc(it, feed)); err != nil {
			debuglog.Warnf("search: index %s: %v", it.ID, err)
			continue
		}
		b.items[it.ID] = it
	}
	b.mu.Unlock()
	if err := b.idx.Batch(batch); err != nil {
		debuglog.Errorf("search: batch of %d: %v", len(items), err)
	}
}

// OnFeedDropped removes the documents indexed for feed.
func (b *BleveEngine) OnFeedDropped(feed string) {
	tq := bleve.NewTermQuery(strings.ToLower(feed))
	tq.SetField("feed")

	size := 1000
	for {
		req := bleve.NewSearchRequestOptions(tq, size, 0, false)
		res, err := b.idx.Search(req)
		if err != nil || res == nil || len(res.Hits) == 0 {
			return
		}
		batch := b.idx.NewBatch()
		b.mu.Lock()
		for _, h := range res.Hits {
			batch.Delete(h.ID)
			delete(b.items, strings.TrimPrefix(h.ID, "post:"))
		}
		b.mu.Unlock()
		if err := b.idx.Batch(batch); err != nil {
			debuglog.Errorf("search: drop %s: %v", feed, err)
			return
		}
		if len(res.Hits) < size {
			return
		}
	}
}

// Search runs a boosted disjunction of per-term match and prefix queries.
func (b *BleveEngine) Search(query string, limit int) ([]*Result, error) {
	if len(strings.TrimSpace(query)) < 2 {
		return []*Result{}, nil
	}
	if limit <= 0 {
		limit = 50
	}

	var qs []bleveQuery.Query
	for _, tok := range tokenize(query) {
		qs = append(qs,
			fieldQuery(bleve.NewMatchQuery(tok), "title", 4.0),
			fieldQuery(bleve.NewPrefixQuery(tok), "title", 3.5),
			fieldQuery(bleve.NewMatchQuery(tok), "selftext", 1.5),
			fieldQuery(bleve.NewPrefixQuery(tok), "selftext", 1.2),
			fieldQuery(bleve.NewMatchQuery(tok), "author", 1.0),
			fieldQuery(bleve.NewPrefixQuery(tok), "author", 0.8),
		)
	}
	if len(qs) == 0 {
		return []*Result{}, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(qs...), limit, 0, false)
	res, err := b.idx.Search(req)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Result, 0, len(res.Hits))
	for _, h := range res.Hits {
		it, ok := b.items[strings.TrimPrefix(h.ID, "post:")]
		if !ok {
			continue
		}
		out = append(out, &Result{Item: it, Score: h.Score})
	}
	return out, nil
}

type boostable interface {
	bleveQuery.Query
	SetField(string)
	SetBoost(float64)
}

func fieldQuery(q boostable, field string, boost float64) bleveQuery.Query {
	q.SetField(field)
	q.SetBoost(boost)
	return q
}

// SearchInItem scores a single post without touching the index.
func (b *BleveEngine) SearchInItem(item *model.FeedItem, query string) ([]*Result, error) {
	return searchInItem(item, query), nil
}

// DocCount reports total documents in the index.
func (b *BleveEngine) DocCount() (int, error) {
	n, err := b.idx.DocCount()
	return int(n), err
}

// Close releases the index.
func (b *BleveEngine) Close() error {
	return b.idx.Close()
}

func docIDForItem(id string) string { return "post:" + id }
